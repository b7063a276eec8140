// Package manager multiplexes session drivers: it enforces the session
// quota, sweeps idle sessions, resolves presets, and exposes the per-session
// operation set consumed by the HTTP and MCP surfaces.
package manager

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"

	"github.com/rickyjim626/semantic-terminal/internal/enrich"
	"github.com/rickyjim626/semantic-terminal/internal/events"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
	"github.com/rickyjim626/semantic-terminal/internal/parser/confirmparse"
	"github.com/rickyjim626/semantic-terminal/internal/screen"
	"github.com/rickyjim626/semantic-terminal/internal/session"
	"github.com/rickyjim626/semantic-terminal/internal/spawn"
)

const (
	defaultMaxSessions   = 10
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepInterval = 60 * time.Second
	defaultCols          = 120
	defaultRows          = 30
	destroyExitCommand   = "exit"
)

// Options configures a Manager.
type Options struct {
	MaxSessions   int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	DefaultCols   int
	DefaultRows   int
	TickInterval  time.Duration
	LastLines     int
	// LogDir enables per-session log files when non-empty.
	LogDir string
}

// CreateOptions describes one session to create.
type CreateOptions struct {
	Preset          string            `json:"preset,omitempty"`
	Command         string            `json:"command,omitempty"`
	Args            []string          `json:"args,omitempty"`
	Cols            int               `json:"cols,omitempty"`
	Rows            int               `json:"rows,omitempty"`
	Cwd             string            `json:"cwd,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	ConfirmStrategy string            `json:"confirm_strategy,omitempty"`
	// AllowTools/DenyTools are glob rules auto-answering tool
	// confirmations; tools matching neither list are surfaced.
	AllowTools []string `json:"allow_tools,omitempty"`
	DenyTools  []string `json:"deny_tools,omitempty"`
}

// SessionInfo is the externally visible summary of a managed session.
type SessionInfo struct {
	ID           string              `json:"id"`
	Preset       string              `json:"preset"`
	Command      string              `json:"command,omitempty"`
	State        parser.SessionState `json:"state"`
	CreatedAt    int64               `json:"created_at"`
	LastActivity int64               `json:"last_activity"`
}

type managedSession struct {
	id        string
	driver    *session.Driver
	preset    string
	command   string
	createdAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

func (m *managedSession) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *managedSession) lastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Store persists session lifecycle records and conversation messages. All
// methods are advisory; persistence failures never fail an operation.
type Store interface {
	RecordSessionCreated(id, preset, command string, createdAt time.Time) error
	RecordSessionEnded(id string, state string, endedAt time.Time) error
	RecordMessage(sessionID, role, content string, ts time.Time) error
	RecordExec(sessionID, command string, severity string, durationMs int64, ts time.Time) error
}

// Manager owns the session map. The map is mutated only on create, destroy,
// sweep, and child exit, each under the manager lock.
type Manager struct {
	opts    Options
	spawner spawn.Spawner
	store   Store
	emitter *events.Emitter
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*managedSession

	stop     chan struct{}
	stopOnce sync.Once
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// New creates a Manager. spawner provides the default transport; store may
// be nil.
func New(spawner spawn.Spawner, store Store, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.DefaultCols <= 0 {
		opts.DefaultCols = defaultCols
	}
	if opts.DefaultRows <= 0 {
		opts.DefaultRows = defaultRows
	}

	m := &Manager{
		opts:     opts,
		spawner:  spawner,
		store:    store,
		emitter:  events.New(),
		logger:   logger,
		sessions: make(map[string]*managedSession),
		stop:     make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go m.sweepLoop()
	m.emitter.Emit(events.Ready, nil)
	return m
}

// Events returns the manager-level emitter.
func (m *Manager) Events() *events.Emitter { return m.emitter }

// newSessionID builds a globally unique "session-<timestamp36>-<random6>" id.
func (m *Manager) newSessionID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	m.rngMu.Lock()
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = alphabet[m.rng.Intn(len(alphabet))]
	}
	m.rngMu.Unlock()
	return "session-" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + string(suffix)
}

// Create resolves the preset, spawns a driver, and registers it. Creating
// past the session cap fails with a quota error.
func (m *Manager) Create(opts CreateOptions) (*SessionInfo, error) {
	preset, err := ResolvePreset(opts.Preset)
	if err != nil {
		return nil, err
	}
	if opts.ConfirmStrategy != "" {
		preset.ConfirmStrategy = confirmparse.ResponseStrategy(opts.ConfirmStrategy)
	}

	m.mu.Lock()
	if len(m.sessions) >= m.opts.MaxSessions {
		n := len(m.sessions)
		m.mu.Unlock()
		return nil, fmt.Errorf("session quota reached (%d/%d): %w", n, m.opts.MaxSessions, errdefs.ErrResourceExhausted)
	}
	m.mu.Unlock()

	id := m.newSessionID()
	command := opts.Command
	args := opts.Args
	if command == "" {
		command = preset.Command
		args = preset.Args
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = m.opts.DefaultCols
	}
	if rows <= 0 {
		rows = m.opts.DefaultRows
	}

	registry := parser.NewRegistry(m.logger)
	registry.ReplaceAll(preset.BuildParsers())

	driverOpts := session.Options{
		Command:      command,
		Args:         args,
		Cols:         cols,
		Rows:         rows,
		Cwd:          opts.Cwd,
		Env:          opts.Env,
		LoginShell:   preset.LoginShell,
		TickInterval: m.opts.TickInterval,
		LastLines:    m.opts.LastLines,
	}
	if m.opts.LogDir != "" {
		driverOpts.LogPath = filepath.Join(m.opts.LogDir, id+".log")
	}

	drv := session.New(id, m.spawner, screen.NewMidtermScreen(cols, rows), registry, driverOpts, m.logger)
	if len(opts.AllowTools) > 0 || len(opts.DenyTools) > 0 {
		drv.SetPermissionChecker(&session.GlobPermissionChecker{
			Allow: opts.AllowTools,
			Deny:  opts.DenyTools,
		})
	}

	ms := &managedSession{
		id:           id,
		driver:       drv,
		preset:       preset.Name,
		command:      command,
		createdAt:    time.Now(),
		lastActivity: time.Now(),
	}
	drv.SetActivityHook(ms.touch)

	// A child exit removes the session from the map; exited sessions are
	// never listed.
	drv.Events().On(events.Exit, func(payload any) {
		m.remove(id, "exited")
	})

	if err := drv.Start(); err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	m.mu.Lock()
	m.sessions[id] = ms
	m.mu.Unlock()

	if m.store != nil {
		if serr := m.store.RecordSessionCreated(id, preset.Name, command, ms.createdAt); serr != nil {
			m.logger.Warn("session record not persisted", "session_id", id, "error", serr)
		}
	}

	m.logger.Info("session created", "session_id", id, "preset", preset.Name)
	return m.info(ms), nil
}

// remove deletes a session entry; called on child exit and from destroy.
func (m *Manager) remove(id, reason string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.store != nil {
		if err := m.store.RecordSessionEnded(id, reason, time.Now()); err != nil {
			m.logger.Warn("session end not persisted", "session_id", id, "error", err)
		}
	}
	m.logger.Info("session removed", "session_id", id, "reason", reason)
}

// get resolves a session id.
func (m *Manager) get(id string) (*managedSession, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown session %s: %w", id, errdefs.ErrNotFound)
	}
	return ms, nil
}

// Destroy ends a session. Graceful close is attempted first unless force is
// set; the driver force-kills after its grace period regardless.
func (m *Manager) Destroy(id string, force bool) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if force {
		ms.driver.Kill()
	} else {
		ms.driver.Close(destroyExitCommand)
	}
	m.remove(id, "destroyed")
	return nil
}

// DestroyAll force-destroys every session.
func (m *Manager) DestroyAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		if err := m.Destroy(id, true); err != nil && !errdefs.IsNotFound(err) {
			m.logger.Warn("destroy failed", "session_id", id, "error", err)
		}
	}
}

// List returns every live session summary.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, ms := range m.sessions {
		out = append(out, *m.info(ms))
	}
	return out
}

func (m *Manager) info(ms *managedSession) *SessionInfo {
	return &SessionInfo{
		ID:           ms.id,
		Preset:       ms.preset,
		Command:      ms.command,
		State:        ms.driver.State(),
		CreatedAt:    ms.createdAt.UnixMilli(),
		LastActivity: ms.lastActive().UnixMilli(),
	}
}

// ExecResult is the manager-level exec response.
type ExecResult struct {
	Enhanced *enrich.EnhancedOutput `json:"enhanced,omitempty"`
	Raw      string                 `json:"raw,omitempty"`
}

// Exec runs a command in a session, measures wall-clock duration, and wraps
// the result as an enhanced output. Unclaimed output is wrapped as a text
// record. parseOutput=false skips classification and returns the raw text.
func (m *Manager) Exec(id, cmd string, timeout time.Duration, parseOutput bool) (*ExecResult, error) {
	ms, err := m.get(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, raw, err := ms.driver.Exec(cmd, timeout)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	if !parseOutput {
		return &ExecResult{Raw: raw}, nil
	}

	if out == nil {
		out = &parser.Output{
			Type:       parser.OutputText,
			Raw:        raw,
			Data:       raw,
			Confidence: 1,
			ParserName: "raw-text",
		}
	}

	enhanced := enrich.CreateEnhancedOutput(*out, enrich.Options{
		SessionID:  id,
		Command:    cmd,
		DurationMs: duration.Milliseconds(),
	})

	if m.store != nil {
		if serr := m.store.RecordExec(id, cmd, string(enhanced.Severity), duration.Milliseconds(), start); serr != nil {
			m.logger.Warn("exec record not persisted", "session_id", id, "error", serr)
		}
	}

	return &ExecResult{Enhanced: &enhanced}, nil
}

// Send writes a message plus carriage return and records it.
func (m *Manager) Send(id, msg string) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.Send(msg); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	if m.store != nil {
		if serr := m.store.RecordMessage(id, "user", msg, time.Now()); serr != nil {
			m.logger.Warn("message not persisted", "session_id", id, "error", serr)
		}
	}
	return nil
}

// Write sends raw bytes to a session's PTY.
func (m *Manager) Write(id string, data []byte) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.Write(data); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// Interrupt writes Ctrl-C to a session.
func (m *Manager) Interrupt(id string) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.Interrupt(); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// SendKey writes a named key's escape sequence to a session.
func (m *Manager) SendKey(id, key string) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.SendKey(key); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// Resize changes a session's PTY and screen dimensions.
func (m *Manager) Resize(id string, cols, rows int) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.Resize(cols, rows); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// GetScreen returns the screen snapshot; lines > 0 restricts the text to
// the trailing lines.
func (m *Manager) GetScreen(id string, lines int) (*session.Snapshot, error) {
	ms, err := m.get(id)
	if err != nil {
		return nil, err
	}
	snap := ms.driver.ScreenSnapshot()
	if lines > 0 {
		snap.Text = strings.Join(ms.driver.LastLines(lines), "\n")
	}
	return &snap, nil
}

// GetState returns a session's current state.
func (m *Manager) GetState(id string) (parser.SessionState, error) {
	ms, err := m.get(id)
	if err != nil {
		return "", err
	}
	return ms.driver.State(), nil
}

// WaitForState blocks until the session reaches the state or times out.
func (m *Manager) WaitForState(id string, state parser.SessionState, timeout time.Duration) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.WaitForState(state, timeout); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// GetPendingConfirm returns a session's pending confirmation, or nil.
func (m *Manager) GetPendingConfirm(id string) (*parser.ConfirmInfo, error) {
	ms, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return ms.driver.PendingConfirm(), nil
}

// RespondToConfirm answers a session's pending confirmation.
func (m *Manager) RespondToConfirm(id string, resp parser.ConfirmResponse) error {
	ms, err := m.get(id)
	if err != nil {
		return err
	}
	if err := ms.driver.Confirm(resp); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// SessionEvents returns a session's event emitter, for callers that stream
// live output or state changes.
func (m *Manager) SessionEvents(id string) (*events.Emitter, error) {
	ms, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return ms.driver.Events(), nil
}

// Messages returns a session's conversation records.
func (m *Manager) Messages(id string) ([]session.Message, error) {
	ms, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return ms.driver.Messages(), nil
}

// sweepLoop periodically force-destroys sessions idle past the timeout.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.opts.IdleTimeout)

	m.mu.RLock()
	var expired []string
	for id, ms := range m.sessions {
		if ms.lastActive().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}
	m.logger.Info("idle sweep found expired sessions", "count", len(expired))
	for _, id := range expired {
		if err := m.Destroy(id, true); err != nil && !errdefs.IsNotFound(err) {
			m.logger.Warn("idle sweep destroy failed", "session_id", id, "error", err)
		}
	}
}

// Shutdown stops the sweep loop and destroys every session.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.DestroyAll()
	m.emitter.Close()
}
