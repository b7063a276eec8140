package screen

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vito/midterm"
)

// MidtermScreen implements Screen on top of two midterm terminals: a live
// terminal for the visible screen and cursor, and an append-only auto-
// growing terminal that accumulates scrollback. Both receive every byte.
type MidtermScreen struct {
	mu         sync.RWMutex
	vt         *midterm.Terminal
	scrollback *midterm.Terminal
	rows, cols int
	title      string
	epoch      atomic.Uint64
	disposed   bool
}

// NewMidtermScreen creates a screen with the given dimensions.
func NewMidtermScreen(cols, rows int) *MidtermScreen {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	sb := midterm.NewTerminal(rows, cols)
	sb.AutoResizeY = true
	sb.AppendOnly = true
	return &MidtermScreen{
		vt:         midterm.NewTerminal(rows, cols),
		scrollback: sb,
		rows:       rows,
		cols:       cols,
	}
}

// Write implements Screen.
func (s *MidtermScreen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return len(p), nil
	}
	if _, err := s.vt.Write(p); err != nil {
		return 0, err
	}
	// The scrollback copy is best-effort; the live screen is authoritative.
	_, _ = s.scrollback.Write(p)
	if t, ok := extractTitle(p); ok {
		s.title = t
	}
	s.epoch.Add(1)
	return len(p), nil
}

// ScreenText implements Screen: the append-only terminal holds the visible
// screen plus everything that scrolled past it. Trailing blank rows are
// unused padding, not content, and are dropped so the text only grows as
// output arrives.
func (s *MidtermScreen) ScreenText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.TrimRight(renderPlain(s.scrollback), "\n")
}

// LastLine implements Screen.
func (s *MidtermScreen) LastLine() string {
	lines := s.LastLines(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// LastLines implements Screen.
func (s *MidtermScreen) LastLines(n int) []string {
	if n <= 0 {
		return nil
	}
	text := s.ScreenText()
	lines := strings.Split(text, "\n")
	// Drop trailing blank lines so "last lines" means last content.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Cursor implements Screen.
func (s *MidtermScreen) Cursor() Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Cursor{X: s.vt.Cursor.X, Y: s.vt.Cursor.Y}
}

// Title implements Screen.
func (s *MidtermScreen) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Resize implements Screen.
func (s *MidtermScreen) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.cols, s.rows = cols, rows
	s.vt.Resize(rows, cols)
	s.scrollback.Resize(s.scrollback.Height, cols)
	s.epoch.Add(1)
}

// Clear implements Screen.
func (s *MidtermScreen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.vt = midterm.NewTerminal(s.rows, s.cols)
	s.epoch.Add(1)
}

// Reset implements Screen.
func (s *MidtermScreen) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.vt = midterm.NewTerminal(s.rows, s.cols)
	sb := midterm.NewTerminal(s.rows, s.cols)
	sb.AutoResizeY = true
	sb.AppendOnly = true
	s.scrollback = sb
	s.title = ""
	s.epoch.Add(1)
}

// Epoch implements Screen.
func (s *MidtermScreen) Epoch() uint64 {
	return s.epoch.Load()
}

// Dispose implements Screen.
func (s *MidtermScreen) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.vt = midterm.NewTerminal(1, 1)
	s.scrollback = midterm.NewTerminal(1, 1)
}

// renderPlain joins a terminal's rows as right-trimmed plain text.
func renderPlain(t *midterm.Terminal) string {
	var b strings.Builder
	for i, row := range t.Content {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimRight(string(row), " "))
	}
	return b.String()
}

// extractTitle scans raw bytes for an OSC 0/2 window-title sequence,
// terminated by BEL or ST. Returns the last title present.
func extractTitle(p []byte) (string, bool) {
	title := ""
	found := false
	for i := 0; i+3 < len(p); i++ {
		if p[i] != 0x1b || p[i+1] != ']' {
			continue
		}
		j := i + 2
		code := 0
		for j < len(p) && p[j] >= '0' && p[j] <= '9' {
			code = code*10 + int(p[j]-'0')
			j++
		}
		if j >= len(p) || p[j] != ';' || (code != 0 && code != 2) {
			continue
		}
		j++
		start := j
		for j < len(p) {
			if p[j] == 0x07 {
				title = string(p[start:j])
				found = true
				break
			}
			if p[j] == 0x1b && j+1 < len(p) && p[j+1] == '\\' {
				title = string(p[start:j])
				found = true
				break
			}
			j++
		}
		i = j
	}
	return title, found
}
