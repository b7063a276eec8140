// Package api provides the HTTP surface over the session manager: JSON
// endpoints for every manager operation plus a WebSocket attach endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"

	"github.com/rickyjim626/semantic-terminal/internal/manager"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
	"github.com/rickyjim626/semantic-terminal/internal/store"
)

const (
	defaultExecTimeout = 30 * time.Second
	defaultWaitTimeout = 30 * time.Second
	maxRequestBody     = 1 << 20 // 1MB
)

// Handler serves the session API.
type Handler struct {
	mgr  *manager.Manager
	repo store.Repository // may be nil
}

// NewHandler creates the API handler. repo may be nil when persistence is
// disabled.
func NewHandler(mgr *manager.Manager, repo store.Repository) *Handler {
	return &Handler{mgr: mgr, repo: repo}
}

// RegisterRoutes mounts the session API on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Post("/", h.createSession)
		r.Delete("/", h.destroyAll)

		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.destroySession)
			r.Get("/state", h.getState)
			r.Get("/screen", h.getScreen)
			r.Get("/messages", h.getMessages)
			r.Get("/confirm", h.getPendingConfirm)
			r.Post("/confirm", h.respondToConfirm)
			r.Post("/exec", h.exec)
			r.Post("/send", h.send)
			r.Post("/write", h.write)
			r.Post("/interrupt", h.interrupt)
			r.Post("/keys", h.sendKey)
			r.Post("/resize", h.resize)
			r.Post("/wait", h.waitForState)
		})
	})

	if h.repo != nil {
		r.Get("/api/history/sessions", h.historySessions)
		r.Get("/api/history/sessions/{id}/messages", h.historyMessages)
		r.Get("/api/history/sessions/{id}/execs", h.historyExecs)
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response with a stable kind derived from the
// error classification.
func Error(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errdefs.IsNotFound(err):
		status, kind = http.StatusNotFound, "not_found"
	case errdefs.IsResourceExhausted(err):
		status, kind = http.StatusTooManyRequests, "quota"
	case errdefs.IsFailedPrecondition(err):
		status, kind = http.StatusConflict, "wrong_state"
	case errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusGatewayTimeout, "timeout"
	case errdefs.IsConflict(err):
		status, kind = http.StatusConflict, "no_pending_confirmation"
	case errdefs.IsUnavailable(err):
		status, kind = http.StatusServiceUnavailable, "unavailable"
	}
	JSON(w, status, map[string]string{"kind": kind, "error": err.Error()})
}

func decode[T any](w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"kind": "bad_request", "error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.mgr.List())
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var opts manager.CreateOptions
	if !decode(w, r, &opts) {
		return
	}
	info, err := h.mgr.Create(opts)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, info)
}

func (h *Handler) destroySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"
	if err := h.mgr.Destroy(id, force); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

func (h *Handler) destroyAll(w http.ResponseWriter, _ *http.Request) {
	h.mgr.DestroyAll()
	JSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	state, err := h.mgr.GetState(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

func (h *Handler) getScreen(w http.ResponseWriter, r *http.Request) {
	lines := 0
	if v := r.URL.Query().Get("lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lines = n
		}
	}
	snap, err := h.mgr.GetScreen(chi.URLParam(r, "id"), lines)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

func (h *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.mgr.Messages(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, msgs)
}

func (h *Handler) getPendingConfirm(w http.ResponseWriter, r *http.Request) {
	info, err := h.mgr.GetPendingConfirm(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"pending": info})
}

func (h *Handler) respondToConfirm(w http.ResponseWriter, r *http.Request) {
	var resp parser.ConfirmResponse
	if !decode(w, r, &resp) {
		return
	}
	if err := h.mgr.RespondToConfirm(chi.URLParam(r, "id"), resp); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

type execRequest struct {
	Command     string `json:"command"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
	ParseOutput *bool  `json:"parse_output,omitempty"`
}

func (h *Handler) exec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if !decode(w, r, &req) {
		return
	}
	timeout := defaultExecTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	parse := req.ParseOutput == nil || *req.ParseOutput

	result, err := h.mgr.Exec(chi.URLParam(r, "id"), req.Command, timeout, parse)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

type textRequest struct {
	Text string `json:"text"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.mgr.Send(chi.URLParam(r, "id"), req.Text); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.mgr.Write(chi.URLParam(r, "id"), []byte(req.Text)); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "written"})
}

func (h *Handler) interrupt(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Interrupt(chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "interrupted"})
}

type keyRequest struct {
	Key string `json:"key"`
}

func (h *Handler) sendKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.mgr.SendKey(chi.URLParam(r, "id"), req.Key); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (h *Handler) resize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.mgr.Resize(chi.URLParam(r, "id"), req.Cols, req.Rows); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "resized"})
}

type waitRequest struct {
	State     string `json:"state"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

func (h *Handler) waitForState(w http.ResponseWriter, r *http.Request) {
	var req waitRequest
	if !decode(w, r, &req) {
		return
	}
	timeout := defaultWaitTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if err := h.mgr.WaitForState(chi.URLParam(r, "id"), parser.SessionState(req.State), timeout); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": req.State})
}

func (h *Handler) historySessions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.ListSessions(r.Context(), 0)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, recs)
}

func (h *Handler) historyMessages(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.ListMessages(r.Context(), chi.URLParam(r, "id"), 0)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, recs)
}

func (h *Handler) historyExecs(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.ListExecs(r.Context(), chi.URLParam(r, "id"), 0)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, recs)
}
