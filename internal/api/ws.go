package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/rickyjim626/semantic-terminal/internal/events"
	"github.com/rickyjim626/semantic-terminal/internal/manager"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

const wsOutboundQueueSize = 256

// WebSocketHandler attaches a live client to a session: raw PTY output is
// streamed out as binary frames, and JSON input messages drive the session.
//
// Outbound frames go through a bounded queue drained by one writer
// goroutine; a slow client drops its oldest frames instead of blocking the
// session's event emission or the PTY read loop.
type WebSocketHandler struct {
	mgr    *manager.Manager
	logger *slog.Logger
}

// NewWebSocketHandler creates the attach handler.
func NewWebSocketHandler(mgr *manager.Manager, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{mgr: mgr, logger: logger}
}

// wsMessage is the client-to-server message envelope.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Cols    int    `json:"cols,omitempty"`
	Rows    int    `json:"rows,omitempty"`
}

// wsFrame is one queued outbound frame. final marks the last frame of the
// session; the writer detaches after sending it.
type wsFrame struct {
	kind  websocket.MessageType
	data  []byte
	final bool
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if _, err := h.mgr.GetState(sessionID); err != nil {
		Error(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session detached"); closeErr != nil {
			h.logger.Debug("websocket close failed", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	emitter, err := h.mgr.SessionEvents(sessionID)
	if err != nil {
		return
	}

	outCh := make(chan wsFrame, wsOutboundQueueSize)

	// enqueue never blocks: when the queue is full the oldest frame is
	// dropped to make room, so a stalled client cannot stall the emitter.
	enqueue := func(f wsFrame) {
		select {
		case outCh <- f:
			return
		default:
		}
		select {
		case <-outCh:
			h.logger.Debug("websocket queue full, dropped oldest frame", "session_id", sessionID)
		default:
		}
		select {
		case outCh <- f:
		default:
		}
	}
	enqueueJSON := func(v any, final bool) {
		data, jerr := json.Marshal(v)
		if jerr != nil {
			return
		}
		enqueue(wsFrame{kind: websocket.MessageText, data: data, final: final})
	}

	// Writer loop: the only goroutine that touches ws.Write.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case frame := <-outCh:
				if werr := ws.Write(ctx, frame.kind, frame.data); werr != nil {
					if ctx.Err() == nil {
						h.logger.Debug("websocket write failed", "error", werr, "session_id", sessionID)
					}
					cancel()
					return
				}
				if frame.final {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	dataSub := emitter.On(events.Data, func(payload any) {
		data, ok := payload.([]byte)
		if !ok {
			return
		}
		enqueue(wsFrame{kind: websocket.MessageBinary, data: data})
	})
	defer emitter.Off(dataSub)

	stateSub := emitter.On(events.StateChange, func(payload any) {
		enqueueJSON(map[string]any{"type": "state_change", "payload": payload}, false)
	})
	defer emitter.Off(stateSub)

	confirmSub := emitter.On(events.ConfirmRequired, func(payload any) {
		enqueueJSON(map[string]any{"type": "confirm_required", "payload": payload}, false)
	})
	defer emitter.Off(confirmSub)

	exitSub := emitter.On(events.Exit, func(payload any) {
		enqueueJSON(map[string]any{"type": "exit", "payload": payload}, true)
	})
	defer emitter.Off(exitSub)

	h.logger.Info("websocket attached", "session_id", sessionID)
	h.inputLoop(ctx, ws, sessionID, enqueueJSON)
	cancel()
	<-writerDone
	h.logger.Info("websocket detached", "session_id", sessionID)
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, sessionID string, enqueueJSON func(v any, final bool)) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Fallback to raw input bytes.
			if werr := h.mgr.Write(sessionID, message); werr != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "data":
			if werr := h.mgr.Write(sessionID, []byte(msg.Content)); werr != nil {
				return
			}
		case "send":
			if werr := h.mgr.Send(sessionID, msg.Content); werr != nil {
				return
			}
		case "key":
			if werr := h.mgr.SendKey(sessionID, msg.Content); werr != nil {
				return
			}
		case "interrupt":
			if werr := h.mgr.Interrupt(sessionID); werr != nil {
				return
			}
		case "resize":
			if werr := h.mgr.Resize(sessionID, msg.Cols, msg.Rows); werr != nil {
				h.logger.Warn("resize failed", "error", werr, "session_id", sessionID)
			}
		case "confirm":
			var resp parser.ConfirmResponse
			if err := json.Unmarshal([]byte(msg.Content), &resp); err == nil {
				if werr := h.mgr.RespondToConfirm(sessionID, resp); werr != nil {
					h.logger.Warn("confirm failed", "error", werr, "session_id", sessionID)
				}
			}
		case "ping":
			enqueueJSON(map[string]string{"type": "pong"}, false)
		}
	}
}
