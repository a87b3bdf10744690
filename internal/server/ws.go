package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/loremaster-ai/loremaster/internal/pipeline"
)

// socketTurn is one inbound turn request on the websocket.
type socketTurn struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// socketReply is one outbound frame: a completed turn or an error. The
// connection survives turn-level errors; only transport failures close it.
type socketReply struct {
	Turn  *pipeline.TurnResult `json:"turn,omitempty"`
	Error string               `json:"error,omitempty"`
}

// handleTurnSocket runs a turn loop over a websocket. Each text frame is
// one player message; each reply frame carries the finished turn. Turns on
// the same session stay serialized by the engine, so multiple sockets on
// one session are safe.
func (s *Server) handleTurnSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Covers client close, network failure, and request cancellation.
			return
		}

		var req socketTurn
		if err := json.Unmarshal(data, &req); err != nil {
			if !s.writeSocket(ctx, conn, socketReply{Error: "invalid turn frame"}) {
				return
			}
			continue
		}

		result, err := s.engine.ProcessMessage(ctx, pipeline.Request{
			SessionID: sessionID,
			UserID:    req.UserID,
			Message:   req.Message,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if !s.writeSocket(ctx, conn, socketReply{Error: turnErrorMessage(err)}) {
				return
			}
			continue
		}

		if !s.writeSocket(ctx, conn, socketReply{Turn: result}) {
			return
		}
	}
}

// writeSocket sends one JSON frame; false means the connection is gone.
func (s *Server) writeSocket(ctx context.Context, conn *websocket.Conn, reply socketReply) bool {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("socket reply marshal failed", "error", err)
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return false
	}
	return true
}

// turnErrorMessage renders an engine error for the socket client without
// leaking internals.
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrSessionNotFound):
		return "session not found"
	default:
		return "turn failed"
	}
}
