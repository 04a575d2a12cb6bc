package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wonderful-ai/pharmagent/internal/agent"
	"github.com/wonderful-ai/pharmagent/internal/observe"
	"github.com/wonderful-ai/pharmagent/internal/sse"
	"github.com/wonderful-ai/pharmagent/pkg/types"
)

// chatRequest is one turn request: the full conversation history with the
// new user message last.
type chatRequest struct {
	Messages []types.Message `json:"messages"`
}

func (r *chatRequest) validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool:
		default:
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// handleChatStream runs one turn and streams its events as server-sent
// events. The response always ends with a done event, even when the
// provider fails mid-turn.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	logger := observe.Logger(ctx)

	sse.PrepareHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	enc := sse.NewEncoder(w)

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	start := time.Now()
	res, err := s.loop.Run(ctx, req.Messages, func(e agent.Event) error {
		return enc.Encode(e)
	})
	if err != nil {
		// Client gone or write failed; nothing more can reach this stream.
		s.metrics.RecordTurn(ctx, "cancelled", time.Since(start).Seconds())
		logger.Info("turn cancelled", "error", err)
		return
	}

	outcome := "completed"
	if res.Aborted {
		outcome = "aborted"
	}
	s.metrics.RecordTurn(ctx, outcome, time.Since(start).Seconds())
	logger.Info("turn finished",
		"outcome", outcome,
		"rounds", res.Rounds,
		"assistant_chars", len(res.AssistantText),
	)
}

// handleChatWS serves the same turn protocol over a WebSocket: the client
// sends one chatRequest as a JSON text message, the server answers with one
// JSON event per message, ending with done, then closes.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.corsOrigins,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "turn failed")

	ctx := r.Context()
	logger := observe.Logger(ctx)

	var req chatRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request")
		return
	}
	if err := req.validate(); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, err.Error())
		return
	}

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	start := time.Now()
	res, err := s.loop.Run(ctx, req.Messages, func(e agent.Event) error {
		return wsjson.Write(ctx, conn, e)
	})
	if err != nil {
		s.metrics.RecordTurn(ctx, "cancelled", time.Since(start).Seconds())
		logger.Info("websocket turn cancelled", "error", err)
		return
	}

	outcome := "completed"
	if res.Aborted {
		outcome = "aborted"
	}
	s.metrics.RecordTurn(ctx, outcome, time.Since(start).Seconds())
	conn.Close(websocket.StatusNormalClosure, "turn complete")
}

// handleToolStats serves the usage counter snapshot, most-used first.
func (s *Server) handleToolStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.recorder.Snapshot(r.Context())
	if err != nil {
		http.Error(w, `{"error":"stats unavailable"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(map[string]any{"tools": snapshot}); err != nil {
		observe.Logger(r.Context()).Warn("failed to write stats response", "error", err)
	}
}
