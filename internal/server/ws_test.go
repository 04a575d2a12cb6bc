package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wonderful-ai/pharmagent/internal/agent"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm/mock"
	"github.com/wonderful-ai/pharmagent/pkg/types"
)

func TestChatWebSocketTurn(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Hello "},
		{Text: "there"},
		{FinishReason: "stop"},
	}}
	srv := newTestServer(t, provider)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	req := chatRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var events []agent.Event
	for {
		var e agent.Event
		if err := wsjson.Read(ctx, conn, &e); err != nil {
			t.Fatalf("Read: %v (events so far: %+v)", err, events)
		}
		events = append(events, e)
		if e.Type == agent.EventDone {
			break
		}
	}

	var text strings.Builder
	for _, e := range events {
		if e.Type == agent.EventTextDelta {
			text.WriteString(e.Delta)
		}
	}
	if text.String() != "Hello there" {
		t.Fatalf("assistant text = %q", text.String())
	}
}

func TestChatWebSocketRejectsEmptyHistory(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mock.Provider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	if err := wsjson.Write(ctx, conn, chatRequest{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The server closes with an invalid-payload status instead of streaming.
	var e agent.Event
	err = wsjson.Read(ctx, conn, &e)
	if err == nil {
		t.Fatalf("expected close, got event %+v", e)
	}
	if websocket.CloseStatus(err) != websocket.StatusInvalidFramePayloadData {
		t.Fatalf("close status = %v", websocket.CloseStatus(err))
	}
}
