package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/wonderful-ai/pharmagent/internal/agent"
	"github.com/wonderful-ai/pharmagent/internal/observe"
	"github.com/wonderful-ai/pharmagent/internal/sse"
	"github.com/wonderful-ai/pharmagent/internal/stats"
	"github.com/wonderful-ai/pharmagent/internal/tools"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm/mock"
	"github.com/wonderful-ai/pharmagent/pkg/types"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, provider llm.Provider) *Server {
	t.Helper()
	recorder := stats.NewMemory()
	reg := tools.NewRegistry(recorder)
	if err := reg.Register(tools.Descriptor{
		Name:     "check_stock_availability",
		Required: []string{"med_id", "store_id"},
		Handler: func(_ context.Context, args map[string]any) map[string]any {
			return map[string]any{"quantity": 7.0, "status": "in_stock"}
		},
	}); err != nil {
		t.Fatal(err)
	}
	loop := agent.New(provider, reg)
	return New(":0", loop, recorder, WithMetrics(testMetrics(t)))
}

func postChat(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, body io.Reader) []agent.Event {
	t.Helper()
	dec := sse.NewDecoder(body)
	var events []agent.Event
	for {
		var e agent.Event
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				return events
			}
			t.Fatalf("Decode: %v", err)
		}
		events = append(events, e)
	}
}

func TestChatStreamTextTurn(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Paracetamol reduces fever."},
		{FinishReason: "stop"},
	}}
	srv := newTestServer(t, provider)

	rec := postChat(t, srv.Handler(), `{"messages":[{"role":"user","content":"What does paracetamol do?"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := decodeEvents(t, rec.Body)
	if len(events) != 2 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Type != agent.EventTextDelta || events[0].Delta != "Paracetamol reduces fever." {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Type != agent.EventDone {
		t.Fatalf("last event = %+v", events[1])
	}
}

func TestChatStreamToolTurn(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{StreamScript: [][]llm.Chunk{
		{
			{ToolCalls: []types.ToolCall{{
				ID: "call_1", Name: "check_stock_availability",
				Arguments: `{"med_id":"MED002","store_id":"STORE_TLV_01"}`,
			}}, FinishReason: "tool_calls"},
		},
		{
			{Text: "Yes, 7 units in stock."},
			{FinishReason: "stop"},
		},
	}}
	srv := newTestServer(t, provider)

	rec := postChat(t, srv.Handler(),
		`{"messages":[{"role":"user","content":"Is Acamol in stock at STORE_TLV_01?"}]}`)
	events := decodeEvents(t, rec.Body)

	want := []agent.EventType{agent.EventToolCall, agent.EventToolResult, agent.EventTextDelta, agent.EventDone}
	if len(events) != len(want) {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, e.Type, want[i])
		}
	}
	if events[1].Result["status"] != "in_stock" {
		t.Fatalf("tool_result = %+v", events[1].Result)
	}
}

func TestChatStreamRejectsEmptyHistory(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mock.Provider{})
	rec := postChat(t, srv.Handler(), `{"messages":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatStreamRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mock.Provider{})
	rec := postChat(t, srv.Handler(), `{"messages": nope}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatStreamProviderFailure(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{StreamChunks: []llm.Chunk{
		{FinishReason: "error", Text: "upstream timeout"},
	}}
	srv := newTestServer(t, provider)

	rec := postChat(t, srv.Handler(), `{"messages":[{"role":"user","content":"hi"}]}`)
	events := decodeEvents(t, rec.Body)

	if len(events) != 2 || events[0].Type != agent.EventError || events[1].Type != agent.EventDone {
		t.Fatalf("events = %+v, want [error done]", events)
	}
	if events[0].Error == nil || !strings.Contains(events[0].Error.Message, "upstream timeout") {
		t.Fatalf("error event = %+v", events[0])
	}
}

func TestToolStatsEndpoint(t *testing.T) {
	t.Parallel()

	recorder := stats.NewMemory()
	recorder.Increment(context.Background(), "get_medication_by_name")
	recorder.Increment(context.Background(), "get_medication_by_name")
	recorder.Increment(context.Background(), "list_stores")

	srv := New(":0", agent.New(&mock.Provider{}, tools.NewRegistry(recorder)), recorder,
		WithMetrics(testMetrics(t)))

	req := httptest.NewRequest(http.MethodGet, "/api/tools/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Tools []stats.Entry `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tools) != 2 {
		t.Fatalf("tools = %+v", body.Tools)
	}
	if body.Tools[0].Tool != "get_medication_by_name" || body.Tools[0].Count != 2 {
		t.Fatalf("first entry = %+v, want most-used first", body.Tools[0])
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mock.Provider{})
	handler := srv.Handler()

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	recorder := stats.NewMemory()
	srv := New(":0", agent.New(&mock.Provider{}, tools.NewRegistry(recorder)), recorder,
		WithMetrics(testMetrics(t)),
		WithCORSOrigins([]string{"https://pharmacy.example.com"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/stream", nil)
	req.Header.Set("Origin", "https://pharmacy.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://pharmacy.example.com" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	// Unlisted origins get no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want empty", got)
	}
}
