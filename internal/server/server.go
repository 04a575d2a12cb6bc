// Package server exposes the pharmacy agent over HTTP: a server-sent-events
// chat endpoint, a WebSocket variant carrying the same event protocol, the
// tool usage report, health probes, and the Prometheus scrape endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wonderful-ai/pharmagent/internal/agent"
	"github.com/wonderful-ai/pharmagent/internal/health"
	"github.com/wonderful-ai/pharmagent/internal/observe"
	"github.com/wonderful-ai/pharmagent/internal/stats"
	"github.com/wonderful-ai/pharmagent/pkg/types"
)

// shutdownTimeout bounds the drain of in-flight requests on stop.
const shutdownTimeout = 15 * time.Second

// TurnRunner runs one conversational turn. *agent.Loop satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, history []types.Message, emit agent.EmitFunc) (*agent.Result, error)
}

// Server is the HTTP surface of the agent. Create with New, start with Run.
type Server struct {
	loop     TurnRunner
	recorder stats.Recorder
	health   *health.Handler
	metrics  *observe.Metrics
	logger   *slog.Logger

	listenAddr  string
	corsOrigins []string
	tlsCert     string
	tlsKey      string
}

// Option is a functional option for Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
// "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithTLS serves HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.tlsCert = certFile
		s.tlsKey = keyFile
	}
}

// WithHealth sets the health probe handler. Without it, /healthz and /readyz
// report liveness only.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instruments. Defaults to the package-level
// observe instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server routing turns through loop and reading usage counts
// from recorder.
func New(listenAddr string, loop TurnRunner, recorder stats.Recorder, opts ...Option) *Server {
	s := &Server{
		loop:       loop,
		recorder:   recorder,
		listenAddr: listenAddr,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler builds the full route table wrapped in the CORS and observability
// middleware. Exposed separately from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /api/tools/stats", s.handleToolStats)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return s.corsMiddleware(observe.Middleware(s.metrics)(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Handler(),
		// Streaming responses stay open for whole turns; only reads get a
		// server-wide bound.
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.listenAddr, "tls", s.tlsCert != "")
		var err error
		if s.tlsCert != "" {
			err = srv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// corsMiddleware answers preflight requests and stamps allowed origins on
// every response. With no configured origins it is a pass-through.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if len(s.corsOrigins) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := s.allowOrigin(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return ""
}
