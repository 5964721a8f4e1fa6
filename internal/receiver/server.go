// Package receiver is a local stand-in for the webhook and Conversions API
// endpoints, used to rehearse a replay without sending real traffic.
package receiver

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/conversion-replay/internal/logging"
)

// Paths served by the receiver.
const (
	WebhookPath = "/webhook"
	CAPIPath    = "/rest/conversionEvents"
	StatsPath   = "/stats"
)

// Options configures a Server.
type Options struct {
	// FailEvery rejects every Nth element across both endpoints when > 0.
	FailEvery int
}

// Stats counts what the receiver has seen.
type Stats struct {
	Requests int `json:"requests"`
	Elements int `json:"elements"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Server emulates the delivery endpoints.
type Server struct {
	opts   Options
	router *chi.Mux
	server *http.Server

	seen atomic.Int64 // elements received, used for failure injection

	mu    sync.Mutex
	stats Stats
}

// NewServer creates a receiver.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:   opts,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Post(WebhookPath, s.handleWebhook)
	s.router.Post(CAPIPath, s.handleBatch)
	s.router.Get(StatsPath, s.handleStats)
}

// Handler returns the router, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stats returns a copy of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.WithFields(context.Background(), "addr", addr, "fail_every", s.opts.FailEvery).
		Info("stub receiver listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// nextRejected counts one element and reports whether it should fail.
func (s *Server) nextRejected() bool {
	n := s.seen.Add(1)
	return s.opts.FailEvery > 0 && n%int64(s.opts.FailEvery) == 0
}

func (s *Server) count(elements, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Requests++
	s.stats.Elements += elements
	s.stats.Rejected += rejected
	s.stats.Accepted += elements - rejected
}
