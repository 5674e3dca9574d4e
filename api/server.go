package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"idx-flow/storage"
	"idx-flow/tracker"
)

// Trigger starts pipeline runs in the background.
type Trigger interface {
	Go(ctx context.Context, feature, trigger string) error
	Busy() bool
}

// LastRunReader returns the terminal event of a feature's latest finished run, or
// nil when none is recorded.
type LastRunReader interface {
	Last(ctx context.Context, feature string) (*tracker.Event, error)
}

// Server handles HTTP API requests
type Server struct {
	runs    tracker.Reader
	trigger Trigger
	objects storage.ObjectStore
	events  http.Handler
	stream  http.Handler
	last    LastRunReader

	// runCtx outlives requests; manual runs are bound to it.
	runCtx context.Context
	srv    *http.Server
}

// NewServer creates a new API server instance. events serves the websocket
// endpoint and stream the SSE endpoint; either may be nil.
func NewServer(runCtx context.Context, runs tracker.Reader, trigger Trigger, objects storage.ObjectStore, events, stream http.Handler) *Server {
	return &Server{
		runs:    runs,
		trigger: trigger,
		objects: objects,
		events:  events,
		stream:  stream,
		runCtx:  runCtx,
	}
}

// WithLastRuns serves the latest-run lookup from r before falling back to the
// run tracker.
func (s *Server) WithLastRuns(r LastRunReader) *Server {
	s.last = r
	return s
}

// Handler builds the routed handler with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Runs
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/pipeline/{feature}", s.handleTrigger)
	mux.HandleFunc("GET /api/pipeline/{feature}/last", s.handleLastRun)

	// Artifacts
	mux.HandleFunc("GET /api/objects", s.handleListObjects)
	mux.HandleFunc("GET /api/objects/{key...}", s.handleGetObject)

	if s.events != nil {
		mux.Handle("GET /api/events", s.events)
	}
	if s.stream != nil {
		mux.Handle("GET /api/events/stream", s.stream)
	}

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start serves on port until Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Msgf("🚀 API Server starting on %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Msgf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are split by concern:
// - handlers_runs.go: run status and manual triggers
// - handlers_objects.go: artifact listing and download
