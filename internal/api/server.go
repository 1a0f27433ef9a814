package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/nordbak/jotta-rest-proxy/internal/jfs"
	"github.com/nordbak/jotta-rest-proxy/internal/metrics"
)

// Backend is the slice of the jfs client the REST adapter consumes.
// Tests substitute a stub.
type Backend interface {
	QueryObject(ctx context.Context, path string) (jfs.Object, error)
	Exists(ctx context.Context, path string) (bool, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, body io.Reader) (jfs.Object, error)
	Mkdir(ctx context.Context, path string) (jfs.Object, error)
	Delete(ctx context.Context, path string) (jfs.Object, error)
}

// Server translates the restic REST-backend verbs into backend calls.
type Server struct {
	backend Backend
}

func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// Routes builds the REST surface. m may be nil when metrics are
// disabled.
func (s *Server) Routes(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if m != nil {
		r.Use(m.Middleware)
		r.Handle("/metrics", m.Handler())
	}
	r.Get("/health", s.handleHealth)

	// The repository config blob is handled like any other object.
	r.HandleFunc("/{repo}/config", s.handleObject)
	r.Post("/{repo}/", s.handleCreateRepo)
	r.Get("/{repo}/{type}/", s.handleList)
	r.HandleFunc("/{repo}/{type}/{name}", s.handleObject)

	// Unmatched paths: 404 for GET, 405 for everything else.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestLogger emits one structured event per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("action", "http_request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed_ms", time.Since(start)).
			Msg("request handled")
	})
}
