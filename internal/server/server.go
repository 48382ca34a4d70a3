// Package server exposes the attention engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/attend/internal/engine"
	"github.com/lazypower/attend/internal/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server is the attend HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	logger  *log.Logger
	version string
	started time.Time
}

// New creates a new Server backed by eng.
func New(eng *engine.Engine, version string, logger *log.Logger) *Server {
	s := &Server{
		engine:  eng,
		logger:  logging.OrDiscard(logger),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Post("/turns", s.handleIngest)
		r.Post("/retrieve", s.handleRetrieve)
		r.Get("/pool", s.handlePool)

		r.Get("/focuses", s.handleFocuses)
		r.Get("/focuses/forecast", s.handleForecast)
		r.Get("/focuses/{focusID}", s.handleFocus)
		r.Get("/transitions", s.handleTransitions)

		r.Post("/events", s.handleAddEvent)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/{eventID}", s.handleGetEvent)
		r.Post("/activations", s.handleActivation)

		r.Get("/parameters", s.handleGetParameters)
		r.Put("/parameters", s.handlePutParameters)
		r.Get("/distribution", s.handleDistribution)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.engine.DB.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       dbOK,
		"db_path":  s.engine.DB.Path,
		"embedder": s.engine.Embedder.Model(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a bounded JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
