package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/attend/internal/engine"
	"github.com/lazypower/attend/internal/event"
	"github.com/lazypower/attend/internal/focus"
	"github.com/lazypower/attend/internal/pool"
	"github.com/lazypower/attend/internal/store"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var turn focus.Turn
	if !decode(w, r, &turn) {
		return
	}
	if strings.TrimSpace(turn.Content) == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	res, snap := s.engine.Ingest(r.Context(), turn)
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"active": s.engine.Tracker.Active(),
		"pool":   snap,
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topics []string `json:"topics"`
		pool.Query
	}
	if !decode(w, r, &req) {
		return
	}
	snap := s.engine.Retrieve(r.Context(), req.Topics, req.Query)
	writeJSON(w, http.StatusOK, map[string]any{"pool": snap})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pool": s.engine.Pool()})
}

func (s *Server) handleFocuses(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	var foci []focus.FocusPoint
	switch tier := r.URL.Query().Get("tier"); tier {
	case "", "all":
		foci = s.engine.Tracker.All()
	case "active":
		foci = s.engine.Tracker.Active()
	case "latent":
		foci = s.engine.Tracker.Latent()
	case "top":
		if n == 0 {
			n = 5
		}
		foci = s.engine.Tracker.Top(n)
	default:
		writeError(w, http.StatusBadRequest, "tier must be one of all, active, latent, top")
		return
	}
	if n > 0 && len(foci) > n {
		foci = foci[:n]
	}
	if foci == nil {
		foci = []focus.FocusPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"focuses": foci})
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	f, ok := s.engine.Tracker.Get(chi.URLParam(r, "focusID"))
	if !ok {
		writeError(w, http.StatusNotFound, "focus not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 3
	}
	writeJSON(w, http.StatusOK, map[string]any{"focuses": s.engine.Tracker.Forecast(n)})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"transitions": s.engine.Tracker.Transitions()})
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var n event.Node
	if !decode(w, r, &n) {
		return
	}
	// Activation history is only written through /api/activations.
	n.Activations = nil
	if err := s.engine.AddEvent(r.Context(), &n); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": n.ID})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.engine.DB.ListEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "list events failed")
		return
	}
	if events == nil {
		events = []event.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.DB.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		s.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "get event failed")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string   `json:"id"`
		Similarity *float64 `json:"similarity"`
		RelatedID  string   `json:"related_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.Similarity == nil {
		writeError(w, http.StatusBadRequest, "id and similarity required")
		return
	}

	n, err := s.engine.RecordActivation(r.Context(), req.ID, *req.Similarity, req.RelatedID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, engine.ErrInvalidSimilarity):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("record activation", "error", err)
		writeError(w, http.StatusInternalServerError, "record activation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          n.ID,
		"activations": len(n.Activations),
		"last_seen":   n.LastSeen,
	})
}

func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Scorer.Params())
}

func (s *Server) handlePutParameters(w http.ResponseWriter, r *http.Request) {
	// Start from the current values so partial updates are allowed.
	p := s.engine.Scorer.Params()
	if !decode(w, r, &p) {
		return
	}
	if err := s.engine.UpdateParameters(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Scorer.Params())
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	d, err := s.engine.Distribution(r.Context(), q)
	if err != nil {
		s.logger.Error("distribution", "error", err)
		writeError(w, http.StatusInternalServerError, "distribution failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Statistics(r.Context())
	if err != nil {
		s.logger.Error("stats", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
