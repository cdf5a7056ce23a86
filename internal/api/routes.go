package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ChronoCoders/wordstream/internal/config"
	"github.com/ChronoCoders/wordstream/internal/control"
	"github.com/ChronoCoders/wordstream/internal/models"
	"github.com/ChronoCoders/wordstream/internal/ws"
)

const maxHistoryLimit = 1000

// HistoryStore reads persisted session history.
type HistoryStore interface {
	ListHistory(ctx context.Context, limit int) ([]models.SessionRecord, error)
}

type Server struct {
	cfg     *config.Config
	history HistoryStore
	client  control.StatusSource
	hub     *ws.Hub
	router  *chi.Mux
}

func NewServer(cfg *config.Config, history HistoryStore, client control.StatusSource, hub *ws.Hub) *Server {
	s := &Server{
		cfg:     cfg,
		history: history,
		client:  client,
		hub:     hub,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wordstream admin is running"))
	})

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/history", s.handleHistory)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.client.ListSessions(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.client.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, control.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.history.ListHistory(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	event, ok := s.client.Latest()
	if !ok {
		http.Error(w, "no status reported yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(s.hub, w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
