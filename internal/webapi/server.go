package webapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"kabu/internal/store"
)

// Server serves the results API.
type Server struct {
	results store.ResultStore
	log     *slog.Logger
}

// NewServer creates a results API server over the given store.
func NewServer(results store.ResultStore, log *slog.Logger) *Server {
	return &Server{results: results, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/sessions/{id}/usage", s.handleUsage)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.results.ListSessions(r.Context())
	if err != nil {
		s.log.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	strategy := r.URL.Query().Get("strategy")
	out := make([]SessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		if strategy != "" && sess.Strategy != strategy {
			continue
		}
		out = append(out, convertSession(sess))
	}
	writeJSON(w, SessionsResponse{Sessions: out})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.results.GetSession(r.Context(), id)
	if err != nil {
		s.log.Error("loading session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}

	runs, err := s.results.ListRuns(r.Context(), id)
	if err != nil {
		s.log.Error("listing runs", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, SessionDetailResponse{
		Session: convertSession(*sess),
		Runs:    convertRuns(runs),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.results.GetSession(r.Context(), id)
	if err != nil {
		s.log.Error("loading session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}

	rows, err := s.results.ListSummary(r.Context(), id)
	if err != nil {
		s.log.Error("listing summary", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list summary")
		return
	}

	writeJSON(w, SummaryResponse{SessionID: id, Summary: convertSummary(rows)})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.results.GetSession(r.Context(), id)
	if err != nil {
		s.log.Error("loading session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}

	rows, err := s.results.ListUsage(r.Context(), id)
	if err != nil {
		s.log.Error("listing usage", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list usage")
		return
	}

	writeJSON(w, UsageResponse{SessionID: id, Usage: convertUsage(rows)})
}
