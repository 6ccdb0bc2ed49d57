package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nstogner/tapestry/pkg/document"
	"github.com/nstogner/tapestry/pkg/store"
	"github.com/nstogner/tapestry/pkg/weave"
)

// maxImportSize bounds uploaded CompactWeave documents.
const maxImportSize = 64 << 20

// Server serves the weave API.
type Server struct {
	manager *document.Manager
	srv     *http.Server
}

// New creates a new Server.
func New(manager *document.Manager) *Server {
	return &Server{manager: manager}
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API Routes
	mux.HandleFunc("GET /api/weaves", s.handleListWeaves)
	mux.HandleFunc("POST /api/weaves", s.handleCreateWeave)
	mux.HandleFunc("POST /api/weaves/import", s.handleImportWeave)
	mux.HandleFunc("GET /api/weaves/{id}", s.handleGetWeave)
	mux.HandleFunc("DELETE /api/weaves/{id}", s.handleDeleteWeave)

	// Weave Actions
	mux.HandleFunc("POST /api/weaves/{id}/save", s.handleSaveWeave)
	mux.HandleFunc("POST /api/weaves/{id}/close", s.handleCloseWeave)
	mux.HandleFunc("GET /api/weaves/{id}/compact", s.handleExportWeave)
	mux.HandleFunc("GET /api/weaves/{id}/revisions", s.handleListRevisions)

	// WebSocket
	mux.HandleFunc("/api/weaves/{id}/socket", s.handleWeaveSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting web server", "addr", addr)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "status", status, "error", err)
	body := map[string]string{"error": err.Error()}
	if kind := weave.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	s.jsonResponse(w, status, body)
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, document.ErrNotOpen):
		return http.StatusNotFound
	case weave.KindOf(err) != "":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
