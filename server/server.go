package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
)

const (
	maxBodyBytes    = 1 << 16
	shutdownTimeout = 10 * time.Second
)

// Searcher is the part of the core the HTTP surface needs.
type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
	Admins(ctx context.Context) ([]string, error)
}

// Server exposes search over JSON.
type Server struct {
	searcher Searcher
	log      *slog.Logger
	mux      *http.ServeMux
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type requestIDKey struct{}

func NewServer(searcher Searcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher: searcher,
		log:      logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/admins", s.handleAdmins)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP tags every request with an id before routing it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	s.mux.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", slog.String("addr", addr))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return helper.NewError("listen", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return helper.NewError("shutdown", err)
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req model.SearchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, r, model.NewValidationError("Request body must be a JSON search request."))
		return
	}

	response, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, response)
}

func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.searcher.Admins(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if admins == nil {
		admins = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, map[string][]string{"admins": admins})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the error kind to a status. Only validation and capability
// messages reach the client, everything else is logged with the request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	id := requestID(r)
	logger := s.log.With(slog.String("request_id", id), slog.String("path", r.URL.Path))

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Info("Client went away")
		return
	}

	status := http.StatusInternalServerError
	switch model.KindOf(err) {
	case model.KindValidation:
		status = http.StatusBadRequest
	case model.KindCapabilityUnavailable:
		status = http.StatusServiceUnavailable
		logger.Warn("Capability unavailable", slog.Any("error", err))
	default:
		logger.Error("Request failed", slog.String("kind", string(model.KindOf(err))), slog.Any("error", err))
	}

	s.writeJSON(w, r, status, errorResponse{Error: model.ClientMessage(err), RequestID: id})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Writing response failed", slog.String("request_id", requestID(r)), slog.Any("error", err))
	}
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}
