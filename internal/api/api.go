// Package api holds the HTTP handlers shared by the Cloud Functions and the
// standalone chi server.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

// Deps are the components behind the handlers. A handler whose component is
// nil answers 500.
type Deps struct {
	Repo       store.Repository
	Analyzer   services.Runner
	Dispatcher services.Dispatcher
	Polls      *services.PollRegistry
	Quotes     *services.Quotes
	Intake     *services.Intake
	Jobs       *services.ExtractionJobs
	Classifier *services.FileClassifier
}

// Server serves the quote endpoints.
type Server struct {
	Deps
	newRunID func() string
}

func NewServer(d Deps) *Server {
	return &Server{Deps: d, newRunID: uuid.NewString}
}

// Router mounts every endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Post("/analyze", s.HandleAnalyze)
	r.Post("/analysis/run", s.HandleAnalysisWorker)
	r.Post("/extract/start", s.HandleExtractStart)
	r.Get("/extract/status", s.HandleExtractStatus)
	r.Get("/classify", s.HandleClassify)
	r.Post("/classify", s.HandleClassify)
	r.Post("/quotes", s.HandleSaveQuote)
	r.Route("/quotes/{quoteID}", func(r chi.Router) {
		r.Get("/files", s.HandleListFiles)
		r.Post("/files", s.HandleUpload)
		r.Get("/files/{fileName}/url", s.HandleFileLink)
		r.Get("/status", s.HandleStatus)
		r.Get("/price", s.HandlePrice)
		r.Post("/send", s.HandleSendQuote)
	})
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		writeError(w, http.StatusBadRequest, "Bad Request: could not parse JSON")
		return false
	}
	return true
}

func notConfigured(w http.ResponseWriter, what string) {
	slog.Error("Handler called without its component.", "component", what)
	writeError(w, http.StatusInternalServerError, "Internal Server Error: "+what+" is not configured")
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrMissingQuoteID),
		errors.Is(err, services.ErrIncompleteQuote),
		errors.Is(err, errInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrExtractionPending):
		return http.StatusAccepted
	case errors.Is(err, services.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrQueueClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError answers with the mapped status. Server errors get a
// generic body; the cause is logged by the service.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if errors.Is(err, services.ErrEmailNotConfigured) {
		writeError(w, status, "Internal Server Error: "+err.Error())
		return
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "Internal Server Error: processing failed")
		return
	}
	writeError(w, status, err.Error())
}
