package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

const sendTimeout = time.Minute

// HandleAnalyze accepts an analysis request, hands it to the dispatcher and
// returns 202 without waiting for any file.
func (s *Server) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.Dispatcher == nil || s.Repo == nil {
		notConfigured(w, "analysis dispatch")
		return
	}
	var req models.AnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.QuoteID == "" {
		writeError(w, http.StatusBadRequest, services.ErrMissingQuoteID.Error())
		return
	}
	logCtx := slog.With("quoteId", req.QuoteID)

	if len(req.FileNames) == 0 {
		rows, err := s.Repo.ListFiles(r.Context(), req.QuoteID)
		if err != nil {
			logCtx.Error("Failed to list quote files.", "error", err)
			writeServiceError(w, err)
			return
		}
		if len(rows) == 0 {
			writeError(w, http.StatusNotFound, "no files are registered for this quote")
			return
		}
	}
	if req.RunID == "" {
		req.RunID = s.newRunID()
	}

	if err := s.Dispatcher.Dispatch(r.Context(), req); err != nil {
		logCtx.Error("Failed to dispatch analysis.", "runId", req.RunID, "error", err)
		writeServiceError(w, err)
		return
	}
	if req.SendWhenDone {
		s.sendWhenDone(req)
	}
	logCtx.Info("Analysis accepted.", "runId", req.RunID, "files", len(req.FileNames))
	writeJSON(w, http.StatusAccepted, models.AnalyzeAccepted{Accepted: true, QuoteID: req.QuoteID, RunID: req.RunID})
}

// sendWhenDone polls the quote in the background and emails it once every
// tracked file has succeeded.
func (s *Server) sendWhenDone(req models.AnalyzeRequest) {
	if s.Polls == nil || s.Quotes == nil {
		slog.Warn("send_when_done ignored, polling is not configured.", "quoteId", req.QuoteID)
		return
	}
	quotes := s.Quotes
	s.Polls.Start(req.QuoteID, req.FileNames, func(res *services.PollResult, err error) {
		logCtx := slog.With("quoteId", req.QuoteID, "runId", req.RunID)
		if err != nil {
			logCtx.Warn("Quote not sent, polling ended without a result.", "error", err)
			return
		}
		if res.State != services.PollSucceeded {
			logCtx.Warn("Quote not sent, some files failed.", "state", res.State)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if _, err := quotes.Send(ctx, req.QuoteID); err != nil {
			logCtx.Error("Failed to send quote after analysis.", "error", err)
		}
	})
}

// HandleAnalysisWorker runs the orchestrator synchronously. It is the step a
// workflow execution calls.
func (s *Server) HandleAnalysisWorker(w http.ResponseWriter, r *http.Request) {
	if s.Analyzer == nil {
		notConfigured(w, "analyzer")
		return
	}
	var req models.AnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.Analyzer.Process(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusResponse is one observation of a quote's files.
type StatusResponse struct {
	QuoteID string             `json:"quote_id"`
	State   services.PollState `json:"state"`
	Files   []models.QuoteFile `json:"files"`
}

// HandleStatus reports the aggregate analysis state of a quote.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Repo == nil {
		notConfigured(w, "record store")
		return
	}
	quoteID := chi.URLParam(r, "quoteID")
	rows, err := s.Repo.ListFiles(r.Context(), quoteID)
	if err != nil {
		slog.Error("Failed to list quote files.", "quoteId", quoteID, "error", err)
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []models.QuoteFile{}
	}
	writeJSON(w, http.StatusOK, StatusResponse{QuoteID: quoteID, State: services.Snapshot(rows), Files: rows})
}

// HandleListFiles returns the file rows of a quote.
func (s *Server) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	if s.Repo == nil {
		notConfigured(w, "record store")
		return
	}
	quoteID := chi.URLParam(r, "quoteID")
	rows, err := s.Repo.ListFiles(r.Context(), quoteID)
	if err != nil {
		slog.Error("Failed to list quote files.", "quoteId", quoteID, "error", err)
		writeServiceError(w, err)
		return
	}
	if len(rows) == 0 {
		if _, err := s.Repo.GetSubmission(r.Context(), quoteID); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if rows == nil {
		rows = []models.QuoteFile{}
	}
	writeJSON(w, http.StatusOK, rows)
}
