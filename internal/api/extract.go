package api

import (
	"errors"
	"net/http"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

func validExtractRequest(w http.ResponseWriter, req models.ExtractRequest) bool {
	if req.QuoteID == "" || req.FileName == "" {
		writeError(w, http.StatusBadRequest, "quote_id and file_name are required")
		return false
	}
	return true
}

func extractQuery(r *http.Request) models.ExtractRequest {
	return models.ExtractRequest{
		QuoteID:  r.URL.Query().Get("quote_id"),
		FileName: r.URL.Query().Get("file_name"),
	}
}

// HandleExtractStart starts text extraction for one file and returns 202.
func (s *Server) HandleExtractStart(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		notConfigured(w, "extraction")
		return
	}
	var req models.ExtractRequest
	if !decodeJSON(w, r, &req) || !validExtractRequest(w, req) {
		return
	}
	if err := s.Jobs.Start(r.Context(), req.QuoteID, req.FileName); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.ExtractStatusResponse{OK: true, Pending: true})
}

// HandleExtractStatus answers 202 while extraction runs, 200 with the page
// summary once stored and 422 when it failed.
func (s *Server) HandleExtractStatus(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		notConfigured(w, "extraction")
		return
	}
	req := extractQuery(r)
	if !validExtractRequest(w, req) {
		return
	}
	status, err := s.Jobs.Status(r.Context(), req.QuoteID, req.FileName)
	switch {
	case errors.Is(err, services.ErrExtractionPending), errors.Is(err, services.ErrExtractionFailed):
		writeJSON(w, statusFor(err), status)
	case err != nil:
		writeServiceError(w, err)
	default:
		writeJSON(w, http.StatusOK, status)
	}
}

// HandleClassify classifies a file from its stored extraction. GET reads the
// file from the query string, POST from a JSON body.
func (s *Server) HandleClassify(w http.ResponseWriter, r *http.Request) {
	if s.Classifier == nil {
		notConfigured(w, "classifier")
		return
	}
	var req models.ExtractRequest
	if r.Method == http.MethodGet {
		req = extractQuery(r)
	} else if !decodeJSON(w, r, &req) {
		return
	}
	if !validExtractRequest(w, req) {
		return
	}
	resp, err := s.Classifier.Classify(r.Context(), req.QuoteID, req.FileName)
	if errors.Is(err, services.ErrExtractionPending) {
		writeJSON(w, http.StatusAccepted, models.ExtractStatusResponse{Pending: true})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
