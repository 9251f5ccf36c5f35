package api

import (
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

var errInvalidInput = errors.New("invalid input")

// Upload limits.
const (
	maxUploadFiles   = 10
	maxUploadBody    = 300 << 20
	multipartMemory  = 32 << 20
	uploadFieldFiles = "files"
)

var strictPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from a form field.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

func sanitizeSaveRequest(req *models.SaveQuoteRequest) error {
	req.QuoteID = cleanText(req.QuoteID)
	req.Name = cleanText(req.Name)
	req.Email = cleanText(req.Email)
	req.Phone = cleanText(req.Phone)
	req.IntendedUse = cleanText(req.IntendedUse)
	req.SourceLanguage = cleanText(req.SourceLanguage)
	req.TargetLanguage = cleanText(req.TargetLanguage)

	if strings.Contains(req.QuoteID, "/") {
		return fmt.Errorf("%w: quote_id must not contain '/'", errInvalidInput)
	}
	if req.Email != "" && !services.ValidEmail(req.Email) {
		return fmt.Errorf("%w: email address is not valid", errInvalidInput)
	}
	for i, f := range req.Files {
		name := path.Base(strings.TrimSpace(f.FileName))
		if f.FileName == "" || name == "." || name == "/" {
			return fmt.Errorf("%w: file %d has no name", errInvalidInput, i+1)
		}
		if !extract.Allowed(name) {
			return fmt.Errorf("%w: %s has an unsupported file type", errInvalidInput, name)
		}
		if f.SizeBytes > extract.MaxFileSize {
			return fmt.Errorf("%w: %s is larger than 25 MB", errInvalidInput, name)
		}
		req.Files[i].FileName = name
	}
	return nil
}

// HandleSaveQuote saves the submitted fields and file metadata. A quote id is
// allocated when the request has none.
func (s *Server) HandleSaveQuote(w http.ResponseWriter, r *http.Request) {
	if s.Quotes == nil {
		notConfigured(w, "quotes")
		return
	}
	var req models.SaveQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sanitizeSaveRequest(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.Quotes.Save(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RejectedFile is an upload that was not stored.
type RejectedFile struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// UploadResponse lists the registered rows and the files that were refused.
type UploadResponse struct {
	OK       bool               `json:"ok"`
	QuoteID  string             `json:"quote_id"`
	Files    []models.QuoteFile `json:"files"`
	Rejected []RejectedFile     `json:"rejected,omitempty"`
}

type uploadKey struct {
	name string
	size int64
}

// HandleUpload stores the multipart "files" of a quote and registers each as
// pending. Within one request a repeated name and size is stored once.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if s.Intake == nil {
		notConfigured(w, "intake")
		return
	}
	quoteID := chi.URLParam(r, "quoteID")
	logCtx := slog.With("quoteId", quoteID)

	if s.Repo != nil {
		if _, err := s.Repo.GetSubmission(r.Context(), quoteID); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		logCtx.Warn("Could not parse multipart upload", "error", err)
		writeError(w, http.StatusBadRequest, "Bad Request: could not parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	headers := r.MultipartForm.File[uploadFieldFiles]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}
	if len(headers) > maxUploadFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", maxUploadFiles))
		return
	}

	resp := UploadResponse{OK: true, QuoteID: quoteID, Files: []models.QuoteFile{}}
	seen := make(map[uploadKey]bool, len(headers))
	for _, fh := range headers {
		name := path.Base(fh.Filename)
		key := uploadKey{name: name, size: fh.Size}
		switch {
		case seen[key]:
			logCtx.Info("Dropping duplicate upload.", "fileName", name)
			continue
		case !extract.Allowed(name):
			resp.Rejected = append(resp.Rejected, RejectedFile{FileName: name, Reason: "unsupported file type"})
			continue
		case fh.Size > extract.MaxFileSize:
			resp.Rejected = append(resp.Rejected, RejectedFile{FileName: name, Reason: "file is larger than 25 MB"})
			continue
		}
		seen[key] = true

		row, err := s.storeUpload(r, quoteID, name, fh)
		if err != nil {
			logCtx.Error("Failed to store upload.", "fileName", name, "error", err)
			writeServiceError(w, err)
			return
		}
		resp.Files = append(resp.Files, *row)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeUpload(r *http.Request, quoteID, name string, fh *multipart.FileHeader) (*models.QuoteFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", name, err)
	}
	return s.Intake.Upload(r.Context(), quoteID, name, data, fh.Header.Get("Content-Type"))
}

// HandleFileLink returns a temporary read URL for one uploaded file. The
// optional ttl query parameter is a Go duration such as "10m".
func (s *Server) HandleFileLink(w http.ResponseWriter, r *http.Request) {
	if s.Intake == nil {
		notConfigured(w, "intake")
		return
	}
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		ttl = d
	}
	link, err := s.Intake.FileLink(r.Context(), chi.URLParam(r, "quoteID"), chi.URLParam(r, "fileName"), ttl)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// HandlePrice returns the current price breakdown of a quote.
func (s *Server) HandlePrice(w http.ResponseWriter, r *http.Request) {
	if s.Quotes == nil {
		notConfigured(w, "quotes")
		return
	}
	quote, err := s.Quotes.Price(r.Context(), chi.URLParam(r, "quoteID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// HandleSendQuote prices the quote and emails it to the customer.
func (s *Server) HandleSendQuote(w http.ResponseWriter, r *http.Request) {
	if s.Quotes == nil {
		notConfigured(w, "quotes")
		return
	}
	quoteID := chi.URLParam(r, "quoteID")
	quote, err := s.Quotes.Send(r.Context(), quoteID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SendQuoteResponse{OK: true, QuoteID: quoteID, Total: quote.Total.StringFixed(2)})
}
