package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/classify"
	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

// ErrMissingQuoteID is returned when a request does not name a quote.
var ErrMissingQuoteID = errors.New("quote_id is required")

// Extractor turns a stored file into pages. *extract.Service implements it.
type Extractor interface {
	ExtractReader(ctx context.Context, fileName string, r io.Reader) (*extract.Document, error)
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithArtifacts stores the page texts of every successful run.
func WithArtifacts(artifacts blob.ArtifactStore) AnalyzerOption {
	return func(a *Analyzer) { a.artifacts = artifacts }
}

// WithStaleAfter lets a file stuck in processing for longer than d be claimed again.
func WithStaleAfter(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) { a.staleAfter = d }
}

// WithFileTimeout bounds the work done for a single file.
func WithFileTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.fileTimeout = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) AnalyzerOption {
	return func(a *Analyzer) { a.clock = c }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) AnalyzerOption {
	return func(a *Analyzer) { a.newRunID = next }
}

// Analyzer drives the files of a quote through extraction and
// classification. Files are processed one after another and, within a file,
// page by page.
type Analyzer struct {
	repo        store.Repository
	docs        blob.DocumentStore
	artifacts   blob.ArtifactStore
	extractor   Extractor
	classifier  classify.Classifier
	clock       Clock
	newRunID    func() string
	staleAfter  time.Duration
	fileTimeout time.Duration
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(repo store.Repository, docs blob.DocumentStore, extractor Extractor, classifier classify.Classifier, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		repo:        repo,
		docs:        docs,
		extractor:   extractor,
		classifier:  classifier,
		clock:       SystemClock,
		newRunID:    uuid.NewString,
		fileTimeout: 10 * time.Minute,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Process analyzes the requested files of a quote, or all of its files when
// none are named. Files that are not eligible are reported as skipped. A
// failing file never stops its siblings; only a missing quote id or an
// unreadable file list is returned as an error.
func (a *Analyzer) Process(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	if req.QuoteID == "" {
		return nil, ErrMissingQuoteID
	}
	runID := req.RunID
	if runID == "" {
		runID = a.newRunID()
	}
	logCtx := slog.With("quoteId", req.QuoteID, "runId", runID)

	fileNames, err := a.selectFiles(ctx, req)
	if err != nil {
		logCtx.Error("Failed to list quote files.", "error", err)
		return nil, err
	}
	logCtx.Info("Starting analysis.", "files", len(fileNames), "force", req.Force)

	resp := &models.AnalyzeResponse{QuoteID: req.QuoteID, RunID: runID}
	for _, name := range fileNames {
		outcome := a.analyzeFile(ctx, logCtx.With("fileName", name), req.QuoteID, name, runID, req.Force)
		resp.Files = append(resp.Files, outcome)
	}
	logCtx.Info("Analysis finished.", "files", len(resp.Files))
	return resp, nil
}

func (a *Analyzer) selectFiles(ctx context.Context, req models.AnalyzeRequest) ([]string, error) {
	if len(req.FileNames) > 0 {
		var names []string
		for _, n := range req.FileNames {
			if n != "" && !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
		return names, nil
	}
	rows, err := a.repo.ListFiles(ctx, req.QuoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.FileName)
	}
	return names, nil
}

func (a *Analyzer) analyzeFile(ctx context.Context, logCtx *slog.Logger, quoteID, fileName, runID string, force bool) models.FileOutcome {
	outcome := models.FileOutcome{FileName: fileName}

	now := a.clock.Now()
	opts := store.ClaimOptions{Now: now, RunID: runID, Force: force}
	if a.staleAfter > 0 {
		opts.StaleBefore = now.Add(-a.staleAfter)
	}
	claimed, err := a.repo.ClaimFile(ctx, quoteID, fileName, opts)
	if errors.Is(err, store.ErrNotFound) {
		logCtx.Warn("Skipping unknown file.")
		outcome.Skipped = true
		outcome.Message = "file is not registered for this quote"
		return outcome
	}
	if err != nil {
		logCtx.Error("Failed to claim file.", "error", err)
		outcome.Status = models.StatusError
		outcome.Message = models.TruncateMessage(fmt.Sprintf("failed to claim file: %v", err))
		return outcome
	}
	if !claimed {
		outcome.Skipped = true
		if row, err := a.repo.GetFile(ctx, quoteID, fileName); err == nil {
			outcome.Status = row.Status
		}
		logCtx.Info("File is not eligible, skipping.", "status", outcome.Status)
		return outcome
	}

	// Once claimed, a file runs to a terminal state even if the caller goes away.
	fileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.fileTimeout)
	defer cancel()

	result, err := a.run(fileCtx, logCtx, quoteID, fileName, runID)
	if err != nil {
		return a.handleError(fileCtx, logCtx, quoteID, fileName, err)
	}
	if err := a.repo.CompleteFile(fileCtx, quoteID, fileName, *result); err != nil {
		logCtx.Error("CRITICAL: Failed to write analysis results.", "error", err)
		outcome.Status = models.StatusError
		outcome.Message = models.TruncateMessage(fmt.Sprintf("failed to save results: %v", err))
		return outcome
	}
	logCtx.Info("File analyzed.", "pages", result.PageCount, "words", result.TotalWords)
	outcome.Status = models.StatusSuccess
	outcome.Message = result.Message
	return outcome
}

// handleError records the failure on the file row. A failed status write is
// logged and does not replace the original error.
func (a *Analyzer) handleError(ctx context.Context, logCtx *slog.Logger, quoteID, fileName string, originalErr error) models.FileOutcome {
	message := models.TruncateMessage(originalErr.Error())
	logCtx.Error("File analysis failed.", "error", originalErr)
	if err := a.repo.FailFile(ctx, quoteID, fileName, message, a.clock.Now()); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to error.", "error", err)
	}
	return models.FileOutcome{FileName: fileName, Status: models.StatusError, Message: message}
}

type pageRecord struct {
	Page           int                          `json:"page"`
	WordCount      int                          `json:"word_count"`
	Text           string                       `json:"text"`
	Classification *classify.PageClassification `json:"classification"`
}

type runArtifact struct {
	QuoteID   string       `json:"quote_id"`
	FileName  string       `json:"file_name"`
	RunID     string       `json:"run_id"`
	Engine    string       `json:"engine"`
	Model     string       `json:"model"`
	CreatedAt time.Time    `json:"created_at"`
	Pages     []pageRecord `json:"pages"`
}

func (a *Analyzer) run(ctx context.Context, logCtx *slog.Logger, quoteID, fileName, runID string) (*models.AnalysisResult, error) {
	path := blob.UploadPath(quoteID, fileName)
	if row, err := a.repo.GetFile(ctx, quoteID, fileName); err == nil && row.StoragePath != "" {
		path = row.StoragePath
	}

	rc, err := a.docs.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer rc.Close()

	doc, err := a.extractor.ExtractReader(ctx, fileName, rc)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Text extracted.", "engine", doc.Engine, "pages", len(doc.Pages))

	model := a.classifier.Model()
	result := &models.AnalysisResult{
		RunID:          runID,
		Model:          model,
		PageCount:      len(doc.Pages),
		TotalWords:     doc.TotalWords(),
		PageWordCounts: make(map[string]int, len(doc.Pages)),
		PageComplexity: make(map[string]string, len(doc.Pages)),
		PageDocTypes:   make(map[string]string, len(doc.Pages)),
		PageLanguages:  make(map[string][]string, len(doc.Pages)),
		PageNames:      make(map[string][]string, len(doc.Pages)),
	}
	artifact := runArtifact{QuoteID: quoteID, FileName: fileName, RunID: runID, Engine: doc.Engine, Model: model}

	var languagesAll []string
	for _, page := range doc.Pages {
		c, err := a.classifier.ClassifyPage(ctx, classify.PageInput{
			QuoteID:    quoteID,
			FileName:   fileName,
			PageNumber: page.Number,
			Text:       page.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to classify page %d: %w", page.Number, err)
		}

		key := models.PageKey(page.Number)
		langs := c.Languages()
		if len(langs) == 0 {
			langs = page.Languages
		}
		result.PageWordCounts[key] = page.WordCount
		result.PageComplexity[key] = string(c.Complexity)
		result.PageDocTypes[key] = c.DocType
		if len(langs) > 0 {
			result.PageLanguages[key] = langs
		}
		if len(c.Names) > 0 {
			result.PageNames[key] = c.Names
		}
		for _, l := range langs {
			if !slices.Contains(languagesAll, l) {
				languagesAll = append(languagesAll, l)
			}
		}
		artifact.Pages = append(artifact.Pages, pageRecord{Page: page.Number, WordCount: page.WordCount, Text: page.Text, Classification: c})
	}
	slices.Sort(languagesAll)

	now := a.clock.Now()
	result.LanguagesAll = languagesAll
	result.CompletedAt = now
	result.Message = fmt.Sprintf("Classification complete (%s): %d pages, %d words", model, result.PageCount, result.TotalWords)

	artifact.CreatedAt = now
	a.saveArtifact(ctx, logCtx, blob.AnalysisKey(quoteID, fileName, runID), artifact)
	return result, nil
}

// saveArtifact is best effort; the file row is the source of truth.
func (a *Analyzer) saveArtifact(ctx context.Context, logCtx *slog.Logger, key string, artifact runArtifact) {
	if a.artifacts == nil {
		return
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		logCtx.Warn("Failed to marshal analysis artifact.", "error", err)
		return
	}
	created, err := a.artifacts.PutIfAbsent(ctx, key, data)
	if err != nil {
		logCtx.Warn("Failed to save analysis artifact.", "key", key, "error", err)
		return
	}
	if !created {
		logCtx.Info("Analysis artifact already exists.", "key", key)
	}
}
