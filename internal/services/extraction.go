package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/classify"
	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

var (
	// ErrExtractionPending is returned while no extraction result exists yet.
	ErrExtractionPending = errors.New("extraction has not finished")

	// ErrExtractionFailed is returned when the last extraction of a file failed.
	ErrExtractionFailed = errors.New("extraction failed")
)

// MaxClassifyPages bounds how many pages the file-level classification reads.
const MaxClassifyPages = 3

// ExtractionResult is the artifact written for a finished extraction.
type ExtractionResult struct {
	QuoteID    string         `json:"quote_id"`
	FileName   string         `json:"file_name"`
	Engine     string         `json:"engine"`
	Pages      []extract.Page `json:"pages"`
	TotalWords int            `json:"total_words"`
	Languages  []string       `json:"languages"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ExtractionJobs runs standalone text extraction for single files. Results
// are create-only artifacts; failures and running jobs are tracked in memory
// so a failed file can be started again.
type ExtractionJobs struct {
	repo      store.Repository
	docs      blob.DocumentStore
	artifacts blob.ArtifactStore
	extractor Extractor
	clock     Clock
	timeout   time.Duration

	mu   sync.Mutex
	jobs map[string]error
	wg   sync.WaitGroup
}

// NewExtractionJobs creates the job runner.
func NewExtractionJobs(repo store.Repository, docs blob.DocumentStore, artifacts blob.ArtifactStore, extractor Extractor) *ExtractionJobs {
	return &ExtractionJobs{
		repo:      repo,
		docs:      docs,
		artifacts: artifacts,
		extractor: extractor,
		clock:     SystemClock,
		timeout:   5 * time.Minute,
		jobs:      make(map[string]error),
	}
}

// errRunning marks a job that has started and not finished.
var errRunning = errors.New("running")

// Start begins extraction of a registered file in the background. It is a
// no-op when a result already exists or a job is running.
func (j *ExtractionJobs) Start(ctx context.Context, quoteID, fileName string) error {
	if quoteID == "" || fileName == "" {
		return fmt.Errorf("%w: quote_id and file_name are required", ErrMissingQuoteID)
	}
	if _, err := j.repo.GetFile(ctx, quoteID, fileName); err != nil {
		return err
	}
	if _, err := j.artifacts.Get(ctx, blob.ExtractionKey(quoteID, fileName)); err == nil {
		return nil
	}

	key := blob.ExtractionKey(quoteID, fileName)
	j.mu.Lock()
	if j.jobs[key] == errRunning {
		j.mu.Unlock()
		return nil
	}
	j.jobs[key] = errRunning
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
		defer cancel()
		_, err := j.Run(runCtx, quoteID, fileName)

		j.mu.Lock()
		if err != nil {
			j.jobs[key] = err
		} else {
			delete(j.jobs, key)
		}
		j.mu.Unlock()
	}()
	return nil
}

// Run extracts a file synchronously and stores the result artifact.
func (j *ExtractionJobs) Run(ctx context.Context, quoteID, fileName string) (*ExtractionResult, error) {
	logCtx := slog.With("quoteId", quoteID, "fileName", fileName)

	path := blob.UploadPath(quoteID, fileName)
	if row, err := j.repo.GetFile(ctx, quoteID, fileName); err == nil && row.StoragePath != "" {
		path = row.StoragePath
	}
	rc, err := j.docs.Open(ctx, path)
	if err != nil {
		logCtx.Error("Failed to open upload.", "error", err)
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer rc.Close()

	doc, err := j.extractor.ExtractReader(ctx, fileName, rc)
	if err != nil {
		logCtx.Error("Extraction failed.", "error", err)
		return nil, err
	}

	res := &ExtractionResult{
		QuoteID:    quoteID,
		FileName:   fileName,
		Engine:     doc.Engine,
		Pages:      doc.Pages,
		TotalWords: doc.TotalWords(),
		Languages:  doc.Languages(),
		CreatedAt:  j.clock.Now(),
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction result: %w", err)
	}
	if _, err := j.artifacts.PutIfAbsent(ctx, blob.ExtractionKey(quoteID, fileName), data); err != nil {
		logCtx.Error("Failed to save extraction result.", "error", err)
		return nil, fmt.Errorf("failed to save extraction result: %w", err)
	}
	logCtx.Info("Extraction stored.", "engine", doc.Engine, "pages", len(doc.Pages), "words", res.TotalWords)
	return res, nil
}

// Result loads a stored extraction. It returns ErrExtractionPending while a
// job is running or none was started, and ErrExtractionFailed, wrapping the
// cause, when the last job failed.
func (j *ExtractionJobs) Result(ctx context.Context, quoteID, fileName string) (*ExtractionResult, error) {
	key := blob.ExtractionKey(quoteID, fileName)
	data, err := j.artifacts.Get(ctx, key)
	if err == nil {
		var res ExtractionResult
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("failed to decode extraction result: %w", err)
		}
		return &res, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("failed to read extraction result: %w", err)
	}

	j.mu.Lock()
	jobErr, ok := j.jobs[key]
	j.mu.Unlock()
	if ok && jobErr != errRunning {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, jobErr)
	}
	return nil, ErrExtractionPending
}

// Status renders Result as the extract_status payload.
func (j *ExtractionJobs) Status(ctx context.Context, quoteID, fileName string) (*models.ExtractStatusResponse, error) {
	res, err := j.Result(ctx, quoteID, fileName)
	switch {
	case errors.Is(err, ErrExtractionPending):
		return &models.ExtractStatusResponse{Pending: true}, err
	case errors.Is(err, ErrExtractionFailed):
		return &models.ExtractStatusResponse{Error: models.TruncateMessage(err.Error())}, err
	case err != nil:
		return nil, err
	}
	return &models.ExtractStatusResponse{
		OK:         true,
		Pages:      len(res.Pages),
		TotalWords: res.TotalWords,
		Languages:  res.Languages,
	}, nil
}

// Wait blocks until every started job has finished.
func (j *ExtractionJobs) Wait() {
	j.wg.Wait()
}

// FileClassifier classifies a whole file from its stored extraction.
type FileClassifier struct {
	jobs       *ExtractionJobs
	classifier classify.Classifier
}

func NewFileClassifier(jobs *ExtractionJobs, classifier classify.Classifier) *FileClassifier {
	return &FileClassifier{jobs: jobs, classifier: classifier}
}

// Classify labels the first MaxClassifyPages pages and summarizes them.
func (c *FileClassifier) Classify(ctx context.Context, quoteID, fileName string) (*models.ClassifyResponse, error) {
	res, err := c.jobs.Result(ctx, quoteID, fileName)
	if err != nil {
		return nil, err
	}

	pages := res.Pages
	if len(pages) > MaxClassifyPages {
		pages = pages[:MaxClassifyPages]
	}
	results := make([]classify.PageClassification, 0, len(pages))
	for _, p := range pages {
		pc, err := c.classifier.ClassifyPage(ctx, classify.PageInput{
			QuoteID:    quoteID,
			FileName:   fileName,
			PageNumber: p.Number,
			Text:       p.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to classify page %d: %w", p.Number, err)
		}
		results = append(results, *pc)
	}

	summary := classify.Summarize(results)
	return &models.ClassifyResponse{
		OK:                 true,
		DocType:            summary.DocType,
		PrimaryLanguage:    summary.PrimaryLanguage,
		SecondaryLanguages: summary.SecondaryLanguages,
		Names:              summary.Names,
		Confidence:         summary.Confidence,
		Model:              c.classifier.Model(),
	}, nil
}
