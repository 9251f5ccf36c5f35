// Package store persists quote submissions, their files and the rate table.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// Collection and table names.
const (
	SubmissionsCollection = "quote_submissions"
	FilesCollection       = "quote_files"
	CountersCollection    = "counters"
	quoteCounterID        = "quote_id"
)

// FallbackQuoteID is used when a sequential id cannot be allocated.
const FallbackQuoteID = "CS00000"

// ErrNotFound is returned when a submission or file does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the quote record store.
type Repository interface {
	// UpsertSubmission inserts the submission or updates the non-empty fields
	// of an existing one.
	UpsertSubmission(ctx context.Context, sub models.QuoteSubmission) error
	GetSubmission(ctx context.Context, quoteID string) (*models.QuoteSubmission, error)

	// UpsertFile inserts the file as pending or updates the metadata of an
	// existing row. Analysis fields of an existing row are never touched.
	UpsertFile(ctx context.Context, f models.QuoteFile) error
	GetFile(ctx context.Context, quoteID, fileName string) (*models.QuoteFile, error)
	ListFiles(ctx context.Context, quoteID string) ([]models.QuoteFile, error)

	// ClaimFile moves an eligible file to processing. It reports false when
	// the file is not eligible, which callers treat as a no-op.
	ClaimFile(ctx context.Context, quoteID, fileName string, opts ClaimOptions) (bool, error)
	CompleteFile(ctx context.Context, quoteID, fileName string, res models.AnalysisResult) error
	FailFile(ctx context.Context, quoteID, fileName, message string, at time.Time) error

	NextQuoteID(ctx context.Context) (string, error)

	LoadRates(ctx context.Context) (models.RateTable, error)
	SeedRates(ctx context.Context, rows models.RateRows) error

	Close() error
}

// ClaimOptions controls which states ClaimFile will take over.
type ClaimOptions struct {
	Now   time.Time
	RunID string
	// Force also claims files that already succeeded.
	Force bool
	// StaleBefore, when set, lets a processing row started before it be
	// claimed again.
	StaleBefore time.Time
}

// Claimable reports whether f may be claimed under opts.
func Claimable(f *models.QuoteFile, opts ClaimOptions) bool {
	switch {
	case f.Status.Eligible():
		return true
	case f.Status == models.StatusSuccess:
		return opts.Force
	case f.Status == models.StatusProcessing:
		if opts.StaleBefore.IsZero() {
			return false
		}
		return f.StartedAt == nil || f.StartedAt.Before(opts.StaleBefore)
	}
	return false
}

// FormatQuoteID renders the n-th sequential quote code.
func FormatQuoteID(n int64) string {
	return fmt.Sprintf("CS%05d", n)
}

const claimMessage = "Analysis in progress"
