package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/notify"
	"github.com/Lllllllleong/translationquoteflow/internal/pricing"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

var (
	// ErrIncompleteQuote is returned when a quote is sent without the fields
	// the email needs.
	ErrIncompleteQuote = errors.New("quote is incomplete")

	// ErrEmailNotConfigured is returned by Send when no sender is configured.
	ErrEmailNotConfigured = errors.New("quote email is not configured")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Quotes saves submissions and prices and sends finished quotes.
type Quotes struct {
	repo   store.Repository
	sender notify.Sender
	clock  Clock
}

// NewQuotes creates the quote service. sender may be nil when email is not
// configured; Send then fails with ErrEmailNotConfigured.
func NewQuotes(repo store.Repository, sender notify.Sender) *Quotes {
	return &Quotes{repo: repo, sender: sender, clock: SystemClock}
}

// Save upserts the submission fields present in req and registers any file
// metadata. A quote id is allocated when req has none.
func (q *Quotes) Save(ctx context.Context, req models.SaveQuoteRequest) (*models.SaveQuoteResponse, error) {
	quoteID := strings.TrimSpace(req.QuoteID)
	if quoteID == "" {
		id, err := q.repo.NextQuoteID(ctx)
		if err != nil {
			slog.Error("Failed to allocate quote id, using fallback.", "error", err)
			id = store.FallbackQuoteID
		}
		quoteID = id
	}
	logCtx := slog.With("quoteId", quoteID)

	now := q.clock.Now()
	sub := models.QuoteSubmission{
		QuoteID:        quoteID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		IntendedUse:    req.IntendedUse,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := q.repo.UpsertSubmission(ctx, sub); err != nil {
		logCtx.Error("Failed to save submission.", "error", err)
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	for _, meta := range req.Files {
		if meta.FileName == "" {
			continue
		}
		storagePath := meta.StoragePath
		if storagePath == "" {
			storagePath = blob.UploadPath(quoteID, meta.FileName)
		}
		err := q.repo.UpsertFile(ctx, models.QuoteFile{
			QuoteID:     quoteID,
			FileName:    meta.FileName,
			StoragePath: storagePath,
			FileURL:     meta.FileURL,
			ContentType: meta.ContentType,
			SizeBytes:   meta.SizeBytes,
			Status:      models.StatusPending,
			CreatedAt:   now,
		})
		if err != nil {
			logCtx.Error("Failed to save file metadata.", "fileName", meta.FileName, "error", err)
			return nil, fmt.Errorf("failed to save file %s: %w", meta.FileName, err)
		}
	}
	logCtx.Info("Quote saved.", "files", len(req.Files))
	return &models.SaveQuoteResponse{OK: true, QuoteID: quoteID}, nil
}

// Price computes the current breakdown. Files that are not analyzed yet, or
// failed, contribute no pages.
func (q *Quotes) Price(ctx context.Context, quoteID string) (*pricing.Quote, error) {
	quote, _, _, err := q.price(ctx, quoteID)
	return quote, err
}

func (q *Quotes) price(ctx context.Context, quoteID string) (*pricing.Quote, *models.QuoteSubmission, []models.QuoteFile, error) {
	if quoteID == "" {
		return nil, nil, nil, ErrMissingQuoteID
	}
	sub, err := q.repo.GetSubmission(ctx, quoteID)
	if err != nil {
		return nil, nil, nil, err
	}
	rows, err := q.repo.ListFiles(ctx, quoteID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list files: %w", err)
	}
	rates, err := q.repo.LoadRates(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load rates: %w", err)
	}
	quote := pricing.Calculate(pricing.RequestFor(sub, rows), rates)
	return &quote, sub, rows, nil
}

// Send prices the quote and emails it to the customer.
func (q *Quotes) Send(ctx context.Context, quoteID string) (*pricing.Quote, error) {
	if q.sender == nil {
		return nil, ErrEmailNotConfigured
	}
	quote, sub, rows, err := q.price(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if err := checkComplete(sub, rows); err != nil {
		return nil, err
	}

	msg := notify.QuoteEmail{
		QuoteID:        sub.QuoteID,
		Name:           sub.Name,
		Email:          sub.Email,
		Phone:          sub.Phone,
		IntendedUse:    sub.IntendedUse,
		SourceLanguage: sub.SourceLanguage,
		TargetLanguage: sub.TargetLanguage,
		Rate:           quote.Rate,
		BillablePages:  quote.BillablePages,
		Total:          quote.Total,
	}
	for _, f := range quote.Files {
		msg.Files = append(msg.Files, notify.FileLine{Name: f.Name, Pages: f.BillablePages, Subtotal: f.Subtotal})
	}
	if err := q.sender.SendQuote(ctx, msg); err != nil {
		slog.Error("Failed to send quote email.", "quoteId", quoteID, "error", err)
		return nil, fmt.Errorf("failed to send quote: %w", err)
	}
	slog.Info("Quote sent.", "quoteId", quoteID, "total", quote.Total.StringFixed(2))
	return quote, nil
}

func checkComplete(sub *models.QuoteSubmission, rows []models.QuoteFile) error {
	var missing []string
	if strings.TrimSpace(sub.Name) == "" {
		missing = append(missing, "name")
	}
	if !ValidEmail(sub.Email) {
		missing = append(missing, "email")
	}
	if sub.IntendedUse == "" {
		missing = append(missing, "intended use")
	}
	if sub.SourceLanguage == "" {
		missing = append(missing, "source language")
	}
	if sub.TargetLanguage == "" {
		missing = append(missing, "target language")
	}
	if len(rows) == 0 {
		missing = append(missing, "files")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid %s", ErrIncompleteQuote, strings.Join(missing, ", "))
	}
	return nil
}
