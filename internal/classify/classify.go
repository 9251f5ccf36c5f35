// Package classify asks a generative model to label single pages of
// customer documents and turns whatever it answers into a PageClassification.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// MaxNames bounds the personal names kept per page.
const MaxNames = 5

// maxLoggedOutput bounds raw model output written to the log.
const maxLoggedOutput = 2000

var (
	// ErrMalformedOutput is returned when no usable JSON payload can be
	// recovered from the model's answer.
	ErrMalformedOutput = errors.New("classifier returned malformed output")

	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("classifier returned an empty response")

	// ErrRefused is returned when the model declines to classify the page.
	ErrRefused = errors.New("classifier refused the request")
)

// DocTypes is the closed list of document types a page can be labelled with.
var DocTypes = []string{
	"passport", "birth_certificate", "marriage_certificate", "divorce_certificate",
	"driver_license", "id_card", "pr_card", "work_permit", "study_permit",
	"diploma", "transcript", "police_certificate", "bank_statement", "payslip",
	"utility_bill", "tax_return", "letter", "invoice", "other",
}

// DocTypeOther is used for anything outside DocTypes.
const DocTypeOther = "other"

// PageInput identifies the page being classified and carries its text.
type PageInput struct {
	QuoteID    string
	FileName   string
	PageNumber int
	Text       string
}

// PageClassification is the canonical result for one page.
type PageClassification struct {
	Complexity         models.Complexity `json:"complexity"`
	DocType            string            `json:"doc_type"`
	PrimaryLanguage    string            `json:"primary_language,omitempty"`
	SecondaryLanguages []string          `json:"secondary_languages,omitempty"`
	Names              []string          `json:"names,omitempty"`
	Confidence         float64           `json:"confidence"`
}

// Languages returns the primary language followed by the secondary ones,
// without duplicates.
func (p *PageClassification) Languages() []string {
	var langs []string
	if p.PrimaryLanguage != "" {
		langs = append(langs, p.PrimaryLanguage)
	}
	for _, l := range p.SecondaryLanguages {
		if l != "" && !slices.Contains(langs, l) {
			langs = append(langs, l)
		}
	}
	return langs
}

// Classifier labels a single page of text.
type Classifier interface {
	ClassifyPage(ctx context.Context, in PageInput) (*PageClassification, error)
	// Model identifies the model used, for the file row and status message.
	Model() string
}

// Parse recovers the JSON payload from raw model output and normalizes it.
// When the payload holds several pages, the entry for pageNumber is used.
func Parse(raw string, pageNumber int) (*PageClassification, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := ValidatePayload([]byte(payload)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	fields, ok := pageFields(v, pageNumber)
	if !ok {
		return nil, fmt.Errorf("%w: payload has no page entries", ErrMalformedOutput)
	}
	result := Normalize(fields)
	return &result, nil
}

func truncateForLog(s string) string {
	if len(s) <= maxLoggedOutput {
		return s
	}
	return s[:maxLoggedOutput] + "...(truncated)"
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// blankPage is the answer for a page with no text, without calling a model.
func blankPage() *PageClassification {
	return &PageClassification{Complexity: models.ComplexityEasy, DocType: DocTypeOther}
}

// parseModelOutput is shared by the providers. Raw output that cannot be
// used is logged, truncated, and never returned to the caller.
func parseModelOutput(logCtx *slog.Logger, raw string, pageNumber int) (*PageClassification, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyResponse
	}
	result, err := Parse(raw, pageNumber)
	if err == nil {
		return result, nil
	}
	lower := strings.ToLower(raw)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			logCtx.Error("Classifier refused the page.", "response", truncateForLog(raw))
			return nil, fmt.Errorf("%w for page %d", ErrRefused, pageNumber)
		}
	}
	logCtx.Error("Could not parse classifier output.", "error", err, "response", truncateForLog(raw))
	return nil, err
}
