package models

import (
	"slices"
	"strconv"
	"time"
)

// FileStatus is the analysis state of a single uploaded file.
type FileStatus string

const (
	StatusPending    FileStatus = "pending"
	StatusProcessing FileStatus = "processing"
	StatusSuccess    FileStatus = "success"
	StatusError      FileStatus = "error"
)

// MaxStatusMessageLen bounds the human-readable message stored on a file row.
const MaxStatusMessageLen = 400

// Terminal reports whether the orchestrator is finished with the file for this run.
func (s FileStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Eligible reports whether a file in this state may be picked up for analysis.
// An unset status counts as pending.
func (s FileStatus) Eligible() bool {
	switch s {
	case "", StatusPending, StatusError:
		return true
	}
	return false
}

// QuoteSubmission is one customer's quote request, keyed by QuoteID.
type QuoteSubmission struct {
	QuoteID        string    `firestore:"quoteId" json:"quote_id"`
	Name           string    `firestore:"name,omitempty" json:"name,omitempty"`
	Email          string    `firestore:"email,omitempty" json:"email,omitempty"`
	Phone          string    `firestore:"phone,omitempty" json:"phone,omitempty"`
	IntendedUse    string    `firestore:"intendedUse,omitempty" json:"intended_use,omitempty"`
	SourceLanguage string    `firestore:"sourceLanguage,omitempty" json:"source_language,omitempty"`
	TargetLanguage string    `firestore:"targetLanguage,omitempty" json:"target_language,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty" json:"created_at"`
	UpdatedAt      time.Time `firestore:"updatedAt,omitempty" json:"updated_at"`
}

// QuoteFile is one uploaded file of a quote together with its analysis state.
// Per-page maps are keyed by the 1-based page number as a string.
type QuoteFile struct {
	QuoteID     string `firestore:"quoteId" json:"quote_id"`
	FileName    string `firestore:"fileName" json:"file_name"`
	StoragePath string `firestore:"storagePath,omitempty" json:"storage_path,omitempty"`
	FileURL     string `firestore:"fileUrl,omitempty" json:"file_url,omitempty"`
	ContentType string `firestore:"contentType,omitempty" json:"content_type,omitempty"`
	SizeBytes   int64  `firestore:"sizeBytes,omitempty" json:"size_bytes,omitempty"`
	SHA256      string `firestore:"sha256,omitempty" json:"sha256,omitempty"`

	Status        FileStatus `firestore:"status" json:"status"`
	StatusMessage string     `firestore:"statusMessage,omitempty" json:"status_message,omitempty"`
	Model         string     `firestore:"model,omitempty" json:"model,omitempty"`
	RunID         string     `firestore:"runId,omitempty" json:"run_id,omitempty"`

	PageCount      int                 `firestore:"pageCount,omitempty" json:"page_count,omitempty"`
	TotalWords     int                 `firestore:"totalWords,omitempty" json:"total_words,omitempty"`
	PageWordCounts map[string]int      `firestore:"pageWordCounts,omitempty" json:"page_word_counts,omitempty"`
	PageComplexity map[string]string   `firestore:"pageComplexity,omitempty" json:"page_complexity,omitempty"`
	PageDocTypes   map[string]string   `firestore:"pageDocTypes,omitempty" json:"page_doc_types,omitempty"`
	PageLanguages  map[string][]string `firestore:"pageLanguages,omitempty" json:"page_languages,omitempty"`
	PageNames      map[string][]string `firestore:"pageNames,omitempty" json:"page_names,omitempty"`
	LanguagesAll   []string            `firestore:"languagesAll,omitempty" json:"languages_all,omitempty"`

	CreatedAt   time.Time  `firestore:"createdAt,omitempty" json:"created_at"`
	StartedAt   *time.Time `firestore:"startedAt,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `firestore:"completedAt,omitempty" json:"completed_at,omitempty"`
}

// AnalysisResult is everything the orchestrator writes on a successful run.
// It is applied to the file row in a single update.
type AnalysisResult struct {
	RunID          string
	Model          string
	Message        string
	CompletedAt    time.Time
	PageCount      int
	TotalWords     int
	PageWordCounts map[string]int
	PageComplexity map[string]string
	PageDocTypes   map[string]string
	PageLanguages  map[string][]string
	PageNames      map[string][]string
	LanguagesAll   []string
}

// PageKey renders a page number the way per-page maps are keyed.
func PageKey(n int) string {
	return strconv.Itoa(n)
}

// SortedPageNumbers returns the page numbers present in m in ascending order.
func SortedPageNumbers[V any](m map[string]V) []int {
	pages := make([]int, 0, len(m))
	for k := range m {
		if n, err := strconv.Atoi(k); err == nil && n > 0 {
			pages = append(pages, n)
		}
	}
	slices.Sort(pages)
	return pages
}

// TruncateMessage caps msg at MaxStatusMessageLen bytes without splitting a rune.
func TruncateMessage(msg string) string {
	if len(msg) <= MaxStatusMessageLen {
		return msg
	}
	cut := MaxStatusMessageLen
	for cut > 0 && !isRuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
