package models

import "time"

// These structs define the JSON payloads for the HTTP functions, the chi
// server and the workflow steps.

// AnalyzeRequest is the input for the analyze trigger and the analysis worker.
// SendWhenDone asks the server to email the quote once every file is
// terminal. The serverless trigger ignores it.
type AnalyzeRequest struct {
	QuoteID      string   `json:"quote_id"`
	FileNames    []string `json:"file_names,omitempty"`
	Force        bool     `json:"force,omitempty"`
	RunID        string   `json:"run_id,omitempty"`
	SendWhenDone bool     `json:"send_when_done,omitempty"`
}

// AnalyzeAccepted is returned as soon as analysis has been handed off.
type AnalyzeAccepted struct {
	Accepted bool   `json:"accepted"`
	QuoteID  string `json:"quote_id"`
	RunID    string `json:"run_id,omitempty"`
}

// FileOutcome is the per-file result reported by a synchronous analysis run.
type FileOutcome struct {
	FileName string     `json:"file_name"`
	Status   FileStatus `json:"status"`
	Message  string     `json:"message,omitempty"`
	Skipped  bool       `json:"skipped,omitempty"`
}

// AnalyzeResponse is the output of the analysis worker.
type AnalyzeResponse struct {
	QuoteID string        `json:"quote_id"`
	RunID   string        `json:"run_id"`
	Files   []FileOutcome `json:"files"`
}

// ExtractRequest names a single file for the extraction endpoints.
type ExtractRequest struct {
	QuoteID  string `json:"quote_id"`
	FileName string `json:"file_name"`
}

// ExtractStatusResponse is returned once extracted text is available.
type ExtractStatusResponse struct {
	OK         bool     `json:"ok"`
	Pending    bool     `json:"pending,omitempty"`
	Pages      int      `json:"pages,omitempty"`
	TotalWords int      `json:"totalWords,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ClassifyResponse is the file-level classification result.
type ClassifyResponse struct {
	OK                 bool     `json:"ok"`
	DocType            string   `json:"doc_type"`
	PrimaryLanguage    string   `json:"primary_language"`
	SecondaryLanguages []string `json:"secondary_languages"`
	Names              []string `json:"names"`
	Confidence         float64  `json:"confidence"`
	Model              string   `json:"model,omitempty"`
}

// FileMeta is the client-supplied metadata of one uploaded file.
type FileMeta struct {
	FileName    string `json:"file_name"`
	StoragePath string `json:"storage_path,omitempty"`
	FileURL     string `json:"file_url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// SaveQuoteRequest carries a partial submission and any file metadata.
// Empty fields leave the stored values untouched.
type SaveQuoteRequest struct {
	QuoteID        string     `json:"quote_id"`
	Name           string     `json:"name,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	IntendedUse    string     `json:"intended_use,omitempty"`
	SourceLanguage string     `json:"source_language,omitempty"`
	TargetLanguage string     `json:"target_language,omitempty"`
	Files          []FileMeta `json:"files,omitempty"`
}

// SaveQuoteResponse echoes the quote id, which may have been allocated.
type SaveQuoteResponse struct {
	OK      bool   `json:"ok"`
	QuoteID string `json:"quote_id"`
}

// SendQuoteResponse reports whether the quote email was accepted.
type SendQuoteResponse struct {
	OK      bool   `json:"ok"`
	QuoteID string `json:"quote_id"`
	Total   string `json:"total,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// FileLinkResponse grants temporary read access to an uploaded file.
type FileLinkResponse struct {
	QuoteID   string    `json:"quote_id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
