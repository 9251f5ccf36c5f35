// Package blob defines the document and artifact stores used by the
// pipeline, plus a local-directory implementation of both.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidPath is returned for keys that escape their root.
	ErrInvalidPath = errors.New("invalid object path")
)

// Object describes one stored document.
type Object struct {
	Path        string
	Size        int64
	ContentType string
	Updated     time.Time
}

// DocumentStore holds customer uploads.
type DocumentStore interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

// ArtifactStore holds pipeline outputs. Writes are create-only so repeated
// runs of an idempotent step never clobber an earlier result.
type ArtifactStore interface {
	// PutIfAbsent reports false when the key already existed.
	PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// UploadPath is where a customer file for a quote lives.
func UploadPath(quoteID, fileName string) string {
	return path.Join("orders", quoteID, fileName)
}

// ParseUploadPath splits an object name produced by UploadPath.
func ParseUploadPath(name string) (quoteID, fileName string, ok bool) {
	rest, found := strings.CutPrefix(name, "orders/")
	if !found {
		return "", "", false
	}
	quoteID, fileName, found = strings.Cut(rest, "/")
	if !found || quoteID == "" || fileName == "" || strings.HasSuffix(fileName, "/") {
		return "", "", false
	}
	return quoteID, fileName, true
}

// ExtractionKey is the artifact holding a file's extraction result.
func ExtractionKey(quoteID, fileName string) string {
	return path.Join("extractions", quoteID, fileName, "result.json")
}

// AnalysisKey is the artifact holding the page texts of one analysis run.
func AnalysisKey(quoteID, fileName, runID string) string {
	return path.Join("analysis", quoteID, fileName, runID+".json")
}
