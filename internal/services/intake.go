package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strconv"
	"time"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

// Intake registers uploaded files as pending QuoteFile rows.
type Intake struct {
	repo        store.Repository
	docs        blob.DocumentStore
	dispatcher  Dispatcher
	autoAnalyze bool
	clock       Clock
}

// NewIntake creates an Intake. When autoAnalyze is set and dispatcher is not
// nil, every newly registered file is handed off for analysis.
func NewIntake(repo store.Repository, docs blob.DocumentStore, dispatcher Dispatcher, autoAnalyze bool) *Intake {
	return &Intake{repo: repo, docs: docs, dispatcher: dispatcher, autoAnalyze: autoAnalyze, clock: SystemClock}
}

// DefaultLinkTTL is how long a file link stays valid.
const DefaultLinkTTL = 15 * time.Minute

// FileLink returns temporary read access to a registered file. ttl below
// one second means DefaultLinkTTL.
func (in *Intake) FileLink(ctx context.Context, quoteID, fileName string, ttl time.Duration) (*models.FileLinkResponse, error) {
	if ttl < time.Second {
		ttl = DefaultLinkTTL
	}
	row, err := in.repo.GetFile(ctx, quoteID, fileName)
	if err != nil {
		return nil, err
	}
	objectPath := row.StoragePath
	if objectPath == "" {
		objectPath = blob.UploadPath(quoteID, fileName)
	}
	expiresAt := in.clock.Now().Add(ttl)
	u, err := in.docs.SignedURL(ctx, objectPath, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", objectPath, err)
	}
	return &models.FileLinkResponse{QuoteID: quoteID, FileName: fileName, URL: u, ExpiresAt: expiresAt}, nil
}

// Process handles a finalize event. Objects outside orders/ and files with
// an unsupported extension are ignored.
func (in *Intake) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	quoteID, fileName, ok := blob.ParseUploadPath(e.Name)
	if !ok {
		logCtx.Info("Object is not a quote upload. Skipping.")
		return nil
	}
	if !extract.Allowed(fileName) {
		logCtx.Warn("Unsupported file extension. Skipping.")
		return nil
	}
	size, _ := strconv.ParseInt(e.Size, 10, 64)
	return in.register(ctx, logCtx, blob.Object{Path: e.Name, Size: size, ContentType: e.ContentType}, quoteID, fileName)
}

// Upload stores data under the quote and registers it.
func (in *Intake) Upload(ctx context.Context, quoteID, fileName string, data []byte, contentType string) (*models.QuoteFile, error) {
	if quoteID == "" {
		return nil, ErrMissingQuoteID
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(fileName))
	}
	objectPath := blob.UploadPath(quoteID, fileName)
	if err := in.docs.Upload(ctx, objectPath, data, contentType); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	logCtx := slog.With("quoteId", quoteID, "fileName", fileName)
	sum := sha256.Sum256(data)
	return in.upsert(ctx, logCtx, models.QuoteFile{
		QuoteID:     quoteID,
		FileName:    fileName,
		StoragePath: objectPath,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
	})
}

// Sync registers every stored upload of a quote that has no file row yet and
// returns the names it registered.
func (in *Intake) Sync(ctx context.Context, quoteID string) ([]string, error) {
	if quoteID == "" {
		return nil, ErrMissingQuoteID
	}
	objects, err := in.docs.List(ctx, blob.UploadPath(quoteID, "")+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	var registered []string
	for _, obj := range objects {
		q, fileName, ok := blob.ParseUploadPath(obj.Path)
		if !ok || q != quoteID || !extract.Allowed(fileName) {
			continue
		}
		_, err := in.repo.GetFile(ctx, quoteID, fileName)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return registered, fmt.Errorf("failed to read file row: %w", err)
		}
		logCtx := slog.With("quoteId", quoteID, "fileName", fileName)
		if err := in.register(ctx, logCtx, obj, quoteID, fileName); err != nil {
			return registered, err
		}
		registered = append(registered, fileName)
	}
	return registered, nil
}

func (in *Intake) register(ctx context.Context, logCtx *slog.Logger, obj blob.Object, quoteID, fileName string) error {
	rc, err := in.docs.Open(ctx, obj.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", obj.Path, err)
	}
	defer rc.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, rc)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", obj.Path, err)
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(fileName))
	}

	_, err = in.upsert(ctx, logCtx, models.QuoteFile{
		QuoteID:     quoteID,
		FileName:    fileName,
		StoragePath: obj.Path,
		ContentType: contentType,
		SizeBytes:   n,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
	})
	return err
}

// upsert writes the row and, for new or re-uploaded content, hands it off
// for analysis. Metadata of an existing row is overwritten; its analysis
// state is kept, so changed content needs a forced re-run.
func (in *Intake) upsert(ctx context.Context, logCtx *slog.Logger, f models.QuoteFile) (*models.QuoteFile, error) {
	existing, err := in.repo.GetFile(ctx, f.QuoteID, f.FileName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("failed to read file row: %w", err)
	}
	if existing != nil && existing.SHA256 != "" && existing.SHA256 != f.SHA256 {
		logCtx.Warn("File content changed since the last upload. Re-analysis needs force.",
			"previousSha256", existing.SHA256, "sha256", f.SHA256, "status", existing.Status)
	}

	f.Status = models.StatusPending
	f.CreatedAt = in.clock.Now()
	if err := in.repo.UpsertFile(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to register file: %w", err)
	}
	logCtx.Info("File registered.", "sizeBytes", f.SizeBytes, "sha256", f.SHA256)

	if in.autoAnalyze && in.dispatcher != nil && (existing == nil || existing.Status.Eligible()) {
		req := models.AnalyzeRequest{QuoteID: f.QuoteID, FileNames: []string{f.FileName}}
		if err := in.dispatcher.Dispatch(ctx, req); err != nil {
			logCtx.Error("Failed to dispatch analysis.", "error", err)
			return nil, fmt.Errorf("failed to dispatch analysis: %w", err)
		}
	}

	row, err := in.repo.GetFile(ctx, f.QuoteID, f.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read registered file: %w", err)
	}
	return row, nil
}
