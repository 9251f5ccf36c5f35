package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
)

// SaveToGCSAtomically writes content to a GCS object only if it doesn't
// already exist. It reports whether this call created the object.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte) (bool, error) {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Skipping write, object already exists.", "gcsObject", objectName)
			return false, nil
		}
		return false, fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Skipping write, object already exists.", "gcsObject", objectName)
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// DocumentStore keeps customer uploads in a GCS bucket.
type DocumentStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// NewDocumentStore wraps bucketName.
func NewDocumentStore(client *storage.Client, bucketName string) *DocumentStore {
	return &DocumentStore{bucket: client.Bucket(bucketName), bucketName: bucketName}
}

func (s *DocumentStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucketName, name, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.bucketName, name, err)
	}
	return r, nil
}

// Upload writes data with a bounded number of retries and exponential backoff.
func (s *DocumentStore) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			w := s.bucket.Object(name).NewWriter(writeCtx)
			w.ContentType = contentType
			if _, err := w.Write(data); err != nil {
				_ = w.Close()
				return fmt.Errorf("write to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", name,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", name, lastErr)
}

// SignedURL returns a V4 GET URL valid for ttl.
func (s *DocumentStore) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	u, err := s.bucket.SignedURL(name, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", name, err)
	}
	return u, nil
}

func (s *DocumentStore) List(ctx context.Context, prefix string) ([]blob.Object, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var objects []blob.Object
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.bucketName, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, blob.Object{
			Path:        attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Updated:     attrs.Updated,
		})
	}
	return objects, nil
}

// ArtifactStore keeps pipeline outputs in a GCS bucket with create-only writes.
type ArtifactStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// NewArtifactStore wraps bucketName.
func NewArtifactStore(client *storage.Client, bucketName string) *ArtifactStore {
	return &ArtifactStore{bucket: client.Bucket(bucketName), bucketName: bucketName}
}

func (s *ArtifactStore) PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error) {
	return SaveToGCSAtomically(ctx, s.bucket, key, data)
}

func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucketName, key, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucketName, key, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucketName, key, err)
	}
	return b, nil
}
