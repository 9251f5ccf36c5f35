package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// FirestoreRepository stores quotes in Firestore.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository wraps an existing client.
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

// FileDocID derives the quote_files document id. Firestore ids cannot
// contain '/', so the file name is path-escaped.
func FileDocID(quoteID, fileName string) string {
	return quoteID + "|" + url.PathEscape(fileName)
}

func (r *FirestoreRepository) submissionRef(quoteID string) *firestore.DocumentRef {
	return r.client.Collection(SubmissionsCollection).Doc(quoteID)
}

func (r *FirestoreRepository) fileRef(quoteID, fileName string) *firestore.DocumentRef {
	return r.client.Collection(FilesCollection).Doc(FileDocID(quoteID, fileName))
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (r *FirestoreRepository) UpsertSubmission(ctx context.Context, sub models.QuoteSubmission) error {
	ref := r.submissionRef(sub.QuoteID)
	now := time.Now().UTC()
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if isNotFound(err) {
			sub.CreatedAt = now
			sub.UpdatedAt = now
			return tx.Create(ref, sub)
		}
		if err != nil {
			return err
		}
		fields := map[string]interface{}{"updatedAt": now}
		setIfNotEmpty(fields, "name", sub.Name)
		setIfNotEmpty(fields, "email", sub.Email)
		setIfNotEmpty(fields, "phone", sub.Phone)
		setIfNotEmpty(fields, "intendedUse", sub.IntendedUse)
		setIfNotEmpty(fields, "sourceLanguage", sub.SourceLanguage)
		setIfNotEmpty(fields, "targetLanguage", sub.TargetLanguage)
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert submission %s: %w", sub.QuoteID, err)
	}
	return nil
}

func (r *FirestoreRepository) GetSubmission(ctx context.Context, quoteID string) (*models.QuoteSubmission, error) {
	snap, err := r.submissionRef(quoteID).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("submission %s: %w", quoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", quoteID, err)
	}
	var sub models.QuoteSubmission
	if err := snap.DataTo(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission %s: %w", quoteID, err)
	}
	return &sub, nil
}

func (r *FirestoreRepository) UpsertFile(ctx context.Context, f models.QuoteFile) error {
	ref := r.fileRef(f.QuoteID, f.FileName)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if isNotFound(err) {
			row := models.QuoteFile{
				QuoteID:     f.QuoteID,
				FileName:    f.FileName,
				StoragePath: f.StoragePath,
				FileURL:     f.FileURL,
				ContentType: f.ContentType,
				SizeBytes:   f.SizeBytes,
				SHA256:      f.SHA256,
				Status:      models.StatusPending,
				CreatedAt:   time.Now().UTC(),
			}
			return tx.Create(ref, row)
		}
		if err != nil {
			return err
		}
		fields := map[string]interface{}{}
		setIfNotEmpty(fields, "storagePath", f.StoragePath)
		setIfNotEmpty(fields, "fileUrl", f.FileURL)
		setIfNotEmpty(fields, "contentType", f.ContentType)
		setIfNotEmpty(fields, "sha256", f.SHA256)
		if f.SizeBytes > 0 {
			fields["sizeBytes"] = f.SizeBytes
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert file %s/%s: %w", f.QuoteID, f.FileName, err)
	}
	return nil
}

func (r *FirestoreRepository) GetFile(ctx context.Context, quoteID, fileName string) (*models.QuoteFile, error) {
	snap, err := r.fileRef(quoteID, fileName).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("file %s/%s: %w", quoteID, fileName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s/%s: %w", quoteID, fileName, err)
	}
	var f models.QuoteFile
	if err := snap.DataTo(&f); err != nil {
		return nil, fmt.Errorf("failed to decode file %s/%s: %w", quoteID, fileName, err)
	}
	return &f, nil
}

func (r *FirestoreRepository) ListFiles(ctx context.Context, quoteID string) ([]models.QuoteFile, error) {
	it := r.client.Collection(FilesCollection).Where("quoteId", "==", quoteID).Documents(ctx)
	defer it.Stop()

	var files []models.QuoteFile
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list files for %s: %w", quoteID, err)
		}
		var f models.QuoteFile
		if err := snap.DataTo(&f); err != nil {
			return nil, fmt.Errorf("failed to decode file %s: %w", snap.Ref.ID, err)
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FileName < files[j].FileName })
	return files, nil
}

func (r *FirestoreRepository) ClaimFile(ctx context.Context, quoteID, fileName string, opts ClaimOptions) (bool, error) {
	ref := r.fileRef(quoteID, fileName)
	var claimed bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var f models.QuoteFile
		if err := snap.DataTo(&f); err != nil {
			return err
		}
		if !Claimable(&f, opts) {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: models.StatusProcessing},
			{Path: "statusMessage", Value: claimMessage},
			{Path: "startedAt", Value: opts.Now},
			{Path: "completedAt", Value: firestore.Delete},
			{Path: "runId", Value: opts.RunID},
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim file %s/%s: %w", quoteID, fileName, err)
	}
	return claimed, nil
}

func (r *FirestoreRepository) CompleteFile(ctx context.Context, quoteID, fileName string, res models.AnalysisResult) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusSuccess},
		{Path: "statusMessage", Value: models.TruncateMessage(res.Message)},
		{Path: "model", Value: res.Model},
		{Path: "runId", Value: res.RunID},
		{Path: "completedAt", Value: res.CompletedAt},
		{Path: "pageCount", Value: res.PageCount},
		{Path: "totalWords", Value: res.TotalWords},
		{Path: "pageWordCounts", Value: res.PageWordCounts},
		{Path: "pageComplexity", Value: res.PageComplexity},
		{Path: "pageDocTypes", Value: res.PageDocTypes},
		{Path: "pageLanguages", Value: res.PageLanguages},
		{Path: "pageNames", Value: res.PageNames},
		{Path: "languagesAll", Value: res.LanguagesAll},
	}
	if _, err := r.fileRef(quoteID, fileName).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("file %s/%s: %w", quoteID, fileName, ErrNotFound)
		}
		return fmt.Errorf("failed to complete file %s/%s: %w", quoteID, fileName, err)
	}
	return nil
}

func (r *FirestoreRepository) FailFile(ctx context.Context, quoteID, fileName, message string, at time.Time) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusError},
		{Path: "statusMessage", Value: models.TruncateMessage(message)},
		{Path: "completedAt", Value: at},
	}
	if _, err := r.fileRef(quoteID, fileName).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("file %s/%s: %w", quoteID, fileName, ErrNotFound)
		}
		return fmt.Errorf("failed to fail file %s/%s: %w", quoteID, fileName, err)
	}
	return nil
}

func (r *FirestoreRepository) NextQuoteID(ctx context.Context) (string, error) {
	ref := r.client.Collection(CountersCollection).Doc(quoteCounterID)
	var next int64
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
			next = 1
		case err != nil:
			return err
		default:
			current, err := snap.DataAt("value")
			if err != nil {
				return err
			}
			v, _ := current.(int64)
			next = v + 1
		}
		return tx.Set(ref, map[string]interface{}{"value": next})
	})
	if err != nil {
		return FallbackQuoteID, fmt.Errorf("failed to allocate quote id: %w", err)
	}
	return FormatQuoteID(next), nil
}

// LoadRates reads the four rate collections concurrently.
func (r *FirestoreRepository) LoadRates(ctx context.Context) (models.RateTable, error) {
	var rows models.RateRows
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return readCollection(gctx, r.client, models.LanguagesCollection, &rows.Languages)
	})
	eg.Go(func() error {
		return readCollection(gctx, r.client, models.TiersCollection, &rows.Tiers)
	})
	eg.Go(func() error {
		return readCollection(gctx, r.client, models.CertificationTypesCollection, &rows.CertificationTypes)
	})
	eg.Go(func() error {
		return readCollection(gctx, r.client, models.CertificationMapCollection, &rows.CertificationMap)
	})
	if err := eg.Wait(); err != nil {
		return models.RateTable{}, fmt.Errorf("failed to load rate table: %w", err)
	}
	return rows.Table(), nil
}

func readCollection[T any](ctx context.Context, client *firestore.Client, name string, out *[]T) error {
	docs, err := client.Collection(name).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, d := range docs {
		var row T
		if err := d.DataTo(&row); err != nil {
			slog.Warn("Skipping malformed rate row.", "collection", name, "docId", d.Ref.ID, "error", err)
			continue
		}
		*out = append(*out, row)
	}
	return nil
}

// SeedRates writes every row, keyed by its natural key.
func (r *FirestoreRepository) SeedRates(ctx context.Context, rows models.RateRows) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	set := func(collection, id string, data interface{}) {
		eg.Go(func() error {
			if _, err := r.client.Collection(collection).Doc(url.PathEscape(id)).Set(gctx, data); err != nil {
				return fmt.Errorf("%s/%s: %w", collection, id, err)
			}
			return nil
		})
	}
	for _, l := range rows.Languages {
		set(models.LanguagesCollection, l.Language, l)
	}
	for _, t := range rows.Tiers {
		set(models.TiersCollection, t.Tier, t)
	}
	for _, c := range rows.CertificationTypes {
		set(models.CertificationTypesCollection, c.CertificationType, c)
	}
	for _, c := range rows.CertificationMap {
		set(models.CertificationMapCollection, c.IntendedUse, c)
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to seed rates: %w", err)
	}
	return nil
}

func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}

func setIfNotEmpty(fields map[string]interface{}, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
