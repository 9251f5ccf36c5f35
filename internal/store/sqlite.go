package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quote_submissions (
	quote_id        TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	intended_use    TEXT NOT NULL DEFAULT '',
	source_language TEXT NOT NULL DEFAULT '',
	target_language TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quote_files (
	quote_id         TEXT NOT NULL,
	file_name        TEXT NOT NULL,
	storage_path     TEXT NOT NULL DEFAULT '',
	file_url         TEXT NOT NULL DEFAULT '',
	content_type     TEXT NOT NULL DEFAULT '',
	size_bytes       INTEGER NOT NULL DEFAULT 0,
	sha256           TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	status_message   TEXT NOT NULL DEFAULT '',
	model            TEXT NOT NULL DEFAULT '',
	run_id           TEXT NOT NULL DEFAULT '',
	page_count       INTEGER NOT NULL DEFAULT 0,
	total_words      INTEGER NOT NULL DEFAULT 0,
	page_word_counts TEXT NOT NULL DEFAULT '{}',
	page_complexity  TEXT NOT NULL DEFAULT '{}',
	page_doc_types   TEXT NOT NULL DEFAULT '{}',
	page_languages   TEXT NOT NULL DEFAULT '{}',
	page_names       TEXT NOT NULL DEFAULT '{}',
	languages_all    TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL,
	started_at       TEXT,
	completed_at     TEXT,
	PRIMARY KEY (quote_id, file_name)
);

CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS "Languages" (
	language TEXT PRIMARY KEY,
	tier     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS "Tiers" (
	tier       TEXT PRIMARY KEY,
	multiplier REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS "CertificationTypes" (
	certification_type TEXT PRIMARY KEY,
	price              REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS "CertificationMap" (
	intended_use       TEXT PRIMARY KEY,
	certification_type TEXT NOT NULL
);
`

const fileColumns = `quote_id, file_name, storage_path, file_url, content_type, size_bytes, sha256,
	status, status_message, model, run_id, page_count, total_words,
	page_word_counts, page_complexity, page_doc_types, page_languages, page_names, languages_all,
	created_at, started_at, completed_at`

// SQLiteRepository stores quotes in a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, applies pragmas and
// the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) UpsertSubmission(ctx context.Context, sub models.QuoteSubmission) error {
	now := formatTime(time.Now().UTC())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quote_submissions
			(quote_id, name, email, phone, intended_use, source_language, target_language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(quote_id) DO UPDATE SET
			name            = COALESCE(NULLIF(excluded.name, ''), name),
			email           = COALESCE(NULLIF(excluded.email, ''), email),
			phone           = COALESCE(NULLIF(excluded.phone, ''), phone),
			intended_use    = COALESCE(NULLIF(excluded.intended_use, ''), intended_use),
			source_language = COALESCE(NULLIF(excluded.source_language, ''), source_language),
			target_language = COALESCE(NULLIF(excluded.target_language, ''), target_language),
			updated_at      = excluded.updated_at`,
		sub.QuoteID, sub.Name, sub.Email, sub.Phone, sub.IntendedUse, sub.SourceLanguage, sub.TargetLanguage, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert submission %s: %w", sub.QuoteID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetSubmission(ctx context.Context, quoteID string) (*models.QuoteSubmission, error) {
	var sub models.QuoteSubmission
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT quote_id, name, email, phone, intended_use, source_language, target_language, created_at, updated_at
		FROM quote_submissions WHERE quote_id = ?`, quoteID).
		Scan(&sub.QuoteID, &sub.Name, &sub.Email, &sub.Phone, &sub.IntendedUse,
			&sub.SourceLanguage, &sub.TargetLanguage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", quoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", quoteID, err)
	}
	sub.CreatedAt = parseTime(createdAt)
	sub.UpdatedAt = parseTime(updatedAt)
	return &sub, nil
}

func (r *SQLiteRepository) UpsertFile(ctx context.Context, f models.QuoteFile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quote_files
			(quote_id, file_name, storage_path, file_url, content_type, size_bytes, sha256, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(quote_id, file_name) DO UPDATE SET
			storage_path = COALESCE(NULLIF(excluded.storage_path, ''), storage_path),
			file_url     = COALESCE(NULLIF(excluded.file_url, ''), file_url),
			content_type = COALESCE(NULLIF(excluded.content_type, ''), content_type),
			size_bytes   = CASE WHEN excluded.size_bytes > 0 THEN excluded.size_bytes ELSE size_bytes END,
			sha256       = COALESCE(NULLIF(excluded.sha256, ''), sha256)`,
		f.QuoteID, f.FileName, f.StoragePath, f.FileURL, f.ContentType, f.SizeBytes, f.SHA256,
		string(models.StatusPending), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to upsert file %s/%s: %w", f.QuoteID, f.FileName, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.QuoteFile, error) {
	var f models.QuoteFile
	var status, createdAt string
	var wordCounts, complexity, docTypes, languages, names, languagesAll string
	var startedAt, completedAt sql.NullString
	err := row.Scan(&f.QuoteID, &f.FileName, &f.StoragePath, &f.FileURL, &f.ContentType, &f.SizeBytes, &f.SHA256,
		&status, &f.StatusMessage, &f.Model, &f.RunID, &f.PageCount, &f.TotalWords,
		&wordCounts, &complexity, &docTypes, &languages, &names, &languagesAll,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	f.Status = models.FileStatus(status)
	f.CreatedAt = parseTime(createdAt)
	f.StartedAt = parseNullTime(startedAt)
	f.CompletedAt = parseNullTime(completedAt)
	for _, c := range []struct {
		raw string
		dst any
	}{
		{wordCounts, &f.PageWordCounts},
		{complexity, &f.PageComplexity},
		{docTypes, &f.PageDocTypes},
		{languages, &f.PageLanguages},
		{names, &f.PageNames},
		{languagesAll, &f.LanguagesAll},
	} {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return nil, fmt.Errorf("failed to decode column: %w", err)
		}
	}
	return &f, nil
}

func (r *SQLiteRepository) GetFile(ctx context.Context, quoteID, fileName string) (*models.QuoteFile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM quote_files WHERE quote_id = ? AND file_name = ?`,
		quoteID, fileName)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s/%s: %w", quoteID, fileName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s/%s: %w", quoteID, fileName, err)
	}
	return f, nil
}

func (r *SQLiteRepository) ListFiles(ctx context.Context, quoteID string) ([]models.QuoteFile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM quote_files WHERE quote_id = ? ORDER BY file_name`,
		quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files for %s: %w", quoteID, err)
	}
	defer rows.Close()

	var files []models.QuoteFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (r *SQLiteRepository) ClaimFile(ctx context.Context, quoteID, fileName string, opts ClaimOptions) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status string
	var startedAt sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT status, started_at FROM quote_files WHERE quote_id = ? AND file_name = ?`,
		quoteID, fileName).Scan(&status, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("file %s/%s: %w", quoteID, fileName, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read file %s/%s: %w", quoteID, fileName, err)
	}

	current := models.QuoteFile{Status: models.FileStatus(status), StartedAt: parseNullTime(startedAt)}
	if !Claimable(&current, opts) {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE quote_files
		SET status = ?, status_message = ?, started_at = ?, completed_at = NULL, run_id = ?
		WHERE quote_id = ? AND file_name = ? AND status = ?`,
		string(models.StatusProcessing), claimMessage, formatTime(opts.Now), opts.RunID, quoteID, fileName, status)
	if err != nil {
		return false, fmt.Errorf("failed to claim file %s/%s: %w", quoteID, fileName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit claim: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) CompleteFile(ctx context.Context, quoteID, fileName string, res models.AnalysisResult) error {
	cols := make([]string, 0, 6)
	for _, v := range []any{res.PageWordCounts, res.PageComplexity, res.PageDocTypes, res.PageLanguages, res.PageNames, res.LanguagesAll} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode analysis result: %w", err)
		}
		cols = append(cols, string(b))
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE quote_files SET
			status = ?, status_message = ?, model = ?, run_id = ?, completed_at = ?,
			page_count = ?, total_words = ?,
			page_word_counts = ?, page_complexity = ?, page_doc_types = ?, page_languages = ?, page_names = ?,
			languages_all = ?
		WHERE quote_id = ? AND file_name = ?`,
		string(models.StatusSuccess), models.TruncateMessage(res.Message), res.Model, res.RunID, formatTime(res.CompletedAt),
		res.PageCount, res.TotalWords,
		cols[0], cols[1], cols[2], cols[3], cols[4], cols[5],
		quoteID, fileName)
	if err != nil {
		return fmt.Errorf("failed to complete file %s/%s: %w", quoteID, fileName, err)
	}
	return expectOneRow(result, quoteID, fileName)
}

func (r *SQLiteRepository) FailFile(ctx context.Context, quoteID, fileName, message string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE quote_files SET status = ?, status_message = ?, completed_at = ?
		WHERE quote_id = ? AND file_name = ?`,
		string(models.StatusError), models.TruncateMessage(message), formatTime(at), quoteID, fileName)
	if err != nil {
		return fmt.Errorf("failed to fail file %s/%s: %w", quoteID, fileName, err)
	}
	return expectOneRow(result, quoteID, fileName)
}

func expectOneRow(result sql.Result, quoteID, fileName string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file %s/%s: %w", quoteID, fileName, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) NextQuoteID(ctx context.Context) (string, error) {
	var next int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, quoteCounterID).Scan(&next)
	if err != nil {
		return FallbackQuoteID, fmt.Errorf("failed to allocate quote id: %w", err)
	}
	return FormatQuoteID(next), nil
}

func (r *SQLiteRepository) LoadRates(ctx context.Context) (models.RateTable, error) {
	var rows models.RateRows
	if err := queryRows(ctx, r.db, `SELECT language, tier FROM "Languages"`, func(s rowScanner) error {
		var l models.LanguageRow
		err := s.Scan(&l.Language, &l.Tier)
		rows.Languages = append(rows.Languages, l)
		return err
	}); err != nil {
		return models.RateTable{}, err
	}
	if err := queryRows(ctx, r.db, `SELECT tier, multiplier FROM "Tiers"`, func(s rowScanner) error {
		var t models.TierRow
		err := s.Scan(&t.Tier, &t.Multiplier)
		rows.Tiers = append(rows.Tiers, t)
		return err
	}); err != nil {
		return models.RateTable{}, err
	}
	if err := queryRows(ctx, r.db, `SELECT certification_type, price FROM "CertificationTypes"`, func(s rowScanner) error {
		var c models.CertificationTypeRow
		err := s.Scan(&c.CertificationType, &c.Price)
		rows.CertificationTypes = append(rows.CertificationTypes, c)
		return err
	}); err != nil {
		return models.RateTable{}, err
	}
	if err := queryRows(ctx, r.db, `SELECT intended_use, certification_type FROM "CertificationMap"`, func(s rowScanner) error {
		var c models.CertificationMapRow
		err := s.Scan(&c.IntendedUse, &c.CertificationType)
		rows.CertificationMap = append(rows.CertificationMap, c)
		return err
	}); err != nil {
		return models.RateTable{}, err
	}
	return rows.Table(), nil
}

func queryRows(ctx context.Context, db *sql.DB, query string, scan func(rowScanner) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load rate table: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan rate row: %w", err)
		}
	}
	return rows.Err()
}

func (r *SQLiteRepository) SeedRates(ctx context.Context, rows models.RateRows) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to seed rates: %w", err)
		}
		return nil
	}
	for _, l := range rows.Languages {
		if err := exec(`INSERT OR REPLACE INTO "Languages" (language, tier) VALUES (?, ?)`, l.Language, l.Tier); err != nil {
			return err
		}
	}
	for _, t := range rows.Tiers {
		if err := exec(`INSERT OR REPLACE INTO "Tiers" (tier, multiplier) VALUES (?, ?)`, t.Tier, t.Multiplier); err != nil {
			return err
		}
	}
	for _, c := range rows.CertificationTypes {
		if err := exec(`INSERT OR REPLACE INTO "CertificationTypes" (certification_type, price) VALUES (?, ?)`, c.CertificationType, c.Price); err != nil {
			return err
		}
	}
	for _, c := range rows.CertificationMap {
		if err := exec(`INSERT OR REPLACE INTO "CertificationMap" (intended_use, certification_type) VALUES (?, ?)`, c.IntendedUse, c.CertificationType); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
