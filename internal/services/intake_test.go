package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	reqs []models.AnalyzeRequest
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req models.AnalyzeRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.reqs = append(d.reqs, req)
	return nil
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestIntake_Process_RegistersUpload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	disp := &fakeDispatcher{}
	in := NewIntake(env.repo, env.dir, disp, true)

	name := blob.UploadPath("CS00001", "birth certificate.pdf")
	require.NoError(t, env.dir.Upload(ctx, name, []byte("%PDF-1.7"), "application/pdf"))

	err := in.Process(ctx, GCSEvent{Bucket: "uploads", Name: name, ContentType: "application/pdf", Size: "8"})
	require.NoError(t, err)

	row := env.file(t, "CS00001", "birth certificate.pdf")
	assert.Equal(t, models.StatusPending, row.Status)
	assert.Equal(t, name, row.StoragePath)
	assert.Equal(t, int64(8), row.SizeBytes)
	assert.Equal(t, sha("%PDF-1.7"), row.SHA256)
	assert.Equal(t, "application/pdf", row.ContentType)

	require.Len(t, disp.reqs, 1)
	assert.Equal(t, models.AnalyzeRequest{QuoteID: "CS00001", FileNames: []string{"birth certificate.pdf"}}, disp.reqs[0])
}

func TestIntake_Process_Ignores(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	disp := &fakeDispatcher{}
	in := NewIntake(env.repo, env.dir, disp, true)

	for _, name := range []string{"tmp/CS00001/a.pdf", "orders/CS00001/", "orders/CS00001/notes.txt", "orders/only-quote"} {
		require.NoError(t, in.Process(ctx, GCSEvent{Bucket: "uploads", Name: name}), name)
	}
	rows, err := env.repo.ListFiles(ctx, "CS00001")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, disp.reqs)
}

func TestIntake_Upload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	in := NewIntake(env.repo, env.dir, nil, true)

	row, err := in.Upload(ctx, "CS00002", "diploma.pdf", []byte("diploma"), "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", row.ContentType)
	assert.Equal(t, sha("diploma"), row.SHA256)
	assert.Equal(t, int64(7), row.SizeBytes)

	rc, err := env.dir.Open(ctx, blob.UploadPath("CS00002", "diploma.pdf"))
	require.NoError(t, err)
	_ = rc.Close()

	_, err = in.Upload(ctx, "", "diploma.pdf", []byte("x"), "")
	assert.ErrorIs(t, err, ErrMissingQuoteID)
}

func TestIntake_Upload_KeepsAnalysisOfAnalyzedFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	disp := &fakeDispatcher{}
	in := NewIntake(env.repo, env.dir, disp, true)

	_, err := in.Upload(ctx, "CS00003", "a.pdf", []byte("v1"), "")
	require.NoError(t, err)
	claimed, err := env.repo.ClaimFile(ctx, "CS00003", "a.pdf", store.ClaimOptions{Now: testNow, RunID: "r"})
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, env.repo.CompleteFile(ctx, "CS00003", "a.pdf", models.AnalysisResult{
		RunID:          "r",
		Message:        "done",
		CompletedAt:    testNow,
		PageCount:      1,
		TotalWords:     10,
		PageWordCounts: map[string]int{"1": 10},
	}))

	row, err := in.Upload(ctx, "CS00003", "a.pdf", []byte("v2"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, row.Status)
	assert.Equal(t, 10, row.TotalWords)
	assert.Equal(t, sha("v2"), row.SHA256)
	assert.Len(t, disp.reqs, 1, "an analyzed file is not re-dispatched")
}

func TestIntake_Upload_DispatchError(t *testing.T) {
	env := newTestEnv(t)
	in := NewIntake(env.repo, env.dir, &fakeDispatcher{err: ErrQueueClosed}, true)

	_, err := in.Upload(context.Background(), "CS00004", "a.pdf", []byte("x"), "")
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Equal(t, models.StatusPending, env.file(t, "CS00004", "a.pdf").Status, "the row is kept for a later run")
}

func TestIntake_Sync(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	disp := &fakeDispatcher{}
	in := NewIntake(env.repo, env.dir, disp, false)

	env.addFile(t, "CS00005", "known.pdf", "known")
	for name, data := range map[string]string{
		"new.docx":  "docx",
		"notes.txt": "txt",
	} {
		require.NoError(t, env.dir.Upload(ctx, blob.UploadPath("CS00005", name), []byte(data), ""))
	}
	require.NoError(t, env.dir.Upload(ctx, blob.UploadPath("CS000051", "other.pdf"), []byte("x"), ""))

	registered, err := in.Sync(ctx, "CS00005")
	require.NoError(t, err)
	assert.Equal(t, []string{"new.docx"}, registered)
	assert.Equal(t, sha("docx"), env.file(t, "CS00005", "new.docx").SHA256)
	assert.Empty(t, disp.reqs, "auto analysis is off")

	_, err = env.repo.GetFile(ctx, "CS000051", "other.pdf")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	registered, err = in.Sync(ctx, "CS00005")
	require.NoError(t, err)
	assert.Empty(t, registered)
}

func TestIntake_FileLink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addFile(t, "CS00001", "passport.pdf", "%PDF-1.7")
	in := NewIntake(env.repo, env.dir, nil, false)
	in.clock = newFakeClock()

	link, err := in.FileLink(ctx, "CS00001", "passport.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", link.FileName)
	assert.True(t, strings.HasPrefix(link.URL, "file://"), link.URL)
	assert.True(t, strings.HasSuffix(link.URL, "/orders/CS00001/passport.pdf"), link.URL)
	assert.Equal(t, testNow.Add(DefaultLinkTTL), link.ExpiresAt)

	link, err = in.FileLink(ctx, "CS00001", "passport.pdf", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), link.ExpiresAt)

	_, err = in.FileLink(ctx, "CS00001", "ghost.pdf", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
