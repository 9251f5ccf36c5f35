package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

func TestExtractionJobs_StartAndStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addFile(t, "CS00001", "contract.pdf", "%PDF")

	ex := &fakeExtractor{docs: map[string]*extract.Document{"contract.pdf": pagesDoc("contract.pdf", 100, 200, 300, 400)}}
	jobs := NewExtractionJobs(env.repo, env.dir, env.dir, ex)

	status, err := jobs.Status(ctx, "CS00001", "contract.pdf")
	assert.ErrorIs(t, err, ErrExtractionPending)
	assert.True(t, status.Pending)

	require.NoError(t, jobs.Start(ctx, "CS00001", "contract.pdf"))
	jobs.Wait()

	status, err = jobs.Status(ctx, "CS00001", "contract.pdf")
	require.NoError(t, err)
	assert.True(t, status.OK)
	assert.Equal(t, 4, status.Pages)
	assert.Equal(t, 1000, status.TotalWords)
	assert.Equal(t, []string{"fr"}, status.Languages)

	res, err := jobs.Result(ctx, "CS00001", "contract.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdfcpu", res.Engine)
	assert.Len(t, res.Pages, 4)

	require.NoError(t, jobs.Start(ctx, "CS00001", "contract.pdf"), "a stored result makes Start a no-op")
	jobs.Wait()
}

func TestExtractionJobs_Start_UnknownFile(t *testing.T) {
	env := newTestEnv(t)
	jobs := NewExtractionJobs(env.repo, env.dir, env.dir, &fakeExtractor{})

	assert.ErrorIs(t, jobs.Start(context.Background(), "CS00001", "missing.pdf"), store.ErrNotFound)
	assert.ErrorIs(t, jobs.Start(context.Background(), "", ""), ErrMissingQuoteID)
}

func TestExtractionJobs_FailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addFile(t, "CS00002", "scan.png", "png")

	ex := &fakeExtractor{errs: map[string]error{"scan.png": extract.ErrOCRUnavailable}}
	jobs := NewExtractionJobs(env.repo, env.dir, env.dir, ex)

	require.NoError(t, jobs.Start(ctx, "CS00002", "scan.png"))
	jobs.Wait()

	status, err := jobs.Status(ctx, "CS00002", "scan.png")
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.False(t, status.OK)
	assert.Contains(t, status.Error, extract.ErrOCRUnavailable.Error())

	ex.mu.Lock()
	ex.errs = nil
	ex.docs = map[string]*extract.Document{"scan.png": pagesDoc("scan.png", 42)}
	ex.mu.Unlock()

	require.NoError(t, jobs.Start(ctx, "CS00002", "scan.png"))
	jobs.Wait()

	status, err = jobs.Status(ctx, "CS00002", "scan.png")
	require.NoError(t, err)
	assert.Equal(t, 42, status.TotalWords)
}

func TestFileClassifier_Classify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addFile(t, "CS00003", "passport.pdf", "%PDF")

	ex := &fakeExtractor{docs: map[string]*extract.Document{"passport.pdf": pagesDoc("passport.pdf", 10, 20, 30, 40, 50)}}
	jobs := NewExtractionJobs(env.repo, env.dir, env.dir, ex)
	cl := &fakeClassifier{result: defaultClassification()}
	fc := NewFileClassifier(jobs, cl)

	_, err := fc.Classify(ctx, "CS00003", "passport.pdf")
	assert.ErrorIs(t, err, ErrExtractionPending)

	_, err = jobs.Run(ctx, "CS00003", "passport.pdf")
	require.NoError(t, err)

	resp, err := fc.Classify(ctx, "CS00003", "passport.pdf")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "passport", resp.DocType)
	assert.Equal(t, "fr", resp.PrimaryLanguage)
	assert.Equal(t, []string{"en"}, resp.SecondaryLanguages)
	assert.Equal(t, []string{"Jean Dupont"}, resp.Names)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Equal(t, "fake-model", resp.Model)

	require.Equal(t, MaxClassifyPages, cl.callCount())
	assert.Equal(t, 3, cl.calls[2].PageNumber)
}

func TestFileClassifier_ClassifierError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addFile(t, "CS00004", "a.pdf", "%PDF")

	ex := &fakeExtractor{docs: map[string]*extract.Document{"a.pdf": pagesDoc("a.pdf", 10)}}
	jobs := NewExtractionJobs(env.repo, env.dir, env.dir, ex)
	_, err := jobs.Run(ctx, "CS00004", "a.pdf")
	require.NoError(t, err)

	fc := NewFileClassifier(jobs, &fakeClassifier{fail: map[int]error{1: errBoom}})
	_, err = fc.Classify(ctx, "CS00004", "a.pdf")
	assert.ErrorIs(t, err, errBoom)
}
