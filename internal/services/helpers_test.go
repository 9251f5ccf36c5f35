package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/classify"
	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/notify"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// fakeClock never sleeps: After fires immediately and advances Now.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits int
}

func newFakeClock() *fakeClock { return &fakeClock{now: testNow} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits++
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// fakeExtractor returns canned documents by file name and records what it read.
type fakeExtractor struct {
	mu   sync.Mutex
	docs map[string]*extract.Document
	errs map[string]error
	read map[string]string
}

func (f *fakeExtractor) ExtractReader(_ context.Context, fileName string, r io.Reader) (*extract.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.read == nil {
		f.read = make(map[string]string)
	}
	f.read[fileName] = string(data)
	if err := f.errs[fileName]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[fileName]
	if !ok {
		return nil, extract.ErrEmptyDocument
	}
	return doc, nil
}

// fakeClassifier labels every page with the same result unless a page
// number is set to fail.
type fakeClassifier struct {
	mu     sync.Mutex
	result classify.PageClassification
	fail   map[int]error
	calls  []classify.PageInput
}

func (f *fakeClassifier) ClassifyPage(_ context.Context, in classify.PageInput) (*classify.PageClassification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if err := f.fail[in.PageNumber]; err != nil {
		return nil, err
	}
	res := f.result
	return &res, nil
}

func (f *fakeClassifier) Model() string { return "fake-model" }

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func defaultClassification() classify.PageClassification {
	return classify.PageClassification{
		Complexity:         models.ComplexityEasy,
		DocType:            "passport",
		PrimaryLanguage:    "fr",
		SecondaryLanguages: []string{"en"},
		Names:              []string{"Jean Dupont"},
		Confidence:         0.9,
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []notify.QuoteEmail
	err  error
}

func (s *fakeSender) SendQuote(_ context.Context, q notify.QuoteEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, q)
	return nil
}

type testEnv struct {
	repo *store.SQLiteRepository
	dir  *blob.Dir
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	repo, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	dir, err := blob.NewDir(t.TempDir())
	require.NoError(t, err)
	return testEnv{repo: repo, dir: dir}
}

// addFile stores content as an upload and registers a pending row for it.
func (e testEnv) addFile(t *testing.T, quoteID, fileName, content string) {
	t.Helper()
	ctx := context.Background()
	path := blob.UploadPath(quoteID, fileName)
	require.NoError(t, e.dir.Upload(ctx, path, []byte(content), ""))
	require.NoError(t, e.repo.UpsertFile(ctx, models.QuoteFile{
		QuoteID:     quoteID,
		FileName:    fileName,
		StoragePath: path,
		Status:      models.StatusPending,
		CreatedAt:   testNow,
	}))
}

func (e testEnv) file(t *testing.T, quoteID, fileName string) *models.QuoteFile {
	t.Helper()
	row, err := e.repo.GetFile(context.Background(), quoteID, fileName)
	require.NoError(t, err)
	return row
}

func pagesDoc(fileName string, words ...int) *extract.Document {
	doc := &extract.Document{FileName: fileName, Kind: extract.KindPDF, Engine: "pdfcpu"}
	for i, w := range words {
		doc.Pages = append(doc.Pages, extract.Page{
			Number:    i + 1,
			Text:      "page text",
			WordCount: w,
			Languages: []string{"fr"},
		})
	}
	return doc
}

var errBoom = errors.New("boom")
