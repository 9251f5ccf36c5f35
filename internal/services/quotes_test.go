package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

func seedTestRates(t *testing.T, env testEnv) {
	t.Helper()
	require.NoError(t, env.repo.SeedRates(context.Background(), models.RateRows{
		Languages: []models.LanguageRow{
			{Language: "French", Tier: "A"},
			{Language: "English", Tier: "A"},
			{Language: "Tigrinya", Tier: "C"},
		},
		Tiers: []models.TierRow{{Tier: "A", Multiplier: 1}, {Tier: "C", Multiplier: 1.5}},
		CertificationTypes: []models.CertificationTypeRow{
			{CertificationType: "certified", Price: 50},
		},
		CertificationMap: []models.CertificationMapRow{
			{IntendedUse: "Immigration", CertificationType: "certified"},
		},
	}))
}

func completeRequest(quoteID string, files ...string) models.SaveQuoteRequest {
	req := models.SaveQuoteRequest{
		QuoteID:        quoteID,
		Name:           "Jean Dupont",
		Email:          "jean@example.com",
		IntendedUse:    "Immigration",
		SourceLanguage: "French",
		TargetLanguage: "English",
	}
	for _, f := range files {
		req.Files = append(req.Files, models.FileMeta{FileName: f})
	}
	return req
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"jean@example.com", true},
		{"a.b+c@sub.example.org", true},
		{"", false},
		{"jean@example", false},
		{"jean example@x.com", false},
		{"@example.com", false},
		{"jean@@example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidEmail(tt.in), tt.in)
	}
}

func TestQuotes_Save(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := NewQuotes(env.repo, nil)

	resp, err := q.Save(ctx, models.SaveQuoteRequest{Name: "Jean Dupont", Files: []models.FileMeta{{FileName: "a.pdf", SizeBytes: 12}, {}}})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "CS00001", resp.QuoteID)

	_, err = q.Save(ctx, models.SaveQuoteRequest{QuoteID: "CS00001", Email: "jean@example.com"})
	require.NoError(t, err)

	sub, err := env.repo.GetSubmission(ctx, "CS00001")
	require.NoError(t, err)
	assert.Equal(t, "Jean Dupont", sub.Name, "empty fields leave stored values alone")
	assert.Equal(t, "jean@example.com", sub.Email)

	rows, err := env.repo.ListFiles(ctx, "CS00001")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusPending, rows[0].Status)
	assert.Equal(t, blob.UploadPath("CS00001", "a.pdf"), rows[0].StoragePath)
	assert.Equal(t, int64(12), rows[0].SizeBytes)
}

func TestQuotes_PriceAndSend_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedTestRates(t, env)
	sender := &fakeSender{}
	q := NewQuotes(env.repo, sender)

	_, err := q.Save(ctx, completeRequest("CS00010", "passport.pdf", "broken.pdf"))
	require.NoError(t, err)
	for _, f := range []string{"passport.pdf", "broken.pdf"} {
		require.NoError(t, env.dir.Upload(ctx, blob.UploadPath("CS00010", f), []byte(f), ""))
	}

	ex := &fakeExtractor{
		docs: map[string]*extract.Document{"passport.pdf": pagesDoc("passport.pdf", 240, 180)},
		errs: map[string]error{"broken.pdf": extract.ErrUnsupportedType},
	}
	a := newTestAnalyzer(env, ex, &fakeClassifier{result: defaultClassification()})
	_, err = a.Process(ctx, models.AnalyzeRequest{QuoteID: "CS00010"})
	require.NoError(t, err)

	quote, err := q.Price(ctx, "CS00010")
	require.NoError(t, err)
	assert.Equal(t, "certified", quote.CertificationType)
	assert.True(t, quote.Rate.Equal(decimal.NewFromInt(50)), "rate=%s", quote.Rate)
	assert.Equal(t, 2, quote.BillablePages)
	assert.True(t, quote.Total.Equal(decimal.NewFromInt(100)), "total=%s", quote.Total)

	sent, err := q.Send(ctx, "CS00010")
	require.NoError(t, err)
	assert.True(t, sent.Total.Equal(quote.Total))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "jean@example.com", msg.Email)
	assert.Equal(t, "CS00010", msg.QuoteID)
	assert.Equal(t, "100.00", msg.Total.StringFixed(2))
	require.Len(t, msg.Files, 2)
	byName := map[string]int{}
	for _, f := range msg.Files {
		byName[f.Name] = f.Pages
	}
	assert.Equal(t, map[string]int{"passport.pdf": 2, "broken.pdf": 0}, byName, "a failed file bills nothing")
}

func TestQuotes_Price_HarderLanguageWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedTestRates(t, env)
	q := NewQuotes(env.repo, nil)

	req := completeRequest("CS00011")
	req.TargetLanguage = "Tigrinya"
	_, err := q.Save(ctx, req)
	require.NoError(t, err)

	quote, err := q.Price(ctx, "CS00011")
	require.NoError(t, err)
	assert.Equal(t, "75", quote.Rate.String())
	assert.True(t, quote.Total.IsZero(), "no analyzed files yet")
}

func TestQuotes_Price_Errors(t *testing.T) {
	env := newTestEnv(t)
	q := NewQuotes(env.repo, nil)

	_, err := q.Price(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingQuoteID)
	_, err = q.Price(context.Background(), "CS09999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQuotes_Send_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedTestRates(t, env)

	_, err := NewQuotes(env.repo, nil).Send(ctx, "CS00012")
	assert.ErrorIs(t, err, ErrEmailNotConfigured)

	sender := &fakeSender{}
	q := NewQuotes(env.repo, sender)

	req := completeRequest("CS00012")
	req.Email = "not-an-email"
	_, err = q.Save(ctx, req)
	require.NoError(t, err)

	_, err = q.Send(ctx, "CS00012")
	require.ErrorIs(t, err, ErrIncompleteQuote)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "files")
	assert.Empty(t, sender.sent)
}

func TestQuotes_Send_SenderError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedTestRates(t, env)
	q := NewQuotes(env.repo, &fakeSender{err: errBoom})

	_, err := q.Save(ctx, completeRequest("CS00013", "a.pdf"))
	require.NoError(t, err)

	_, err = q.Send(ctx, "CS00013")
	assert.ErrorIs(t, err, errBoom)
}
