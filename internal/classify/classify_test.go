package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

func TestParse(t *testing.T) {
	raw := "Here you go:\n```json\n{\"complexity\":\"easy\",\"doc_type\":\"passport\",\"primary_language\":\"es\",\"names\":[\"Luis Gomez\"],\"confidence\":0.82}\n```"
	got, err := Parse(raw, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ComplexityEasy, got.Complexity)
	assert.Equal(t, "passport", got.DocType)
	assert.Equal(t, []string{"es"}, got.Languages())
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{
		"no json here",
		`{"names": 5}`,
		`{"confidence": {"value": 1}}`,
		`"just a string"`,
		`{"pages": []}`,
	} {
		_, err := Parse(raw, 1)
		assert.ErrorIs(t, err, ErrMalformedOutput, raw)
	}
}

func TestParseModelOutput_EmptyAndRefusal(t *testing.T) {
	logCtx := slog.Default()

	_, err := parseModelOutput(logCtx, "  ", 1)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = parseModelOutput(logCtx, "I cannot provide a classification of personal documents.", 2)
	assert.ErrorIs(t, err, ErrRefused)

	_, err = parseModelOutput(logCtx, "The page looks like a letter.", 3)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, genai.Text(t))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestGeminiClassifier_ClassifyPage(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("```json\n{\"complexity\":\"medium\",", "\"doc_type\":\"bank_statement\",\"confidence\":0.7}\n```")}
	c := &GeminiClassifier{model: gen, modelName: "gemini-test"}

	got, err := c.ClassifyPage(context.Background(), PageInput{QuoteID: "CS00001", FileName: "a.pdf", PageNumber: 1, Text: "Account statement"})
	require.NoError(t, err)
	assert.Equal(t, "bank_statement", got.DocType)
	assert.Equal(t, "gemini-test", c.Model())

	require.Len(t, gen.parts, 1)
	assert.Contains(t, string(gen.parts[0].(genai.Text)), "Account statement")
}

func TestGeminiClassifier_Errors(t *testing.T) {
	c := &GeminiClassifier{model: &fakeGenerator{err: errors.New("quota")}, modelName: "gemini-test"}
	_, err := c.ClassifyPage(context.Background(), PageInput{PageNumber: 1, Text: "text"})
	assert.ErrorContains(t, err, "quota")

	c = &GeminiClassifier{model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, modelName: "gemini-test"}
	_, err = c.ClassifyPage(context.Background(), PageInput{PageNumber: 1, Text: "text"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiClassifier_BlankPageSkipsModel(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("should not be called")}
	c := &GeminiClassifier{model: gen, modelName: "gemini-test"}

	got, err := c.ClassifyPage(context.Background(), PageInput{PageNumber: 1, Text: " \n "})
	require.NoError(t, err)
	assert.Equal(t, models.ComplexityEasy, got.Complexity)
	assert.Equal(t, DocTypeOther, got.DocType)
	assert.Nil(t, gen.parts)
}

func TestOpenAIClassifier_ClassifyPage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "local-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant",
				"content": "<think>looks official</think>{\"complexity\":\"hard\",\"doc_type\":\"police_certificate\",\"primary_language\":\"de\",\"confidence\":0.95}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClassifier(srv.URL+"/v1/", "", "local-model")
	require.NoError(t, err)

	got, err := c.ClassifyPage(context.Background(), PageInput{QuoteID: "CS00002", FileName: "b.png", PageNumber: 1, Text: "Führungszeugnis"})
	require.NoError(t, err)
	assert.Equal(t, models.ComplexityHard, got.Complexity)
	assert.Equal(t, "police_certificate", got.DocType)
	assert.Equal(t, "de", got.PrimaryLanguage)

	assert.Equal(t, "local-model", gotBody["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, gotBody["response_format"])
}

func TestNewOpenAIClassifier_Validation(t *testing.T) {
	_, err := NewOpenAIClassifier("", "", "m")
	assert.Error(t, err)
	_, err = NewOpenAIClassifier("http://localhost", "", "")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	pages := []PageClassification{
		{DocType: "other", PrimaryLanguage: "en", Confidence: 0.2},
		{DocType: "marriage_certificate", PrimaryLanguage: "es", SecondaryLanguages: []string{"en"}, Names: []string{"A", "B"}, Confidence: 0.8},
		{DocType: "marriage_certificate", PrimaryLanguage: "es", Names: []string{"B", "C"}, Confidence: 0.8},
	}
	got := Summarize(pages)
	assert.Equal(t, "marriage_certificate", got.DocType)
	assert.Equal(t, "es", got.PrimaryLanguage)
	assert.Equal(t, []string{"en"}, got.SecondaryLanguages)
	assert.Equal(t, []string{"A", "B", "C"}, got.Names)
	assert.InDelta(t, 0.6, got.Confidence, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil)
	assert.Equal(t, DocTypeOther, got.DocType)
	assert.Empty(t, got.Names)
}

func TestSummarize_TieGoesToEarliestPage(t *testing.T) {
	got := Summarize([]PageClassification{
		{DocType: "diploma", PrimaryLanguage: "it"},
		{DocType: "transcript", PrimaryLanguage: "en"},
	})
	assert.Equal(t, "diploma", got.DocType)
	assert.Equal(t, "it", got.PrimaryLanguage)
}
