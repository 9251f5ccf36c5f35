package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/translationquoteflow/internal/gcp"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier classifies pages with a Vertex AI Gemini model.
type GeminiClassifier struct {
	model     contentGenerator
	modelName string
}

// NewGeminiClassifier uses the classifier model of an existing Vertex client.
func NewGeminiClassifier(vc *gcp.VertexClient) *GeminiClassifier {
	return &GeminiClassifier{model: vc.ClassifierModel, modelName: vc.ModelName}
}

func (c *GeminiClassifier) Model() string { return c.modelName }

// ClassifyPage sends one page of text to Gemini.
func (c *GeminiClassifier) ClassifyPage(ctx context.Context, in PageInput) (*PageClassification, error) {
	if strings.TrimSpace(in.Text) == "" {
		return blankPage(), nil
	}
	logCtx := slog.With("quoteId", in.QuoteID, "fileName", in.FileName, "page", in.PageNumber, "model", c.modelName)

	resp, err := c.model.GenerateContent(ctx, genai.Text(UserPrompt(in.Text)))
	if err != nil {
		logCtx.Error("Gemini request failed.", "error", err)
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return parseModelOutput(logCtx, responseText(logCtx, resp), in.PageNumber)
}

// responseText concatenates the text parts of the first candidate and strips
// a surrounding code fence.
func responseText(logCtx *slog.Logger, resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	textParts := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
			textParts++
		}
	}
	if textParts > 1 {
		logCtx.Warn("Gemini response contained several text parts; they have been concatenated.", "parts", textParts)
	}

	content := strings.TrimSpace(sb.String())
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
