package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClassifier classifies pages with any OpenAI-compatible chat endpoint.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIClassifier creates a classifier for baseURL. The API key may be
// empty for local endpoints.
func NewOpenAIClassifier(baseURL, apiKey, model string) (*OpenAIClassifier, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

func (c *OpenAIClassifier) Model() string { return c.model }

func (c *OpenAIClassifier) ClassifyPage(ctx context.Context, in PageInput) (*PageClassification, error) {
	if strings.TrimSpace(in.Text) == "" {
		return blankPage(), nil
	}
	logCtx := slog.With("quoteId", in.QuoteID, "fileName", in.FileName, "page", in.PageNumber, "model", c.model)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: UserPrompt(in.Text)},
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		logCtx.Error("Chat completion request failed.", "error", err)
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return parseModelOutput(logCtx, resp.Choices[0].Message.Content, in.PageNumber)
}
