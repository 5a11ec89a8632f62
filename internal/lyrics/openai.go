package lyrics

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dodoapp/lullaby-backend/internal/models"
)

const systemPrompt = "You write short, gentle lullabies for babies and toddlers. " +
	"Answer with the lyrics only: no title, no commentary, at most 12 short lines."

type OpenAIWriter struct {
	client *openai.Client
	model  string
}

func NewOpenAIWriter(apiKey, baseURL, model string) *OpenAIWriter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIWriter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (w *OpenAIWriter) Write(ctx context.Context, req Request) (string, error) {
	user := fmt.Sprintf(
		"Write a %s lullaby for a child named %s. Language: %s. It will be sung for about %.0f minutes.",
		models.StyleLabel(req.Style), nameOrDefault(req.ChildName), languageOrDefault(req.LanguageCode), req.DurationMinutes)

	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.8,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func nameOrDefault(n string) string {
	if strings.TrimSpace(n) == "" {
		return "the child"
	}
	return n
}

func languageOrDefault(code string) string {
	if code == "" {
		return "en"
	}
	return code
}
