package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ImagePrompt asks the vision model for a description suited to search
const ImagePrompt = "Describe this image in detail so it can be found by a text search. " +
	"Include the main subjects, the setting, any visible text, and notable colors or objects. " +
	"Answer in plain text without markdown."

// ChatImageAnalyzer describes images with an OpenAI-compatible vision chat model
type ChatImageAnalyzer struct {
	client llms.Model
}

// NewChatImageAnalyzer creates an analyzer for the chat endpoint at baseURL
func NewChatImageAnalyzer(baseURL, apiKey, defaultModel string) (*ChatImageAnalyzer, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if defaultModel != "" {
		opts = append(opts, openai.WithModel(defaultModel))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &ChatImageAnalyzer{client: client}, nil
}

// newChatImageAnalyzerWithModel wraps an existing llms.Model
func newChatImageAnalyzerWithModel(m llms.Model) *ChatImageAnalyzer {
	return &ChatImageAnalyzer{client: m}
}

// AnalyzeImage sends the image as a data URI together with ImagePrompt
func (a *ChatImageAnalyzer) AnalyzeImage(ctx context.Context, model, path string) (string, error) {
	mime, err := checkImage(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(ImagePrompt),
				llms.ImageURLPart(dataURI),
			},
		},
	}

	var opts []llms.CallOption
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	resp, err := a.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("image analysis failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
