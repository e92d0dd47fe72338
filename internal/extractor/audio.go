package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dshills/filesift/pkg/types"
)

// TranscriptionAudioAnalyzer transcribes audio through an OpenAI-compatible
// transcription endpoint
type TranscriptionAudioAnalyzer struct {
	client openai.Client
}

// NewTranscriptionAudioAnalyzer creates an analyzer for the endpoint at baseURL
func NewTranscriptionAudioAnalyzer(baseURL, apiKey string) *TranscriptionAudioAnalyzer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &TranscriptionAudioAnalyzer{client: openai.NewClient(opts...)}
}

// AnalyzeAudio returns the transcript of path. The format is verified by
// content before anything is uploaded.
func (a *TranscriptionAudioAnalyzer) AnalyzeAudio(ctx context.Context, model, path string) (string, error) {
	ok, err := IsSupportedAudio(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: audio format of %s", types.ErrUnsupported, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	resp, err := a.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(model),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
