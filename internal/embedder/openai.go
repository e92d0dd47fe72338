package embedder

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultOpenAIModel is used when no remote model is configured
	DefaultOpenAIModel = "text-embedding-3-small"

	openAIMaxTokens = 8191
)

// OpenAISession embeds through an OpenAI-compatible embeddings endpoint,
// asking for Dimension-wide vectors
type OpenAISession struct {
	client openai.Client
	model  string
	retry  RetryConfig
}

// NewOpenAISession creates a remote session. baseURL may be empty for the
// default OpenAI endpoint.
func NewOpenAISession(apiKey, baseURL, model string) (*OpenAISession, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrSessionUnavailable)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAISession{
		client: openai.NewClient(opts...),
		model:  model,
		retry:  DefaultRetryConfig(),
	}, nil
}

// Run returns a single vector with shape [Dimension]
func (s *OpenAISession) Run(ctx context.Context, in Inputs) (Tensor, error) {
	if in.Text == "" {
		return Tensor{}, ErrEmptyText
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(in.Text),
		},
		Dimensions: openai.Int(Dimension),
	}

	vector, attempts, err := retryWithBackoff(ctx, s.retry, func() ([]float32, error) {
		resp, err := s.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		out := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			out[i] = float32(v)
		}
		return out, nil
	})
	if err != nil {
		return Tensor{}, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, attempts, err)
	}

	return Tensor{Shape: []int{len(vector)}, Data: vector}, nil
}

// MaxTokens implements Session
func (s *OpenAISession) MaxTokens() int {
	return openAIMaxTokens
}

// Close implements Session
func (s *OpenAISession) Close() error {
	return nil
}
