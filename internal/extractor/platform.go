package extractor

import (
	"context"
	"fmt"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/pkg/types"
)

// defaultBaseURLs are the OpenAI-compatible endpoints of known platforms
var defaultBaseURLs = map[string]string{
	config.PlatformOpenAI:      "https://api.openai.com/v1",
	config.PlatformSiliconFlow: "https://api.siliconflow.cn/v1",
	config.PlatformDashScope:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	config.PlatformDeepSeek:    "https://api.deepseek.com/v1",
}

// Analyzers bundles the media analyzers of one platform with the models to
// call them with
type Analyzers struct {
	Platform    string
	Image       ImageAnalyzer
	Audio       AudioAnalyzer
	VisionModel string
	AudioModel  string
}

// SupportsImage reports whether the platform can describe images
func (a *Analyzers) SupportsImage() bool {
	_, unsupported := a.Image.(unsupportedAnalyzer)
	return a.Image != nil && !unsupported
}

// SupportsAudio reports whether the platform can transcribe audio
func (a *Analyzers) SupportsAudio() bool {
	_, unsupported := a.Audio.(unsupportedAnalyzer)
	return a.Audio != nil && !unsupported
}

// unsupportedAnalyzer answers every request with ErrUnsupported
type unsupportedAnalyzer struct {
	platform string
	what     string
}

func (u unsupportedAnalyzer) AnalyzeImage(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: platform %s does not support %s analysis", types.ErrUnsupported, u.platform, u.what)
}

func (u unsupportedAnalyzer) AnalyzeAudio(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: platform %s does not support %s analysis", types.ErrUnsupported, u.platform, u.what)
}

// NewAnalyzers builds the analyzers for a platform setting. A platform without
// an API key yields a *types.MissingAPIKeyError. Capabilities follow the platform:
// deepseek analyzes nothing, dashscope images only, the rest both.
func NewAnalyzers(p config.PlatformSetting) (*Analyzers, error) {
	if !p.Enabled() {
		return nil, &types.MissingAPIKeyError{Platform: p.Name}
	}

	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[p.Name]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("platform %s requires a base URL", p.Name)
	}

	a := &Analyzers{
		Platform:    p.Name,
		VisionModel: p.VisionModel,
		AudioModel:  p.AudioModel,
		Image:       unsupportedAnalyzer{platform: p.Name, what: "image"},
		Audio:       unsupportedAnalyzer{platform: p.Name, what: "audio"},
	}

	switch p.Name {
	case config.PlatformDeepSeek:
		return a, nil
	case config.PlatformDashScope:
	case config.PlatformOpenAI, config.PlatformSiliconFlow, config.PlatformOpenAICompatible:
		a.Audio = NewTranscriptionAudioAnalyzer(baseURL, p.APIKey)
	default:
		return nil, fmt.Errorf("%w: model platform %q", types.ErrUnsupported, p.Name)
	}

	image, err := NewChatImageAnalyzer(baseURL, p.APIKey, p.VisionModel)
	if err != nil {
		return nil, err
	}
	a.Image = image
	return a, nil
}
