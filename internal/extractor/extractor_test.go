package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/pkg/types"
)

var (
	pngHeader = []byte{
		0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
		0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
	}
	wavHeader = []byte{
		'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00,
		'W', 'A', 'V', 'E', 'f', 'm', 't', ' ',
		0x10, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
		0x44, 0xac, 0x00, 0x00, 0x88, 0x58, 0x01, 0x00,
		0x02, 0x00, 0x10, 0x00, 'd', 'a', 't', 'a',
		0x00, 0x00, 0x00, 0x00,
	}
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	for _, ext := range []string{"txt", ".MD", "log", "mdx", "ini"} {
		_, ok := r.Lookup(ext)
		assert.True(t, ok, ext)
	}
	_, ok := r.Lookup("pdf")
	assert.False(t, ok)

	r.Register(NewPlainTextLoader("csv"))
	_, ok = r.Lookup("CSV")
	assert.True(t, ok)
	assert.Contains(t, r.Extensions(), "csv")
}

func TestRegistryUnknownExtension(t *testing.T) {
	path := writeFile(t, "report.pdf", []byte("%PDF-1.4"))
	_, err := DefaultRegistry().LoadBounded(path, 100)
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestPlainTextBounded(t *testing.T) {
	p := NewPlainTextLoader()

	text, err := p.LoadReader(strings.NewReader("hello world"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	// Multi-byte characters count as one
	text, err = p.LoadReader(strings.NewReader("héllo wörld"), 7)
	require.NoError(t, err)
	assert.Equal(t, "héllo w", text)

	text, err = p.LoadReader(strings.NewReader("short"), 0)
	require.NoError(t, err)
	assert.Equal(t, "short", text)
}

func TestPlainTextFromFile(t *testing.T) {
	path := writeFile(t, "notes.md", []byte("# Notes\n\nquarterly budget"))
	text, err := DefaultRegistry().LoadBounded(path, MaxDocumentChars)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\nquarterly budget", text)
}

func TestPlainTextRejectsBinary(t *testing.T) {
	p := NewPlainTextLoader()
	_, err := p.LoadReader(strings.NewReader("abc\x00\x00\x00def"), 100)
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestPlainTextDropsInvalidUTF8(t *testing.T) {
	p := NewPlainTextLoader()
	text, err := p.LoadReader(strings.NewReader("ok\xffyes"), 0)
	require.NoError(t, err)
	assert.Equal(t, "okyes", text)
}

func TestMediaChecks(t *testing.T) {
	png := writeFile(t, "pic.png", pngHeader)
	mime, err := checkImage(png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	// Content decides, not the extension
	disguised := writeFile(t, "pic.jpg", []byte("just some text"))
	_, err = checkImage(disguised)
	assert.ErrorIs(t, err, types.ErrUnsupported)

	wav := writeFile(t, "clip.wav", wavHeader)
	ok, err := IsSupportedAudio(wav)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsSupportedAudio(png)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = IsSupportedAudio(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	reply    string
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestChatImageAnalyzer(t *testing.T) {
	model := &fakeModel{reply: "  a red square  "}
	a := newChatImageAnalyzerWithModel(model)

	png := writeFile(t, "pic.png", pngHeader)
	desc, err := a.AnalyzeImage(context.Background(), "vision-1", png)
	require.NoError(t, err)
	assert.Equal(t, "a red square", desc)
	assert.Equal(t, "vision-1", model.opts.Model)

	require.Len(t, model.messages, 1)
	parts := model.messages[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, llms.TextPart(ImagePrompt), parts[0])
	img, ok := parts[1].(llms.ImageURLContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(img.URL, "data:image/png;base64,"))
}

func TestChatImageAnalyzerErrors(t *testing.T) {
	model := &fakeModel{err: errors.New("boom")}
	a := newChatImageAnalyzerWithModel(model)

	txt := writeFile(t, "pic.png", []byte("not an image"))
	_, err := a.AnalyzeImage(context.Background(), "m", txt)
	assert.ErrorIs(t, err, types.ErrUnsupported)
	assert.Nil(t, model.messages, "unsupported images are never sent")

	png := writeFile(t, "pic.png", pngHeader)
	_, err = a.AnalyzeImage(context.Background(), "m", png)
	assert.ErrorContains(t, err, "boom")
}

func TestTranscriptionRejectsNonAudio(t *testing.T) {
	a := NewTranscriptionAudioAnalyzer("http://127.0.0.1:1", "key")
	path := writeFile(t, "song.mp3", []byte("plain text pretending to be audio"))
	_, err := a.AnalyzeAudio(context.Background(), "whisper-1", path)
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestNewAnalyzersMissingKey(t *testing.T) {
	_, err := NewAnalyzers(config.PlatformSetting{Name: config.PlatformSiliconFlow})
	require.ErrorIs(t, err, types.ErrPlatformMissingAPIKey)
	assert.Contains(t, err.Error(), "Model platform 'siliconflow' is missing API key configuration")
}

func TestNewAnalyzersCapabilities(t *testing.T) {
	tests := []struct {
		platform  string
		baseURL   string
		wantImage bool
		wantAudio bool
	}{
		{config.PlatformOpenAI, "", true, true},
		{config.PlatformSiliconFlow, "", true, true},
		{config.PlatformOpenAICompatible, "http://localhost:8080/v1", true, true},
		{config.PlatformDashScope, "", true, false},
		{config.PlatformDeepSeek, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			a, err := NewAnalyzers(config.PlatformSetting{Name: tt.platform, BaseURL: tt.baseURL, APIKey: "k"})
			require.NoError(t, err)

			assert.Equal(t, tt.wantImage, a.SupportsImage())
			assert.Equal(t, tt.wantAudio, a.SupportsAudio())
		})
	}
}

func TestNewAnalyzersUnsupportedPaths(t *testing.T) {
	a, err := NewAnalyzers(config.PlatformSetting{Name: config.PlatformDeepSeek, APIKey: "k"})
	require.NoError(t, err)
	_, err = a.Image.AnalyzeImage(context.Background(), "", "x.png")
	assert.ErrorIs(t, err, types.ErrUnsupported)
	_, err = a.Audio.AnalyzeAudio(context.Background(), "", "x.mp3")
	assert.ErrorIs(t, err, types.ErrUnsupported)

	_, err = NewAnalyzers(config.PlatformSetting{Name: config.PlatformOpenAICompatible, APIKey: "k"})
	assert.ErrorContains(t, err, "requires a base URL")

	_, err = NewAnalyzers(config.PlatformSetting{Name: "nowhere", APIKey: "k"})
	assert.Error(t, err)
}
