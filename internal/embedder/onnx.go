//go:build onnx

package embedder

// Built with -tags onnx: sessions run through onnxruntime and tokenizer.json
// files are loaded with the Hugging Face tokenizers bindings. Both need cgo;
// libtokenizers.a must be on the linker path and the onnxruntime shared
// library available at run time.
//
//   CGO_ENABLED=1 go build -tags onnx ./...

import (
	"context"
	"fmt"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

const ONNXAvailable = true

var (
	onnxInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputs = []string{"last_hidden_state"}

	ortOnce sync.Once
	ortErr  error
)

func initRuntime(lib string) error {
	ortOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXSession runs a sentence-transformer exported to ONNX
type ONNXSession struct {
	session   *ort.DynamicAdvancedSession
	maxTokens int
}

func newONNXSession(spec ModelSpec, runtimeLib string) (Session, error) {
	if err := initRuntime(runtimeLib); err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	s, err := ort.NewDynamicAdvancedSession(spec.Path, onnxInputs, onnxOutputs, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", spec.Path, err)
	}
	maxTokens := spec.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &ONNXSession{session: s, maxTokens: maxTokens}, nil
}

// Run implements Session and returns the hidden states [1, seq, Dimension]
func (s *ONNXSession) Run(ctx context.Context, in Inputs) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	seq := len(in.InputIDs)
	if seq == 0 {
		return Tensor{}, fmt.Errorf("%w: no input tokens", ErrEmptyText)
	}
	if len(in.AttentionMask) != seq || len(in.TokenTypeIDs) != seq {
		return Tensor{}, fmt.Errorf("%w: inputs disagree on sequence length %d", ErrUnexpectedShape, seq)
	}

	shape := ort.NewShape(1, int64(seq))
	var inputs []ort.Value
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, data := range [][]int64{in.InputIDs, in.AttentionMask, in.TokenTypeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seq), Dimension))
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer func() { _ = out.Destroy() }()

	if err := s.session.Run(inputs, []ort.Value{out}); err != nil {
		return Tensor{}, fmt.Errorf("onnx inference failed: %w", err)
	}
	data := make([]float32, seq*Dimension)
	copy(data, out.GetData())
	return Tensor{Shape: []int{1, seq, Dimension}, Data: data}, nil
}

// MaxTokens implements Session
func (s *ONNXSession) MaxTokens() int {
	return s.maxTokens
}

// Close implements Session
func (s *ONNXSession) Close() error {
	return s.session.Destroy()
}

// hfTokenizer is a Tokenizer backed by a tokenizer.json. Encoded ids include
// the model's special tokens.
type hfTokenizer struct {
	mu sync.Mutex
	tk *tokenizers.Tokenizer
}

func loadHFTokenizer(path string) (Tokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &hfTokenizer{tk: tk}, nil
}

func (t *hfTokenizer) Encode(text string) []int {
	if text == "" {
		return nil
	}
	t.mu.Lock()
	ids, _ := t.tk.Encode(text, true)
	t.mu.Unlock()
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

func (t *hfTokenizer) Decode(ids []int) string {
	in := make([]uint32, len(ids))
	for i, id := range ids {
		in[i] = uint32(id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tk.Decode(in, true)
}

func (t *hfTokenizer) Count(text string) int {
	return len(t.Encode(text))
}

func (t *hfTokenizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tk.Close()
}
