//go:build !onnx

package embedder

import "fmt"

// ONNXAvailable reports whether this build links onnxruntime and the
// Hugging Face tokenizers
const ONNXAvailable = false

func newONNXSession(spec ModelSpec, _ string) (Session, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags onnx to run %s", ErrRuntimeUnavailable, spec.Name)
}

func loadHFTokenizer(path string) (Tokenizer, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags onnx to load %s", ErrRuntimeUnavailable, path)
}
