package embedder

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashingSession is the offline fallback used when no ONNX model is
// installed. Each token id maps to a fixed pseudo-random ±1 feature vector
// (hashed with the model seed); hidden state i is the running mean of the
// first i+1 token vectors, so the last-token state is the mean over the
// whole input. Texts that share tokens land close together under cosine
// distance.
type HashingSession struct {
	name      string
	seed      uint64
	maxTokens int
}

// NewHashingSession creates a session seeded by name
func NewHashingSession(name string, maxTokens int) *HashingSession {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &HashingSession{
		name:      name,
		seed:      xxhash.Sum64String(name),
		maxTokens: maxTokens,
	}
}

// Run returns hidden states with shape [1, seq, Dimension]
func (s *HashingSession) Run(ctx context.Context, in Inputs) (Tensor, error) {
	seq := len(in.InputIDs)
	if seq == 0 {
		return Tensor{}, fmt.Errorf("%w: no input tokens", ErrEmptyText)
	}
	if len(in.AttentionMask) != seq {
		return Tensor{}, fmt.Errorf("%w: attention mask has %d entries for %d tokens", ErrUnexpectedShape, len(in.AttentionMask), seq)
	}

	data := make([]float32, seq*Dimension)
	sum := make([]float32, Dimension)
	feature := make([]float32, Dimension)
	var seen float32
	for i, id := range in.InputIDs {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return Tensor{}, err
			}
		}
		if in.AttentionMask[i] != 0 {
			s.tokenFeature(id, feature)
			for d := range sum {
				sum[d] += feature[d]
			}
			seen++
		}
		row := data[i*Dimension : (i+1)*Dimension]
		if seen > 0 {
			for d := range row {
				row[d] = sum[d] / seen
			}
		}
	}

	return Tensor{Shape: []int{1, seq, Dimension}, Data: data}, nil
}

// tokenFeature fills out with the ±1 feature vector of a token id
func (s *HashingSession) tokenFeature(id int64, out []float32) {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(id))
	binary.LittleEndian.PutUint64(buf[8:], s.seed)
	for block := 0; block*64 < len(out); block++ {
		binary.LittleEndian.PutUint64(buf[16:], uint64(block))
		bits := xxhash.Sum64(buf[:])
		for b := 0; b < 64 && block*64+b < len(out); b++ {
			if bits&(1<<uint(b)) != 0 {
				out[block*64+b] = 1
			} else {
				out[block*64+b] = -1
			}
		}
	}
}

// MaxTokens implements Session
func (s *HashingSession) MaxTokens() int {
	return s.maxTokens
}

// Close implements Session
func (s *HashingSession) Close() error {
	return nil
}
