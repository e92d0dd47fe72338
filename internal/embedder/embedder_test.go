package embedder

import (
	"errors"
	"testing"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestExtractVector(t *testing.T) {
	seq3 := append(append(filled(Dimension, 1), filled(Dimension, 2)...), filled(Dimension, 3)...)

	tests := []struct {
		name    string
		tensor  Tensor
		first   float32
		wantErr error
	}{
		{
			name:   "hidden states take the last token",
			tensor: Tensor{Shape: []int{1, 3, Dimension}, Data: seq3},
			first:  3,
		},
		{
			name:   "pooled row",
			tensor: Tensor{Shape: []int{1, Dimension}, Data: filled(Dimension, 5)},
			first:  5,
		},
		{
			name:   "flat vector",
			tensor: Tensor{Shape: []int{Dimension}, Data: filled(Dimension, 7)},
			first:  7,
		},
		{
			name:    "batch of two",
			tensor:  Tensor{Shape: []int{2, Dimension}, Data: filled(2*Dimension, 1)},
			wantErr: ErrUnexpectedShape,
		},
		{
			name:    "rank four",
			tensor:  Tensor{Shape: []int{1, 1, 1, Dimension}, Data: filled(Dimension, 1)},
			wantErr: ErrUnexpectedShape,
		},
		{
			name:    "wrong width",
			tensor:  Tensor{Shape: []int{768}, Data: filled(768, 1)},
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "short data",
			tensor:  Tensor{Shape: []int{1, 2, Dimension}, Data: filled(Dimension, 1)},
			wantErr: ErrUnexpectedShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVector(tt.tensor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExtractVector() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractVector() unexpected error: %v", err)
			}
			if len(got) != Dimension {
				t.Fatalf("len = %d, want %d", len(got), Dimension)
			}
			if got[0] != tt.first || got[Dimension-1] != tt.first {
				t.Errorf("vector = [%v ... %v], want %v", got[0], got[Dimension-1], tt.first)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get and set", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("query", []float32{1, 2, 3})

		got, ok := cache.Get("query")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if len(got) != 3 || got[2] != 3 {
			t.Errorf("got %v", got)
		}
		if _, ok := cache.Get("other"); ok {
			t.Error("expected cache miss")
		}
	})

	t.Run("returned vectors are copies", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("q", []float32{1})
		got, _ := cache.Get("q")
		got[0] = 99
		again, _ := cache.Get("q")
		if again[0] != 1 {
			t.Errorf("cache entry mutated: %v", again)
		}
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", []float32{1})
		cache.Set("b", []float32{2})
		cache.Get("a")
		cache.Set("c", []float32{3})

		if _, ok := cache.Get("b"); ok {
			t.Error("b should have been evicted")
		}
		if cache.Size() != 2 {
			t.Errorf("Size() = %d, want 2", cache.Size())
		}
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", []float32{1})
		cache.Clear()
		if cache.Size() != 0 {
			t.Errorf("Size() = %d after Clear", cache.Size())
		}
	})
}
