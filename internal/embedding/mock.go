package embedding

import (
	"context"
	"math"
)

// Mock is a deterministic embedder for tests. Each text maps to a fixed
// unit-length vector derived from its hash, so the same text always gets the
// same embedding and distinct texts get (with high probability) distinct ones.
type Mock struct {
	dimensions int
	maxTokens  int
}

// NewMock returns a mock embedder producing vectors of the given dimensions.
func NewMock(dimensions int) *Mock {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Mock{dimensions: dimensions, maxTokens: openaiMaxTokens}
}

// MaxTokens returns the per-call token ceiling.
func (m *Mock) MaxTokens() int { return m.maxTokens }

// CreateEmbeddings returns one deterministic unit vector per text.
func (m *Mock) CreateEmbeddings(ctx context.Context, texts []string) (*Response, error) {
	output := make([][]float64, len(texts))
	for i, text := range texts {
		output[i] = m.embed(text)
	}
	return &Response{Status: StatusSuccess, Output: output}, nil
}

func (m *Mock) embed(text string) []float64 {
	h := 0
	for _, c := range text {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	vec := make([]float64, m.dimensions)
	var sum float64
	for i := range vec {
		vec[i] = math.Sin(float64(h*(i+1)))*0.1 + 0.01
		sum += vec[i] * vec[i]
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec
}
