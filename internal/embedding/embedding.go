// Package embedding turns text into vectors through external or local models.
package embedding

import "context"

// Status classifies an embedding response.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
)

// Response is the outcome of an embedding call. Output is positionally
// aligned with the input texts and only populated on StatusSuccess; Message
// carries detail for the other statuses.
type Response struct {
	Status  Status
	Output  [][]float64
	Message string
}

// Embedder produces embeddings for batches of text. MaxTokens is the ceiling
// on the combined token count of a single call; callers batch under it.
type Embedder interface {
	MaxTokens() int
	CreateEmbeddings(ctx context.Context, texts []string) (*Response, error)
}
