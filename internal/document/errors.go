package document

import (
	"errors"
	"fmt"

	"github.com/acgodson/blueband-algo/internal/embedding"
)

// ErrEmbedderNotConfigured is returned by operations that need an embedding
// collaborator when none was supplied.
var ErrEmbedderNotConfigured = errors.New("embedder not configured")

// ErrUpload is returned when the content store produced no id for a
// document's text.
var ErrUpload = errors.New("content store returned no id")

// EmbeddingError reports a non-success response from the embedding
// collaborator, including rate limits.
type EmbeddingError struct {
	Status  embedding.Status
	Message string
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (%s): %s", e.Status, e.Message)
}
