// Package transport provides durable publication backends for index snapshots
// and content-addressed storage for raw document text.
package transport

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Fetch and GetContent when no record exists under
// the given name or content id.
var ErrNotFound = errors.New("record not found")

// Handle identifies a created index record. Name is the private publishing
// key; ID is the public name the record resolves under. Backends that have no
// key/name split use the same value for both.
type Handle struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Transport publishes and fetches serialized index snapshots under stable
// names, and stores raw document text by content id. Publish returning nil is
// the acknowledgment that the blob is durably resolvable; an error means the
// publication must be treated as not having happened.
type Transport interface {
	// Create provisions addressing material for a new record.
	Create(ctx context.Context) (*Handle, error)
	// Publish durably stores blob under the record identified by name.
	Publish(ctx context.Context, name string, blob []byte) error
	// Fetch returns the last published blob; ErrNotFound if never published.
	Fetch(ctx context.Context, name string) ([]byte, error)
	// Exists reports whether a record resolves under name. It never fails on
	// a missing record.
	Exists(ctx context.Context, name string) bool
	// Remove deletes the record and its addressing material.
	Remove(ctx context.Context, name string) error

	// PutContent stores text and returns its content id.
	PutContent(ctx context.Context, text string) (string, error)
	// GetContent returns the text stored under a content id.
	GetContent(ctx context.Context, id string) (string, error)
}

// ContentID returns the content address for text: the hex SHA-256 digest.
// Local backends use it so the same text always maps to the same id.
func ContentID(text string) string {
	return hexSHA256([]byte(text))
}
