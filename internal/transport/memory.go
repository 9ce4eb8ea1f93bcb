package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process transport backed by maps. It is used by tests and
// by callers that want a throwaway index without any durable storage.
type Memory struct {
	mu       sync.Mutex
	records  map[string][]byte
	contents map[string]string

	// PublishErr, when set, is returned by every Publish call. Tests use it
	// to exercise the unacknowledged-publication path.
	PublishErr error
}

// NewMemory returns an empty in-process transport.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string][]byte),
		contents: make(map[string]string),
	}
}

// Create generates a fresh record id. Name and ID are the same value.
func (m *Memory) Create(ctx context.Context) (*Handle, error) {
	id := uuid.NewString()
	return &Handle{Name: id, ID: id}, nil
}

// Publish stores a copy of blob under name.
func (m *Memory) Publish(ctx context.Context, name string, blob []byte) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.records[name] = cp
	return nil
}

// Fetch returns a copy of the blob stored under name.
func (m *Memory) Fetch(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// Exists reports whether a record was published under name.
func (m *Memory) Exists(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[name]
	return ok
}

// Remove deletes the record under name. Removing a missing record is not an error.
func (m *Memory) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

// PutContent stores text under its content address.
func (m *Memory) PutContent(ctx context.Context, text string) (string, error) {
	id := ContentID(text)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[id] = text
	return id, nil
}

// GetContent returns the text stored under id.
func (m *Memory) GetContent(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.contents[id]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

func hexSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
