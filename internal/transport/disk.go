package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Disk is a transport that keeps records and content under a data directory:
// records/<name>.json for snapshots and contents/<id> for raw text. Content
// ids are content addresses, so identical text maps to a single file.
type Disk struct {
	dir string
}

// NewDisk creates a disk transport rooted at dir. The records and contents
// subdirectories are created if they do not exist.
func NewDisk(dir string) (*Disk, error) {
	for _, sub := range []string{"records", "contents"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create transport dir: %w", err)
		}
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) recordPath(name string) string {
	return filepath.Join(d.dir, "records", name+".json")
}

func (d *Disk) contentPath(id string) string {
	return filepath.Join(d.dir, "contents", id)
}

// Create generates a fresh record id.
func (d *Disk) Create(ctx context.Context) (*Handle, error) {
	id := uuid.NewString()
	return &Handle{Name: id, ID: id}, nil
}

// Publish writes blob to the record file for name.
func (d *Disk) Publish(ctx context.Context, name string, blob []byte) error {
	if err := os.WriteFile(d.recordPath(name), blob, 0644); err != nil {
		return fmt.Errorf("write record %q: %w", name, err)
	}
	return nil
}

// Fetch reads the record file for name.
func (d *Disk) Fetch(ctx context.Context, name string) ([]byte, error) {
	blob, err := os.ReadFile(d.recordPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record %q: %w", name, err)
	}
	return blob, nil
}

// Exists reports whether the record file for name is present.
func (d *Disk) Exists(ctx context.Context, name string) bool {
	_, err := os.Stat(d.recordPath(name))
	return err == nil
}

// Remove deletes the record file for name. A missing file is not an error.
func (d *Disk) Remove(ctx context.Context, name string) error {
	if err := os.Remove(d.recordPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove record %q: %w", name, err)
	}
	return nil
}

// PutContent writes text under its content address and returns the id.
func (d *Disk) PutContent(ctx context.Context, text string) (string, error) {
	id := ContentID(text)
	if err := os.WriteFile(d.contentPath(id), []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write content %q: %w", id, err)
	}
	return id, nil
}

// GetContent reads the text stored under id.
func (d *Disk) GetContent(ctx context.Context, id string) (string, error) {
	b, err := os.ReadFile(d.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read content %q: %w", id, err)
	}
	return string(b), nil
}
