// Package vector provides the transactional vector index and its similarity
// and metadata-selection primitives.
package vector

import (
	"encoding/json"

	"github.com/acgodson/blueband-algo/internal/transport"
)

// Item is a single indexed vector with its cached Euclidean norm and
// metadata. Items are owned by the index; accessors hand out copies.
type Item struct {
	ID       string         `json:"id"`
	Vector   []float64      `json:"vector"`
	Norm     float64        `json:"norm"`
	Metadata map[string]any `json:"metadata"`
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	cp := &Item{ID: it.ID, Norm: it.Norm}
	cp.Vector = make([]float64, len(it.Vector))
	copy(cp.Vector, it.Vector)
	if it.Metadata != nil {
		cp.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// MetadataConfig controls which metadata keys are retained on insert. When
// Indexed is empty, all supplied metadata is kept verbatim.
type MetadataConfig struct {
	Indexed []string `json:"indexed,omitempty"`
}

// Snapshot is the complete state of an index at a point in time and the unit
// of persistence: it is serialized wholesale and handed to the transport.
// Item ids are unique within a snapshot.
type Snapshot struct {
	// Handle records the addressing material the snapshot was created with,
	// so an index opened by public name can republish.
	Handle         *transport.Handle `json:"handle,omitempty"`
	Version        int               `json:"version"`
	MetadataConfig MetadataConfig    `json:"metadata_config"`
	Items          []*Item           `json:"items"`
	// Payload is opaque to the vector layer. Layered indexes store their own
	// bookkeeping here so that it commits atomically with the items.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a working copy of the snapshot with deep-copied items.
func (s *Snapshot) Clone() *Snapshot {
	cp := &Snapshot{
		Handle:         s.Handle,
		Version:        s.Version,
		MetadataConfig: s.MetadataConfig,
		Items:          make([]*Item, len(s.Items)),
	}
	for i, it := range s.Items {
		cp.Items[i] = it.Clone()
	}
	if s.Payload != nil {
		cp.Payload = make(json.RawMessage, len(s.Payload))
		copy(cp.Payload, s.Payload)
	}
	return cp
}

// Stats summarizes an index.
type Stats struct {
	Version        int            `json:"version"`
	MetadataConfig MetadataConfig `json:"metadata_config"`
	Items          int            `json:"items"`
}

// QueryResult pairs an item copy with its similarity score. Higher scores are
// more similar.
type QueryResult struct {
	Item  *Item   `json:"item"`
	Score float64 `json:"score"`
}
