package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acgodson/blueband-algo/internal/transport"
)

// Index is a transactional vector index. The committed snapshot is loaded
// lazily from the transport, at most once per instance; mutations go through
// a single pending working copy that is atomically swapped in when the
// transport acknowledges publication.
//
// An Index is not safe for concurrent use; callers must serialize access.
type Index struct {
	name      string
	transport transport.Transport
	logger    *zap.Logger

	data   *Snapshot
	update *Snapshot
	loaded bool
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for debug output (loads, commits, publications).
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// NewIndex creates an index over tr. name is the public name the snapshot
// resolves under; it may be empty when the index will be created via Create.
func NewIndex(name string, tr transport.Transport, opts ...Option) *Index {
	x := &Index{name: name, transport: tr}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Name returns the public name of the index: the configured name, or the id
// generated at creation time.
func (x *Index) Name() string {
	if x.name != "" {
		return x.name
	}
	if x.data != nil && x.data.Handle != nil {
		return x.data.Handle.ID
	}
	return ""
}

// publishName returns the name publications go out under: the private key
// name recorded in the snapshot when present, else the public name.
func (x *Index) publishName(snap *Snapshot) string {
	if snap != nil && snap.Handle != nil && snap.Handle.Name != "" {
		return snap.Handle.Name
	}
	return x.Name()
}

// CreateConfig holds the settings for provisioning a new index.
type CreateConfig struct {
	Version        int
	MetadataConfig MetadataConfig
	// DeleteIfExists removes an existing record under the configured name
	// before creating.
	DeleteIfExists bool
}

// Create provisions a fresh empty snapshot through the transport and
// publishes it. On failure the partially created record is deleted
// best-effort before the error is returned.
func (x *Index) Create(ctx context.Context, cfg CreateConfig) (*transport.Handle, error) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.DeleteIfExists && x.name != "" && x.transport.Exists(ctx, x.name) {
		if err := x.transport.Remove(ctx, x.name); err != nil {
			return nil, fmt.Errorf("create index: remove existing: %w", err)
		}
	}
	handle, err := x.transport.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	snap := &Snapshot{
		Handle:         handle,
		Version:        cfg.Version,
		MetadataConfig: cfg.MetadataConfig,
		Items:          []*Item{},
	}
	blob, err := json.Marshal(snap)
	if err == nil {
		err = x.transport.Publish(ctx, handle.Name, blob)
	}
	if err != nil {
		_ = x.transport.Remove(ctx, handle.Name)
		return nil, fmt.Errorf("create index: %w", err)
	}
	x.data = snap
	x.loaded = true
	if x.logger != nil {
		x.logger.Info("index created", zap.String("name", handle.ID))
	}
	return handle, nil
}

// Delete removes the index record from the transport and drops the resident
// snapshot.
func (x *Index) Delete(ctx context.Context) error {
	name := x.Name()
	if name == "" {
		return ErrNoName
	}
	if err := x.transport.Remove(ctx, x.publishName(x.data)); err != nil {
		return fmt.Errorf("delete index %q: %w", name, err)
	}
	x.data = nil
	x.update = nil
	x.loaded = false
	return nil
}

// IsCreated reports whether the index resolves on the transport.
func (x *Index) IsCreated(ctx context.Context) bool {
	if x.loaded {
		return true
	}
	name := x.Name()
	if name == "" {
		return false
	}
	return x.transport.Exists(ctx, name)
}

// ensureLoaded fetches the committed snapshot once per instance. "Not yet
// created" is a legitimate state for IsCreated, but a load against an
// unresolvable name fails with ErrIndexNotFound.
func (x *Index) ensureLoaded(ctx context.Context) error {
	if x.loaded {
		return nil
	}
	name := x.Name()
	if name == "" {
		return ErrNoName
	}
	if !x.transport.Exists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	blob, err := x.transport.Fetch(ctx, name)
	if err != nil {
		return fmt.Errorf("load index %q: %w", name, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("load index %q: decode snapshot: %w", name, err)
	}
	if snap.Items == nil {
		snap.Items = []*Item{}
	}
	x.data = &snap
	x.loaded = true
	if x.logger != nil {
		x.logger.Debug("index loaded", zap.String("name", name), zap.Int("items", len(snap.Items)))
	}
	return nil
}

// Invalidate drops the resident snapshot so the next access reloads from the
// transport. It fails while an update is open.
func (x *Index) Invalidate() error {
	if x.update != nil {
		return ErrUpdateInProgress
	}
	x.data = nil
	x.loaded = false
	return nil
}

// BeginUpdate loads the committed snapshot and clones it into a pending
// working copy. At most one update may be open at a time.
func (x *Index) BeginUpdate(ctx context.Context) error {
	if x.update != nil {
		return ErrUpdateInProgress
	}
	if err := x.ensureLoaded(ctx); err != nil {
		return err
	}
	x.update = x.data.Clone()
	return nil
}

// CancelUpdate discards the pending working copy. It is safe to call when no
// update is open.
func (x *Index) CancelUpdate() {
	x.update = nil
}

// EndUpdate serializes the pending copy, publishes it through the transport,
// and swaps it in as the committed snapshot only once publication is
// acknowledged. On error the update stays open so the caller can cancel.
func (x *Index) EndUpdate(ctx context.Context) error {
	if x.update == nil {
		return ErrNoUpdateInProgress
	}
	if x.data == nil {
		return ErrNoData
	}
	blob, err := json.Marshal(x.update)
	if err != nil {
		return fmt.Errorf("serialize update: %w", err)
	}
	if err := x.transport.Publish(ctx, x.publishName(x.update), blob); err != nil {
		return fmt.Errorf("publish index %q: %w", x.Name(), err)
	}
	x.data = x.update
	x.update = nil
	if x.logger != nil {
		x.logger.Debug("index committed", zap.String("name", x.Name()), zap.Int("items", len(x.data.Items)))
	}
	return nil
}

// InsertItem adds an item to the index, failing with DuplicateIDError when
// the id already exists. A one-off update is opened and committed when none
// is in progress. The returned item is a copy of what was stored.
func (x *Index) InsertItem(ctx context.Context, item *Item) (*Item, error) {
	return x.writeItem(ctx, item, true)
}

// UpsertItem adds an item or replaces the vector and metadata of an existing
// item with the same id.
func (x *Index) UpsertItem(ctx context.Context, item *Item) (*Item, error) {
	return x.writeItem(ctx, item, false)
}

func (x *Index) writeItem(ctx context.Context, item *Item, unique bool) (*Item, error) {
	if x.update != nil {
		return x.addToUpdate(item, unique)
	}
	if err := x.BeginUpdate(ctx); err != nil {
		return nil, err
	}
	stored, err := x.addToUpdate(item, unique)
	if err == nil {
		err = x.EndUpdate(ctx)
	}
	if err != nil {
		x.CancelUpdate()
		return nil, err
	}
	return stored, nil
}

// addToUpdate validates and stores an item into the pending copy.
func (x *Index) addToUpdate(item *Item, unique bool) (*Item, error) {
	if len(item.Vector) == 0 {
		return nil, ErrVectorRequired
	}
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	existing := x.findPending(id)
	if unique && existing != nil {
		return nil, &DuplicateIDError{ID: id}
	}

	metadata := item.Metadata
	if indexed := x.update.MetadataConfig.Indexed; len(indexed) > 0 && metadata != nil {
		kept := make(map[string]any, len(indexed))
		for _, key := range indexed {
			if v, ok := metadata[key]; ok {
				kept[key] = v
			}
		}
		metadata = kept
	}

	vec := make([]float64, len(item.Vector))
	copy(vec, item.Vector)
	stored := &Item{
		ID:       id,
		Vector:   vec,
		Norm:     Norm(vec),
		Metadata: metadata,
	}
	if existing != nil {
		existing.Vector = stored.Vector
		existing.Norm = stored.Norm
		existing.Metadata = stored.Metadata
		return existing.Clone(), nil
	}
	x.update.Items = append(x.update.Items, stored)
	return stored.Clone(), nil
}

func (x *Index) findPending(id string) *Item {
	for _, it := range x.update.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// DeleteItem removes the item with the given id. Deleting a missing id is a
// no-op, not an error.
func (x *Index) DeleteItem(ctx context.Context, id string) error {
	if x.update != nil {
		x.removeFromUpdate(id)
		return nil
	}
	if err := x.BeginUpdate(ctx); err != nil {
		return err
	}
	x.removeFromUpdate(id)
	if err := x.EndUpdate(ctx); err != nil {
		x.CancelUpdate()
		return err
	}
	return nil
}

func (x *Index) removeFromUpdate(id string) {
	for i, it := range x.update.Items {
		if it.ID == id {
			x.update.Items = append(x.update.Items[:i], x.update.Items[i+1:]...)
			return
		}
	}
}

// GetItem returns a copy of the item with the given id, or nil when absent.
func (x *Index) GetItem(ctx context.Context, id string) (*Item, error) {
	if err := x.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	for _, it := range x.data.Items {
		if it.ID == id {
			return it.Clone(), nil
		}
	}
	return nil, nil
}

// ListItems returns copies of all committed items. The returned slice is the
// caller's to keep; mutating it does not affect the index.
func (x *Index) ListItems(ctx context.Context) ([]*Item, error) {
	if err := x.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]*Item, len(x.data.Items))
	for i, it := range x.data.Items {
		out[i] = it.Clone()
	}
	return out, nil
}

// ListItemsByMetadata returns copies of committed items whose metadata
// satisfies filter.
func (x *Index) ListItemsByMetadata(ctx context.Context, filter Filter) ([]*Item, error) {
	if err := x.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	var out []*Item
	for _, it := range x.data.Items {
		if Select(it.Metadata, filter) {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

// QueryItems returns the topK items most similar to vector, in strictly
// descending score order. The scan is exhaustive over all (optionally
// filtered) items; ties keep original item order.
func (x *Index) QueryItems(ctx context.Context, vector []float64, topK int, filter Filter) ([]QueryResult, error) {
	if err := x.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	items := x.data.Items
	if len(filter) > 0 {
		filtered := make([]*Item, 0, len(items))
		for _, it := range items {
			if Select(it.Metadata, filter) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	norm := Norm(vector)
	results := make([]QueryResult, len(items))
	for i, it := range items {
		results[i] = QueryResult{
			Item:  it,
			Score: NormalizedCosineSimilarity(vector, norm, it.Vector, it.Norm),
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < 0 {
		topK = 0
	}
	if topK < len(results) {
		results = results[:topK]
	}
	for i := range results {
		results[i].Item = results[i].Item.Clone()
	}
	return results, nil
}

// Stats returns the committed snapshot's version, metadata config, and item
// count.
func (x *Index) Stats(ctx context.Context) (*Stats, error) {
	if err := x.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return &Stats{
		Version:        x.data.Version,
		MetadataConfig: x.data.MetadataConfig,
		Items:          len(x.data.Items),
	}, nil
}

// Payload returns the opaque payload carried by the committed snapshot.
func (x *Index) Payload(ctx context.Context) (json.RawMessage, error) {
	if err := x.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return x.data.Payload, nil
}

// SetPendingPayload stores an opaque payload on the open update so it commits
// atomically with the items.
func (x *Index) SetPendingPayload(raw json.RawMessage) error {
	if x.update == nil {
		return ErrNoUpdateInProgress
	}
	x.update.Payload = raw
	return nil
}

// UpdateOpen reports whether a pending update exists.
func (x *Index) UpdateOpen() bool {
	return x.update != nil
}
