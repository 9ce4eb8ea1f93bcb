// Package document layers a uri-addressed document catalog over the vector
// index: documents are chunked, embedded in token-bounded batches, and stored
// one vector item per chunk inside the same transaction as the catalog entry.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/acgodson/blueband-algo/internal/embedding"
	"github.com/acgodson/blueband-algo/internal/splitter"
	"github.com/acgodson/blueband-algo/internal/tokenizer"
	"github.com/acgodson/blueband-algo/internal/transport"
	"github.com/acgodson/blueband-algo/internal/vector"
	"github.com/acgodson/blueband-algo/pkg/utils"
)

// Options configures a document index. Transport is required; everything
// else has a documented default.
type Options struct {
	// Name is the public name the index resolves under. May be empty when
	// the index will be created through Create.
	Name      string
	Transport transport.Transport
	// Embedder is required for UpsertDocument and QueryDocuments but not for
	// the read-only operations.
	Embedder embedding.Embedder
	// Tokenizer defaults to the heuristic tokenizer.
	Tokenizer tokenizer.Tokenizer
	// Chunking overrides the splitter defaults (512 tokens, no overlap,
	// separators kept).
	Chunking *splitter.Config
	// Resolver overrides catalog-backed document identity.
	Resolver Resolver
	Logger   *zap.Logger
}

// Index maintains documents over an owned vector index. The catalog rides
// inside the vector snapshot's payload so both commit in one publication.
//
// An Index is not safe for concurrent use; callers must serialize access.
type Index struct {
	vectors   *vector.Index
	transport transport.Transport
	embedder  embedding.Embedder
	tokenizer tokenizer.Tokenizer
	chunking  splitter.Config
	resolver  Resolver
	logger    *zap.Logger

	catalog *Catalog
	pending *Catalog
}

// NewIndex creates a document index from opts.
func NewIndex(opts Options) *Index {
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenizer.NewHeuristic()
	}
	chunking := splitter.Config{ChunkSize: 512, KeepSeparators: true}
	if opts.Chunking != nil {
		chunking = *opts.Chunking
	}
	if chunking.Tokenizer == nil {
		chunking.Tokenizer = tok
	}
	var vopts []vector.Option
	if opts.Logger != nil {
		vopts = append(vopts, vector.WithLogger(opts.Logger))
	}
	return &Index{
		vectors:   vector.NewIndex(opts.Name, opts.Transport, vopts...),
		transport: opts.Transport,
		embedder:  opts.Embedder,
		tokenizer: tok,
		chunking:  chunking,
		resolver:  opts.Resolver,
		logger:    opts.Logger,
	}
}

// Vectors exposes the underlying vector index for stats and direct item
// access.
func (x *Index) Vectors() *vector.Index { return x.vectors }

// Name returns the index's public name.
func (x *Index) Name() string { return x.vectors.Name() }

// Create provisions the underlying index.
func (x *Index) Create(ctx context.Context, cfg vector.CreateConfig) (*transport.Handle, error) {
	handle, err := x.vectors.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	x.catalog = NewCatalog()
	return handle, nil
}

// IsCreated reports whether the index resolves on the transport.
func (x *Index) IsCreated(ctx context.Context) bool { return x.vectors.IsCreated(ctx) }

// Delete removes the index and drops the resident catalog.
func (x *Index) Delete(ctx context.Context) error {
	if err := x.vectors.Delete(ctx); err != nil {
		return err
	}
	x.catalog = nil
	x.pending = nil
	return nil
}

// ensureCatalog materializes the catalog from the snapshot payload, creating
// an empty one when the payload is absent.
func (x *Index) ensureCatalog(ctx context.Context) error {
	if x.catalog != nil {
		return nil
	}
	raw, err := x.vectors.Payload(ctx)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		x.catalog = NewCatalog()
		return nil
	}
	var cat Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return fmt.Errorf("decode document catalog: %w", err)
	}
	if cat.URIToID == nil {
		cat.URIToID = make(map[string]string)
	}
	if cat.IDToURI == nil {
		cat.IDToURI = make(map[string]string)
	}
	x.catalog = &cat
	return nil
}

// BeginUpdate opens the base transaction and shadows the catalog with a
// pending copy.
func (x *Index) BeginUpdate(ctx context.Context) error {
	if err := x.vectors.BeginUpdate(ctx); err != nil {
		return err
	}
	if err := x.ensureCatalog(ctx); err != nil {
		x.vectors.CancelUpdate()
		return err
	}
	x.pending = x.catalog.Clone()
	return nil
}

// CancelUpdate discards both the base transaction and the pending catalog.
func (x *Index) CancelUpdate() {
	x.vectors.CancelUpdate()
	x.pending = nil
}

// EndUpdate commits the base transaction with the pending catalog embedded
// in its payload. On success the pending catalog becomes the committed one;
// on failure both pending copies are discarded so the two never diverge.
func (x *Index) EndUpdate(ctx context.Context) error {
	if x.pending == nil {
		return vector.ErrNoUpdateInProgress
	}
	raw, err := json.Marshal(x.pending)
	if err != nil {
		x.CancelUpdate()
		return fmt.Errorf("serialize document catalog: %w", err)
	}
	if err := x.vectors.SetPendingPayload(raw); err != nil {
		x.CancelUpdate()
		return err
	}
	if err := x.vectors.EndUpdate(ctx); err != nil {
		x.CancelUpdate()
		return err
	}
	x.catalog = x.pending
	x.pending = nil
	return nil
}

// activeCatalog returns the pending catalog during a transaction, else the
// committed one.
func (x *Index) activeCatalog() *Catalog {
	if x.pending != nil {
		return x.pending
	}
	return x.catalog
}

// documentID resolves the id for a uri, or "" when unknown.
func (x *Index) documentID(ctx context.Context, uri string) (string, error) {
	if x.resolver != nil {
		return x.resolver.ResolveID(ctx, uri)
	}
	if err := x.ensureCatalog(ctx); err != nil {
		return "", err
	}
	return x.activeCatalog().URIToID[uri], nil
}

// documentURI resolves the uri for an id, or "" when unknown.
func (x *Index) documentURI(ctx context.Context, id string) (string, error) {
	if x.resolver != nil {
		return x.resolver.ResolveURI(ctx, id)
	}
	if err := x.ensureCatalog(ctx); err != nil {
		return "", err
	}
	return x.activeCatalog().IDToURI[id], nil
}

// UpsertOptions carries the optional arguments of UpsertDocument.
type UpsertOptions struct {
	// DocType overrides the type inferred from the uri's extension.
	DocType string
	// Metadata is attached to every chunk in addition to the positional keys.
	Metadata map[string]any
}

// UpsertDocument chunks text, embeds the chunks in token-bounded batches, and
// stores one vector item per chunk plus a catalog entry, all in one
// transaction. Upserting an already-indexed uri first deletes the old
// document, so the operation is idempotent per uri.
func (x *Index) UpsertDocument(ctx context.Context, uri, text string, opts UpsertOptions) (*Document, error) {
	if x.embedder == nil {
		return nil, ErrEmbedderNotConfigured
	}

	existing, err := x.documentID(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("error adding document %q: %w", uri, err)
	}
	if existing != "" {
		if err := x.DeleteDocument(ctx, uri); err != nil {
			return nil, fmt.Errorf("error adding document %q: %w", uri, err)
		}
	}

	id, err := x.transport.PutContent(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("error adding document %q: %w", uri, err)
	}
	if id == "" {
		return nil, fmt.Errorf("error adding document %q: %w", uri, ErrUpload)
	}

	docType := opts.DocType
	if docType == "" {
		docType = docTypeFromURI(uri)
	}
	cfg := x.chunking
	cfg.DocType = docType
	chunks := splitter.New(cfg).Split(text)

	embeddings, err := x.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("error adding document %q: %w", uri, err)
	}

	if err := x.BeginUpdate(ctx); err != nil {
		return nil, fmt.Errorf("error adding document %q: %w", uri, err)
	}
	for i, chunk := range chunks {
		metadata := map[string]any{
			"documentId": id,
			"startPos":   chunk.StartPos,
			"endPos":     chunk.EndPos,
		}
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
		_, err := x.vectors.InsertItem(ctx, &vector.Item{
			Vector:   embeddings[i],
			Metadata: metadata,
		})
		if err != nil {
			x.CancelUpdate()
			return nil, fmt.Errorf("error adding document %q: %w", uri, err)
		}
	}
	x.pending.Add(uri, id)
	if err := x.EndUpdate(ctx); err != nil {
		return nil, fmt.Errorf("error adding document %q: %w", uri, err)
	}

	if x.logger != nil {
		x.logger.Info("document indexed",
			zap.String("uri", uri), zap.String("id", utils.Truncate(id, 12)),
			zap.Int("chunks", len(chunks)))
	}
	return newDocument(x, id, uri), nil
}

// embedChunks batches chunks under the embedder's token ceiling and returns
// embeddings positionally aligned with chunks. Newlines are collapsed to
// spaces before embedding.
func (x *Index) embedChunks(ctx context.Context, chunks []splitter.Chunk) ([][]float64, error) {
	batches := batchChunks(chunks, x.embedder.MaxTokens())
	embeddings := make([][]float64, 0, len(chunks))
	for _, batch := range batches {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = utils.CollapseNewlines(c.Text)
		}
		resp, err := x.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return nil, err
		}
		if resp.Status != embedding.StatusSuccess {
			return nil, &EmbeddingError{Status: resp.Status, Message: resp.Message}
		}
		if len(resp.Output) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Output), len(texts))
		}
		embeddings = append(embeddings, resp.Output...)
	}
	return embeddings, nil
}

// batchChunks groups chunks so no batch's token total exceeds maxTokens. A
// chunk is never split across batches; a single oversized chunk gets its own
// batch.
func batchChunks(chunks []splitter.Chunk, maxTokens int) [][]splitter.Chunk {
	var batches [][]splitter.Chunk
	var current []splitter.Chunk
	tokens := 0
	for _, chunk := range chunks {
		n := len(chunk.Tokens)
		if len(current) > 0 && tokens+n > maxTokens {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, chunk)
		tokens += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// DeleteDocument removes every chunk of the document at uri along with its
// catalog entry. An unresolvable uri is a silent no-op.
func (x *Index) DeleteDocument(ctx context.Context, uri string) error {
	id, err := x.documentID(ctx, uri)
	if err != nil {
		return fmt.Errorf("error deleting document %q: %w", uri, err)
	}
	if id == "" {
		return nil
	}
	if err := x.BeginUpdate(ctx); err != nil {
		return fmt.Errorf("error deleting document %q: %w", uri, err)
	}
	chunks, err := x.vectors.ListItemsByMetadata(ctx, vector.Filter{"documentId": id})
	if err != nil {
		x.CancelUpdate()
		return fmt.Errorf("error deleting document %q: %w", uri, err)
	}
	for _, chunk := range chunks {
		if err := x.vectors.DeleteItem(ctx, chunk.ID); err != nil {
			x.CancelUpdate()
			return fmt.Errorf("error deleting document %q: %w", uri, err)
		}
	}
	x.pending.Remove(uri, id)
	if err := x.EndUpdate(ctx); err != nil {
		return fmt.Errorf("error deleting document %q: %w", uri, err)
	}
	return nil
}

// GetDocument returns a handle to the document at uri, or nil when the uri
// is not indexed.
func (x *Index) GetDocument(ctx context.Context, uri string) (*Document, error) {
	id, err := x.documentID(ctx, uri)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return newDocument(x, id, uri), nil
}

// ListDocuments groups all stored chunks by document and returns one result
// per distinct document id. Listing is not ranking: every chunk carries a
// synthetic score of 1.0 and result order is unspecified.
func (x *Index) ListDocuments(ctx context.Context) ([]*Result, error) {
	items, err := x.vectors.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]vector.QueryResult)
	for _, item := range items {
		id, _ := item.Metadata["documentId"].(string)
		if id == "" {
			continue
		}
		groups[id] = append(groups[id], vector.QueryResult{Item: item, Score: 1.0})
	}
	results := make([]*Result, 0, len(groups))
	for id, chunks := range groups {
		uri, err := x.documentURI(ctx, id)
		if err != nil {
			return nil, err
		}
		results = append(results, newResult(x, id, uri, chunks))
	}
	return results, nil
}

// QueryOptions carries the optional arguments of QueryDocuments.
type QueryOptions struct {
	// MaxDocuments caps the number of returned documents. Defaults to 10.
	MaxDocuments int
	// MaxChunks is the topK passed to the underlying vector query. Defaults
	// to 50.
	MaxChunks int
	// Filter restricts the scan to chunks whose metadata matches.
	Filter vector.Filter
}

// QueryDocuments embeds the query text, retrieves the most similar chunks,
// and returns their documents ranked by best chunk score, descending.
func (x *Index) QueryDocuments(ctx context.Context, query string, opts QueryOptions) ([]*Result, error) {
	if x.embedder == nil {
		return nil, ErrEmbedderNotConfigured
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = 10
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 50
	}

	resp, err := x.embedder.CreateEmbeddings(ctx, []string{utils.CollapseNewlines(query)})
	if err != nil {
		return nil, fmt.Errorf("error querying documents: %w", err)
	}
	if resp.Status != embedding.StatusSuccess {
		return nil, fmt.Errorf("error querying documents: %w",
			&EmbeddingError{Status: resp.Status, Message: resp.Message})
	}
	if len(resp.Output) == 0 {
		return nil, fmt.Errorf("error querying documents: embedder returned no vector")
	}

	matches, err := x.vectors.QueryItems(ctx, resp.Output[0], opts.MaxChunks, opts.Filter)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]vector.QueryResult)
	var order []string
	for _, m := range matches {
		id, _ := m.Item.Metadata["documentId"].(string)
		if id == "" {
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], m)
	}

	results := make([]*Result, 0, len(groups))
	for _, id := range order {
		uri, err := x.documentURI(ctx, id)
		if err != nil {
			return nil, err
		}
		results = append(results, newResult(x, id, uri, groups[id]))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score() > results[j].Score() })
	if len(results) > opts.MaxDocuments {
		results = results[:opts.MaxDocuments]
	}
	return results, nil
}

// CatalogStats summarizes the catalog and the underlying index.
type CatalogStats struct {
	Version        int                   `json:"version"`
	Documents      int                   `json:"documents"`
	Chunks         int                   `json:"chunks"`
	MetadataConfig vector.MetadataConfig `json:"metadata_config"`
}

// Stats returns document and chunk counts for the index.
func (x *Index) Stats(ctx context.Context) (*CatalogStats, error) {
	vstats, err := x.vectors.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if err := x.ensureCatalog(ctx); err != nil {
		return nil, err
	}
	return &CatalogStats{
		Version:        x.catalog.Version,
		Documents:      x.catalog.Count,
		Chunks:         vstats.Items,
		MetadataConfig: vstats.MetadataConfig,
	}, nil
}

// docTypeFromURI lower-cases the suffix after the last dot of the uri's last
// path segment.
func docTypeFromURI(uri string) string {
	base := uri
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}
