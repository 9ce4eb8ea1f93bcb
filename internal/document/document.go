package document

import (
	"context"
	"fmt"
)

// Document is a handle to an indexed document. Text is not held by the index;
// it is fetched from the content store on first use and cached on the handle.
type Document struct {
	index *Index
	id    string
	uri   string

	text   string
	loaded bool
}

func newDocument(index *Index, id, uri string) *Document {
	return &Document{index: index, id: id, uri: uri}
}

// ID returns the content-derived document id.
func (d *Document) ID() string { return d.id }

// URI returns the document's uri.
func (d *Document) URI() string { return d.uri }

// LoadText fetches the document's raw text from the content store, at most
// once per handle.
func (d *Document) LoadText(ctx context.Context) (string, error) {
	if d.loaded {
		return d.text, nil
	}
	text, err := d.index.transport.GetContent(ctx, d.id)
	if err != nil {
		return "", fmt.Errorf("error reading text for document %q: %w", d.uri, err)
	}
	d.text = text
	d.loaded = true
	return text, nil
}

// Length returns the document's length in tokens. Short texts are counted
// exactly; texts over 40000 characters use the four-characters-per-token
// estimate to avoid tokenizing very large documents.
func (d *Document) Length(ctx context.Context) (int, error) {
	text, err := d.LoadText(ctx)
	if err != nil {
		return 0, err
	}
	if len(text) <= 40000 {
		return len(d.index.tokenizer.Encode(text)), nil
	}
	return (len(text) + 3) / 4, nil
}
