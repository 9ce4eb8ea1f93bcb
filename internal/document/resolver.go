package document

import "context"

// Resolver maps document URIs to document ids and back. The catalog is the
// default registry, but identity may be backed elsewhere (a database, a
// naming service), so both directions are pluggable. An empty string means
// "unknown", not an error.
type Resolver interface {
	ResolveID(ctx context.Context, uri string) (string, error)
	ResolveURI(ctx context.Context, documentID string) (string, error)
}
