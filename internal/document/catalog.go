package document

// Catalog maps document URIs to content-derived document ids and back. It is
// persisted alongside the vector snapshot and mutated only inside the same
// transaction as the chunk writes it accompanies.
type Catalog struct {
	Version int               `json:"version"`
	Count   int               `json:"count"`
	URIToID map[string]string `json:"uriToId"`
	IDToURI map[string]string `json:"idToUri"`
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Version: 1,
		URIToID: make(map[string]string),
		IDToURI: make(map[string]string),
	}
}

// Clone returns a deep copy.
func (c *Catalog) Clone() *Catalog {
	cp := &Catalog{
		Version: c.Version,
		Count:   c.Count,
		URIToID: make(map[string]string, len(c.URIToID)),
		IDToURI: make(map[string]string, len(c.IDToURI)),
	}
	for k, v := range c.URIToID {
		cp.URIToID[k] = v
	}
	for k, v := range c.IDToURI {
		cp.IDToURI[k] = v
	}
	return cp
}

// Add records both directions of a uri/id pair and bumps the count.
func (c *Catalog) Add(uri, id string) {
	c.URIToID[uri] = id
	c.IDToURI[id] = uri
	c.Count++
}

// Remove drops both directions of a uri/id pair and decrements the count.
// Removing an absent pair is a no-op.
func (c *Catalog) Remove(uri, id string) {
	if _, ok := c.URIToID[uri]; !ok {
		return
	}
	delete(c.URIToID, uri)
	delete(c.IDToURI, id)
	c.Count--
}
