package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Gateway is a transport backed by a remote name-addressed content gateway
// (an IPFS/IPNS-style service). Records are published under a server-issued
// key and resolve under a public id; raw text is stored content-addressed.
type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// GatewayConfig holds the settings for constructing a Gateway.
type GatewayConfig struct {
	// BaseURL is the gateway API base, without a trailing slash.
	BaseURL string
	// APIKey is sent as a Bearer token on every request.
	APIKey string
	// Timeout is the per-request timeout; 0 means 30s.
	Timeout time.Duration
}

// NewGateway constructs a Gateway from the given config.
func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Create asks the gateway to generate a publishing key for a new record.
func (g *Gateway) Create(ctx context.Context) (*Handle, error) {
	var out Handle
	if err := g.do(ctx, http.MethodPost, "/api/v0/keys", nil, &out); err != nil {
		return nil, fmt.Errorf("gateway create key: %w", err)
	}
	if out.Name == "" || out.ID == "" {
		return nil, fmt.Errorf("gateway create key: empty handle in response")
	}
	return &out, nil
}

// Publish uploads blob and binds it to the record's public name. The call
// returns nil only once the gateway confirms the record resolves.
func (g *Gateway) Publish(ctx context.Context, name string, blob []byte) error {
	var out struct {
		Value string `json:"value"`
	}
	path := "/api/v0/records/" + url.PathEscape(name)
	if err := g.do(ctx, http.MethodPut, path, blob, &out); err != nil {
		return fmt.Errorf("gateway publish %q: %w", name, err)
	}
	if out.Value == "" {
		return fmt.Errorf("gateway publish %q: publication not acknowledged", name)
	}
	return nil
}

// Fetch resolves name and returns the last published blob.
func (g *Gateway) Fetch(ctx context.Context, name string) ([]byte, error) {
	body, status, err := g.get(ctx, "/ipns/"+url.PathEscape(name))
	if err != nil {
		return nil, fmt.Errorf("gateway fetch %q: %w", name, err)
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gateway fetch %q: status %d", name, status)
	}
	return body, nil
}

// Exists reports whether name currently resolves on the gateway.
func (g *Gateway) Exists(ctx context.Context, name string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.baseURL+"/ipns/"+url.PathEscape(name), nil)
	if err != nil {
		return false
	}
	g.auth(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Remove deletes the record's publishing key on the gateway.
func (g *Gateway) Remove(ctx context.Context, name string) error {
	if err := g.do(ctx, http.MethodDelete, "/api/v0/keys/"+url.PathEscape(name), nil, nil); err != nil {
		return fmt.Errorf("gateway remove %q: %w", name, err)
	}
	return nil
}

// PutContent uploads text and returns the content id the gateway assigned.
func (g *Gateway) PutContent(ctx context.Context, text string) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	if err := g.do(ctx, http.MethodPost, "/api/v0/contents", []byte(text), &out); err != nil {
		return "", fmt.Errorf("gateway put content: %w", err)
	}
	return out.Hash, nil
}

// GetContent fetches the text stored under a content id.
func (g *Gateway) GetContent(ctx context.Context, id string) (string, error) {
	body, status, err := g.get(ctx, "/ipfs/"+url.PathEscape(id))
	if err != nil {
		return "", fmt.Errorf("gateway get content %q: %w", id, err)
	}
	if status == http.StatusNotFound {
		return "", ErrNotFound
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("gateway get content %q: status %d", id, status)
	}
	return string(body), nil
}

func (g *Gateway) auth(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

// do issues an API request with an optional raw body and decodes a JSON
// response into out when out is non-nil.
func (g *Gateway) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	g.auth(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// get issues a plain GET and returns the body and status code.
func (g *Gateway) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	g.auth(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
