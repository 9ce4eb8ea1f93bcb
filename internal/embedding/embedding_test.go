package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMockDeterministic(t *testing.T) {
	m := NewMock(8)
	ctx := context.Background()
	a, err := m.CreateEmbeddings(ctx, []string{"hello", "world"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.CreateEmbeddings(ctx, []string{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusSuccess || len(a.Output) != 2 {
		t.Fatalf("response %+v", a)
	}
	for i := range a.Output[0] {
		if a.Output[0][i] != b.Output[0][i] {
			t.Fatal("same text produced different vectors")
		}
	}

	// Unit length.
	var sum float64
	for _, v := range a.Output[0] {
		sum += v * v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("vector norm^2 = %v, want 1", sum)
	}
}

func TestOpenAISuccess(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		gotModel = req.Model
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth header %q", r.Header.Get("Authorization"))
		}
		// Out-of-order indices must be sorted by the client.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1}},
				{"index": 0, "embedding": []float64{1, 0}},
			},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "test-key", Endpoint: srv.URL})
	resp, err := o.CreateEmbeddings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusSuccess {
		t.Fatalf("status %q: %s", resp.Status, resp.Message)
	}
	if gotModel != defaultModel {
		t.Errorf("model %q", gotModel)
	}
	if resp.Output[0][0] != 1 || resp.Output[1][1] != 1 {
		t.Errorf("output not sorted by index: %v", resp.Output)
	}
}

func TestOpenAIRateLimitRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float64{1}}},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{
		APIKey:      "k",
		Endpoint:    srv.URL,
		RetryDelays: []time.Duration{time.Millisecond},
	})
	resp, err := o.CreateEmbeddings(context.Background(), []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusSuccess {
		t.Errorf("status %q after retry", resp.Status)
	}
	if calls != 2 {
		t.Errorf("calls=%d, want 2", calls)
	}
}

func TestOpenAIRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{
		APIKey:      "k",
		Endpoint:    srv.URL,
		RetryDelays: []time.Duration{time.Millisecond},
	})
	resp, err := o.CreateEmbeddings(context.Background(), []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusRateLimited {
		t.Errorf("status %q, want rate_limited", resp.Status)
	}
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "k", Endpoint: srv.URL})
	resp, err := o.CreateEmbeddings(context.Background(), []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusError {
		t.Errorf("status %q, want error", resp.Status)
	}
	if resp.Message == "" {
		t.Error("expected a message on error status")
	}
}

// countingEmbedder records how many texts reach the inner embedder.
type countingEmbedder struct {
	inner Embedder
	seen  int
}

func (c *countingEmbedder) MaxTokens() int { return c.inner.MaxTokens() }

func (c *countingEmbedder) CreateEmbeddings(ctx context.Context, texts []string) (*Response, error) {
	c.seen += len(texts)
	return c.inner.CreateEmbeddings(ctx, texts)
}

func TestCachedAvoidsRepeatCalls(t *testing.T) {
	counter := &countingEmbedder{inner: NewMock(4)}
	cached := NewCached(counter, 16)
	ctx := context.Background()

	first, err := cached.CreateEmbeddings(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if counter.seen != 2 {
		t.Fatalf("inner saw %d texts, want 2", counter.seen)
	}

	// One hit, one miss.
	second, err := cached.CreateEmbeddings(ctx, []string{"a", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if counter.seen != 3 {
		t.Errorf("inner saw %d texts, want 3", counter.seen)
	}
	if second.Output[0][0] != first.Output[0][0] {
		t.Error("cached vector differs from original")
	}
}

func TestCachedEviction(t *testing.T) {
	counter := &countingEmbedder{inner: NewMock(4)}
	cached := NewCached(counter, 1)
	ctx := context.Background()

	if _, err := cached.CreateEmbeddings(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.CreateEmbeddings(ctx, []string{"b"}); err != nil {
		t.Fatal(err)
	}
	// "a" was evicted by "b", so it must reach the inner embedder again.
	if _, err := cached.CreateEmbeddings(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if counter.seen != 3 {
		t.Errorf("inner saw %d texts, want 3", counter.seen)
	}
}

// truncatingEmbedder returns fewer embeddings than texts requested.
type truncatingEmbedder struct {
	inner Embedder
}

func (e *truncatingEmbedder) MaxTokens() int { return e.inner.MaxTokens() }

func (e *truncatingEmbedder) CreateEmbeddings(ctx context.Context, texts []string) (*Response, error) {
	resp, err := e.inner.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(resp.Output) > 1 {
		resp.Output = resp.Output[:1]
	}
	return resp, nil
}

func TestCachedRejectsOutputLengthMismatch(t *testing.T) {
	counter := &countingEmbedder{inner: NewMock(4)}
	cached := NewCached(&truncatingEmbedder{inner: counter}, 16)
	ctx := context.Background()

	_, err := cached.CreateEmbeddings(ctx, []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected an error for a short embedding batch")
	}

	// Nothing from the bad batch was cached, so "a" reaches the inner
	// embedder again.
	if _, err := cached.CreateEmbeddings(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if counter.seen != 4 {
		t.Errorf("inner saw %d texts, want 4", counter.seen)
	}
}
