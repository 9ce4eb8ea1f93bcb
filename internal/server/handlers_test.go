package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/acgodson/blueband-algo/internal/config"
	"github.com/acgodson/blueband-algo/internal/document"
	"github.com/acgodson/blueband-algo/internal/embedding"
	"github.com/acgodson/blueband-algo/internal/transport"
	"github.com/acgodson/blueband-algo/internal/vector"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	idx := document.NewIndex(document.Options{
		Transport: transport.NewMemory(),
		Embedder:  embedding.NewMock(16),
	})
	if _, err := idx.Create(context.Background(), vector.CreateConfig{}); err != nil {
		t.Fatal(err)
	}
	cfg := &config.ServerConfig{Host: "localhost", Port: 0}
	return NewServer(idx, cfg, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status %d", rec.Code)
	}
}

func TestUpsertQueryDelete(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/documents", upsertRequest{
		URI:  "notes.txt",
		Text: "the quick brown fox jumps over the lazy dog",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upsert status %d: %s", rec.Code, rec.Body)
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created["id"] == "" || created["uri"] != "notes.txt" {
		t.Errorf("created %v", created)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/query", queryRequest{
		Query: "the quick brown fox jumps over the lazy dog",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status %d: %s", rec.Code, rec.Body)
	}
	var queried struct {
		Results []documentResponse `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &queried); err != nil {
		t.Fatal(err)
	}
	if len(queried.Results) != 1 || queried.Results[0].URI != "notes.txt" {
		t.Fatalf("results %+v", queried.Results)
	}
	if queried.Results[0].Score < 0.999 {
		t.Errorf("score %v for identical text", queried.Results[0].Score)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint %d", rec.Code)
	}
	var stats document.CatalogStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents=%d, want 1", stats.Documents)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/documents?uri=notes.txt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/v1/documents", nil)
	var listed struct {
		Documents []documentResponse `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Documents) != 0 {
		t.Errorf("documents after delete: %+v", listed.Documents)
	}
}

func TestUpsertValidation(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/documents", upsertRequest{URI: "a.txt"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing text: status %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/documents", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing uri: status %d", rec.Code)
	}
}

func TestQueryWithoutEmbedder(t *testing.T) {
	idx := document.NewIndex(document.Options{Transport: transport.NewMemory()})
	if _, err := idx.Create(context.Background(), vector.CreateConfig{}); err != nil {
		t.Fatal(err)
	}
	s := NewServer(idx, &config.ServerConfig{}, zap.NewNop())
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/v1/query", queryRequest{Query: "q"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", rec.Code)
	}
}

func TestFileCallbacksSerializeWithHandlers(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()
	ctx := context.Background()

	// Watch callbacks run on their own goroutines; UpsertFile and RemoveFile
	// must share the handlers' lock so the race detector stays quiet while
	// queries run concurrently.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			uri := "watched.txt"
			if err := s.UpsertFile(ctx, uri, "files arrive from the watcher"); err != nil {
				t.Errorf("UpsertFile: %v", err)
				return
			}
			if i%5 == 4 {
				if err := s.RemoveFile(ctx, uri); err != nil {
					t.Errorf("RemoveFile: %v", err)
					return
				}
			}
		}
	}()

	for i := 0; i < 20; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/query", queryRequest{
			Query: "files arrive from the watcher",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("query status %d: %s", rec.Code, rec.Body)
		}
	}
	<-done

	if err := s.UpsertFile(ctx, "watched.txt", "final revision"); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	var stats document.CatalogStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents=%d, want 1", stats.Documents)
	}
}
