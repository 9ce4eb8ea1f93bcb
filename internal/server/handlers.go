package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/acgodson/blueband-algo/internal/document"
	"github.com/acgodson/blueband-algo/internal/vector"
)

type upsertRequest struct {
	URI      string         `json:"uri"`
	Text     string         `json:"text"`
	DocType  string         `json:"docType,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryRequest struct {
	Query        string        `json:"query"`
	MaxDocuments int           `json:"maxDocuments,omitempty"`
	MaxChunks    int           `json:"maxChunks,omitempty"`
	Filter       vector.Filter `json:"filter,omitempty"`
}

type chunkResponse struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type documentResponse struct {
	ID     string          `json:"id"`
	URI    string          `json:"uri"`
	Score  float64         `json:"score"`
	Chunks []chunkResponse `json:"chunks"`
}

func toDocumentResponse(r *document.Result) documentResponse {
	chunks := make([]chunkResponse, len(r.Chunks))
	for i, c := range r.Chunks {
		chunks[i] = chunkResponse{ID: c.Item.ID, Score: c.Score}
	}
	return documentResponse{ID: r.ID(), URI: r.URI(), Score: r.Score(), Chunks: chunks}
}

func (s *Server) handleUpsertDocument(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URI == "" || req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "uri and text are required")
		return
	}
	s.mu.Lock()
	doc, err := s.index.UpsertDocument(r.Context(), req.URI, req.Text, document.UpsertOptions{
		DocType:  req.DocType,
		Metadata: req.Metadata,
	})
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("upsert failed", zap.String("uri", req.URI), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": doc.ID(), "uri": doc.URI()})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.respondError(w, http.StatusBadRequest, "uri query parameter is required")
		return
	}
	s.mu.Lock()
	err := s.index.DeleteDocument(r.Context(), uri)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("delete failed", zap.String("uri", uri), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	results, err := s.index.ListDocuments(r.Context())
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	out := make([]documentResponse, len(results))
	for i, res := range results {
		out[i] = toDocumentResponse(res)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.mu.Lock()
	results, err := s.index.QueryDocuments(r.Context(), req.Query, document.QueryOptions{
		MaxDocuments: req.MaxDocuments,
		MaxChunks:    req.MaxChunks,
		Filter:       req.Filter,
	})
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	out := make([]documentResponse, len(results))
	for i, res := range results {
		out[i] = toDocumentResponse(res)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stats, err := s.index.Stats(r.Context())
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vector.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrEmbedderNotConfigured):
		return http.StatusServiceUnavailable
	default:
		var embErr *document.EmbeddingError
		if errors.As(err, &embErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
