package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEndpoint  = "https://api.openai.com"
	defaultModel     = "text-embedding-ada-002"
	openaiMaxTokens  = 8000
	defaultHTTPLimit = 60 * time.Second
)

// OpenAIConfig configures the OpenAI embeddings client.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	Endpoint     string
	Organization string
	Timeout      time.Duration
	// RetryDelays are the waits between attempts after a rate limit response.
	// Defaults to 2s then 5s; once exhausted the rate limit is reported to
	// the caller instead of retried.
	RetryDelays []time.Duration
	Logger      *zap.Logger
}

// OpenAI calls the OpenAI embeddings API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI returns a client for cfg, applying defaults for unset fields.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPLimit
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = []time.Duration{2 * time.Second, 5 * time.Second}
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// MaxTokens returns the per-call token ceiling.
func (o *OpenAI) MaxTokens() int { return openaiMaxTokens }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbeddings embeds texts in a single API call. Rate limits are retried
// per the configured delays; an exhausted retry budget yields a rate_limited
// response, and other non-2xx statuses yield an error response. A returned
// error means the call itself could not complete (network, decode).
func (o *OpenAI) CreateEmbeddings(ctx context.Context, texts []string) (*Response, error) {
	body, err := json.Marshal(embeddingRequest{Model: o.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	var status int
	var payload []byte
	for attempt := 0; ; attempt++ {
		status, payload, err = o.post(ctx, body)
		if err != nil {
			return nil, err
		}
		if status != http.StatusTooManyRequests || attempt >= len(o.cfg.RetryDelays) {
			break
		}
		delay := o.cfg.RetryDelays[attempt]
		if o.cfg.Logger != nil {
			o.cfg.Logger.Warn("embeddings rate limited, retrying",
				zap.Duration("delay", delay), zap.Int("attempt", attempt+1))
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch {
	case status < 300:
		var decoded embeddingResponse
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		sort.Slice(decoded.Data, func(i, j int) bool {
			return decoded.Data[i].Index < decoded.Data[j].Index
		})
		output := make([][]float64, len(decoded.Data))
		for i, d := range decoded.Data {
			output[i] = d.Embedding
		}
		return &Response{Status: StatusSuccess, Output: output}, nil
	case status == http.StatusTooManyRequests:
		return &Response{
			Status:  StatusRateLimited,
			Message: "the embeddings API returned a rate limit error",
		}, nil
	default:
		return &Response{
			Status:  StatusError,
			Message: fmt.Sprintf("the embeddings API returned an error status of %d", status),
		}, nil
	}
}

func (o *OpenAI) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.cfg.Endpoint+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	if o.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", o.cfg.Organization)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read embeddings response: %w", err)
	}
	return resp.StatusCode, payload, nil
}
