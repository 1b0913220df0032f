// Package rerank scores retrieved sections with a cross-encoder served
// behind a Cohere/Jina-compatible rerank endpoint (Infinity, vLLM, TEI
// compat mode and the hosted APIs all accept this shape).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/draftdesk/internal/domain"
)

const (
	serviceName = "rerank"

	// DefaultModel is the multilingual MS MARCO cross-encoder.
	DefaultModel = "cross-encoder/mmarco-mMiniLMv2-L12-H384-v1"

	maxErrorBody = 4 << 10
)

type Config struct {
	// URL is the full rerank endpoint, e.g. http://reranker:7997/rerank
	URL    string
	APIKey string
	Model  string

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HTTPClient *http.Client
}

// Client implements service.Reranker over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient}
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank scores every reference against question and returns them with the
// relevance score in Score. Order follows the endpoint's response.
func (c *Client) Rerank(ctx context.Context, question string, refs []domain.RetrievedReference) ([]domain.RetrievedReference, error) {
	if len(refs) == 0 {
		return refs, nil
	}

	docs := make([]string, len(refs))
	for i, r := range refs {
		docs[i] = r.Content
	}
	body, err := json.Marshal(rerankRequest{
		Model:     c.cfg.Model,
		Query:     question,
		Documents: docs,
		TopN:      len(docs),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rerank request: %w", err)
	}

	var resp *rerankResponse
	operation := func() error {
		got, err := c.post(ctx, body)
		if err != nil {
			if !domain.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = got
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.Printf("rerank: candidates=%d retrying in %s: %v", len(refs), wait, err)
	}
	if err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1)), ctx),
		notify); err != nil {
		return nil, err
	}

	return applyScores(refs, resp.Results)
}

func (c *Client) post(ctx context.Context, body []byte) (*rerankResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("rerank request cancelled: %w", err)
		}
		return nil, domain.NewUpstreamServiceError(&domain.UpstreamError{
			Service: serviceName,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		})
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, domain.NewUpstreamServiceError(&domain.UpstreamError{
			Service: serviceName,
			Status:  httpResp.StatusCode,
			Body:    string(bytes.TrimSpace(msg)),
			Err:     fmt.Errorf("unexpected status %d", httpResp.StatusCode),
		})
	}

	var out rerankResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, domain.NewMalformedResponse(serviceName, fmt.Sprintf("invalid JSON: %v", err))
	}
	return &out, nil
}

func applyScores(refs []domain.RetrievedReference, results []rerankResult) ([]domain.RetrievedReference, error) {
	if len(results) == 0 {
		return nil, domain.NewMalformedResponse(serviceName, "no results")
	}

	seen := make(map[int]struct{}, len(results))
	out := make([]domain.RetrievedReference, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(refs) {
			return nil, domain.NewResponseShapeError(serviceName, fmt.Sprintf("result index %d out of range", r.Index))
		}
		if _, dup := seen[r.Index]; dup {
			return nil, domain.NewResponseShapeError(serviceName, fmt.Sprintf("duplicate result index %d", r.Index))
		}
		seen[r.Index] = struct{}{}

		ref := refs[r.Index]
		ref.Score = r.RelevanceScore
		out = append(out, ref)
	}
	return out, nil
}
