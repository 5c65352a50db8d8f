// Package rerank implements the optional cross-encoder reranking backend
// (spec §4.10): a batch scoring HTTP client with rolling z-score
// calibration, outlier rejection, and drift detection.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sercha/retrieval-core/internal/core/ports/driven"
	"github.com/sercha/retrieval-core/internal/logger"
)

var _ driven.Reranker = (*Client)(nil)

const (
	// DefaultBaseURL is the scoring backend's chat-completions endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the cross-encoder-style scoring model.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds a single batch request.
	DefaultTimeout = 30 * time.Second

	// candidateTruncateLen is the per-candidate text truncation length
	// used in the batch prompt.
	candidateTruncateLen = 500

	// maxBatchCandidates is the first-N fused candidates ever sent to the
	// reranker.
	maxBatchCandidates = 10

	// proactiveRate throttles outbound batch requests.
	proactiveRate = 2.0

	// statsAlpha smooths the rolling mean/std across batches.
	statsAlpha = 0.15

	// minStd floors the smoothed standard deviation so a degenerate batch
	// never divides by zero.
	minStd = 0.01

	// zClampBound bounds the normalized z-score before the sigmoid.
	zClampBound = 3.0

	// outlierZBound rejects a candidate whose z-score exceeds this in
	// magnitude, pre-clamp.
	outlierZBound = 5.0

	// driftSampleFloor is the minimum sample count before drift detection
	// is armed.
	driftSampleFloor = 5

	// driftMeanDelta triggers a stats reset when exceeded.
	driftMeanDelta = 0.4

	// frozenBatchVariance below this, a batch is considered frozen
	// (uniform scores) and does not update the rolling stats.
	frozenBatchVariance = 0.001
)

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// InitialMean and InitialStd seed the rolling statistics from
	// persisted values (spec §4.10) when Seeded is true; otherwise they
	// are ignored and the first batch seeds the statistics directly.
	InitialMean float64
	InitialStd  float64
	Seeded      bool
}

// Client is the cross-encoder rerank backend adapter.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
	apiKey  string
	model   string

	mu      sync.Mutex
	mean    float64
	std     float64
	samples int
	stable  bool
}

// NewClient constructs a Client, optionally seeded with persisted
// calibration statistics.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rerank: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(proactiveRate), 1),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
	if cfg.Seeded {
		c.mean = cfg.InitialMean
		c.std = cfg.InitialStd
		c.stable = true
	}
	return c, nil
}

// ModelName returns the display name used for persisted metadata keys.
func (c *Client) ModelName() string { return c.model }

// Stats returns the current rolling mean and standard deviation for the
// caller to persist under the reranker's model key.
func (c *Client) Stats() driven.RerankStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return driven.RerankStats{Mean: c.mean, Std: c.std, Samples: c.samples}
}

type scoreRequest struct {
	Model    string     `json:"model"`
	Messages []scoreMsg `json:"messages"`
}

type scoreMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ScoreBatch scores up to the first 10 texts against query, returning
// one RerankHit per surviving candidate, each tagged with its original
// index into texts. On any backend error it returns the error; callers
// must fall back to the pre-rerank list themselves (spec §4.10, §7 —
// backend failure is non-fatal to the caller).
func (c *Client) ScoreBatch(ctx context.Context, query string, texts []string) ([]driven.RerankHit, error) {
	if len(texts) > maxBatchCandidates {
		texts = texts[:maxBatchCandidates]
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.requestBatch(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("rerank: backend returned %d scores for %d candidates", len(raw), len(texts))
	}

	return c.normalize(raw), nil
}

// ScoreBatchAsync runs ScoreBatch on a background goroutine, per spec
// §4.10's asynchronous contract and §5's "future-style completion".
func (c *Client) ScoreBatchAsync(ctx context.Context, query string, texts []string) <-chan driven.RerankBatchResult {
	out := make(chan driven.RerankBatchResult, 1)
	go func() {
		hits, err := c.ScoreBatch(ctx, query, texts)
		out <- driven.RerankBatchResult{Hits: hits, Err: err}
		close(out)
	}()
	return out
}

func (c *Client) requestBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nScore each candidate's relevance to the query on a 0.0-1.0 scale. Respond with a JSON array of %d floats in candidate order, nothing else.\n\n", query, len(texts))
	for i, text := range texts {
		if len(text) > candidateTruncateLen {
			text = text[:candidateTruncateLen]
		}
		fmt.Fprintf(&b, "[%d] %s\n", i, text)
	}

	reqBody := scoreRequest{
		Model: c.model,
		Messages: []scoreMsg{
			{Role: "user", Content: b.String()},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rerank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rerank: read response: %w", err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("rerank: backend error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("rerank: empty response")
	}

	var scores []float64
	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &scores); err != nil {
		return nil, fmt.Errorf("rerank: malformed score array: %w", err)
	}
	return scores, nil
}

// normalize applies the rolling z-score calibration described in spec
// §4.10: batch statistics update the rolling mean/std (a frozen batch
// leaves them unchanged; a drifted batch replaces them with its own
// mean/std), then each score is normalized
// through a clamped sigmoid. Outliers are rejected (dropped) from the
// output, so the returned slice may be shorter than raw — each
// surviving hit carries its original index into raw so the caller can
// still map it back onto the candidate it scored.
func (c *Client) normalize(raw []float64) []driven.RerankHit {
	batchMean, batchStd := meanStd(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	frozen := consistencySum(raw) < frozenBatchVariance

	if c.samples == 0 && !c.stable {
		c.mean = batchMean
		c.std = math.Max(minStd, batchStd)
	} else {
		if c.samples >= driftSampleFloor && math.Abs(batchMean-c.mean) > driftMeanDelta {
			logger.Warn("rerank: drift detected (batchMean=%.3f mean=%.3f), resetting rolling stats", batchMean, c.mean)
			c.samples = 0
			c.mean = batchMean
			c.std = math.Max(minStd, batchStd)
		} else if frozen {
			logger.Debug("rerank: frozen batch detected (uniform scores), stats not updated")
		} else {
			c.mean = (1-statsAlpha)*c.mean + statsAlpha*batchMean
			c.std = (1-statsAlpha)*c.std + statsAlpha*math.Max(minStd, batchStd)
		}
	}
	c.samples += len(raw)
	c.stable = true

	mean, std := c.mean, c.std

	out := make([]driven.RerankHit, 0, len(raw))
	for i, x := range raw {
		z := (x - mean) / std
		if math.Abs(z) > outlierZBound {
			continue
		}
		clamped := math.Max(-zClampBound, math.Min(zClampBound, z))
		out = append(out, driven.RerankHit{Index: i, Score: sigmoid(clamped)})
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// consistencySum computes Sum (s - 0.5)^2 over a batch: the frozen-batch
// signal, since a batch of uniform scores near 0.5 yields a value near
// zero (spec §4.10).
func consistencySum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - 0.5
		sum += d * d
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
