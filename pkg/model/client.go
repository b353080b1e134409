package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nexiouscaliver/AgenticOS/pkg/observability"
)

const (
	// DefaultBaseURL is the GLM API endpoint used when none is configured.
	DefaultBaseURL = "https://api.z.ai/api/paas/v4"

	catalogTTL = 24 * time.Hour
)

// DefaultTransport is the shared HTTP transport tuned for API traffic.
var DefaultTransport = &http.Transport{
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// Client talks to the GLM chat completions API. It rate-limits outbound
// requests, retries transient failures, and trips a circuit breaker when the
// upstream is persistently unhealthy.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logging    *LoggingTransport

	catalogMu sync.RWMutex
	catalog   *ModelCatalog
	fetchedAt time.Time

	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   RetryConfig

	retriesAttempted atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(rc RetryConfig) ClientOption {
	return func(c *Client) { c.retry = rc }
}

// WithRateLimit overrides the outbound request pacing.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithNetworkLogging controls request/response capture and where it lands.
func WithNetworkLogging(enabled bool, dir string) ClientOption {
	return func(c *Client) {
		if dir == "" {
			dir = defaultNetworkLogDir()
		}
		c.logging = NewLoggingTransportWithDir(DefaultTransport, enabled, dir)
		c.httpClient = &http.Client{Transport: c.logging}
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ClientOption {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// NewClient creates a client for the GLM API.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	logging := NewLoggingTransport(DefaultTransport)
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		logging:    logging,
		httpClient: &http.Client{Transport: logging},
		limiter:    rate.NewLimiter(rate.Limit(1), 10),
		breaker:    NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases client resources.
func (c *Client) Close() error {
	if c.logging != nil {
		return c.logging.Close()
	}
	return nil
}

// RetriesAttempted reports the cumulative retry count since the client was
// created or last reset.
func (c *Client) RetriesAttempted() int64 {
	return c.retriesAttempted.Load()
}

func (c *Client) resetRetryCount() {
	c.retriesAttempted.Store(0)
}

// SetTimeout adjusts the overall HTTP timeout applied to subsequent
// requests. Zero means no timeout, which is the right setting for
// long-lived streams.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// ChatCompletion performs a blocking chat completion request.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	observability.RequestsTotal.WithLabelValues(req.Model, "complete").Inc()
	start := time.Now()

	var resp *ChatResponse
	err := c.breaker.Call(func() error {
		var lastErr error
		for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
			if attempt > 0 {
				c.retriesAttempted.Add(1)
				observability.RetryAttempts.WithLabelValues(req.Model, retryReason(lastErr)).Inc()
				if err := sleepBackoff(ctx, c.retry, attempt, lastErr); err != nil {
					return err
				}
			}

			r, err := c.doChatCompletion(ctx, req)
			if err == nil {
				resp = r
				return nil
			}
			lastErr = err
			if !IsTransient(err) {
				return err
			}
		}
		observability.RetriesExhausted.WithLabelValues(req.Model).Inc()
		return fmt.Errorf("retries exhausted after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
	})

	observability.RequestLatency.WithLabelValues(req.Model, "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RequestErrors.WithLabelValues(req.Model, errorKind(err)).Inc()
		return nil, err
	}
	return resp, nil
}

func (c *Client) doChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, false)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp)
	}

	var out ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// ChatCompletionStream performs a streaming chat completion request. Chunks
// arrive on the first channel; a terminal error, if any, on the second. Both
// channels are closed when the stream ends.
func (c *Client) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 10)
	errs := make(chan error, 1)

	streamReq := *req
	streamReq.Stream = true

	observability.RequestsTotal.WithLabelValues(req.Model, "stream").Inc()

	go func() {
		defer close(chunks)
		defer close(errs)

		start := time.Now()
		err := c.executeStreamRequest(ctx, &streamReq, chunks)
		observability.RequestLatency.WithLabelValues(req.Model, "stream").Observe(time.Since(start).Seconds())
		if err != nil {
			observability.RequestErrors.WithLabelValues(req.Model, errorKind(err)).Inc()
			errs <- err
		}
	}()

	return chunks, errs
}

// executeStreamRequest opens the SSE stream and feeds chunks to the channel.
// Connection attempts are retried for transient failures, but only while no
// chunk has been delivered: once the caller has seen output, a retry would
// replay the prefix, so mid-stream failures surface as errors instead.
func (c *Client) executeStreamRequest(ctx context.Context, req *ChatRequest, chunks chan<- StreamChunk) error {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			c.retriesAttempted.Add(1)
			observability.RetryAttempts.WithLabelValues(req.Model, retryReason(lastErr)).Inc()
			if err := sleepBackoff(ctx, c.retry, attempt, lastErr); err != nil {
				return err
			}
		}

		delivered, err := c.streamOnce(ctx, req, chunks)
		if err == nil {
			return nil
		}
		if delivered || !IsTransient(err) {
			return err
		}
		lastErr = err
	}
	observability.RetriesExhausted.WithLabelValues(req.Model).Inc()
	return fmt.Errorf("stream retries exhausted after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
}

func (c *Client) streamOnce(ctx context.Context, req *ChatRequest, chunks chan<- StreamChunk) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, true)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return false, c.parseError(httpResp)
	}

	return c.parseSSEStream(ctx, httpResp.Body, chunks)
}

// parseSSEStream reads server-sent events and emits decoded chunks. It
// returns whether at least one chunk was delivered, which gates connection
// retries upstream.
func (c *Client) parseSSEStream(ctx context.Context, body io.Reader, chunks chan<- StreamChunk) (bool, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	delivered := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return delivered, nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed payloads are skipped rather than killing the stream.
			continue
		}
		chunk.Raw = []byte(data)

		select {
		case chunks <- chunk:
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return delivered, fmt.Errorf("read stream: %w", err)
	}
	return delivered, nil
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
}

// parseError converts a non-200 response into an APIError.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// FetchCatalog returns the model catalog, preferring the live endpoint and
// falling back to the curated list when the endpoint is unavailable. Results
// are cached for 24 hours.
func (c *Client) FetchCatalog(ctx context.Context) (*ModelCatalog, error) {
	c.catalogMu.RLock()
	if c.catalog != nil && time.Since(c.fetchedAt) < catalogTTL {
		cached := c.catalog
		c.catalogMu.RUnlock()
		return cached, nil
	}
	c.catalogMu.RUnlock()

	catalog, err := c.fetchCatalogRemote(ctx)
	if err != nil {
		catalog = CuratedCatalog()
	}

	c.catalogMu.Lock()
	c.catalog = catalog
	c.fetchedAt = time.Now()
	c.catalogMu.Unlock()
	return catalog, nil
}

func (c *Client) fetchCatalogRemote(ctx context.Context) (*ModelCatalog, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, false)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var catalog ModelCatalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(catalog.Data) == 0 {
		return nil, fmt.Errorf("catalog endpoint returned no models")
	}
	return &catalog, nil
}

// GetModelInfo looks a model up in the catalog, consulting the curated list
// when the live catalog does not know it.
func (c *Client) GetModelInfo(ctx context.Context, modelID string) (*ModelInfo, error) {
	catalog, err := c.FetchCatalog(ctx)
	if err == nil {
		for i := range catalog.Data {
			if catalog.Data[i].ID == modelID {
				return &catalog.Data[i], nil
			}
		}
	}
	return LookupModel(modelID)
}

// ValidateAPIKey checks that the configured key is accepted upstream.
func (c *Client) ValidateAPIKey(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, false)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return c.parseError(resp)
	}
	return nil
}

// retryReason labels retry metrics by failure class.
func retryReason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return "rate_limit"
		}
		if apiErr.StatusCode >= 500 {
			return "server_error"
		}
	}
	return "network"
}

// errorKind labels error metrics by failure class.
func errorKind(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case apiErr.StatusCode >= 500:
			return "server_error"
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return "auth"
		default:
			return "api"
		}
	}
	if IsTransient(err) {
		return "network"
	}
	return "other"
}
