package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

// Request is a single text-to-speech request.
type Request struct {
	Text   string
	Voice  string
	Format audio.Format
}

// Result is synthesized audio in the format the backend returned.
type Result struct {
	Audio  []byte
	Format audio.Format
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
	// Warm primes authentication and connection pools so the first real
	// request does not pay a cold-start penalty.
	Warm(ctx context.Context) error
}

// StatusError is a non-2xx response from the synthesis backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// ClientConfig contains the vendor TTS client configuration
type ClientConfig struct {
	Endpoint      string
	WarmupURL     string // optional; defaults to a HEAD against Endpoint
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	OutputFormat  audio.Format
	UserAgent     string
}

// HTTPClient calls a REST text-to-speech API. Requests are JSON, responses
// are raw audio whose format is taken from the Content-Type header.
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limit

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

type synthesisRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	Format     string `json:"output_format"`
	SampleRate int    `json:"sample_rate"`
}

// backoffUnit is the first retry delay; it doubles per attempt.
var backoffUnit = 250 * time.Millisecond

// NewHTTPClient creates a new synthesis HTTP client
func NewHTTPClient(config ClientConfig) (*HTTPClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 1
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}

	if config.OutputFormat.Encoding == "" {
		config.OutputFormat = audio.Telephony
	}

	if config.UserAgent == "" {
		config.UserAgent = "callbridge/1.0"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPClient{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Synthesize renders req.Text, retrying transient failures with backoff.
func (c *HTTPClient) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &AudioError{Code: CodeEmptyAudio, Detail: "empty text"}
	}
	if req.Format.Encoding == "" {
		req.Format = c.config.OutputFormat
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * backoffUnit
			if backoffTime > 5*time.Second {
				backoffTime = 5 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return nil, ctx.Err()
			}
		}

		result, err := c.doRequest(ctx, req)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return nil, fmt.Errorf("synthesis failed: %w", lastErr)
}

func (c *HTTPClient) doRequest(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:       req.Text,
		Voice:      req.Voice,
		Format:     string(req.Format.Encoding),
		SampleRate: req.Format.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 256)}
	}

	return &Result{
		Audio:  respBody,
		Format: formatFromContentType(resp.Header.Get("Content-Type"), req.Format),
	}, nil
}

// Warm issues a lightweight authenticated request to the backend.
func (c *HTTPClient) Warm(ctx context.Context) error {
	method, url := http.MethodHead, c.config.Endpoint
	if c.config.WarmupURL != "" {
		method, url = http.MethodGet, c.config.WarmupURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create warm-up request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("warm-up request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Some vendors reject HEAD on the synthesis route; only auth and server
	// errors mean the backend is not usable.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 500 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) setHeaders(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	r.Header.Set("Accept", "audio/wav, audio/basic, audio/L16")
	r.Header.Set("User-Agent", c.config.UserAgent)
}

// formatFromContentType maps a response media type to an audio format,
// falling back to what was requested.
func formatFromContentType(contentType string, requested audio.Format) audio.Format {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return requested
	}

	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return audio.Format{Encoding: audio.EncodingWAV, SampleRate: requested.SampleRate}
	case "audio/basic", "audio/x-mulaw", "audio/pcmu", "audio/mulaw":
		return audio.Telephony
	case "audio/l16", "audio/pcm":
		f := audio.Format{Encoding: audio.EncodingPCM16, SampleRate: requested.SampleRate}
		if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
			f.SampleRate = rate
		}
		return f
	default:
		return requested
	}
}

// isRetryableError reports whether a failure is transient: server errors,
// rate limiting, timeouts and connection failures.
func isRetryableError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Statistics methods
func (c *HTTPClient) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *HTTPClient) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *HTTPClient) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *HTTPClient) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *HTTPClient) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
