package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
)

const (
	EventCallStarted = "call.started"
	EventCallEnded   = "call.ended"

	// MaxTimeout bounds a single delivery attempt.
	MaxTimeout = 10 * time.Second

	SignatureHeader = "X-Callbridge-Signature"
)

// retryDelay is the pause before the single retry.
var retryDelay = 500 * time.Millisecond

// Call identifies the call an event is about.
type Call struct {
	StreamSID string    `json:"stream_sid"`
	CallSID   string    `json:"call_sid"`
	ClientID  string    `json:"client_id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// Event is the JSON body posted to the webhook.
type Event struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Timestamp       time.Time       `json:"timestamp"`
	Call            Call            `json:"call"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Summary         *summary.Record `json:"summary,omitempty"`
}

// Notifier is informed of call start and end.
type Notifier interface {
	CallStarted(ctx context.Context, call Call) error
	CallEnded(ctx context.Context, call Call, record summary.Record) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) CallStarted(context.Context, Call) error { return nil }

func (Nop) CallEnded(context.Context, Call, summary.Record) error { return nil }

// Config configures the HTTP notifier.
type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// HTTPNotifier posts events to a URL.
type HTTPNotifier struct {
	url     string
	secret  string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// NewHTTPNotifier creates a notifier. Timeouts above MaxTimeout are capped.
func NewHTTPNotifier(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*HTTPNotifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout <= 0 || cfg.Timeout > MaxTimeout {
		cfg.Timeout = MaxTimeout
	}

	return &HTTPNotifier{
		url:     cfg.URL,
		secret:  cfg.Secret,
		timeout: cfg.Timeout,
		client:  &http.Client{},
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}, nil
}

// CallStarted sends a call.started event.
func (n *HTTPNotifier) CallStarted(ctx context.Context, call Call) error {
	return n.deliver(ctx, Event{Type: EventCallStarted, Call: call})
}

// CallEnded sends a call.ended event with the call summary.
func (n *HTTPNotifier) CallEnded(ctx context.Context, call Call, record summary.Record) error {
	ev := Event{Type: EventCallEnded, Call: call, Summary: &record}
	if !call.EndedAt.IsZero() && call.EndedAt.After(call.StartedAt) {
		ev.DurationSeconds = call.EndedAt.Sub(call.StartedAt).Seconds()
	}
	return n.deliver(ctx, ev)
}

func (n *HTTPNotifier) deliver(ctx context.Context, ev Event) error {
	ev.ID = uuid.NewString()
	ev.Timestamp = n.now().UTC()

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode webhook event: %w", err)
	}

	err = n.post(ctx, ev, body)
	if err != nil && retryable(err) && ctx.Err() == nil {
		n.metrics.RecordWebhookRetry()
		n.logger.Debug("Retrying webhook delivery",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(retryDelay):
			err = n.post(ctx, ev, body)
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	if err != nil {
		n.metrics.RecordWebhook(ev.Type, "failed")
		n.logger.Warn("Webhook delivery failed",
			slog.String("event", ev.Type),
			slog.String("stream_sid", ev.Call.StreamSID),
			slog.String("error", err.Error()),
		)
		return err
	}

	n.metrics.RecordWebhook(ev.Type, "delivered")
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, ev Event, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Callbridge-Event", ev.Type)
	req.Header.Set("X-Callbridge-Delivery", ev.ID)
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Sign returns the hex HMAC-SHA256 of body, prefixed with "sha256=".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
