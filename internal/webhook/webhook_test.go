package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
)

func init() {
	retryDelay = time.Millisecond
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recorder struct {
	mu      sync.Mutex
	events  []Event
	headers []http.Header
}

func (r *recorder) handler(status func(n int) int) http.HandlerFunc {
	var calls atomic.Int32
	return func(w http.ResponseWriter, req *http.Request) {
		n := int(calls.Add(1))
		body, _ := io.ReadAll(req.Body)
		var ev Event
		json.Unmarshal(body, &ev)

		r.mu.Lock()
		r.events = append(r.events, ev)
		r.headers = append(r.headers, req.Header.Clone())
		r.mu.Unlock()

		w.WriteHeader(status(n))
	}
}

func testCall() Call {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return Call{StreamSID: "MZ1", CallSID: "CA1", From: "+15550100", To: "+15550199", StartedAt: start}
}

func TestCallStartedAndEnded(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(func(int) int { return http.StatusOK }))
	defer srv.Close()

	n, err := NewHTTPNotifier(Config{URL: srv.URL, Secret: "s3cret"}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewHTTPNotifier failed: %v", err)
	}

	call := testCall()
	if err := n.CallStarted(context.Background(), call); err != nil {
		t.Fatalf("CallStarted failed: %v", err)
	}
	call.EndedAt = call.StartedAt.Add(90 * time.Second)
	if err := n.CallEnded(context.Background(), call, summary.Record{Summary: "Booked a visit."}); err != nil {
		t.Fatalf("CallEnded failed: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(rec.events))
	}
	if rec.events[0].Type != EventCallStarted || rec.events[0].Summary != nil {
		t.Errorf("Unexpected start event %+v", rec.events[0])
	}
	ended := rec.events[1]
	if ended.Type != EventCallEnded || ended.Summary == nil || ended.Summary.Summary != "Booked a visit." {
		t.Errorf("Unexpected end event %+v", ended)
	}
	if ended.DurationSeconds != 90 {
		t.Errorf("Expected 90s duration, got %v", ended.DurationSeconds)
	}
	if ended.ID == "" || ended.ID == rec.events[0].ID {
		t.Error("Expected distinct event ids")
	}
	if sig := rec.headers[0].Get(SignatureHeader); len(sig) != len("sha256=")+64 {
		t.Errorf("Expected signature header, got %q", sig)
	}
}

func TestRetryOnce(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(func(n int) int {
		if n == 1 {
			return http.StatusBadGateway
		}
		return http.StatusNoContent
	}))
	defer srv.Close()

	n, _ := NewHTTPNotifier(Config{URL: srv.URL}, testLogger(), nil)
	if err := n.CallStarted(context.Background(), testCall()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(rec.events) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(rec.events))
	}
	if rec.events[0].ID != rec.events[1].ID {
		t.Error("Expected the retry to carry the same event id")
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(func(int) int { return http.StatusBadRequest }))
	defer srv.Close()

	n, _ := NewHTTPNotifier(Config{URL: srv.URL}, testLogger(), nil)
	err := n.CallStarted(context.Background(), testCall())

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 status error, got %v", err)
	}
	if len(rec.events) != 1 {
		t.Errorf("Expected a single attempt, got %d", len(rec.events))
	}
}

func TestGivesUpAfterOneRetry(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(func(int) int { return http.StatusServiceUnavailable }))
	defer srv.Close()

	n, _ := NewHTTPNotifier(Config{URL: srv.URL}, testLogger(), nil)
	if err := n.CallStarted(context.Background(), testCall()); err == nil {
		t.Fatal("Expected failure")
	}
	if len(rec.events) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(rec.events))
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	n, _ := NewHTTPNotifier(Config{URL: srv.URL, Timeout: 20 * time.Millisecond}, testLogger(), nil)

	start := time.Now()
	if err := n.CallStarted(context.Background(), testCall()); err == nil {
		t.Fatal("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Delivery took %v", elapsed)
	}
}

func TestConfig(t *testing.T) {
	if _, err := NewHTTPNotifier(Config{}, testLogger(), nil); err == nil {
		t.Error("Expected error without url")
	}
	n, _ := NewHTTPNotifier(Config{URL: "http://example.invalid", Timeout: time.Minute}, testLogger(), nil)
	if n.timeout != MaxTimeout {
		t.Errorf("Expected timeout capped at %v, got %v", MaxTimeout, n.timeout)
	}

	var _ Notifier = Nop{}
	if err := (Nop{}).CallStarted(context.Background(), testCall()); err != nil {
		t.Errorf("Nop returned %v", err)
	}
}

func TestSign(t *testing.T) {
	a := Sign("k", []byte("body"))
	if a != Sign("k", []byte("body")) {
		t.Error("Expected deterministic signature")
	}
	if a == Sign("other", []byte("body")) {
		t.Error("Expected key to change the signature")
	}
}
