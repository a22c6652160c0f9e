package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

func init() {
	backoffUnit = time.Millisecond
}

func newTestClient(t *testing.T, url string) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient(ClientConfig{
		Endpoint:   url,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNewHTTPClientValidation(t *testing.T) {
	if _, err := NewHTTPClient(ClientConfig{APIKey: "k"}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
	if _, err := NewHTTPClient(ClientConfig{Endpoint: "http://localhost"}); err == nil {
		t.Error("Expected error for empty API key")
	}
}

func TestHTTPClientSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}

		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Text != "Hello there" || req.Voice != "alloy" {
			t.Errorf("Unexpected request %+v", req)
		}
		if req.Format != "g711_ulaw" || req.SampleRate != 8000 {
			t.Errorf("Expected telephony output format, got %s@%d", req.Format, req.SampleRate)
		}

		w.Header().Set("Content-Type", "audio/basic")
		w.Write([]byte{0x10, 0x20, 0x30})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Synthesize(context.Background(), Request{Text: "Hello there", Voice: "alloy"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if result.Format != audio.Telephony {
		t.Errorf("Expected telephony format, got %s", result.Format)
	}
	if len(result.Audio) != 3 {
		t.Errorf("Expected 3 bytes of audio, got %d", len(result.Audio))
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestHTTPClientRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "audio/L16; rate=24000")
		w.Write([]byte{1, 0, 2, 0})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Synthesize(context.Background(), Request{Text: "retry me"})
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}
	if result.Format.Encoding != audio.EncodingPCM16 || result.Format.SampleRate != 24000 {
		t.Errorf("Expected pcm16@24000, got %s", result.Format)
	}
	if client.GetStats().TotalRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", client.GetStats().TotalRetries)
	}
}

func TestHTTPClientDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Synthesize(context.Background(), Request{Text: "nope"})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected StatusError 400, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", calls.Load())
	}
	if client.GetStats().FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", client.GetStats().FailedRequests)
	}
}

func TestHTTPClientRejectsEmptyText(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	_, err := client.Synthesize(context.Background(), Request{Text: "   "})
	if CodeOf(err) != CodeEmptyAudio {
		t.Errorf("Expected %s, got %v", CodeEmptyAudio, err)
	}
}

func TestHTTPClientWarm(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusMethodNotAllowed)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD warm-up, got %s", r.Method)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.Warm(context.Background()); err != nil {
		t.Errorf("Expected 405 to count as warm, got %v", err)
	}

	status.Store(http.StatusUnauthorized)
	if err := client.Warm(context.Background()); err == nil {
		t.Error("Expected error for unauthorized warm-up")
	}
}

func TestFormatFromContentType(t *testing.T) {
	requested := audio.Format{Encoding: audio.EncodingPCM16, SampleRate: 16000}

	tests := []struct {
		contentType string
		want        audio.Format
	}{
		{"audio/wav", audio.Format{Encoding: audio.EncodingWAV, SampleRate: 16000}},
		{"audio/x-wav", audio.Format{Encoding: audio.EncodingWAV, SampleRate: 16000}},
		{"audio/basic", audio.Telephony},
		{"audio/L16; rate=8000", audio.Format{Encoding: audio.EncodingPCM16, SampleRate: 8000}},
		{"application/octet-stream", requested},
		{"", requested},
	}

	for _, tt := range tests {
		if got := formatFromContentType(tt.contentType, requested); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.contentType, tt.want, got)
		}
	}
}
