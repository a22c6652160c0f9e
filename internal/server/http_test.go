package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
)

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read %s body: %v", path, err)
	}
	return resp, body
}

func newAPI(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t, 10)
	h := NewHTTPServer(f.cfg, testLogger(), f.components)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newAPI(t)

	resp, body := get(t, srv, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}
	components, ok := health["components"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected components object, got %T", health["components"])
	}
	for _, name := range []string{"registry", "media", "synthesis"} {
		if _, ok := components[name]; !ok {
			t.Errorf("Expected %s component in health report", name)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newAPI(t)

	resp, err := http.Post(srv.URL+"/health", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestCallsEndpoints(t *testing.T) {
	f, srv := newAPI(t)

	if _, err := f.components.Registry.Create(stream.Params{
		StreamSID: "MZ100",
		CallSID:   "CA100",
		From:      "+15550001111",
		ClientID:  "acme",
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resp, body := get(t, srv, "/calls")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		TotalCalls int                  `json:"total_calls"`
		Calls      []stream.SessionInfo `json:"calls"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if list.TotalCalls != 1 || len(list.Calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", list.TotalCalls)
	}
	if list.Calls[0].StreamSID != "MZ100" {
		t.Errorf("Expected MZ100, got %q", list.Calls[0].StreamSID)
	}

	resp, body = get(t, srv, "/calls/MZ100")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var info stream.SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if info.CallSID != "CA100" || info.From != "+15550001111" {
		t.Errorf("Unexpected call detail: %+v", info)
	}

	if resp, _ := get(t, srv, "/calls/MZ999"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown call, got %d", resp.StatusCode)
	}
	if resp, _ := get(t, srv, "/calls/"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without stream sid, got %d", resp.StatusCode)
	}
}

func TestConfigEndpointMasksSecrets(t *testing.T) {
	_, srv := newAPI(t)

	resp, body := get(t, srv, "/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "sk-secret") || strings.Contains(string(body), "hook-secret") {
		t.Errorf("Config response leaks secrets: %s", body)
	}
	if !strings.Contains(string(body), "***") {
		t.Errorf("Expected masked secrets in config response")
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, srv := newAPI(t)

	resp, body := get(t, srv, "/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var stats map[string]json.RawMessage
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	for _, key := range []string{"calls", "bridge", "media", "scheduler", "synthesis"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("Expected %s in stats", key)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newAPI(t)

	// Generate a request metric first
	get(t, srv, "/health")

	resp, body := get(t, srv, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"callbridge_active_calls", "callbridge_http_requests_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}

func TestRootEndpoint(t *testing.T) {
	f, srv := newAPI(t)

	resp, body := get(t, srv, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), f.cfg.Server.MediaPath) {
		t.Errorf("Expected media path in API documentation")
	}

	if resp, _ := get(t, srv, "/unknown"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", resp.StatusCode)
	}
}
