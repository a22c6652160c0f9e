package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/bridge"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/config"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/scheduler"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/synth"
)

const (
	serviceName    = "callbridge"
	serviceVersion = "1.0.0"
)

// Components are the parts of the service the HTTP API reports on.
type Components struct {
	Registry  *stream.Registry
	Bridge    *bridge.Bridge
	Media     *MediaHandler
	Scheduler *scheduler.Scheduler
	Synth     *synth.Service
	Metrics   *metrics.Metrics
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// HTTPServer provides the media endpoint and HTTP API endpoints for
// monitoring
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	components Components

	// Server state
	startTime time.Time
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, components Components) *HTTPServer {
	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		components: components,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// No write timeout: media streams stay open for the whole call.
	h.server = &http.Server{
		Addr:              appConfig.Server.ListenAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the route multiplexer, for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Media stream endpoint; wrapping would hide the hijacker
	if h.components.Media != nil {
		mux.Handle(h.config.Server.MediaPath, h.components.Media)
	}

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Call monitoring endpoints
	mux.HandleFunc("/calls", h.withMetrics("/calls", h.handleCalls))
	mux.HandleFunc("/calls/", h.withMetrics("/calls/{stream_sid}", h.handleCallDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	gatherer := h.components.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.components.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.components.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
		slog.String("media_path", h.config.Server.MediaPath),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Media streams are hijacked
// connections and are ended through MediaHandler.Stop.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := map[string]interface{}{
		"registry": map[string]interface{}{
			"status":       "running",
			"active_calls": h.components.Registry.Count(),
		},
	}
	if h.components.Media != nil {
		media := h.components.Media.GetStatistics()
		components["media"] = map[string]interface{}{
			"status":             "running",
			"active_connections": media.ActiveConnections,
			"max_connections":    media.MaxConnections,
		}
	}
	if h.components.Synth != nil {
		synthStats := h.components.Synth.GetStats()
		components["synthesis"] = map[string]interface{}{
			"status":         "running",
			"cached_prompts": synthStats.CachedPrompts,
			"fallbacks":      synthStats.Fallbacks,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	}

	writeJSON(w, health)
}

// handleCalls implements the /calls endpoint
func (h *HTTPServer) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	calls := h.components.Registry.Snapshot()

	response := map[string]interface{}{
		"total_calls": len(calls),
		"timestamp":   time.Now().UTC(),
		"calls":       calls,
	}

	writeJSON(w, response)
}

// handleCallDetail implements the /calls/{stream_sid} endpoint
func (h *HTTPServer) handleCallDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streamSID := strings.TrimPrefix(r.URL.Path, "/calls/")
	if streamSID == "" || strings.Contains(streamSID, "/") {
		http.Error(w, "Stream SID required", http.StatusBadRequest)
		return
	}

	session, exists := h.components.Registry.Get(streamSID)
	if !exists {
		http.Error(w, "Call not found", http.StatusNotFound)
		return
	}

	writeJSON(w, session.Info(time.Now()))
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.config.Sanitized())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"calls": map[string]interface{}{
			"active_count": h.components.Registry.Count(),
		},
	}
	if h.components.Bridge != nil {
		stats["bridge"] = h.components.Bridge.GetStats()
	}
	if h.components.Media != nil {
		stats["media"] = h.components.Media.GetStatistics()
	}
	if h.components.Scheduler != nil {
		stats["scheduler"] = h.components.Scheduler.GetStats()
	}
	if h.components.Synth != nil {
		stats["synthesis"] = h.components.Synth.GetStats()
	}

	writeJSON(w, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "AI Receptionist Call Bridge",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"WS " + h.config.Server.MediaPath: "Telephony media stream",
			"GET /":                           "API documentation",
			"GET /health":                     "Service health check",
			"GET /calls":                      "List active calls",
			"GET /calls/{stream_sid}":         "Get detailed call information",
			"GET /config":                     "Get sanitized service configuration",
			"GET /stats":                      "Get service statistics",
			"GET /metrics":                    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, apiDoc)
}
