package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/bridge"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
)

// MediaHandler accepts telephony media stream WebSockets and hands each one
// to the bridge.
type MediaHandler struct {
	bridge   *bridge.Bridge
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxCalls int

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.RWMutex
	active        int
	accepted      uint64
	rejected      uint64
	upgradeErrors uint64
	stopped       bool
}

// MediaStatistics contains media endpoint counters
type MediaStatistics struct {
	ActiveConnections int    `json:"active_connections"`
	MaxConnections    int    `json:"max_connections"`
	Accepted          uint64 `json:"accepted"`
	Rejected          uint64 `json:"rejected"`
	UpgradeErrors     uint64 `json:"upgrade_errors"`
}

// NewMediaHandler creates a handler admitting at most maxCalls concurrent
// streams. An empty allowedOrigins list accepts any origin; telephony
// providers usually send none.
func NewMediaHandler(b *bridge.Bridge, maxCalls int, allowedOrigins []string, logger *slog.Logger, m *metrics.Metrics) *MediaHandler {
	ctx, cancel := context.WithCancel(context.Background())

	h := &MediaHandler{
		bridge:   b,
		logger:   logger,
		metrics:  m,
		maxCalls: maxCalls,
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// ServeHTTP upgrades the request and blocks for the life of the call.
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.reserve() {
		h.metrics.RecordCallRejected("capacity")
		h.logger.Warn("Rejecting media stream",
			slog.String("remote", r.RemoteAddr),
			slog.Int("max_connections", h.maxCalls))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.mu.Lock()
		h.upgradeErrors++
		h.mu.Unlock()
		h.logger.Warn("Media stream upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Debug("Media stream connected", slog.String("remote", r.RemoteAddr))
	h.bridge.Serve(h.ctx, conn)
}

// reserve takes a connection slot.
func (h *MediaHandler) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || (h.maxCalls > 0 && h.active >= h.maxCalls) {
		h.rejected++
		return false
	}
	h.active++
	h.accepted++
	h.wg.Add(1)
	return true
}

func (h *MediaHandler) release() {
	h.mu.Lock()
	h.active--
	h.mu.Unlock()
	h.wg.Done()
}

// Stop ends every call in progress and waits for the workers to return.
// New streams are refused afterwards.
func (h *MediaHandler) Stop() {
	h.mu.Lock()
	h.stopped = true
	active := h.active
	h.mu.Unlock()

	h.logger.Info("Stopping media handler", slog.Int("active_connections", active))
	h.cancel()
	h.wg.Wait()
}

// GetStatistics returns media endpoint counters
func (h *MediaHandler) GetStatistics() MediaStatistics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return MediaStatistics{
		ActiveConnections: h.active,
		MaxConnections:    h.maxCalls,
		Accepted:          h.accepted,
		Rejected:          h.rejected,
		UpgradeErrors:     h.upgradeErrors,
	}
}
