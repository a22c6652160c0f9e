package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
)

var (
	// ErrSessionExists is returned when a stream id already has a live session.
	ErrSessionExists = errors.New("stream session already exists")
	// ErrSessionRetired is returned when a stream id was used by an earlier call.
	ErrSessionRetired = errors.New("stream id already used")
)

const (
	DefaultStaleTimeout     = 2 * time.Minute
	DefaultRetiredRetention = 24 * time.Hour
	DefaultCleanupInterval  = 30 * time.Second
)

// Config contains configuration for the registry
type Config struct {
	// StaleTimeout closes sessions with no inbound traffic for this long.
	StaleTimeout time.Duration
	// RetiredRetention is how long removed stream ids stay blocked.
	RetiredRetention time.Duration
	CleanupInterval  time.Duration
}

func (c *Config) applyDefaults() {
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = DefaultStaleTimeout
	}
	if c.RetiredRetention <= 0 {
		c.RetiredRetention = DefaultRetiredRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
}

// Registry owns every live call session, keyed by stream id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	retired  map[string]time.Time

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	cleanup  chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry and starts its cleanup routine.
func NewRegistry(logger *slog.Logger, cfg Config, m *metrics.Metrics) *Registry {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		sessions: make(map[string]*CallSession),
		retired:  make(map[string]time.Time),
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go r.startCleanupRoutine()

	return r
}

// Create registers a new call session in the initializing phase.
func (r *Registry) Create(p Params) (*CallSession, error) {
	if p.StreamSID == "" {
		return nil, fmt.Errorf("stream id is required")
	}

	now := r.now()

	r.mu.Lock()
	if _, exists := r.sessions[p.StreamSID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("stream %s: %w", p.StreamSID, ErrSessionExists)
	}
	if _, used := r.retired[p.StreamSID]; used {
		r.mu.Unlock()
		return nil, fmt.Errorf("stream %s: %w", p.StreamSID, ErrSessionRetired)
	}

	session := &CallSession{
		StreamSID:    p.StreamSID,
		CallSID:      p.CallSID,
		AccountSID:   p.AccountSID,
		From:         p.From,
		To:           p.To,
		ClientID:     p.ClientID,
		CreatedAt:    now,
		lifecycle:    LifecycleInitializing,
		lastActivity: now,
	}
	r.sessions[p.StreamSID] = session
	count := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveCalls(count)

	r.logger.Info("Created call session",
		slog.String("stream_sid", p.StreamSID),
		slog.String("call_sid", p.CallSID),
		slog.String("from", p.From),
		slog.String("to", p.To),
		slog.Int("active_calls", count),
	)

	return session, nil
}

// Get returns the live session for a stream id.
func (r *Registry) Get(streamSID string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[streamSID]
	return session, ok
}

// Touch refreshes a session's activity time.
func (r *Registry) Touch(streamSID string) {
	if session, ok := r.Get(streamSID); ok {
		session.Touch(r.now())
	}
}

// Remove deletes a session and retires its stream id. It reports whether a
// live session was removed.
func (r *Registry) Remove(streamSID string) bool {
	now := r.now()

	r.mu.Lock()
	session, exists := r.sessions[streamSID]
	if exists {
		delete(r.sessions, streamSID)
		r.retired[streamSID] = now
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !exists {
		return false
	}

	r.metrics.SetActiveCalls(count)

	r.logger.Info("Call session removed",
		slog.String("stream_sid", streamSID),
		slog.String("call_sid", session.CallSID),
		slog.Duration("duration", now.Sub(session.CreatedAt)),
		slog.Int("active_calls", count),
	)

	return true
}

// IsRetired reports whether the stream id belonged to an ended call.
func (r *Registry) IsRetired(streamSID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, used := r.retired[streamSID]
	return used
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns monitoring info for every live session, oldest first.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	sessions := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	now := r.now()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info(now))
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].StreamSID < infos[j].StreamSID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Stop closes every live session and stops the cleanup routine.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping call registry...")

		r.mu.RLock()
		closers := make([]func(), 0, len(r.sessions))
		for _, s := range r.sessions {
			if fn := s.closeFunc(); fn != nil {
				closers = append(closers, fn)
			}
		}
		r.mu.RUnlock()

		for _, fn := range closers {
			fn()
		}

		r.cancel()
		<-r.cleanup

		r.logger.Info("Call registry stopped",
			slog.Int("remaining_sessions", r.Count()),
		)
	})
}

// startCleanupRoutine runs in a separate goroutine to clean up stale sessions
func (r *Registry) startCleanupRoutine() {
	defer close(r.cleanup)

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	r.logger.Info("Call cleanup routine started",
		slog.Duration("stale_timeout", r.cfg.StaleTimeout),
		slog.Duration("check_interval", r.cfg.CleanupInterval),
	)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("Call cleanup routine stopping")
			return

		case <-ticker.C:
			r.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions closes stale sessions and forgets retired ids past
// the retention window.
func (r *Registry) cleanupExpiredSessions() {
	now := r.now()

	r.mu.Lock()
	var stale []*CallSession
	for _, s := range r.sessions {
		if now.Sub(s.LastActivity()) > r.cfg.StaleTimeout {
			stale = append(stale, s)
		}
	}
	for sid, at := range r.retired {
		if now.Sub(at) > r.cfg.RetiredRetention {
			delete(r.retired, sid)
		}
	}
	r.mu.Unlock()

	if len(stale) == 0 {
		return
	}

	r.logger.Info("Cleaning up stale call sessions",
		slog.Int("stale_count", len(stale)),
	)

	for _, s := range stale {
		r.logger.Warn("Closing stale call session",
			slog.String("stream_sid", s.StreamSID),
			slog.Duration("idle", now.Sub(s.LastActivity())),
		)
		if fn := s.closeFunc(); fn != nil {
			fn()
		}
		r.Remove(s.StreamSID)
	}
}
