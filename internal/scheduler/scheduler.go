package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
)

const (
	DefaultCeiling       = 30 * time.Second
	DefaultSweepInterval = 30 * time.Second
)

// Callback runs when a timeout fires. It is never called with the scheduler
// lock held, so it may arm or cancel timeouts.
type Callback func()

// Config contains scheduler configuration
type Config struct {
	Ceiling       time.Duration // age at which the sweep force-fires a timeout
	SweepInterval time.Duration
}

type timeout struct {
	threshold int
	count     int
	created   time.Time
	callback  Callback
}

// Stats represents scheduler statistics
type Stats struct {
	Sessions   int    `json:"sessions"`
	Pending    int    `json:"pending_timeouts"`
	Armed      uint64 `json:"armed_total"`
	Fired      uint64 `json:"fired_total"`
	ForceFired uint64 `json:"force_fired_total"`
	Cancelled  uint64 `json:"cancelled_total"`
}

// Scheduler tracks frame-counted timeouts per call session.
type Scheduler struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]map[string]*timeout

	armed      uint64
	fired      uint64
	forceFired uint64
	cancelled  uint64

	now func() time.Time
}

// New creates a scheduler.
func New(config Config, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if config.Ceiling <= 0 {
		config.Ceiling = DefaultCeiling
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	return &Scheduler{
		config:   config,
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]map[string]*timeout),
		now:      time.Now,
	}
}

// Arm registers a timeout that fires after frames ticks of sessionID.
// Arming an id that is already pending replaces it and restarts its count.
func (s *Scheduler) Arm(sessionID, timeoutID string, frames int, callback Callback) {
	if frames < 1 {
		frames = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timeouts, ok := s.sessions[sessionID]
	if !ok {
		timeouts = make(map[string]*timeout)
		s.sessions[sessionID] = timeouts
	}
	timeouts[timeoutID] = &timeout{
		threshold: frames,
		created:   s.now(),
		callback:  callback,
	}
	s.armed++
}

// Tick advances every timeout of sessionID by one frame and fires those that
// reach their threshold. It returns the number fired.
func (s *Scheduler) Tick(sessionID string) int {
	s.mu.Lock()
	timeouts := s.sessions[sessionID]
	var due []Callback
	for id, t := range timeouts {
		t.count++
		if t.count >= t.threshold {
			due = append(due, t.callback)
			delete(timeouts, id)
		}
	}
	if len(timeouts) == 0 {
		delete(s.sessions, sessionID)
	}
	s.fired += uint64(len(due))
	s.mu.Unlock()

	for _, cb := range due {
		s.run(sessionID, cb)
	}
	return len(due)
}

// Cancel removes a pending timeout. It reports whether one was pending.
func (s *Scheduler) Cancel(sessionID, timeoutID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeouts, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := timeouts[timeoutID]; !ok {
		return false
	}
	delete(timeouts, timeoutID)
	if len(timeouts) == 0 {
		delete(s.sessions, sessionID)
	}
	s.cancelled++
	return true
}

// CancelSession removes every timeout of a call and returns how many were
// pending. It must be called when a call is torn down.
func (s *Scheduler) CancelSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions[sessionID])
	delete(s.sessions, sessionID)
	s.cancelled += uint64(n)
	return n
}

// Pending returns the number of armed timeouts for sessionID.
func (s *Scheduler) Pending(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}

// Armed reports whether timeoutID is pending for sessionID.
func (s *Scheduler) Armed(sessionID, timeoutID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID][timeoutID]
	return ok
}

// Sweep force-fires every timeout older than the ceiling and returns the
// number fired.
func (s *Scheduler) Sweep() int {
	type dueTimeout struct {
		session  string
		id       string
		callback Callback
	}

	s.mu.Lock()
	now := s.now()
	var due []dueTimeout
	for sessionID, timeouts := range s.sessions {
		for id, t := range timeouts {
			if now.Sub(t.created) >= s.config.Ceiling {
				due = append(due, dueTimeout{session: sessionID, id: id, callback: t.callback})
				delete(timeouts, id)
			}
		}
		if len(timeouts) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	s.forceFired += uint64(len(due))
	s.mu.Unlock()

	for _, d := range due {
		s.logger.Warn("Force-firing stale frame timeout",
			slog.String("session_id", d.session),
			slog.String("timeout_id", d.id))
		s.run(d.session, d.callback)
	}
	s.metrics.RecordSchedulerForceFired(len(due))
	return len(due)
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, timeouts := range s.sessions {
		pending += len(timeouts)
	}
	return Stats{
		Sessions:   len(s.sessions),
		Pending:    pending,
		Armed:      s.armed,
		Fired:      s.fired,
		ForceFired: s.forceFired,
		Cancelled:  s.cancelled,
	}
}

func (s *Scheduler) run(sessionID string, cb Callback) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Timeout callback panicked",
				slog.String("session_id", sessionID),
				slog.Any("panic", r))
		}
	}()
	cb()
}
