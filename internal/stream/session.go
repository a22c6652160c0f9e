package stream

import (
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/directory"
)

// Lifecycle is the coarse phase of a call session.
type Lifecycle string

const (
	LifecycleInitializing Lifecycle = "initializing"
	LifecycleActive       Lifecycle = "active"
	LifecycleClosing      Lifecycle = "closing"
)

func (l Lifecycle) rank() int {
	switch l {
	case LifecycleInitializing:
		return 0
	case LifecycleActive:
		return 1
	case LifecycleClosing:
		return 2
	}
	return -1
}

// Params identify a new call.
type Params struct {
	StreamSID  string
	CallSID    string
	AccountSID string
	From       string
	To         string
	ClientID   string
}

// CallSession is the per-call record owned by the bridge worker handling it.
type CallSession struct {
	StreamSID  string
	CallSID    string
	AccountSID string
	From       string
	To         string
	ClientID   string
	CreatedAt  time.Time

	mu            sync.RWMutex
	client        directory.ClientConfig
	lifecycle     Lifecycle
	lastActivity  time.Time
	state         string
	fallback      bool
	framesIn      uint64
	framesOut     uint64
	framesDropped uint64
	closer        func()
}

// Lifecycle returns the current lifecycle phase.
func (s *CallSession) Lifecycle() Lifecycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycle
}

// SetLifecycle moves the session forward. Moving backwards or to an unknown
// phase is rejected.
func (s *CallSession) SetLifecycle(l Lifecycle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.rank() < 0 || l.rank() <= s.lifecycle.rank() {
		return false
	}
	s.lifecycle = l
	return true
}

// SetClient stores the client configuration snapshot for the call.
func (s *CallSession) SetClient(c directory.ClientConfig) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

// Client returns the client configuration snapshot.
func (s *CallSession) Client() directory.ClientConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// SetConversationState records the conversation state for monitoring.
func (s *CallSession) SetConversationState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// SetFallback marks the call as running without the realtime AI.
func (s *CallSession) SetFallback(fallback bool) {
	s.mu.Lock()
	s.fallback = fallback
	s.mu.Unlock()
}

// SetCloser registers the function the registry calls to tear down a stale
// call.
func (s *CallSession) SetCloser(fn func()) {
	s.mu.Lock()
	s.closer = fn
	s.mu.Unlock()
}

// RecordInbound counts an inbound media frame and refreshes activity.
func (s *CallSession) RecordInbound(now time.Time) {
	s.mu.Lock()
	s.framesIn++
	s.lastActivity = now
	s.mu.Unlock()
}

// RecordPlayout counts an outbound frame.
func (s *CallSession) RecordPlayout(dropped bool) {
	s.mu.Lock()
	if dropped {
		s.framesDropped++
	} else {
		s.framesOut++
	}
	s.mu.Unlock()
}

// Touch refreshes the last activity time.
func (s *CallSession) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the time of the last inbound traffic.
func (s *CallSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *CallSession) closeFunc() func() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closer
}

// Info returns a monitoring view of the session.
func (s *CallSession) Info(now time.Time) SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		StreamSID:     s.StreamSID,
		CallSID:       s.CallSID,
		From:          s.From,
		To:            s.To,
		ClientID:      s.ClientID,
		CompanyName:   s.client.CompanyName,
		Lifecycle:     s.lifecycle,
		State:         s.state,
		Fallback:      s.fallback,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.lastActivity,
		Duration:      now.Sub(s.CreatedAt),
		FramesIn:      s.framesIn,
		FramesOut:     s.framesOut,
		FramesDropped: s.framesDropped,
	}
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	StreamSID    string        `json:"stream_sid"`
	CallSID      string        `json:"call_sid"`
	From         string        `json:"from"`
	To           string        `json:"to"`
	ClientID     string        `json:"client_id,omitempty"`
	CompanyName  string        `json:"company_name,omitempty"`
	Lifecycle    Lifecycle     `json:"lifecycle"`
	State        string        `json:"state,omitempty"`
	Fallback     bool          `json:"fallback"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`

	FramesIn      uint64 `json:"frames_in"`
	FramesOut     uint64 `json:"frames_out"`
	FramesDropped uint64 `json:"frames_dropped"`
}
