package conversation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/scheduler"
)

const (
	speakingTimeoutID   = "conversation.speaking"
	processingTimeoutID = "conversation.processing"
)

// Config holds the frame counts driving automatic transitions. At the
// telephony cadence one frame is 20 ms.
type Config struct {
	SpeakingTimeoutFrames   int     // speaking → listening, default 25 (≈500 ms)
	ProcessingTimeoutFrames int     // processing → speaking, default 100 (≈2 s)
	WindowFrames            int     // frames per inactivity window, default 50 (≈1 s)
	SilentWindowRatio       float64 // silent fraction for a window to count, default 0.9
	InactivityWindows       int     // consecutive silent windows before the callback, default 10
}

// DefaultConfig returns the telephony defaults.
func DefaultConfig() Config {
	return Config{
		SpeakingTimeoutFrames:   25,
		ProcessingTimeoutFrames: 100,
		WindowFrames:            50,
		SilentWindowRatio:       0.9,
		InactivityWindows:       10,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SpeakingTimeoutFrames <= 0 {
		c.SpeakingTimeoutFrames = d.SpeakingTimeoutFrames
	}
	if c.ProcessingTimeoutFrames <= 0 {
		c.ProcessingTimeoutFrames = d.ProcessingTimeoutFrames
	}
	if c.WindowFrames <= 0 {
		c.WindowFrames = d.WindowFrames
	}
	if c.SilentWindowRatio <= 0 || c.SilentWindowRatio > 1 {
		c.SilentWindowRatio = d.SilentWindowRatio
	}
	if c.InactivityWindows <= 0 {
		c.InactivityWindows = d.InactivityWindows
	}
}

// Transition describes an accepted state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of the machine state.
type Snapshot struct {
	Current       State     `json:"current"`
	Previous      State     `json:"previous,omitempty"`
	EnteredAt     time.Time `json:"entered_at"`
	FramesInState int       `json:"frames_in_state"`
	SilentWindows int       `json:"silent_windows"`
	Transitions   int       `json:"transitions"`
	Rejected      int       `json:"rejected"`
}

// Machine is the conversation state of one call.
type Machine struct {
	sessionID string
	config    Config
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu            sync.Mutex
	current       State
	previous      State
	enteredAt     time.Time
	epoch         uint64 // incremented on every state entry
	framesInState int
	windowFrames  int
	windowSilent  int
	silentWindows int
	transitions   int
	rejected      int
	closed        bool

	onTransition []func(Transition)
	onInactivity []func()
}

// New creates a machine in the greeting state.
func New(sessionID string, sched *scheduler.Scheduler, config Config, logger *slog.Logger, m *metrics.Metrics) *Machine {
	config.applyDefaults()
	return &Machine{
		sessionID: sessionID,
		config:    config,
		scheduler: sched,
		logger:    logger.With(slog.String("stream_sid", sessionID)),
		metrics:   m,
		current:   Greeting,
		enteredAt: time.Now(),
	}
}

// OnTransition registers a hook called after every accepted transition.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = append(m.onTransition, fn)
}

// OnInactivity registers a hook called when the caller has been silent for
// the configured number of windows while listening.
func (m *Machine) OnInactivity(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInactivity = append(m.onInactivity, fn)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to target if the table allows it. Rejected transitions
// return false and leave the machine unchanged.
func (m *Machine) Transition(target State, reason string) bool {
	m.mu.Lock()
	t, hooks, ok := m.transitionLocked(target, reason)
	m.mu.Unlock()

	if ok {
		for _, fn := range hooks {
			fn(t)
		}
	}
	return ok
}

func (m *Machine) transitionLocked(target State, reason string) (Transition, []func(Transition), bool) {
	if m.closed {
		return Transition{}, nil, false
	}

	from := m.current
	if !IsValid(from, target) {
		m.rejected++
		level := slog.LevelWarn
		if from == target {
			level = slog.LevelDebug
		}
		m.logger.Log(context.Background(), level, "Rejected state transition",
			slog.String("from", string(from)),
			slog.String("to", string(target)),
			slog.String("reason", reason))
		return Transition{}, nil, false
	}

	m.cancelTimeoutLocked(from)

	now := time.Now()
	m.previous = from
	m.current = target
	m.enteredAt = now
	m.epoch++
	m.framesInState = 0
	m.resetWindowLocked()
	m.transitions++

	m.armTimeoutLocked(target)
	m.metrics.RecordStateTransition(string(target))

	m.logger.Debug("State transition",
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.String("reason", reason))

	t := Transition{From: from, To: target, Reason: reason, At: now}
	return t, slices.Clone(m.onTransition), true
}

// ExtendSpeaking restarts the speaking timeout. Call it while AI audio keeps
// arriving so that long utterances are not cut short.
func (m *Machine) ExtendSpeaking() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.current != Speaking {
		return
	}
	m.armTimeoutLocked(Speaking)
}

// ObserveFrame records one inbound media frame. While listening, frames are
// grouped into windows and sustained silence fires the inactivity hooks.
func (m *Machine) ObserveFrame(silent bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.framesInState++
	if m.current != Listening {
		m.mu.Unlock()
		return
	}

	m.windowFrames++
	if silent {
		m.windowSilent++
	}

	var hooks []func()
	if m.windowFrames >= m.config.WindowFrames {
		mostlySilent := float64(m.windowSilent)/float64(m.windowFrames) >= m.config.SilentWindowRatio
		m.windowFrames = 0
		m.windowSilent = 0

		if mostlySilent {
			m.silentWindows++
		} else {
			m.silentWindows = 0
		}

		if m.silentWindows >= m.config.InactivityWindows {
			m.silentWindows = 0
			hooks = append(hooks, m.onInactivity...)
		}
	}
	m.mu.Unlock()

	if len(hooks) > 0 {
		m.logger.Info("Caller inactive while listening")
		for _, fn := range hooks {
			fn()
		}
	}
}

// ResetInactivity restarts the silence count. While the caller is still
// hearing playback their silence does not count as inactivity.
func (m *Machine) ResetInactivity() {
	m.mu.Lock()
	m.resetWindowLocked()
	m.mu.Unlock()
}

// Snapshot returns a copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Current:       m.current,
		Previous:      m.previous,
		EnteredAt:     m.enteredAt,
		FramesInState: m.framesInState,
		SilentWindows: m.silentWindows,
		Transitions:   m.transitions,
		Rejected:      m.rejected,
	}
}

// Close stops the machine and cancels every scheduler timeout of the call.
// Further transitions are rejected.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.onTransition = nil
	m.onInactivity = nil
	if m.scheduler != nil {
		m.scheduler.CancelSession(m.sessionID)
	}
}

func (m *Machine) resetWindowLocked() {
	m.windowFrames = 0
	m.windowSilent = 0
	m.silentWindows = 0
}

func (m *Machine) armTimeoutLocked(state State) {
	if m.scheduler == nil {
		return
	}

	epoch := m.epoch
	switch state {
	case Speaking:
		m.scheduler.Arm(m.sessionID, speakingTimeoutID, m.config.SpeakingTimeoutFrames, func() {
			m.timeoutFired(epoch, Listening, "speaking timeout")
		})
	case Processing:
		m.scheduler.Arm(m.sessionID, processingTimeoutID, m.config.ProcessingTimeoutFrames, func() {
			m.timeoutFired(epoch, Speaking, "processing timeout")
		})
	}
}

func (m *Machine) cancelTimeoutLocked(state State) {
	if m.scheduler == nil {
		return
	}

	switch state {
	case Speaking:
		m.scheduler.Cancel(m.sessionID, speakingTimeoutID)
	case Processing:
		m.scheduler.Cancel(m.sessionID, processingTimeoutID)
	}
}

// timeoutFired applies an automatic transition unless the state it was armed
// for has since been left.
func (m *Machine) timeoutFired(epoch uint64, target State, reason string) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	t, hooks, ok := m.transitionLocked(target, reason)
	m.mu.Unlock()

	if ok {
		for _, fn := range hooks {
			fn(t)
		}
	}
}
