package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/calllog"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/conversation"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/directory"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/realtime"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/scheduler"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/synth"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/vad"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/webhook"
)

const (
	DefaultInactivityPrompt = "The caller has been silent for a while. Politely ask whether they are still on the line and if there is anything else you can help with."
	DefaultFallbackMessage  = "Sorry, our assistant is having trouble right now. Please stay on the line or leave a short message with your name and number."
	DefaultFallbackPrompt   = "Are you still there? Please leave your name and number and we will call you back."

	DefaultEventQueueSize = 512
	DefaultWriteTimeout   = 5 * time.Second
	DefaultReconnectDelay = 250 * time.Millisecond
	DefaultMaxReconnects  = 1
	DefaultLookupTimeout  = 2 * time.Second
	DefaultSummaryTimeout = 20 * time.Second
	DefaultSaveTimeout    = 10 * time.Second
	DefaultNotifyTimeout  = webhook.MaxTimeout
)

// Config tunes the per-call workers.
type Config struct {
	// Realtime is the template for every AI session. Voice and
	// instructions are filled in per client.
	Realtime         realtime.Config
	BaseInstructions string
	Conversation     conversation.Config

	InactivityPrompt string
	FallbackMessage  string
	FallbackPrompt   string

	SilenceThreshold   float32
	PlayoutQueueFrames int
	EventQueueSize     int
	WriteTimeout       time.Duration
	ReconnectDelay     time.Duration
	MaxReconnects      int
	LookupTimeout      time.Duration
	SummaryTimeout     time.Duration
	SaveTimeout        time.Duration
	NotifyTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.InactivityPrompt == "" {
		c.InactivityPrompt = DefaultInactivityPrompt
	}
	if c.FallbackMessage == "" {
		c.FallbackMessage = DefaultFallbackMessage
	}
	if c.FallbackPrompt == "" {
		c.FallbackPrompt = DefaultFallbackPrompt
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = vad.DefaultThreshold
	}
	if c.PlayoutQueueFrames <= 0 {
		c.PlayoutQueueFrames = DefaultPlayoutQueueFrames
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = DefaultEventQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReconnectDelay < 0 {
		c.ReconnectDelay = 0
	}
	if c.MaxReconnects < 0 {
		c.MaxReconnects = 0
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = DefaultSummaryTimeout
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = DefaultSaveTimeout
	}
	if c.NotifyTimeout <= 0 || c.NotifyTimeout > webhook.MaxTimeout {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
}

// DefaultConfig returns a config with every default applied and the
// standard single reconnect attempt.
func DefaultConfig() Config {
	c := Config{
		Conversation:   conversation.DefaultConfig(),
		ReconnectDelay: DefaultReconnectDelay,
		MaxReconnects:  DefaultMaxReconnects,
	}
	c.applyDefaults()
	return c
}

// Deps are the collaborators shared by every call.
type Deps struct {
	Registry  *stream.Registry
	Scheduler *scheduler.Scheduler
	Synth     *synth.Service
	Directory directory.Provider
	Extractor summary.Extractor
	Sink      calllog.Sink
	Notifier  webhook.Notifier
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Bridge runs call workers.
type Bridge struct {
	config Config
	deps   Deps
	logger *slog.Logger

	background sync.WaitGroup
	workers    sync.WaitGroup

	active atomic.Int64
	total  atomic.Uint64
	panics atomic.Uint64
	failed atomic.Uint64
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	ActiveWorkers int64  `json:"active_workers"`
	TotalCalls    uint64 `json:"total_calls"`
	Panics        uint64 `json:"panics"`
	SummaryErrors uint64 `json:"summary_errors"`
}

// New creates a bridge. Registry, scheduler and synthesis service are
// required; the rest fall back to defaults.
func New(config Config, deps Deps) (*Bridge, error) {
	if deps.Registry == nil {
		return nil, errors.New("bridge: registry is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("bridge: scheduler is required")
	}
	if deps.Synth == nil {
		return nil, errors.New("bridge: synthesis service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Directory == nil {
		deps.Directory = directory.NewStaticProvider()
	}
	if deps.Extractor == nil {
		deps.Extractor = summary.NewHeuristicExtractor()
	}
	if deps.Sink == nil {
		deps.Sink = calllog.NewLogSink(deps.Logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = webhook.Nop{}
	}

	config.applyDefaults()

	return &Bridge{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(slog.String("component", "bridge")),
	}, nil
}

// Serve runs the worker for one telephony connection and blocks until the
// call has ended. The connection is closed on return. Summary extraction and
// notifications continue in the background; see Wait.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn) {
	b.workers.Add(1)
	defer b.workers.Done()

	b.active.Add(1)
	defer b.active.Add(-1)
	b.total.Add(1)

	c := newCall(ctx, b, conn)
	c.run()
}

// Wait blocks until every worker has returned and every background task
// started by a finished call has completed.
func (b *Bridge) Wait() {
	b.workers.Wait()
	b.background.Wait()
}

// GetStats returns bridge counters.
func (b *Bridge) GetStats() Stats {
	return Stats{
		ActiveWorkers: b.active.Load(),
		TotalCalls:    b.total.Load(),
		Panics:        b.panics.Load(),
		SummaryErrors: b.failed.Load(),
	}
}

// goBackground runs fn tracked by Wait.
func (b *Bridge) goBackground(fn func()) {
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		defer func() {
			if r := recover(); r != nil {
				b.panics.Add(1)
				b.logger.Error("Background task panicked", slog.Any("panic", r))
			}
		}()
		fn()
	}()
}
