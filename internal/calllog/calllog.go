package calllog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
)

// Entry is a finished call with its summary.
type Entry struct {
	ID           uuid.UUID
	StreamSID    string
	CallSID      string
	ClientID     string
	CallerNumber string
	CalleeNumber string
	StartedAt    time.Time
	EndedAt      time.Time
	RecordingRef string
	Fallback     bool
	Record       summary.Record
	Transcript   []summary.Turn
}

// Duration returns the call length.
func (e Entry) Duration() time.Duration {
	if e.EndedAt.Before(e.StartedAt) {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// Sink persists call log entries.
type Sink interface {
	Save(ctx context.Context, e Entry) error
}

// LogSink writes entries to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Save logs the entry.
func (s *LogSink) Save(ctx context.Context, e Entry) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "Call summary",
		slog.String("id", e.ID.String()),
		slog.String("stream_sid", e.StreamSID),
		slog.String("call_sid", e.CallSID),
		slog.String("client_id", e.ClientID),
		slog.String("caller_number", e.CallerNumber),
		slog.Duration("duration", e.Duration()),
		slog.Bool("fallback", e.Fallback),
		slog.String("caller_name", e.Record.CallerName),
		slog.String("company", e.Record.Company),
		slog.String("phone", e.Record.Phone),
		slog.String("topics", strings.Join(e.Record.Topics, ",")),
		slog.String("summary", e.Record.Summary),
		slog.Int("turns", len(e.Transcript)),
	)
	return nil
}
