package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/protocol"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
)

// DefaultPlayoutQueueFrames buffers ten seconds of 20 ms frames.
const DefaultPlayoutQueueFrames = 500

const controlQueueSize = 16

// socketWriter is the write side of the telephony connection.
type socketWriter interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

type outbound struct {
	data  []byte
	media bool
}

// playout queues outbound telephony messages and writes them from a single
// goroutine. Media and marks share one bounded queue so that a mark is sent
// only after the audio before it. Clear messages bypass the queue.
type playout struct {
	streamSID    string
	queue        chan outbound
	control      chan []byte
	writeTimeout time.Duration

	session *stream.CallSession
	logger  *slog.Logger
	metrics *metrics.Metrics

	sent    atomic.Uint64
	dropped atomic.Uint64
	marks   atomic.Uint64
	clears  atomic.Uint64
}

func newPlayout(streamSID string, queueFrames int, writeTimeout time.Duration, session *stream.CallSession, logger *slog.Logger, m *metrics.Metrics) *playout {
	if queueFrames <= 0 {
		queueFrames = DefaultPlayoutQueueFrames
	}
	return &playout{
		streamSID:    streamSID,
		queue:        make(chan outbound, queueFrames),
		control:      make(chan []byte, controlQueueSize),
		writeTimeout: writeTimeout,
		session:      session,
		logger:       logger,
		metrics:      m,
	}
}

// SendAudio splits µ-law 8 kHz audio into 20 ms media messages. Frames that
// do not fit in the queue are dropped.
func (p *playout) SendAudio(ulaw []byte) {
	for frame := range audio.Frames(ulaw, audio.Telephony.FrameBytes()) {
		data, err := protocol.NewMediaMessage(p.streamSID, frame).Encode()
		if err != nil {
			p.logger.Error("Failed to encode media message", slog.String("error", err.Error()))
			continue
		}

		select {
		case p.queue <- outbound{data: data, media: true}:
		default:
			n := p.dropped.Add(1)
			p.metrics.RecordPlayoutFrame(true)
			if p.session != nil {
				p.session.RecordPlayout(true)
			}
			if n == 1 || n%100 == 0 {
				p.logger.Warn("Playout queue full, dropping frame",
					slog.Uint64("dropped", n),
					slog.Int("capacity", cap(p.queue)))
			}
		}
	}
}

// SendMark queues a mark behind the audio queued so far.
func (p *playout) SendMark(name string) {
	data, err := protocol.NewMarkMessage(p.streamSID, name).Encode()
	if err != nil {
		p.logger.Error("Failed to encode mark message", slog.String("error", err.Error()))
		return
	}

	select {
	case p.queue <- outbound{data: data}:
		p.marks.Add(1)
	default:
		p.logger.Warn("Playout queue full, dropping mark", slog.String("mark", name))
	}
}

// Clear discards queued audio and tells the provider to flush its buffer.
func (p *playout) Clear() {
	drained := p.drain()

	data, err := protocol.NewClearMessage(p.streamSID).Encode()
	if err != nil {
		p.logger.Error("Failed to encode clear message", slog.String("error", err.Error()))
		return
	}

	select {
	case p.control <- data:
		p.clears.Add(1)
	default:
		p.logger.Warn("Control queue full, dropping clear")
	}

	if drained > 0 {
		p.logger.Debug("Drained playout queue", slog.Int("frames", drained))
	}
}

func (p *playout) drain() int {
	n := 0
	for {
		select {
		case <-p.queue:
			n++
		default:
			return n
		}
	}
}

// Queued returns the number of messages waiting to be written.
func (p *playout) Queued() int {
	return len(p.queue)
}

// run writes queued messages until ctx is done or a write fails. Control
// messages are written before any queued media.
func (p *playout) run(ctx context.Context, ws socketWriter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-p.control:
			if err := p.write(ws, data); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case data := <-p.control:
			if err := p.write(ws, data); err != nil {
				return err
			}
		case msg := <-p.queue:
			if err := p.write(ws, msg.data); err != nil {
				return err
			}
			if !msg.media {
				continue
			}
			p.sent.Add(1)
			p.metrics.RecordPlayoutFrame(false)
			if p.session != nil {
				p.session.RecordPlayout(false)
			}
		}
	}
}

func (p *playout) write(ws socketWriter, data []byte) error {
	if p.writeTimeout > 0 {
		_ = ws.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// playoutStats is a snapshot of the playout counters.
type playoutStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Marks   uint64 `json:"marks"`
	Clears  uint64 `json:"clears"`
	Queued  int    `json:"queued"`
}

func (p *playout) stats() playoutStats {
	return playoutStats{
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
		Marks:   p.marks.Load(),
		Clears:  p.clears.Load(),
		Queued:  len(p.queue),
	}
}
