package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("realtime session closed")
	// ErrBackpressure is returned when an outbound queue is full.
	ErrBackpressure = errors.New("realtime outbound queue full")
)

const (
	DefaultConnectTimeout     = 15 * time.Second
	DefaultConfirmTimeout     = 2 * time.Second
	DefaultMinAppendMS        = 300
	DefaultMinTranscriptChars = 2
	DefaultVADThreshold       = 0.5
	DefaultPrefixPaddingMS    = 300
	DefaultSilenceDurationMS  = 500

	markPrefix = "ai-"
)

// Playout receives AI audio for the caller. Audio is µ-law at 8 kHz.
type Playout interface {
	SendAudio(ulaw []byte)
	SendMark(name string)
	Clear()
}

// Config holds the negotiation parameters for a session.
type Config struct {
	URL                string
	APIKey             string
	Voice              string
	Instructions       string
	InputFormat        audio.Format
	OutputFormat       audio.Format
	VADThreshold       float64
	PrefixPaddingMS    int
	SilenceDurationMS  int
	TranscriptionModel string
	Temperature        float64

	ConnectTimeout time.Duration
	ConfirmTimeout time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration

	// MinAppendMS is the caller audio accumulated before each append.
	MinAppendMS int
	// MinTranscriptChars discards shorter caller transcriptions as noise.
	MinTranscriptChars int

	NormalQueueSize   int
	PriorityQueueSize int
	EventQueueSize    int
}

func (c *Config) applyDefaults() {
	if c.InputFormat.Encoding == "" {
		c.InputFormat = audio.Telephony
	}
	if c.OutputFormat.Encoding == "" {
		c.OutputFormat = audio.Telephony
	}
	if c.VADThreshold <= 0 {
		c.VADThreshold = DefaultVADThreshold
	}
	if c.PrefixPaddingMS <= 0 {
		c.PrefixPaddingMS = DefaultPrefixPaddingMS
	}
	if c.SilenceDurationMS <= 0 {
		c.SilenceDurationMS = DefaultSilenceDurationMS
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.MinAppendMS <= 0 {
		c.MinAppendMS = DefaultMinAppendMS
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = DefaultMinTranscriptChars
	}
	if c.NormalQueueSize <= 0 {
		c.NormalQueueSize = 256
	}
	if c.PriorityQueueSize <= 0 {
		c.PriorityQueueSize = 32
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 256
	}
}

// Params returns the session.update payload for this configuration.
func (c Config) Params() SessionParams {
	p := SessionParams{
		Modalities:        []string{"text", "audio"},
		Voice:             c.Voice,
		Instructions:      c.Instructions,
		InputAudioFormat:  string(wireEncoding(c.InputFormat)),
		OutputAudioFormat: string(wireEncoding(c.OutputFormat)),
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         c.VADThreshold,
			PrefixPaddingMS:   c.PrefixPaddingMS,
			SilenceDurationMS: c.SilenceDurationMS,
		},
		Temperature: c.Temperature,
	}
	if c.TranscriptionModel != "" {
		p.InputAudioTranscription = &InputTranscription{Model: c.TranscriptionModel}
	}
	return p
}

// The AI service only speaks raw encodings.
func wireEncoding(f audio.Format) audio.Encoding {
	if f.Encoding == audio.EncodingWAV {
		return audio.EncodingPCM16
	}
	return f.Encoding
}

func rawFormat(f audio.Format) audio.Format {
	return audio.Format{Encoding: wireEncoding(f), SampleRate: f.SampleRate}
}

// Role identifies the speaker of a transcript turn.
type Role string

const (
	RoleCaller    Role = "caller"
	RoleAssistant Role = "assistant"
)

// Turn is one transcribed utterance.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Outcome tells the caller of Dispatch what an event amounted to.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeConfirmed
	OutcomeSpeechStarted
	OutcomeBargeIn
	OutcomeSpeechStopped
	OutcomeResponseCreated
	OutcomeAudio
	OutcomeAudioDone
	OutcomeResponseDone
	OutcomeTranscript
	OutcomeError
)

var outcomeNames = map[Outcome]string{
	OutcomeNone:            "none",
	OutcomeConfirmed:       "confirmed",
	OutcomeSpeechStarted:   "speech_started",
	OutcomeBargeIn:         "barge_in",
	OutcomeSpeechStopped:   "speech_stopped",
	OutcomeResponseCreated: "response_created",
	OutcomeAudio:           "audio",
	OutcomeAudioDone:       "audio_done",
	OutcomeResponseDone:    "response_done",
	OutcomeTranscript:      "transcript",
	OutcomeError:           "error",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// State is a point-in-time view of the interruption bookkeeping.
type State struct {
	Confirmed            bool   `json:"confirmed"`
	LatestMediaTimestamp int64  `json:"latest_media_timestamp"`
	ResponseStart        *int64 `json:"response_start_timestamp"`
	CurrentItem          string `json:"current_item,omitempty"`
	ResponseInFlight     bool   `json:"response_in_flight"`
	PendingMarks         int    `json:"pending_marks"`
	BufferedBytes        int    `json:"buffered_bytes"`
}

// Stats represents session statistics for monitoring
type Stats struct {
	AppendsSent   uint64 `json:"appends_sent"`
	BytesSent     uint64 `json:"bytes_sent"`
	AppendsDrop   uint64 `json:"appends_dropped"`
	AudioDeltas   uint64 `json:"audio_deltas"`
	StaleDeltas   uint64 `json:"stale_deltas"`
	Truncates     uint64 `json:"truncates"`
	Responses     uint64 `json:"responses"`
	Cancellations uint64 `json:"cancellations"`
	ServerErrors  uint64 `json:"server_errors"`
}

// Session is one AI connection for one call.
type Session struct {
	cfg     Config
	playout Playout
	logger  *slog.Logger
	metrics *metrics.Metrics

	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	control     chan []byte
	audio       chan []byte
	events      chan ServerEvent
	confirmed   chan struct{}
	confirmOnce sync.Once
	writerDone  chan struct{}
	closeOnce   sync.Once

	errMu sync.Mutex
	err   error

	mu               sync.Mutex
	closed           bool
	capture          *audio.FrameBuffer
	latestMediaTS    int64
	responseStart    *int64
	currentItem      string
	truncatedItem    string
	responseID       string
	responseInFlight bool
	pendingMarks     []string
	transcript       []Turn
	stats            Stats
}

func newSession(cfg Config, playout Playout, logger *slog.Logger, m *metrics.Metrics) *Session {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		cfg:       cfg,
		playout:   playout,
		logger:    logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		control:   make(chan []byte, cfg.PriorityQueueSize),
		audio:     make(chan []byte, cfg.NormalQueueSize),
		events:    make(chan ServerEvent, cfg.EventQueueSize),
		confirmed: make(chan struct{}),
		capture:   audio.NewFrameBuffer(audio.Telephony.BytesForDuration(cfg.MinAppendMS)),
	}
}

// Open dials the AI service, sends the session configuration and waits for the
// service to confirm it. If no confirmation arrives within ConfirmTimeout the
// session is returned anyway.
func Open(ctx context.Context, cfg Config, playout Playout, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("realtime url is required")
	}
	if playout == nil {
		return nil, fmt.Errorf("playout is required")
	}

	s := newSession(cfg, playout, logger, m)
	started := time.Now()

	header := http.Header{}
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		header.Set("Authorization", "Bearer "+key)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	dialCtx, cancelDial := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.cfg.URL, header)
	cancelDial()
	if err != nil {
		s.cancel()
		m.RecordAIConnect("failed", 0)
		return nil, fmt.Errorf("failed to connect to realtime service: %w", err)
	}
	s.conn = conn
	s.startWriter(conn)
	go s.readLoop()

	if err := s.sendControl(sessionUpdate{Type: typeSessionUpdate, Session: s.cfg.Params()}); err != nil {
		s.Close()
		m.RecordAIConnect("failed", 0)
		return nil, fmt.Errorf("failed to send session update: %w", err)
	}

	timer := time.NewTimer(s.cfg.ConfirmTimeout)
	defer timer.Stop()

	select {
	case <-s.confirmed:
		elapsed := time.Since(started)
		m.RecordAIConnect("confirmed", elapsed.Seconds())
		s.logger.Info("Realtime session confirmed",
			slog.String("voice", s.cfg.Voice),
			slog.String("input_format", s.cfg.InputFormat.String()),
			slog.String("output_format", s.cfg.OutputFormat.String()),
			slog.Duration("latency", elapsed),
		)
	case <-timer.C:
		m.RecordAIConnect("unconfirmed", 0)
		s.logger.Warn("Realtime session not confirmed, proceeding",
			slog.Duration("waited", s.cfg.ConfirmTimeout),
		)
	case <-s.ctx.Done():
		err := s.Err()
		s.Close()
		m.RecordAIConnect("failed", 0)
		if err == nil {
			err = ErrClosed
		}
		return nil, fmt.Errorf("realtime session ended during negotiation: %w", err)
	case <-ctx.Done():
		s.Close()
		m.RecordAIConnect("failed", 0)
		return nil, ctx.Err()
	}

	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				s.fail(nil)
			} else {
				s.fail(fmt.Errorf("realtime read failed: %w", err))
			}
			return
		}

		ev, err := ParseServerEvent(data)
		if err != nil {
			s.logger.Debug("Ignoring malformed realtime event", slog.String("error", err.Error()))
			continue
		}
		if ev.Type == EventSessionUpdated {
			s.confirmOnce.Do(func() { close(s.confirmed) })
		}

		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

// fail records the terminal error and stops the connection.
func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil && err != nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.cancel()
}

// Events delivers server events in arrival order. The channel is closed when
// the connection ends.
func (s *Session) Events() <-chan ServerEvent {
	return s.events
}

// Done is closed once the session stops.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns the error that ended the connection, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Confirmed reports whether the service acknowledged the configuration.
func (s *Session) Confirmed() bool {
	select {
	case <-s.confirmed:
		return true
	default:
		return false
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushCallerAudio accumulates telephony audio and appends it to the AI input
// buffer once MinAppendMS of audio is held. A negative timestamp advances the
// media clock by the payload's duration.
func (s *Session) PushCallerAudio(payload []byte, mediaTimestamp int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if mediaTimestamp >= 0 {
		if mediaTimestamp > s.latestMediaTS {
			s.latestMediaTS = mediaTimestamp
		}
	} else {
		s.latestMediaTS += audio.Telephony.DurationMS(len(payload))
	}
	block := s.capture.Add(payload)
	s.mu.Unlock()

	if block == nil {
		return nil
	}
	return s.appendAudio(block)
}

// FlushCallerAudio sends whatever caller audio is still buffered.
func (s *Session) FlushCallerAudio() error {
	block := s.capture.Flush()
	if block == nil {
		return nil
	}
	return s.appendAudio(block)
}

func (s *Session) appendAudio(block []byte) error {
	converted := audio.Transcode(block, audio.Telephony, rawFormat(s.cfg.InputFormat))
	err := s.sendAudio(inputAudioAppend{
		Type:  typeInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(converted),
	})

	s.mu.Lock()
	if err != nil {
		s.stats.AppendsDrop++
	} else {
		s.stats.AppendsSent++
		s.stats.BytesSent += uint64(len(converted))
	}
	s.mu.Unlock()

	if errors.Is(err, ErrBackpressure) {
		s.logger.Warn("Dropping caller audio under backpressure", slog.Int("bytes", len(block)))
	}
	return err
}

// OnSpeechStarted interrupts the AI when the caller starts talking over a
// response that is still playing. It reports whether an interruption
// happened; with nothing playing it does nothing.
func (s *Session) OnSpeechStarted() bool {
	s.mu.Lock()
	if s.closed || s.responseStart == nil || len(s.pendingMarks) == 0 {
		s.mu.Unlock()
		return false
	}

	elapsed := s.latestMediaTS - *s.responseStart
	if elapsed < 0 {
		elapsed = 0
	}
	item := s.currentItem

	s.truncatedItem = item
	s.responseStart = nil
	s.currentItem = ""
	s.pendingMarks = nil
	s.stats.Truncates++
	s.mu.Unlock()

	if item != "" {
		err := s.sendControl(itemTruncate{
			Type:         typeItemTruncate,
			ItemID:       item,
			ContentIndex: 0,
			AudioEndMS:   elapsed,
		})
		if err != nil {
			s.logger.Warn("Failed to send truncate", slog.String("error", err.Error()))
		}
	}
	s.playout.Clear()
	s.metrics.RecordBargeIn()

	s.logger.Debug("Caller interrupted response",
		slog.String("item_id", item),
		slog.Int64("audio_end_ms", elapsed),
	)
	return true
}

// CreateResponse asks the AI to speak. It is ignored while another response
// is outstanding.
func (s *Session) CreateResponse(instructions string) bool {
	s.mu.Lock()
	if s.closed || s.responseInFlight {
		s.mu.Unlock()
		s.logger.Debug("Response already in flight, ignoring request")
		return false
	}
	s.responseInFlight = true
	s.mu.Unlock()

	req := responseCreate{Type: typeResponseCreate}
	if instructions != "" {
		req.Response = &responseParams{Instructions: instructions}
	}
	if err := s.sendControl(req); err != nil {
		s.mu.Lock()
		s.responseInFlight = false
		s.mu.Unlock()
		s.logger.Warn("Failed to request response", slog.String("error", err.Error()))
		return false
	}
	return true
}

// OnAudioDelta forwards a chunk of AI audio to the caller followed by a mark.
// Deltas of an interrupted item are discarded.
func (s *Session) OnAudioDelta(data []byte, itemID string) {
	s.mu.Lock()
	if s.closed || len(data) == 0 {
		s.mu.Unlock()
		return
	}
	if itemID != "" && itemID == s.truncatedItem {
		s.stats.StaleDeltas++
		s.mu.Unlock()
		return
	}
	if s.responseStart == nil {
		start := s.latestMediaTS
		s.responseStart = &start
	}
	if itemID != "" {
		s.currentItem = itemID
	}
	mark := markPrefix + uuid.NewString()
	s.pendingMarks = append(s.pendingMarks, mark)
	s.stats.AudioDeltas++
	s.mu.Unlock()

	s.playout.SendAudio(audio.ToTelephony(data, rawFormat(s.cfg.OutputFormat)))
	s.playout.SendMark(mark)
}

// OnAudioDone marks the end of the current response's audio.
func (s *Session) OnAudioDone() {
	s.mu.Lock()
	s.responseStart = nil
	s.mu.Unlock()
}

// OnMarkAcknowledged records that the caller has heard audio up to the mark.
// It reports whether the name belonged to this session.
func (s *Session) OnMarkAcknowledged(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.pendingMarks {
		if m == name {
			s.pendingMarks = append(s.pendingMarks[:i:i], s.pendingMarks[i+1:]...)
			return true
		}
	}
	return false
}

// PlaybackIdle reports whether all forwarded AI audio has been played.
func (s *Session) PlaybackIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseStart == nil && len(s.pendingMarks) == 0
}

// OnTranscriptionEvent adds a turn to the transcript. Caller text shorter than
// MinTranscriptChars is treated as noise: it is dropped and a response already
// generated from it is cancelled. It reports whether the turn was kept.
func (s *Session) OnTranscriptionEvent(text string, role Role) bool {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if role == RoleCaller && utf8.RuneCountInString(text) < s.cfg.MinTranscriptChars {
		cancelID := ""
		cancel := s.responseInFlight
		if cancel {
			cancelID = s.responseID
			s.responseInFlight = false
			s.responseID = ""
			s.stats.Cancellations++
		}
		s.mu.Unlock()

		if cancel {
			if err := s.sendControl(responseCancel{Type: typeResponseCancel, ResponseID: cancelID}); err != nil {
				s.logger.Warn("Failed to cancel response", slog.String("error", err.Error()))
			}
		}
		s.logger.Debug("Discarded noise transcription", slog.Bool("cancelled_response", cancel))
		return false
	}
	if text == "" {
		s.mu.Unlock()
		return false
	}
	s.transcript = append(s.transcript, Turn{Role: role, Text: text, At: time.Now()})
	s.mu.Unlock()
	return true
}

// Dispatch applies a server event to the session.
func (s *Session) Dispatch(ev ServerEvent) Outcome {
	switch ev.Type {
	case EventSessionUpdated:
		s.confirmOnce.Do(func() { close(s.confirmed) })
		return OutcomeConfirmed

	case EventSpeechStarted:
		if s.OnSpeechStarted() {
			return OutcomeBargeIn
		}
		return OutcomeSpeechStarted

	case EventSpeechStopped:
		return OutcomeSpeechStopped

	case EventResponseCreated:
		s.mu.Lock()
		s.responseInFlight = true
		if ev.Response != nil {
			s.responseID = ev.Response.ID
		}
		s.stats.Responses++
		s.mu.Unlock()
		s.metrics.RecordAIResponse()
		return OutcomeResponseCreated

	case EventOutputItemAdded:
		if ev.Item != nil && ev.Item.ID != "" {
			s.mu.Lock()
			s.currentItem = ev.Item.ID
			s.mu.Unlock()
		}
		return OutcomeNone

	case EventAudioDelta, EventOutputAudioDelta:
		data, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			s.logger.Warn("Invalid audio delta", slog.String("error", err.Error()))
			return OutcomeNone
		}
		s.OnAudioDelta(data, ev.ItemID)
		return OutcomeAudio

	case EventAudioDone, EventOutputAudioDone:
		s.OnAudioDone()
		return OutcomeAudioDone

	case EventAudioTranscriptDone, EventOutputAudioTranscriptDone:
		s.OnTranscriptionEvent(ev.Transcript, RoleAssistant)
		return OutcomeTranscript

	case EventInputTranscription:
		s.OnTranscriptionEvent(ev.Transcript, RoleCaller)
		return OutcomeTranscript

	case EventResponseDone:
		s.mu.Lock()
		s.responseInFlight = false
		s.responseID = ""
		s.mu.Unlock()
		return OutcomeResponseDone

	case EventError:
		s.mu.Lock()
		s.stats.ServerErrors++
		s.mu.Unlock()
		attrs := []any{}
		if ev.Error != nil {
			attrs = append(attrs, slog.String("code", ev.Error.Code), slog.String("message", ev.Error.Message))
		}
		s.logger.Warn("Realtime service reported an error", attrs...)
		return OutcomeError
	}
	return OutcomeNone
}

// Transcript returns a copy of the accumulated transcript.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// State returns the interruption bookkeeping.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Confirmed:            s.Confirmed(),
		LatestMediaTimestamp: s.latestMediaTS,
		CurrentItem:          s.currentItem,
		ResponseInFlight:     s.responseInFlight,
		PendingMarks:         len(s.pendingMarks),
		BufferedBytes:        s.capture.Len(),
	}
	if s.responseStart != nil {
		v := *s.responseStart
		st.ResponseStart = &v
	}
	return st
}

// GetStats returns session statistics
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops the session and closes the connection. It is safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()

		if s.writerDone != nil {
			select {
			case <-s.writerDone:
			case <-time.After(time.Second):
			}
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// IsMark reports whether a playout mark name was issued by a session.
func IsMark(name string) bool {
	return strings.HasPrefix(name, markPrefix)
}
