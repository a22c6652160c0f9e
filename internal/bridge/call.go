package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/calllog"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/conversation"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/directory"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/protocol"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/realtime"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/synth"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/vad"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/webhook"
)

const (
	greetingMarkPrefix = "greeting-"
	promptMarkPrefix   = "prompt-"

	greetingTimeoutID = "bridge.greeting"
	// greetingSlackFrames is added to the greeting length before the
	// greeting is assumed played without a mark.
	greetingSlackFrames = 50

	readLimit = 1 << 20
)

type eventKind int

const (
	telephonyMessage eventKind = iota
	telephonyClosed
	aiOpened
	aiMessage
	aiClosed
	greetingReady
	promptReady
	inactivity
)

// event is the tagged variant consumed by the call loop. Only the fields of
// its kind are set.
type event struct {
	kind    eventKind
	msg     *protocol.Message
	err     error
	gen     uint64
	session *realtime.Session
	ai      realtime.ServerEvent
	clip    synth.Clip
}

type aiMode int

const (
	aiIdle aiMode = iota
	aiConnecting
	aiReady
	aiFallback
)

type pendingFrame struct {
	payload   []byte
	timestamp int64
}

// call is the worker for one telephony connection. Fields below the event
// channel are owned by the run loop.
type call struct {
	bridge *Bridge
	config Config
	deps   Deps
	conn   *websocket.Conn
	logger *slog.Logger
	// readLogger is used by readLoop; logger gains the stream id on start.
	readLogger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	wg     sync.WaitGroup

	started       bool
	stopped       bool
	streamSID     string
	startedAt     time.Time
	session       *stream.CallSession
	client        directory.ClientConfig
	machine       *conversation.Machine
	detector      *vad.Processor
	playout       *playout
	ai            *realtime.Session
	mode          aiMode
	generation    uint64
	reconnects    int
	pending       []pendingFrame
	captureArmed  bool
	greetingMark  string
	promptMark    string
	promptPending bool
	turns         []summary.Turn
	digits        strings.Builder
}

func newCall(ctx context.Context, b *Bridge, conn *websocket.Conn) *call {
	ctx, cancel := context.WithCancel(ctx)
	conn.SetReadLimit(readLimit)

	logger := b.logger
	if addr := conn.RemoteAddr(); addr != nil {
		logger = logger.With(slog.String("remote", addr.String()))
	}

	return &call{
		bridge: b,
		config: b.config,
		deps:   b.deps,
		conn:       conn,
		logger:     logger,
		readLogger: logger,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan event, b.config.EventQueueSize),
	}
}

func (c *call) run() {
	defer c.shutdown()
	defer func() {
		if r := recover(); r != nil {
			c.bridge.panics.Add(1)
			c.logger.Error("Call worker panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			c.safeTeardown("panic")
		}
	}()

	c.wg.Add(1)
	go c.readLoop()

	for {
		select {
		case <-c.ctx.Done():
			c.teardown("cancelled")
			return
		case ev := <-c.events:
			if c.handle(ev) {
				return
			}
		}
	}
}

// shutdown stops every goroutine of the call and closes the connection.
func (c *call) shutdown() {
	c.cancel()
	if c.ai != nil {
		c.ai.Close()
	}
	_ = c.conn.Close()
	c.wg.Wait()

	for {
		select {
		case ev := <-c.events:
			if ev.kind == aiOpened && ev.session != nil {
				ev.session.Close()
			}
		default:
			return
		}
	}
}

func (c *call) safeTeardown(reason string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Teardown panicked", slog.Any("panic", r))
		}
	}()
	c.teardown(reason)
}

// post delivers an event to the loop. It blocks until there is room or the
// call ends, and reports whether the event was queued.
func (c *call) post(ev event) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// tryPost never blocks. Hooks that can run on the loop goroutine use it.
func (c *call) tryPost(ev event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *call) readLoop() {
	defer c.wg.Done()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.post(event{kind: telephonyClosed, err: err})
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			c.deps.Metrics.RecordProtocolError()
			c.readLogger.Warn("Dropping malformed telephony message", slog.String("error", err.Error()))
			continue
		}
		if !c.post(event{kind: telephonyMessage, msg: msg}) {
			return
		}
	}
}

// handle applies one event and reports whether the call is over.
func (c *call) handle(ev event) bool {
	switch ev.kind {
	case telephonyMessage:
		return c.onTelephony(ev.msg)
	case telephonyClosed:
		if ev.err != nil && !websocket.IsCloseError(ev.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Warn("Telephony connection lost", slog.String("error", ev.err.Error()))
		} else {
			c.logger.Debug("Telephony connection closed")
		}
		c.teardown("telephony closed")
		return true
	case aiOpened:
		c.onAIOpened(ev)
	case aiMessage:
		c.onAIMessage(ev)
	case aiClosed:
		c.onAIClosed(ev)
	case greetingReady:
		c.onGreeting(ev.clip)
	case promptReady:
		c.onPrompt(ev.clip)
	case inactivity:
		c.onInactivity()
	}
	return false
}

func (c *call) onTelephony(msg *protocol.Message) bool {
	if c.started && msg.StreamSID != "" && msg.StreamSID != c.streamSID {
		c.logger.Warn("Ignoring message for another stream",
			slog.String("event", msg.Event),
			slog.String("other_stream_sid", msg.StreamSID))
		return false
	}

	switch msg.Event {
	case protocol.EventConnected:
		c.logger.Debug("Telephony stream connected", slog.String("protocol", msg.Protocol))
	case protocol.EventStart:
		return c.onStart(msg)
	case protocol.EventMedia:
		c.onMedia(msg.Media)
	case protocol.EventMark:
		if c.started {
			c.onMark(msg.Mark.Name)
		}
	case protocol.EventDTMF:
		if c.started {
			c.digits.WriteString(msg.DTMF.Digit)
			c.logger.Info("Caller pressed key", slog.String("digit", msg.DTMF.Digit))
		}
	case protocol.EventStop:
		c.teardown("stop")
		return true
	}
	return false
}

func (c *call) onStart(msg *protocol.Message) bool {
	if c.started {
		c.logger.Warn("Ignoring repeated start")
		return false
	}

	start := msg.Start
	params := stream.Params{
		StreamSID:  msg.StreamSID,
		CallSID:    start.CallSID,
		AccountSID: start.AccountSID,
		From:       start.From(),
		To:         start.To(),
		ClientID:   start.ClientID(),
	}

	session, err := c.deps.Registry.Create(params)
	if err != nil {
		reason := "duplicate"
		if errors.Is(err, stream.ErrSessionRetired) {
			reason = "retired"
		}
		c.deps.Metrics.RecordCallRejected(reason)
		c.logger.Warn("Rejecting stream",
			slog.String("stream_sid", msg.StreamSID),
			slog.String("error", err.Error()))
		return true
	}

	c.started = true
	c.streamSID = msg.StreamSID
	c.startedAt = session.CreatedAt
	c.session = session
	c.logger = c.logger.With(slog.String("stream_sid", c.streamSID))
	session.SetCloser(c.cancel)
	c.deps.Metrics.RecordCallStarted()

	if enc := start.MediaFormat.Encoding; enc != "" && !strings.EqualFold(enc, "audio/x-mulaw") {
		c.logger.Warn("Unexpected media encoding, assuming µ-law", slog.String("encoding", enc))
	}

	c.client = c.lookupClient(params.ClientID)
	session.SetClient(c.client)

	c.playout = newPlayout(c.streamSID, c.config.PlayoutQueueFrames, c.config.WriteTimeout, session, c.logger, c.deps.Metrics)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.playout.run(c.ctx, c.conn); err != nil {
			c.post(event{kind: telephonyClosed, err: err})
		}
	}()

	c.machine = conversation.New(c.streamSID, c.deps.Scheduler, c.config.Conversation, c.logger, c.deps.Metrics)
	c.machine.OnTransition(func(t conversation.Transition) {
		session.SetConversationState(string(t.To))
	})
	c.machine.OnInactivity(func() {
		c.tryPost(event{kind: inactivity})
	})
	session.SetConversationState(string(c.machine.State()))

	detector, err := vad.NewProcessor(c.config.SilenceThreshold, audio.TelephonySampleRate)
	if err != nil {
		c.logger.Warn("Invalid silence threshold, using default", slog.String("error", err.Error()))
		detector, _ = vad.NewProcessor(vad.DefaultThreshold, audio.TelephonySampleRate)
	}
	c.detector = detector

	c.logger.Info("Call started",
		slog.String("call_sid", params.CallSID),
		slog.String("from", params.From),
		slog.String("to", params.To),
		slog.String("client_id", params.ClientID),
		slog.String("company", c.client.CompanyName))

	c.notifyStarted()
	c.startGreeting()
	c.openAI(0)
	return false
}

func (c *call) lookupClient(id string) directory.ClientConfig {
	fallback := directory.Default()
	fallback.ID = id
	if id == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.config.LookupTimeout)
	defer cancel()

	client, err := c.deps.Directory.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrClientNotFound) {
			c.logger.Info("Unknown client, using default greeting", slog.String("client_id", id))
		} else {
			c.logger.Warn("Client lookup failed, using default greeting",
				slog.String("client_id", id),
				slog.String("error", err.Error()))
		}
		return fallback
	}
	return client
}

func (c *call) startGreeting() {
	text, voice := c.client.GreetingText(), c.client.Voice
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		clip := c.deps.Synth.SpeechOrTone(c.ctx, text, voice)
		c.post(event{kind: greetingReady, clip: clip})
	}()
}

func (c *call) onGreeting(clip synth.Clip) {
	if c.stopped {
		return
	}
	if clip.Fallback {
		c.logger.Info("Greeting replaced by tone", slog.String("cause", string(clip.Cause)))
	}

	c.playout.SendAudio(clip.Audio)
	c.greetingMark = greetingMarkPrefix + uuid.NewString()
	c.playout.SendMark(c.greetingMark)

	frames := audio.FrameCount(len(clip.Audio), audio.Telephony.FrameBytes()) + greetingSlackFrames
	machine := c.machine
	c.deps.Scheduler.Arm(c.streamSID, greetingTimeoutID, frames, func() {
		if machine.State() == conversation.Greeting {
			machine.Transition(conversation.Listening, "greeting timeout")
		}
	})

	c.captureArmed = true
	c.flushPending()
}

// openAI starts connecting a new AI session after delay. Events of earlier
// sessions are ignored from here on.
func (c *call) openAI(delay time.Duration) {
	c.generation++
	gen := c.generation
	c.mode = aiConnecting

	cfg := c.config.Realtime
	if c.client.Voice != "" {
		cfg.Voice = c.client.Voice
	}
	cfg.Instructions = directory.BuildInstructions(c.client, c.config.BaseInstructions)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-c.ctx.Done():
				return
			}
		}

		s, err := realtime.Open(c.ctx, cfg, c.playout, c.logger, c.deps.Metrics)
		if !c.post(event{kind: aiOpened, gen: gen, session: s, err: err}) && s != nil {
			s.Close()
		}
	}()
}

func (c *call) onAIOpened(ev event) {
	if ev.gen != c.generation || c.stopped {
		if ev.session != nil {
			ev.session.Close()
		}
		return
	}
	if ev.err != nil {
		c.aiFailed(ev.err, false)
		return
	}

	c.ai = ev.session
	c.mode = aiReady
	c.session.SetLifecycle(stream.LifecycleActive)
	if c.machine.State() == conversation.Error {
		c.machine.Transition(conversation.Listening, "ai session restored")
	}

	c.wg.Add(1)
	go c.forward(ev.gen, ev.session)

	c.logger.Info("AI session ready",
		slog.Bool("confirmed", ev.session.Confirmed()),
		slog.Int("queued_frames", len(c.pending)))
	c.flushPending()
}

// forward relays server events of one AI session to the loop.
func (c *call) forward(gen uint64, s *realtime.Session) {
	defer c.wg.Done()

	for ev := range s.Events() {
		if !c.post(event{kind: aiMessage, gen: gen, ai: ev}) {
			return
		}
	}
	c.post(event{kind: aiClosed, gen: gen, err: s.Err()})
}

func (c *call) onAIMessage(ev event) {
	if ev.gen != c.generation || c.ai == nil {
		return
	}

	switch c.ai.Dispatch(ev.ai) {
	case realtime.OutcomeBargeIn:
		c.machine.Transition(conversation.Listening, "barge-in")
	case realtime.OutcomeSpeechStarted:
		if st := c.machine.State(); st == conversation.Speaking || st == conversation.Processing {
			c.machine.Transition(conversation.Listening, "caller speaking")
		}
	case realtime.OutcomeSpeechStopped:
		if st := c.machine.State(); st == conversation.Listening || st == conversation.Speaking {
			c.machine.Transition(conversation.Processing, "caller finished")
		}
	case realtime.OutcomeAudio:
		if c.machine.State() == conversation.Speaking {
			c.machine.ExtendSpeaking()
		} else {
			c.machine.Transition(conversation.Speaking, "ai audio")
		}
	}
}

func (c *call) onAIClosed(ev event) {
	if ev.gen != c.generation || c.stopped {
		return
	}
	c.aiFailed(ev.err, true)
}

// aiFailed handles the loss of the AI session: one reconnect, then
// synthesized prompts for the rest of the call. A connect timeout goes
// straight to prompts.
func (c *call) aiFailed(err error, wasOpen bool) {
	if c.ai != nil {
		c.turns = append(c.turns, convertTurns(c.ai.Transcript())...)
		c.ai.Close()
		c.ai = nil
	}
	c.generation++

	attrs := []any{
		slog.Bool("was_open", wasOpen),
		slog.Int("reconnects", c.reconnects),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.logger.Warn("AI session failed", attrs...)

	if c.machine.State() != conversation.Error {
		c.machine.Transition(conversation.Error, "ai session failed")
	}

	if c.reconnects < c.config.MaxReconnects && (wasOpen || !isTimeout(err)) {
		c.reconnects++
		c.deps.Metrics.RecordAIReconnect()
		c.openAI(c.config.ReconnectDelay)
		return
	}
	c.enterFallback()
}

func (c *call) enterFallback() {
	c.mode = aiFallback
	c.pending = nil
	c.session.SetFallback(true)
	c.session.SetLifecycle(stream.LifecycleActive)
	c.deps.Metrics.RecordAIFallback()
	c.logger.Warn("AI unavailable, continuing with synthesized prompts")
	c.playPrompt(c.config.FallbackMessage)
}

func (c *call) playPrompt(text string) {
	c.promptPending = true
	voice := c.client.Voice
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		clip := c.deps.Synth.SpeechOrTone(c.ctx, text, voice)
		c.post(event{kind: promptReady, clip: clip})
	}()
}

func (c *call) onPrompt(clip synth.Clip) {
	c.promptPending = false
	if c.stopped {
		return
	}

	c.playout.SendAudio(clip.Audio)
	c.promptMark = promptMarkPrefix + uuid.NewString()
	c.playout.SendMark(c.promptMark)

	if c.machine.State() == conversation.Error {
		c.machine.Transition(conversation.Listening, "fallback prompt")
	}
}

func (c *call) onMedia(media *protocol.Media) {
	if !c.started {
		c.logger.Debug("Ignoring media before start")
		return
	}
	if !media.IsInbound() {
		return
	}

	payload, err := media.Decode()
	if err != nil {
		c.deps.Metrics.RecordProtocolError()
		c.logger.Warn("Invalid media payload", slog.String("error", err.Error()))
		return
	}

	c.session.RecordInbound(time.Now())
	c.deps.Scheduler.Tick(c.streamSID)
	c.machine.ObserveFrame(c.detector.IsSilentPayload(payload, audio.Telephony))
	if c.playbackActive() {
		c.machine.ResetInactivity()
	}

	ts := media.TimestampMS()
	switch {
	case c.mode == aiReady && c.captureArmed:
		c.deps.Metrics.RecordMediaFrame(false)
		c.pushCaller(payload, ts)
	case c.mode == aiFallback:
		c.deps.Metrics.RecordMediaFrame(false)
	default:
		c.deps.Metrics.RecordMediaFrame(true)
		c.pending = append(c.pending, pendingFrame{payload: payload, timestamp: ts})
	}
}

// flushPending forwards queued caller audio in arrival order once both the
// AI session and capture are ready.
func (c *call) flushPending() {
	if c.mode != aiReady || !c.captureArmed || len(c.pending) == 0 {
		return
	}

	n := len(c.pending)
	for _, f := range c.pending {
		c.pushCaller(f.payload, f.timestamp)
	}
	c.pending = nil
	c.logger.Debug("Flushed queued caller audio", slog.Int("frames", n))
}

func (c *call) pushCaller(payload []byte, ts int64) {
	err := c.ai.PushCallerAudio(payload, ts)
	switch {
	case err == nil, errors.Is(err, realtime.ErrClosed):
	case errors.Is(err, realtime.ErrBackpressure):
		c.logger.Debug("AI send queue full, dropping caller audio")
	default:
		c.logger.Warn("Failed to forward caller audio", slog.String("error", err.Error()))
	}
}

func (c *call) onMark(name string) {
	switch {
	case name == c.greetingMark:
		c.deps.Scheduler.Cancel(c.streamSID, greetingTimeoutID)
		if c.machine.State() == conversation.Greeting {
			c.machine.Transition(conversation.Listening, "greeting played")
		}
	case name == c.promptMark:
		c.promptMark = ""
		c.machine.ResetInactivity()
	case realtime.IsMark(name) && c.ai != nil:
		if !c.ai.OnMarkAcknowledged(name) || !c.ai.PlaybackIdle() {
			return
		}
		// Silence is counted from the moment the caller heard the last audio
		c.machine.ResetInactivity()
		if c.machine.State() == conversation.Speaking {
			c.machine.Transition(conversation.Listening, "playback finished")
		}
	default:
		c.logger.Debug("Ignoring unknown mark", slog.String("mark", name))
	}
}

// playbackActive reports whether audio sent to the caller has not been
// heard yet, going by unacknowledged marks.
func (c *call) playbackActive() bool {
	if c.promptMark != "" || c.promptPending {
		return true
	}
	return c.ai != nil && !c.ai.PlaybackIdle()
}

func (c *call) onInactivity() {
	if c.stopped || c.machine.State() != conversation.Listening || c.playbackActive() {
		return
	}

	switch c.mode {
	case aiReady:
		if c.ai.CreateResponse(c.config.InactivityPrompt) {
			c.deps.Metrics.RecordInactivityPrompt()
			c.logger.Info("Asked AI to check on silent caller")
		}
	case aiFallback:
		c.deps.Metrics.RecordInactivityPrompt()
		c.playPrompt(c.config.FallbackPrompt)
	}
}

// teardown ends the call. Registry state and scheduler timeouts are released
// here; the summary and notifications run in the background.
func (c *call) teardown(reason string) {
	if c.stopped {
		return
	}
	c.stopped = true
	if !c.started {
		return
	}

	ended := time.Now()
	c.session.SetLifecycle(stream.LifecycleClosing)

	if c.ai != nil {
		if err := c.ai.FlushCallerAudio(); err != nil && !errors.Is(err, realtime.ErrClosed) {
			c.logger.Debug("Failed to flush caller audio", slog.String("error", err.Error()))
		}
		c.turns = append(c.turns, convertTurns(c.ai.Transcript())...)
		c.ai.Close()
		c.ai = nil
	}
	c.generation++
	c.pending = nil

	c.machine.Close()
	c.deps.Scheduler.CancelSession(c.streamSID)
	c.deps.Registry.Remove(c.streamSID)

	duration := ended.Sub(c.startedAt)
	c.deps.Metrics.RecordCallEnded(duration.Seconds())

	ps := c.playout.stats()
	c.logger.Info("Call ended",
		slog.String("reason", reason),
		slog.Duration("duration", duration),
		slog.Int("turns", len(c.turns)),
		slog.Bool("fallback", c.mode == aiFallback),
		slog.Uint64("frames_sent", ps.Sent),
		slog.Uint64("frames_dropped", ps.Dropped))

	c.finish(ended)
}

// finish extracts the summary, saves the call log entry and sends the
// call-ended notification.
func (c *call) finish(ended time.Time) {
	b := c.bridge
	cfg := c.config
	deps := c.deps
	logger := c.logger
	digits := c.digits.String()
	notice := c.webhookCall(ended)

	in := summary.Input{
		Transcript:   c.turns,
		CallerNumber: c.session.From,
		CompanyName:  c.client.CompanyName,
	}
	entry := calllog.Entry{
		ID:           uuid.New(),
		StreamSID:    c.streamSID,
		CallSID:      c.session.CallSID,
		ClientID:     c.client.ID,
		CallerNumber: c.session.From,
		CalleeNumber: c.session.To,
		StartedAt:    c.startedAt,
		EndedAt:      ended,
		Fallback:     c.mode == aiFallback,
		Transcript:   c.turns,
	}

	b.goBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SummaryTimeout)
		record, err := deps.Extractor.Extract(ctx, in)
		cancel()
		if err != nil {
			logger.Warn("Summary extraction failed, using heuristics", slog.String("error", err.Error()))
			record, _ = summary.NewHeuristicExtractor().Extract(context.Background(), in)
		}
		if digits != "" {
			if record.Details == nil {
				record.Details = make(map[string]string)
			}
			record.Details["dtmf"] = digits
		}
		entry.Record = record

		ctx, cancel = context.WithTimeout(context.Background(), cfg.SaveTimeout)
		err = deps.Sink.Save(ctx, entry)
		cancel()
		deps.Metrics.RecordSummary(err == nil)
		if err != nil {
			b.failed.Add(1)
			logger.Error("Failed to save call log", slog.String("error", err.Error()))
		}

		ctx, cancel = context.WithTimeout(context.Background(), cfg.NotifyTimeout)
		err = deps.Notifier.CallEnded(ctx, notice, record)
		cancel()
		if err != nil {
			logger.Warn("Call ended notification failed", slog.String("error", err.Error()))
		}
	})
}

func (c *call) notifyStarted() {
	notifier := c.deps.Notifier
	timeout := c.config.NotifyTimeout
	logger := c.logger
	notice := c.webhookCall(time.Time{})

	c.bridge.goBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := notifier.CallStarted(ctx, notice); err != nil {
			logger.Warn("Call started notification failed", slog.String("error", err.Error()))
		}
	})
}

func (c *call) webhookCall(ended time.Time) webhook.Call {
	return webhook.Call{
		StreamSID: c.streamSID,
		CallSID:   c.session.CallSID,
		ClientID:  c.client.ID,
		From:      c.session.From,
		To:        c.session.To,
		StartedAt: c.startedAt,
		EndedAt:   ended,
		Fallback:  c.mode == aiFallback,
	}
}

func convertTurns(turns []realtime.Turn) []summary.Turn {
	out := make([]summary.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, summary.Turn{Speaker: string(t.Role), Text: t.Text})
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
