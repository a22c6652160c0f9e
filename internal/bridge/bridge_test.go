package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/calllog"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/directory"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/protocol"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/realtime"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/realtime/realtimetest"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/scheduler"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/synth"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/webhook"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []calllog.Entry
}

func (s *recordingSink) Save(_ context.Context, e calllog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) Entries() []calllog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]calllog.Entry(nil), s.entries...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	started []webhook.Call
	ended   []webhook.Call
}

func (n *recordingNotifier) CallStarted(_ context.Context, call webhook.Call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, call)
	return nil
}

func (n *recordingNotifier) CallEnded(_ context.Context, call webhook.Call, _ summary.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, call)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.started), len(n.ended)
}

type harness struct {
	bridge    *Bridge
	registry  *stream.Registry
	scheduler *scheduler.Scheduler
	sink      *recordingSink
	notifier  *recordingNotifier
	server    *httptest.Server
	served    chan struct{}
}

func newHarness(t *testing.T, rt realtime.Config, mutate func(*Config)) *harness {
	t.Helper()
	logger := testLogger()

	registry := stream.NewRegistry(logger, stream.Config{}, nil)
	t.Cleanup(registry.Stop)

	sched := scheduler.New(scheduler.Config{}, logger, nil)
	speech, err := synth.NewService(nil, synth.Config{}, logger, nil)
	if err != nil {
		t.Fatalf("Failed to create synthesis service: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Realtime = rt
	cfg.ReconnectDelay = 10 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		registry:  registry,
		scheduler: sched,
		sink:      &recordingSink{},
		notifier:  &recordingNotifier{},
		served:    make(chan struct{}, 16),
	}

	h.bridge, err = New(cfg, Deps{
		Registry:  registry,
		Scheduler: sched,
		Synth:     speech,
		Directory: directory.NewStaticProvider(directory.ClientConfig{ID: "acme", CompanyName: "Acme Plumbing"}),
		Sink:      h.sink,
		Notifier:  h.notifier,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.bridge.Serve(context.Background(), conn)
		h.served <- struct{}{}
	}))
	t.Cleanup(h.server.Close)

	return h
}

func (h *harness) waitServed(t *testing.T) {
	t.Helper()
	select {
	case <-h.served:
	case <-time.After(5 * time.Second):
		t.Fatal("Call worker did not return")
	}
	h.bridge.Wait()
}

// phone plays the telephony provider side of a media stream.
type phone struct {
	t       *testing.T
	conn    *websocket.Conn
	ackMark bool

	writeMu sync.Mutex
	mu      sync.Mutex
	media   [][]byte
	marks   []string
	clears  int
	closed  chan struct{}
}

func (h *harness) dial(t *testing.T, ackMarks bool) *phone {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial bridge: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	p := &phone{t: t, conn: conn, ackMark: ackMarks, closed: make(chan struct{})}
	go p.readLoop()
	return p
}

func (p *phone) readLoop() {
	defer close(p.closed)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case protocol.EventMedia:
			payload, _ := msg.Media.Decode()
			p.mu.Lock()
			p.media = append(p.media, payload)
			p.mu.Unlock()
		case protocol.EventMark:
			p.mu.Lock()
			p.marks = append(p.marks, msg.Mark.Name)
			p.mu.Unlock()
			if p.ackMark {
				p.send(map[string]any{"event": "mark", "streamSid": msg.StreamSID, "mark": map[string]any{"name": msg.Mark.Name}})
			}
		case protocol.EventClear:
			p.mu.Lock()
			p.clears++
			p.mu.Unlock()
		}
	}
}

func (p *phone) send(v any) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteJSON(v)
}

func (p *phone) start(sid, clientID string) {
	p.send(map[string]any{"event": "connected", "protocol": "Call", "version": "1.0.0"})
	p.send(map[string]any{
		"event":     "start",
		"streamSid": sid,
		"start": map[string]any{
			"streamSid":   sid,
			"callSid":     "CA" + sid,
			"accountSid":  "AC1",
			"tracks":      []string{"inbound"},
			"mediaFormat": map[string]any{"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
			"customParameters": map[string]string{
				"clientId": clientID,
				"from":     "+15550100",
				"to":       "+15550199",
			},
		},
	})
}

func (p *phone) sendMedia(sid string, fill byte, frames, firstTS int) {
	payload := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{fill}, 160))
	for i := 0; i < frames; i++ {
		p.send(map[string]any{
			"event":     "media",
			"streamSid": sid,
			"media": map[string]any{
				"track":     "inbound",
				"timestamp": strconv.Itoa(firstTS + i*20),
				"payload":   payload,
			},
		})
	}
}

func (p *phone) stop(sid string) {
	p.send(map[string]any{"event": "stop", "streamSid": sid, "stop": map[string]any{"callSid": "CA" + sid}})
}

// framesOf counts received media frames made only of fill.
func (p *phone) framesOf(fill byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.media {
		if len(f) > 0 && bytes.Count(f, []byte{fill}) == len(f) {
			n++
		}
	}
	return n
}

func (p *phone) mediaCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.media)
}

func (p *phone) marksWithPrefix(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.marks {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func (p *phone) markNames(prefix string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, m := range p.marks {
		if strings.HasPrefix(m, prefix) {
			names = append(names, m)
		}
	}
	return names
}

func (p *phone) ack(sid, name string) {
	p.send(map[string]any{"event": "mark", "streamSid": sid, "mark": map[string]any{"name": name}})
}

func (p *phone) clearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

func realtimeConfig(srv *realtimetest.Server) realtime.Config {
	return realtime.Config{
		URL:            srv.URL(),
		ConnectTimeout: 2 * time.Second,
		ConfirmTimeout: time.Second,
	}
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestCallLifecycleProducesOneSummary(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")

	if !srv.WaitFor("session.update", 1, 2*time.Second) {
		t.Fatal("AI session was not configured")
	}

	p.sendMedia("MZ1", 0x11, 60, 0)
	if !srv.WaitFor("input_audio_buffer.append", 4, 2*time.Second) {
		t.Fatalf("Expected caller audio to reach the AI, got %d appends", srv.Count("input_audio_buffer.append"))
	}

	events := []map[string]any{
		{"type": "input_audio_buffer.speech_started", "audio_start_ms": 100},
		{"type": "input_audio_buffer.speech_stopped", "audio_end_ms": 900},
		{"type": "conversation.item.input_audio_transcription.completed", "transcript": "Hi, this is Ann Smith calling from Acme Plumbing about my invoice."},
		{"type": "response.created", "response": map[string]any{"id": "resp_1"}},
		{"type": "response.output_item.added", "item": map[string]any{"id": "item_1"}},
		{"type": "response.audio_transcript.done", "transcript": "Sure, let me take a message."},
		{"type": "response.audio.delta", "item_id": "item_1", "delta": b64(bytes.Repeat([]byte{0x33}, 320))},
		{"type": "response.audio.done", "item_id": "item_1"},
		{"type": "response.done", "response": map[string]any{"id": "resp_1"}},
	}
	for _, ev := range events {
		if err := srv.Send(ev); err != nil {
			t.Fatalf("Failed to send %v: %v", ev["type"], err)
		}
	}

	if !waitUntil(t, 2*time.Second, func() bool { return p.framesOf(0x33) == 2 }) {
		t.Fatalf("Expected 2 frames of AI audio, got %d", p.framesOf(0x33))
	}
	if p.marksWithPrefix("greeting-") != 1 {
		t.Errorf("Expected one greeting mark, got %d", p.marksWithPrefix("greeting-"))
	}

	p.stop("MZ1")
	h.waitServed(t)

	entries := h.sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected exactly one call log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.StreamSID != "MZ1" || e.CallSID != "CAMZ1" || e.ClientID != "acme" {
		t.Errorf("Unexpected entry identity: %+v", e)
	}
	if e.CallerNumber != "+15550100" || e.CalleeNumber != "+15550199" {
		t.Errorf("Unexpected numbers: %q -> %q", e.CallerNumber, e.CalleeNumber)
	}
	if e.Fallback {
		t.Error("Expected a call without fallback")
	}
	if len(e.Transcript) != 2 {
		t.Fatalf("Expected 2 transcript turns, got %d", len(e.Transcript))
	}
	if e.Transcript[0].Speaker != summary.SpeakerCaller {
		t.Errorf("Expected caller turn first, got %q", e.Transcript[0].Speaker)
	}
	if e.Record.CallerName != "Ann Smith" {
		t.Errorf("Expected caller name Ann Smith, got %q", e.Record.CallerName)
	}

	if _, ok := h.registry.Get("MZ1"); ok {
		t.Error("Expected session to be removed from the registry")
	}
	if !h.registry.IsRetired("MZ1") {
		t.Error("Expected stream id to be retired")
	}
	if n := h.scheduler.Pending("MZ1"); n != 0 {
		t.Errorf("Expected no pending timeouts, got %d", n)
	}
	if started, ended := h.notifier.counts(); started != 1 || ended != 1 {
		t.Errorf("Expected one start and one end notification, got %d and %d", started, ended)
	}
	if stats := h.bridge.GetStats(); stats.ActiveWorkers != 0 || stats.TotalCalls != 1 {
		t.Errorf("Unexpected bridge stats: %+v", stats)
	}
}

func TestConcurrentCallsDoNotCrossTalk(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{Echo: true})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	a := h.dial(t, true)
	b := h.dial(t, true)
	a.start("MZA", "acme")
	b.start("MZB", "acme")

	if !srv.WaitFor("session.update", 2, 2*time.Second) {
		t.Fatal("Expected two AI sessions")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.sendMedia("MZA", 0x11, 30, 0) }()
	go func() { defer wg.Done(); b.sendMedia("MZB", 0x22, 30, 0) }()
	wg.Wait()

	if !waitUntil(t, 3*time.Second, func() bool { return a.framesOf(0x11) >= 15 && b.framesOf(0x22) >= 15 }) {
		t.Fatalf("Expected echoed audio on both calls, got %d and %d", a.framesOf(0x11), b.framesOf(0x22))
	}
	if n := a.framesOf(0x22); n != 0 {
		t.Errorf("Call A received %d frames of call B", n)
	}
	if n := b.framesOf(0x11); n != 0 {
		t.Errorf("Call B received %d frames of call A", n)
	}

	a.stop("MZA")
	b.stop("MZB")
	h.waitServed(t)
	h.waitServed(t)

	if n := len(h.sink.Entries()); n != 2 {
		t.Errorf("Expected 2 call log entries, got %d", n)
	}
	if h.registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", h.registry.Count())
	}
}

func TestGreetingPlaysWhileAIUnconfirmed(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{NoConfirm: true})
	defer srv.Close()

	rt := realtimeConfig(srv)
	rt.ConfirmTimeout = 5 * time.Second
	h := newHarness(t, rt, nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")

	if !waitUntil(t, time.Second, func() bool { return p.marksWithPrefix("greeting-") == 1 }) {
		t.Fatal("Greeting was not played while the AI session was negotiating")
	}
	if p.mediaCount() == 0 {
		t.Error("Expected greeting audio before the greeting mark")
	}

	if !waitUntil(t, time.Second, func() bool {
		s, ok := h.registry.Get("MZ1")
		return ok && s.Info(time.Now()).State == "listening"
	}) {
		t.Error("Expected listening after the greeting mark")
	}

	p.stop("MZ1")
	h.waitServed(t)
	if n := len(h.sink.Entries()); n != 1 {
		t.Errorf("Expected 1 call log entry, got %d", n)
	}
}

func TestMediaQueuedUntilAIReady(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{NoConfirm: true})
	defer srv.Close()

	rt := realtimeConfig(srv)
	rt.ConfirmTimeout = 300 * time.Millisecond
	h := newHarness(t, rt, nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")
	p.sendMedia("MZ1", 0x11, 30, 0)

	if !srv.WaitFor("input_audio_buffer.append", 2, 2*time.Second) {
		t.Fatalf("Expected queued audio to be flushed, got %d appends", srv.Count("input_audio_buffer.append"))
	}

	p.stop("MZ1")
	h.waitServed(t)
}

func TestFallbackWhenAIUnavailable(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{RejectConnections: true})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")

	if !waitUntil(t, 3*time.Second, func() bool { return p.marksWithPrefix(promptMarkPrefix) == 1 }) {
		t.Fatal("Expected the fallback prompt to play")
	}
	if p.marksWithPrefix(greetingMarkPrefix) != 1 {
		t.Error("Expected the greeting to play")
	}

	s, ok := h.registry.Get("MZ1")
	if !ok {
		t.Fatal("Expected the call to stay up")
	}
	if info := s.Info(time.Now()); !info.Fallback || info.Lifecycle != stream.LifecycleActive {
		t.Errorf("Expected active fallback session, got %+v", info)
	}

	p.sendMedia("MZ1", 0x11, 10, 0)
	p.stop("MZ1")
	h.waitServed(t)

	entries := h.sink.Entries()
	if len(entries) != 1 || !entries[0].Fallback {
		t.Fatalf("Expected one fallback entry, got %+v", entries)
	}
}

func TestAIReconnectsOnce(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")

	if !srv.WaitFor("session.update", 1, 2*time.Second) {
		t.Fatal("AI session was not configured")
	}
	time.Sleep(50 * time.Millisecond)
	srv.DropConnections()

	if !srv.WaitFor("session.update", 2, 2*time.Second) {
		t.Fatal("Expected a reconnect")
	}
	if !waitUntil(t, time.Second, func() bool {
		s, ok := h.registry.Get("MZ1")
		return ok && s.Info(time.Now()).Lifecycle == stream.LifecycleActive
	}) {
		t.Fatal("Expected call to stay active")
	}
	if s, _ := h.registry.Get("MZ1"); s != nil && s.Info(time.Now()).Fallback {
		t.Error("Expected no fallback after a successful reconnect")
	}

	p.sendMedia("MZ1", 0x11, 15, 0)
	if !srv.WaitFor("input_audio_buffer.append", 1, 2*time.Second) {
		t.Error("Expected audio to reach the new AI session")
	}

	p.stop("MZ1")
	h.waitServed(t)
}

func TestBargeInClearsPlayout(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, false)
	p.start("MZ1", "acme")

	if !srv.WaitFor("session.update", 1, 2*time.Second) {
		t.Fatal("AI session was not configured")
	}
	if !waitUntil(t, time.Second, func() bool { return p.marksWithPrefix(greetingMarkPrefix) == 1 }) {
		t.Fatal("Greeting was not played")
	}

	p.sendMedia("MZ1", 0x11, 5, 1000)
	_ = srv.Send(map[string]any{"type": "response.created", "response": map[string]any{"id": "resp_1"}})
	_ = srv.Send(map[string]any{"type": "response.output_item.added", "item": map[string]any{"id": "item_1"}})
	_ = srv.Send(map[string]any{"type": "response.audio.delta", "item_id": "item_1", "delta": b64(bytes.Repeat([]byte{0x33}, 1600))})

	if !waitUntil(t, time.Second, func() bool { return p.marksWithPrefix("ai-") == 1 }) {
		t.Fatal("Expected a mark after the AI audio")
	}

	_ = srv.Send(map[string]any{"type": "input_audio_buffer.speech_started", "audio_start_ms": 1100})

	if !waitUntil(t, time.Second, func() bool { return p.clearCount() == 1 }) {
		t.Fatal("Expected a clear message on barge-in")
	}
	if !srv.WaitFor("conversation.item.truncate", 1, time.Second) {
		t.Error("Expected the AI item to be truncated")
	}

	p.stop("MZ1")
	h.waitServed(t)
}

func waitFramesIn(t *testing.T, h *harness, sid string, n uint64) {
	t.Helper()
	ok := waitUntil(t, 3*time.Second, func() bool {
		s, found := h.registry.Get(sid)
		return found && s.Info(time.Now()).FramesIn >= n
	})
	if !ok {
		t.Fatalf("Bridge did not process %d inbound frames", n)
	}
}

func TestSilenceDuringPlaybackIsNotInactivity(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, false)
	p.start("MZ1", "acme")

	if !srv.WaitFor("session.update", 1, 2*time.Second) {
		t.Fatal("AI session was not configured")
	}
	if !waitUntil(t, time.Second, func() bool { return p.marksWithPrefix(greetingMarkPrefix) == 1 }) {
		t.Fatal("Greeting was not played")
	}
	p.ack("MZ1", p.markNames(greetingMarkPrefix)[0])

	// An 8 s reply streamed at once, far faster than it plays
	_ = srv.Send(map[string]any{"type": "response.created", "response": map[string]any{"id": "resp_1"}})
	_ = srv.Send(map[string]any{"type": "response.output_item.added", "item": map[string]any{"id": "item_1"}})
	_ = srv.Send(map[string]any{"type": "response.audio.delta", "item_id": "item_1", "delta": b64(bytes.Repeat([]byte{0x33}, 64000))})
	_ = srv.Send(map[string]any{"type": "response.audio.done", "item_id": "item_1"})
	_ = srv.Send(map[string]any{"type": "response.done", "response": map[string]any{"id": "resp_1", "status": "completed"}})

	if !waitUntil(t, 2*time.Second, func() bool { return p.marksWithPrefix("ai-") == 1 }) {
		t.Fatal("Expected a mark after the AI audio")
	}

	// The caller listens in silence while the reply plays out
	p.sendMedia("MZ1", 0xFF, 400, 0)
	waitFramesIn(t, h, "MZ1", 400)
	p.ack("MZ1", p.markNames("ai-")[0])

	// 3.5 s of silence after playback ended
	p.sendMedia("MZ1", 0xFF, 175, 8000)
	waitFramesIn(t, h, "MZ1", 575)
	time.Sleep(100 * time.Millisecond)
	if n := srv.Count("response.create"); n != 0 {
		t.Fatalf("Expected no inactivity prompt 3.5 s after playback, got %d", n)
	}

	// Ten seconds of silence after playback asks the AI to check in
	p.sendMedia("MZ1", 0xFF, 345, 11500)
	if !srv.WaitFor("response.create", 1, 3*time.Second) {
		t.Fatal("Expected an inactivity prompt after 10 s of silence")
	}
	if n := srv.Count("response.create"); n != 1 {
		t.Errorf("Expected exactly one inactivity prompt, got %d", n)
	}

	p.stop("MZ1")
	h.waitServed(t)
}

func TestDuplicateStreamRejected(t *testing.T) {
	h := newHarness(t, realtime.Config{URL: "ws://127.0.0.1:1"}, nil)
	if _, err := h.registry.Create(stream.Params{StreamSID: "MZ1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	p := h.dial(t, true)
	p.start("MZ1", "acme")
	h.waitServed(t)

	select {
	case <-p.closed:
	case <-time.After(time.Second):
		t.Fatal("Expected the connection to be closed")
	}
	if n := len(h.sink.Entries()); n != 0 {
		t.Errorf("Expected no call log entry, got %d", n)
	}
	if _, ok := h.registry.Get("MZ1"); !ok {
		t.Error("Expected the original session to be untouched")
	}
}

func TestMalformedMessagesIgnored(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")

	p.writeMu.Lock()
	_ = p.conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	p.writeMu.Unlock()
	p.send(map[string]any{"event": "bogus", "streamSid": "MZ1"})

	if !waitUntil(t, time.Second, func() bool { _, ok := h.registry.Get("MZ1"); return ok }) {
		t.Fatal("Expected the call to survive malformed messages")
	}

	p.stop("MZ1")
	h.waitServed(t)
}

func TestTelephonyDisconnectTearsDown(t *testing.T) {
	srv := realtimetest.NewServer(realtimetest.Options{})
	defer srv.Close()

	h := newHarness(t, realtimeConfig(srv), nil)
	p := h.dial(t, true)
	p.start("MZ1", "acme")

	if !srv.WaitFor("session.update", 1, 2*time.Second) {
		t.Fatal("AI session was not configured")
	}
	_ = p.conn.Close()
	h.waitServed(t)

	if n := len(h.sink.Entries()); n != 1 {
		t.Errorf("Expected 1 call log entry, got %d", n)
	}
	if _, ok := h.registry.Get("MZ1"); ok {
		t.Error("Expected session to be removed")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("Expected error without a registry")
	}
}
