// Package realtimetest provides an in-process fake of the realtime AI
// service for tests.
package realtimetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options control the fake's behavior.
type Options struct {
	// NoConfirm suppresses the session.updated reply.
	NoConfirm bool
	// Echo answers every audio append with a one-delta response carrying
	// the same audio.
	Echo bool
	// RejectConnections makes the upgrade fail with 503.
	RejectConnections bool
}

// ClientEvent is an event received from the session under test.
type ClientEvent struct {
	Type string
	Raw  map[string]any
}

// Server is a fake realtime AI endpoint.
type Server struct {
	opts   Options
	server *httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []ClientEvent
	headers  []http.Header
	seq      int
}

// NewServer starts a fake realtime service.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RejectConnections {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		s.serve(conn)
	}))
	return s
}

// URL returns the WebSocket URL of the fake.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Close shuts the fake down.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.server.Close()
}

// DropConnections closes every open connection without a close frame.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

// Connections returns the number of accepted connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Header returns the request headers of the i-th connection.
func (s *Server) Header(i int) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.headers) {
		return nil
	}
	return s.headers[i]
}

// Received returns every client event seen so far.
func (s *Server) Received() []ClientEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClientEvent, len(s.received))
	copy(out, s.received)
	return out
}

// Count returns how many client events of the given type were received.
func (s *Server) Count(eventType string) int {
	n := 0
	for _, ev := range s.Received() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// WaitFor polls until at least n events of eventType arrived or timeout
// elapses.
func (s *Server) WaitFor(eventType string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Count(eventType) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Count(eventType) >= n
}

// Send writes a server event to the most recent connection.
func (s *Server) Send(event map[string]any) error {
	s.mu.Lock()
	if len(s.conns) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no connection")
	}
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	return s.write(conn, event)
}

func (s *Server) write(conn *websocket.Conn, event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) nextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func (s *Server) serve(conn *websocket.Conn) {
	_ = s.write(conn, map[string]any{"type": "session.created"})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		eventType, _ := raw["type"].(string)

		s.mu.Lock()
		s.received = append(s.received, ClientEvent{Type: eventType, Raw: raw})
		s.mu.Unlock()

		switch eventType {
		case "session.update":
			if !s.opts.NoConfirm {
				_ = s.write(conn, map[string]any{"type": "session.updated", "session": raw["session"]})
			}
		case "input_audio_buffer.append":
			if s.opts.Echo {
				s.echo(conn, raw["audio"])
			}
		}
	}
}

func (s *Server) echo(conn *websocket.Conn, payload any) {
	responseID := s.nextID("resp")
	itemID := s.nextID("item")

	_ = s.write(conn, map[string]any{"type": "response.created", "response": map[string]any{"id": responseID}})
	_ = s.write(conn, map[string]any{"type": "response.output_item.added", "item": map[string]any{"id": itemID}})
	_ = s.write(conn, map[string]any{"type": "response.audio.delta", "item_id": itemID, "delta": payload})
	_ = s.write(conn, map[string]any{"type": "response.audio.done", "item_id": itemID})
	_ = s.write(conn, map[string]any{"type": "response.done", "response": map[string]any{"id": responseID, "status": "completed"}})
}
