package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the part of the AI connection the session writes through.
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// hangUpBudget bounds how long queued control events may hold up shutdown.
const hangUpBudget = 100 * time.Millisecond

// sendControl queues a control event such as session.update, a truncate or a
// response request. A lost control event leaves the service out of step with
// the call, so a full control lane ends the session.
func (s *Session) sendControl(v any) error {
	err := s.enqueue(s.control, v)
	if errors.Is(err, ErrBackpressure) {
		s.fail(fmt.Errorf("control event not sent: %w", err))
	}
	return err
}

// sendAudio queues a caller audio append. A full audio lane drops the append.
func (s *Session) sendAudio(v any) error {
	return s.enqueue(s.audio, v)
}

func (s *Session) enqueue(lane chan []byte, v any) error {
	if s.isClosed() {
		return ErrClosed
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case lane <- payload:
		return nil
	default:
		return ErrBackpressure
	}
}

// startWriter launches the single goroutine that writes to conn.
func (s *Session) startWriter(conn wsConn) {
	s.writerDone = make(chan struct{})
	go s.writeLoop(conn)
}

// writeLoop drains the outbound lanes onto conn until the session ends.
// Control events always go out ahead of caller audio, including control
// events queued while an audio append was being picked. A failed write ends
// the session.
func (s *Session) writeLoop(conn wsConn) {
	defer close(s.writerDone)

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		err := s.writeQueuedControl(conn)
		if err == nil {
			select {
			case <-s.ctx.Done():
				s.hangUp(conn)
				return
			case <-ping.C:
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			case frame := <-s.control:
				err = s.transmit(conn, frame, s.cfg.WriteTimeout)
			case frame := <-s.audio:
				if s.ctx.Err() != nil {
					break
				}
				if err = s.writeQueuedControl(conn); err == nil {
					err = s.transmit(conn, frame, s.cfg.WriteTimeout)
				}
			}
		}
		if err != nil {
			s.fail(fmt.Errorf("realtime write failed: %w", err))
			_ = conn.Close()
			return
		}
	}
}

// writeQueuedControl writes every control event already waiting.
func (s *Session) writeQueuedControl(conn wsConn) error {
	for {
		select {
		case frame := <-s.control:
			if err := s.transmit(conn, frame, s.cfg.WriteTimeout); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// hangUp sends what is left on the control lane within hangUpBudget, then a
// normal close frame. Queued caller audio is discarded.
func (s *Session) hangUp(conn wsConn) {
	budget := min(hangUpBudget, s.cfg.WriteTimeout)
	deadline := time.Now().Add(budget)

	for pending := len(s.control); pending > 0 && time.Now().Before(deadline); pending-- {
		if err := s.transmit(conn, <-s.control, budget); err != nil {
			break
		}
	}
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(budget))
	_ = conn.Close()
}

func (s *Session) transmit(conn wsConn, frame []byte, timeout time.Duration) error {
	if len(frame) == 0 {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
