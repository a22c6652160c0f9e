package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Media stream event types
const (
	EventConnected = "connected"
	EventConnect   = "connect" // older transports send this instead of connected
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventClear     = "clear"
	EventDTMF      = "dtmf"
)

// Media tracks
const (
	TrackInbound  = "inbound"
	TrackOutbound = "outbound"
)

// Custom parameter keys set on the stream by the call webhook
const (
	ParamFrom     = "from"
	ParamTo       = "to"
	ParamClientID = "clientId"
)

// Message is one JSON frame on the telephony media WebSocket, in either
// direction. Exactly one payload pointer is set, matching Event.
type Message struct {
	Event          string `json:"event"`
	StreamSID      string `json:"streamSid,omitempty"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
	Protocol       string `json:"protocol,omitempty"`
	Version        string `json:"version,omitempty"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
	Stop           *Stop  `json:"stop,omitempty"`
	DTMF           *DTMF  `json:"dtmf,omitempty"`
}

// Start carries call metadata at the beginning of a stream
type Start struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

// MediaFormat describes the stream's audio encoding
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Media is one chunk of base64 audio
type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // milliseconds since stream start
	Payload   string `json:"payload"`
}

// Mark is a playout checkpoint
type Mark struct {
	Name string `json:"name"`
}

// Stop ends the stream
type Stop struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// DTMF is a keypad digit pressed by the caller
type DTMF struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// Parse decodes and validates an inbound message
func Parse(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	if msg.Event == EventConnect {
		msg.Event = EventConnected
	}
	if msg.StreamSID == "" && msg.Start != nil {
		msg.StreamSID = msg.Start.StreamSID
	}

	if err := ValidateMessage(&msg); err != nil {
		return nil, fmt.Errorf("invalid %q message: %w", msg.Event, err)
	}

	return &msg, nil
}

// ValidateMessage checks the event discriminator and required fields
func ValidateMessage(msg *Message) error {
	if !IsValidEvent(msg.Event) {
		return fmt.Errorf("unknown event type")
	}

	// connected precedes stream assignment
	if msg.Event == EventConnected {
		return nil
	}

	if msg.StreamSID == "" {
		return fmt.Errorf("missing streamSid")
	}

	switch msg.Event {
	case EventStart:
		if msg.Start == nil {
			return fmt.Errorf("missing start payload")
		}
	case EventMedia:
		if msg.Media == nil {
			return fmt.Errorf("missing media payload")
		}
	case EventMark:
		if msg.Mark == nil || msg.Mark.Name == "" {
			return fmt.Errorf("missing mark name")
		}
	case EventDTMF:
		if msg.DTMF == nil {
			return fmt.Errorf("missing dtmf payload")
		}
	}

	return nil
}

// IsValidEvent checks if the event type is known
func IsValidEvent(event string) bool {
	switch event {
	case EventConnected, EventConnect, EventStart, EventMedia, EventMark, EventStop, EventClear, EventDTMF:
		return true
	}
	return false
}

// Decode returns the raw audio bytes of the chunk
func (m *Media) Decode() ([]byte, error) {
	if m.Payload == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid media payload: %w", err)
	}
	return data, nil
}

// TimestampMS returns the media timestamp, or -1 when absent or malformed
func (m *Media) TimestampMS() int64 {
	if m.Timestamp == "" {
		return -1
	}
	ts, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil || ts < 0 {
		return -1
	}
	return ts
}

// IsInbound reports whether the chunk is caller audio
func (m *Media) IsInbound() bool {
	return m.Track == "" || m.Track == TrackInbound || m.Track == "both_tracks"
}

// Param returns a custom parameter, trying each key in order and ignoring
// case so that "From", "from" and "caller" style variants all resolve.
func (s *Start) Param(keys ...string) string {
	for _, key := range keys {
		if v, ok := s.CustomParameters[key]; ok && v != "" {
			return v
		}
		for k, v := range s.CustomParameters {
			if strings.EqualFold(k, key) && v != "" {
				return v
			}
		}
	}
	return ""
}

// From returns the caller number
func (s *Start) From() string { return s.Param(ParamFrom, "caller", "callerNumber") }

// To returns the called number
func (s *Start) To() string { return s.Param(ParamTo, "called", "calledNumber") }

// ClientID returns the identifier of the business the call belongs to
func (s *Start) ClientID() string { return s.Param(ParamClientID, "client_id", "tenantId") }

// NewMediaMessage builds an outbound media frame
func NewMediaMessage(streamSID string, audio []byte) Message {
	return Message{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &Media{Payload: base64.StdEncoding.EncodeToString(audio)},
	}
}

// NewMarkMessage builds an outbound playout checkpoint
func NewMarkMessage(streamSID, name string) Message {
	return Message{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      &Mark{Name: name},
	}
}

// NewClearMessage builds an outbound instruction to discard buffered audio
func NewClearMessage(streamSID string) Message {
	return Message{
		Event:     EventClear,
		StreamSID: streamSID,
	}
}

// Encode serializes the message as JSON
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// String returns a human-readable representation of the message
func (m *Message) String() string {
	switch {
	case m.Start != nil:
		return fmt.Sprintf("Message{Event:%s, StreamSID:%s, CallSID:%s}", m.Event, m.StreamSID, m.Start.CallSID)
	case m.Media != nil:
		return fmt.Sprintf("Message{Event:%s, StreamSID:%s, Timestamp:%s, PayloadLen:%d}",
			m.Event, m.StreamSID, m.Media.Timestamp, len(m.Media.Payload))
	case m.Mark != nil:
		return fmt.Sprintf("Message{Event:%s, StreamSID:%s, Mark:%q}", m.Event, m.StreamSID, m.Mark.Name)
	default:
		return fmt.Sprintf("Message{Event:%s, StreamSID:%s}", m.Event, m.StreamSID)
	}
}
