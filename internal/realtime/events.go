package realtime

import (
	"encoding/json"
	"fmt"
)

// Client event types.
const (
	typeSessionUpdate    = "session.update"
	typeInputAudioAppend = "input_audio_buffer.append"
	typeResponseCreate   = "response.create"
	typeResponseCancel   = "response.cancel"
	typeItemTruncate     = "conversation.item.truncate"
)

// Server event types.
const (
	EventSessionCreated            = "session.created"
	EventSessionUpdated            = "session.updated"
	EventSpeechStarted             = "input_audio_buffer.speech_started"
	EventSpeechStopped             = "input_audio_buffer.speech_stopped"
	EventInputTranscription        = "conversation.item.input_audio_transcription.completed"
	EventResponseCreated           = "response.created"
	EventOutputItemAdded           = "response.output_item.added"
	EventAudioDelta                = "response.audio.delta"
	EventAudioDone                 = "response.audio.done"
	EventAudioTranscriptDone       = "response.audio_transcript.done"
	EventOutputAudioDelta          = "response.output_audio.delta"
	EventOutputAudioDone           = "response.output_audio.done"
	EventOutputAudioTranscriptDone = "response.output_audio_transcript.done"
	EventResponseDone              = "response.done"
	EventError                     = "error"
)

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

// InputTranscription enables transcription of caller audio.
type InputTranscription struct {
	Model string `json:"model"`
}

// SessionParams is the negotiated session configuration.
type SessionParams struct {
	Modalities              []string            `json:"modalities,omitempty"`
	Voice                   string              `json:"voice,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string              `json:"output_audio_format,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	InputAudioTranscription *InputTranscription `json:"input_audio_transcription,omitempty"`
	Temperature             float64             `json:"temperature,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionParams `json:"session"`
}

type inputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type responseParams struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

type responseCreate struct {
	Type     string          `json:"type"`
	Response *responseParams `json:"response,omitempty"`
}

type responseCancel struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
}

type itemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}

// APIError is the payload of a server error event.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// ItemRef identifies a conversation item.
type ItemRef struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Role string `json:"role,omitempty"`
}

// ResponseRef identifies a response.
type ResponseRef struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// ServerEvent is an event received from the AI service. Only fields the
// session acts on are decoded.
type ServerEvent struct {
	Type         string         `json:"type"`
	EventID      string         `json:"event_id,omitempty"`
	ResponseID   string         `json:"response_id,omitempty"`
	ItemID       string         `json:"item_id,omitempty"`
	Delta        string         `json:"delta,omitempty"`
	Transcript   string         `json:"transcript,omitempty"`
	AudioStartMS int64          `json:"audio_start_ms,omitempty"`
	AudioEndMS   int64          `json:"audio_end_ms,omitempty"`
	Item         *ItemRef       `json:"item,omitempty"`
	Response     *ResponseRef   `json:"response,omitempty"`
	Session      *SessionParams `json:"session,omitempty"`
	Error        *APIError      `json:"error,omitempty"`
}

// ParseServerEvent decodes a server event.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("failed to parse server event: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, fmt.Errorf("server event without type")
	}
	return ev, nil
}
