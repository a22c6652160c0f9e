// Package protocol implements the telephony media-stream wire format: JSON
// messages over a WebSocket, discriminated by an "event" field and scoped by
// "streamSid". Inbound events are connected, start, media, mark, dtmf and
// stop; the bridge sends media, mark and clear back.
package protocol
