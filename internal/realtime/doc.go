// Package realtime manages the outbound WebSocket to a speech-to-speech AI
// service for one call.
//
// A Session negotiates audio formats, voice, server-side voice activity
// detection and instructions, then streams caller audio up and AI audio back
// to a Playout. It keeps the bookkeeping needed to interrupt the AI when the
// caller starts talking: the media timestamp at which the current response
// started playing, the conversation item being played and the playout marks
// not yet acknowledged by the telephony side.
//
// Outbound writes go through a single writer goroutine with a control lane
// so control events are never stuck behind buffered audio.
package realtime
