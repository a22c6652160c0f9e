// Package bridge connects a telephony media stream to a realtime AI
// session.
//
// Each telephony WebSocket gets one worker. A reader goroutine parses
// inbound messages, a playout goroutine is the only writer to the socket,
// and a single loop consumes a per-call event channel so that call state is
// only touched from one goroutine. AI failures fall back to synthesized
// prompts so that the caller is never dropped.
package bridge
