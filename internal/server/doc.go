// Package server exposes the telephony media WebSocket and the HTTP API used
// to monitor active calls. The media endpoint admits a bounded number of
// concurrent streams and hands each connection to the bridge.
package server
