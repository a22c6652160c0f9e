// Package audio implements the codec layer shared by the call bridge.
// It converts between telephony G.711 µ-law at 8 kHz and the linear PCM the
// realtime AI service speaks, resamples between rates, splits buffers into
// fixed-size playout frames and accumulates caller audio before forwarding.
package audio
