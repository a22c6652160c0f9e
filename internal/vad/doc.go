// Package vad classifies telephony frames as speech or silence by RMS energy.
// The classification feeds the listening-state inactivity check; turn
// detection itself is left to the AI service's server-side VAD.
package vad
