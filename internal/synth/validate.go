package synth

import (
	"errors"
	"fmt"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

// Code classifies why synthesized audio was not played.
type Code string

const (
	CodeEmptyAudio    Code = "EMPTY_AUDIO"
	CodeInvalidFormat Code = "INVALID_FORMAT"
	CodeSilentAudio   Code = "SILENT_AUDIO"
	CodeTimeout       Code = "SYNTHESIS_TIMEOUT"
	CodeUnavailable   Code = "SYNTHESIS_UNAVAILABLE"
)

// DefaultMaxSilenceRatio rejects buffers that are more than 95% silence.
const DefaultMaxSilenceRatio = 0.95

// AudioError is returned when speech cannot be used for playout.
type AudioError struct {
	Code   Code
	Detail string
	Err    error
}

func (e *AudioError) Error() string {
	msg := string(e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AudioError) Unwrap() error { return e.Err }

// CodeOf extracts the AudioError code from err, or "" if there is none.
func CodeOf(err error) Code {
	var ae *AudioError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// SilenceRatio returns the fraction of payload bytes equal to the format's
// silence byte. Container headers are excluded.
func SilenceRatio(data []byte, f audio.Format) float64 {
	payload := data
	if f.HasContainer() {
		payload = audio.WAVPayload(data)
	}
	if len(payload) == 0 {
		return 1
	}

	silence := f.SilenceByte()
	count := 0
	for _, b := range payload {
		if b == silence {
			count++
		}
	}
	return float64(count) / float64(len(payload))
}

// Validate checks that a synthesized buffer is playable: non-empty, a sane
// container or sample alignment for its declared format, and not mostly
// silence. A ratio of zero or less selects DefaultMaxSilenceRatio.
func Validate(data []byte, f audio.Format, maxSilenceRatio float64) error {
	if len(data) == 0 {
		return &AudioError{Code: CodeEmptyAudio}
	}
	if maxSilenceRatio <= 0 {
		maxSilenceRatio = DefaultMaxSilenceRatio
	}

	switch f.Encoding {
	case audio.EncodingWAV:
		if err := audio.ValidateWAV(data); err != nil {
			return &AudioError{Code: CodeInvalidFormat, Err: err}
		}
		if len(audio.WAVPayload(data)) == 0 {
			return &AudioError{Code: CodeEmptyAudio, Detail: "WAV has no samples"}
		}
	case audio.EncodingPCM16:
		if len(data)%2 != 0 {
			return &AudioError{Code: CodeInvalidFormat, Detail: fmt.Sprintf("odd PCM16 length %d", len(data))}
		}
	case audio.EncodingMuLaw:
	default:
		return &AudioError{Code: CodeInvalidFormat, Detail: fmt.Sprintf("unknown encoding %q", f.Encoding)}
	}

	if ratio := SilenceRatio(data, f); ratio > maxSilenceRatio {
		return &AudioError{
			Code:   CodeSilentAudio,
			Detail: fmt.Sprintf("%.1f%% silence exceeds %.1f%%", ratio*100, maxSilenceRatio*100),
		}
	}
	return nil
}
