package audio

import "fmt"

// Encoding identifies the sample encoding of an audio buffer.
type Encoding string

const (
	EncodingMuLaw Encoding = "g711_ulaw" // 8-bit companded telephony audio
	EncodingPCM16 Encoding = "pcm16"     // 16-bit signed little-endian linear PCM
	EncodingWAV   Encoding = "wav"       // PCM16 inside a RIFF/WAVE container
)

// TelephonySampleRate is the sample rate of the telephony media stream.
const TelephonySampleRate = 8000

// DefaultFrameDuration is the playout chunk length in milliseconds.
const DefaultFrameDuration = 20

// Format describes the encoding and sample rate of a buffer.
type Format struct {
	Encoding   Encoding `json:"encoding" yaml:"encoding"`
	SampleRate int      `json:"sample_rate" yaml:"sample_rate"`
}

// Telephony is the caller-side format: µ-law at 8 kHz.
var Telephony = Format{Encoding: EncodingMuLaw, SampleRate: TelephonySampleRate}

// ParseEncoding maps a configuration string to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingMuLaw, EncodingPCM16, EncodingWAV:
		return Encoding(s), nil
	case "ulaw", "mulaw", "pcmu":
		return EncodingMuLaw, nil
	default:
		return "", fmt.Errorf("unsupported audio encoding %q", s)
	}
}

// BytesPerSample returns the payload bytes per mono sample.
func (f Format) BytesPerSample() int {
	if f.Encoding == EncodingMuLaw {
		return 1
	}
	return 2
}

// SilenceByte is the byte value a silent payload of this format is filled with.
// µ-law encodes zero amplitude as 0xFF, linear PCM as 0x00.
func (f Format) SilenceByte() byte {
	if f.Encoding == EncodingMuLaw {
		return 0xFF
	}
	return 0x00
}

// HasContainer reports whether buffers of this format carry a header.
func (f Format) HasContainer() bool {
	return f.Encoding == EncodingWAV
}

// BytesForDuration returns the payload size of ms milliseconds of audio.
func (f Format) BytesForDuration(ms int) int {
	rate := f.SampleRate
	if rate <= 0 {
		rate = TelephonySampleRate
	}
	return rate * ms / 1000 * f.BytesPerSample()
}

// DurationMS returns the playback length of n payload bytes.
func (f Format) DurationMS(n int) int64 {
	rate := f.SampleRate
	if rate <= 0 {
		rate = TelephonySampleRate
	}
	samples := int64(n / f.BytesPerSample())
	return samples * 1000 / int64(rate)
}

// FrameBytes returns the default playout chunk size for this format.
func (f Format) FrameBytes() int {
	return f.BytesForDuration(DefaultFrameDuration)
}

func (f Format) String() string {
	return fmt.Sprintf("%s@%d", f.Encoding, f.SampleRate)
}
