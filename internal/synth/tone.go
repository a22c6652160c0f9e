package synth

import (
	"fmt"
	"math"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

// ToneConfig describes the fallback sine tone.
type ToneConfig struct {
	DurationMS  int     `yaml:"duration_ms"`
	FrequencyHz float64 `yaml:"frequency_hz"`
	SampleRate  int     `yaml:"sample_rate"`
	Amplitude   float64 `yaml:"amplitude"` // 0.0 - 1.0 of full scale
	FadeMS      int     `yaml:"fade_ms"`
}

// DefaultTone is a short, soft 440 Hz beep at telephony rate.
func DefaultTone() ToneConfig {
	return ToneConfig{
		DurationMS:  800,
		FrequencyHz: 440,
		SampleRate:  audio.TelephonySampleRate,
		Amplitude:   0.3,
		FadeMS:      20,
	}
}

// Validate checks the tone parameters
func (c ToneConfig) Validate() error {
	if c.DurationMS <= 0 {
		return fmt.Errorf("tone duration must be positive, got %d", c.DurationMS)
	}
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("tone frequency must be positive, got %f", c.FrequencyHz)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("tone sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrequencyHz*2 > float64(c.SampleRate) {
		return fmt.Errorf("tone frequency %.0f Hz exceeds Nyquist for %d Hz", c.FrequencyHz, c.SampleRate)
	}
	if c.Amplitude <= 0 || c.Amplitude > 1 {
		return fmt.Errorf("tone amplitude must be in (0, 1], got %f", c.Amplitude)
	}
	if c.FadeMS < 0 || c.FadeMS*2 > c.DurationMS {
		return fmt.Errorf("tone fade %d ms does not fit duration %d ms", c.FadeMS, c.DurationMS)
	}
	return nil
}

// GenerateTone renders the tone as a mono PCM16 WAV. Output is deterministic
// for a given configuration.
func GenerateTone(cfg ToneConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.SampleRate * cfg.DurationMS / 1000
	fade := cfg.SampleRate * cfg.FadeMS / 1000
	peak := cfg.Amplitude * math.MaxInt16

	samples := make([]int16, n)
	for i := range samples {
		gain := 1.0
		switch {
		case fade > 0 && i < fade:
			gain = float64(i) / float64(fade)
		case fade > 0 && i >= n-fade:
			gain = float64(n-1-i) / float64(fade)
		}
		ts := float64(i) / float64(cfg.SampleRate)
		samples[i] = int16(math.Round(peak * gain * math.Sin(2*math.Pi*cfg.FrequencyHz*ts)))
	}

	return audio.EncodeWAV(samples, cfg.SampleRate)
}
