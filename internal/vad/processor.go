package vad

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

// fullScaleEnergy is the RMS level mapped to probability 1.0.
const fullScaleEnergy = 10000.0

// DefaultThreshold classifies frames below roughly RMS 200 as silence.
const DefaultThreshold = float32(0.02)

// Processor is an energy-based voice activity classifier. It reports, per
// telephony frame, whether the frame carries speech or is effectively silent.
// Line noise on PSTN calls rarely exceeds the default threshold.
type Processor struct {
	threshold  float32
	sampleRate int

	// Statistics
	totalFrames   uint64
	voiceFrames   uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result is the classification of one frame.
type Result struct {
	Probability float32 `json:"probability"` // Normalized RMS energy (0.0 - 1.0)
	HasVoice    bool    `json:"has_voice"`
	Confidence  float32 `json:"confidence"` // Distance from threshold, scaled to 0-1
	FrameIndex  int     `json:"frame_index"`
}

// ProcessorStats represents classifier statistics
type ProcessorStats struct {
	TotalFrames     uint64    `json:"total_frames"`
	VoiceFrames     uint64    `json:"voice_frames"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
	SampleRate      int       `json:"sample_rate"`
}

// NewProcessor creates a classifier for audio at sampleRate.
func NewProcessor(threshold float32, sampleRate int) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Processor{
		threshold:  threshold,
		sampleRate: sampleRate,
	}, nil
}

// Process classifies a frame of linear samples. An empty frame is silent.
func (p *Processor) Process(samples []int16) Result {
	probability := Energy(samples)

	p.mu.Lock()
	defer p.mu.Unlock()

	hasVoice := probability >= p.threshold && len(samples) > 0

	p.totalFrames++
	if hasVoice {
		p.voiceFrames++
	}
	p.lastProcessed = time.Now()

	// Confidence is higher when probability is far from threshold
	confidence := float32(math.Abs(float64(probability - p.threshold)))
	if confidence > 0.5 {
		confidence = 0.5
	}

	return Result{
		Probability: probability,
		HasVoice:    hasVoice,
		Confidence:  confidence * 2,
		FrameIndex:  int(p.totalFrames - 1),
	}
}

// IsSilent reports whether a frame of linear samples is silent.
func (p *Processor) IsSilent(samples []int16) bool {
	return !p.Process(samples).HasVoice
}

// IsSilentPayload decodes an encoded frame and classifies it.
func (p *Processor) IsSilentPayload(payload []byte, f audio.Format) bool {
	samples, _ := audio.Samples(payload, f)
	return p.IsSilent(samples)
}

// Energy returns the RMS energy of samples normalized to 0-1.
func Energy(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	normalized := energy / fullScaleEnergy
	if normalized > 1.0 {
		normalized = 1.0
	}
	return float32(normalized)
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalFrames > 0 {
		voicePercentage = float64(p.voiceFrames) / float64(p.totalFrames) * 100
	}

	return ProcessorStats{
		TotalFrames:     p.totalFrames,
		VoiceFrames:     p.voiceFrames,
		VoicePercentage: voicePercentage,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.threshold,
		SampleRate:      p.sampleRate,
	}
}

// UpdateThreshold updates the voice detection threshold
func (p *Processor) UpdateThreshold(threshold float32) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.threshold = threshold
	return nil
}

// Reset resets the processor statistics
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalFrames = 0
	p.voiceFrames = 0
	p.lastProcessed = time.Time{}
}

// GetThreshold returns the current voice detection threshold
func (p *Processor) GetThreshold() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threshold
}
