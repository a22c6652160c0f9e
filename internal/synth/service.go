package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
)

// Config controls the fallback service.
type Config struct {
	DefaultVoice    string
	Timeout         time.Duration // per synthesis request
	CacheTTL        time.Duration
	CacheSize       int
	WarmupTTL       time.Duration
	WarmupInterval  time.Duration
	MaxSilenceRatio float64
	Tone            ToneConfig
}

// Clip is audio ready for playout: µ-law at 8 kHz.
type Clip struct {
	Audio    []byte
	Fallback bool // true when the tone replaced speech
	Cause    Code // why speech was replaced, when Fallback
	Cached   bool
}

// ServiceStats represents service statistics for monitoring
type ServiceStats struct {
	CachedPrompts int       `json:"cached_prompts"`
	CacheHits     uint64    `json:"cache_hits"`
	CacheMisses   uint64    `json:"cache_misses"`
	Fallbacks     uint64    `json:"fallbacks"`
	WarmedAt      time.Time `json:"warmed_at"`
	WarmupFails   uint64    `json:"warmup_failures"`
}

type cacheEntry struct {
	clip    []byte
	expires time.Time
}

// Service renders prompts for playout and substitutes the fallback tone
// whenever speech is unavailable or unusable.
type Service struct {
	synth   Synthesizer
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	tone    []byte // µ-law 8 kHz
	toneWAV []byte

	mu          sync.Mutex
	cache       map[string]cacheEntry
	cacheHits   uint64
	cacheMisses uint64
	fallbacks   uint64

	warmMu      sync.Mutex
	warmedAt    time.Time
	warmupFails uint64

	now func() time.Time
}

// NewService creates the fallback service. synth may be nil, in which case
// every request is answered with the tone.
func NewService(synth Synthesizer, config Config, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if config.Timeout <= 0 {
		config.Timeout = 4 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 256
	}
	if config.WarmupTTL <= 0 {
		config.WarmupTTL = 5 * time.Minute
	}
	if config.WarmupInterval <= 0 {
		config.WarmupInterval = 4 * time.Minute
	}
	if config.MaxSilenceRatio <= 0 {
		config.MaxSilenceRatio = DefaultMaxSilenceRatio
	}
	if config.Tone == (ToneConfig{}) {
		config.Tone = DefaultTone()
	}

	toneWAV, err := GenerateTone(config.Tone)
	if err != nil {
		return nil, fmt.Errorf("failed to generate fallback tone: %w", err)
	}

	return &Service{
		synth:   synth,
		config:  config,
		logger:  logger,
		metrics: m,
		tone:    audio.ToTelephony(toneWAV, audio.Format{Encoding: audio.EncodingWAV, SampleRate: config.Tone.SampleRate}),
		toneWAV: toneWAV,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}, nil
}

// Tone returns the fallback tone as telephony µ-law.
func (s *Service) Tone() []byte {
	out := make([]byte, len(s.tone))
	copy(out, s.tone)
	return out
}

// ToneWAV returns the fallback tone as rendered, a PCM16 WAV.
func (s *Service) ToneWAV() []byte {
	out := make([]byte, len(s.toneWAV))
	copy(out, s.toneWAV)
	return out
}

// Speech synthesizes text and returns validated telephony audio. Results are
// cached per voice and text.
func (s *Service) Speech(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &AudioError{Code: CodeEmptyAudio, Detail: "empty text"}
	}
	if voice == "" {
		voice = s.config.DefaultVoice
	}
	if s.synth == nil {
		return nil, &AudioError{Code: CodeUnavailable, Detail: "no synthesizer configured"}
	}

	key := voice + "\x00" + text
	if clip, ok := s.cached(key); ok {
		return clip, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := s.synth.Synthesize(reqCtx, Request{Text: text, Voice: voice})
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			s.metrics.RecordSynthesis("timeout", latency.Seconds())
			return nil, &AudioError{Code: CodeTimeout, Detail: fmt.Sprintf("no audio after %s", s.config.Timeout), Err: err}
		}
		s.metrics.RecordSynthesis("error", latency.Seconds())
		if CodeOf(err) != "" {
			return nil, err
		}
		return nil, &AudioError{Code: CodeUnavailable, Err: err}
	}

	if err := Validate(result.Audio, result.Format, s.config.MaxSilenceRatio); err != nil {
		s.metrics.RecordSynthesis("invalid", latency.Seconds())
		return nil, err
	}

	clip := audio.ToTelephony(result.Audio, result.Format)
	if len(clip) == 0 {
		s.metrics.RecordSynthesis("invalid", latency.Seconds())
		return nil, &AudioError{Code: CodeInvalidFormat, Detail: "audio could not be converted for playout"}
	}

	s.metrics.RecordSynthesis("success", latency.Seconds())
	s.store(key, clip)

	out := make([]byte, len(clip))
	copy(out, clip)
	return out, nil
}

// SpeechOrTone returns speech for text, or the fallback tone if synthesis
// fails for any reason. It never returns empty audio.
func (s *Service) SpeechOrTone(ctx context.Context, text, voice string) Clip {
	clip, err := s.Speech(ctx, text, voice)
	if err == nil {
		return Clip{Audio: clip}
	}

	cause := CodeOf(err)
	if cause == "" {
		cause = CodeUnavailable
	}

	s.mu.Lock()
	s.fallbacks++
	s.mu.Unlock()

	s.metrics.RecordFallbackTone(string(cause))
	s.logger.Warn("Speech unavailable, playing fallback tone",
		slog.String("cause", string(cause)),
		slog.String("error", err.Error()))

	return Clip{Audio: s.Tone(), Fallback: true, Cause: cause}
}

// Warm primes the backend unless a warm-up succeeded within the TTL.
// Failures are logged and not cached, so the next call retries.
func (s *Service) Warm(ctx context.Context) error {
	if s.synth == nil {
		return nil
	}

	s.warmMu.Lock()
	defer s.warmMu.Unlock()

	if !s.warmedAt.IsZero() && s.now().Sub(s.warmedAt) < s.config.WarmupTTL {
		return nil
	}

	warmCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.synth.Warm(warmCtx); err != nil {
		s.warmupFails++
		s.logger.Warn("Synthesis warm-up failed", slog.String("error", err.Error()))
		return fmt.Errorf("warm-up failed: %w", err)
	}

	s.warmedAt = s.now()
	s.logger.Debug("Synthesis backend warmed")
	return nil
}

// Prefetch renders prompts ahead of their first use, e.g. client greetings.
func (s *Service) Prefetch(ctx context.Context, voice string, texts ...string) {
	for _, text := range texts {
		if _, err := s.Speech(ctx, text, voice); err != nil {
			s.logger.Debug("Prompt prefetch failed",
				slog.String("voice", voice),
				slog.String("error", err.Error()))
		}
	}
}

// RunWarmup warms the backend immediately and then on every interval until
// ctx is cancelled.
func (s *Service) RunWarmup(ctx context.Context) {
	_ = s.Warm(ctx)

	ticker := time.NewTicker(s.config.WarmupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Warm(ctx)
			s.pruneCache()
		}
	}
}

// GetStats returns service statistics
func (s *Service) GetStats() ServiceStats {
	s.mu.Lock()
	stats := ServiceStats{
		CachedPrompts: len(s.cache),
		CacheHits:     s.cacheHits,
		CacheMisses:   s.cacheMisses,
		Fallbacks:     s.fallbacks,
	}
	s.mu.Unlock()

	s.warmMu.Lock()
	stats.WarmedAt = s.warmedAt
	stats.WarmupFails = s.warmupFails
	s.warmMu.Unlock()

	return stats
}

func (s *Service) cached(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[key]
	if !ok || s.now().After(entry.expires) {
		if ok {
			delete(s.cache, key)
		}
		s.cacheMisses++
		return nil, false
	}
	s.cacheHits++

	out := make([]byte, len(entry.clip))
	copy(out, entry.clip)
	return out, true
}

func (s *Service) store(key string, clip []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[key]; !exists && len(s.cache) >= s.config.CacheSize {
		s.evictOldestLocked()
	}
	s.cache[key] = cacheEntry{clip: clip, expires: s.now().Add(s.config.CacheTTL)}
}

func (s *Service) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.cache {
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	delete(s.cache, oldestKey)
}

func (s *Service) pruneCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.cache {
		if now.After(e.expires) {
			delete(s.cache, k)
		}
	}
}
