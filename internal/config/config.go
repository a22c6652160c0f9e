package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

// Config represents the complete service configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Telephony    TelephonyConfig    `yaml:"telephony"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	Conversation ConversationConfig `yaml:"conversation"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Directory    DirectoryConfig    `yaml:"directory"`
	CallLog      CallLogConfig      `yaml:"calllog"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Summary      SummaryConfig      `yaml:"summary"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP and media WebSocket server configuration
type ServerConfig struct {
	Address         string   `yaml:"address"`
	Port            int      `yaml:"port"`
	MediaPath       string   `yaml:"media_path"`
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // seconds
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// TelephonyConfig contains per-call stream settings
type TelephonyConfig struct {
	MaxConcurrentCalls int     `yaml:"max_concurrent_calls"`
	StaleTimeout       int     `yaml:"stale_timeout"`     // seconds
	RetiredRetention   int     `yaml:"retired_retention"` // hours
	CleanupInterval    int     `yaml:"cleanup_interval"`  // seconds
	PlayoutQueueFrames int     `yaml:"playout_queue_frames"`
	SilenceThreshold   float32 `yaml:"silence_threshold"`
	WriteTimeout       int     `yaml:"write_timeout"` // seconds
}

// RealtimeConfig contains realtime AI service configuration
type RealtimeConfig struct {
	URL                string  `yaml:"url"`
	APIKey             string  `yaml:"api_key"`
	Voice              string  `yaml:"voice"`
	Instructions       string  `yaml:"instructions"`
	InputEncoding      string  `yaml:"input_encoding"`
	InputSampleRate    int     `yaml:"input_sample_rate"`
	OutputEncoding     string  `yaml:"output_encoding"`
	OutputSampleRate   int     `yaml:"output_sample_rate"`
	TranscriptionModel string  `yaml:"transcription_model"`
	Temperature        float64 `yaml:"temperature"`
	VADThreshold       float64 `yaml:"vad_threshold"`
	PrefixPaddingMS    int     `yaml:"prefix_padding_ms"`
	SilenceDurationMS  int     `yaml:"silence_duration_ms"`
	ConnectTimeout     int     `yaml:"connect_timeout"` // seconds
	ConfirmTimeoutMS   int     `yaml:"confirm_timeout_ms"`
	MinAppendMS        int     `yaml:"min_append_ms"`
	MaxReconnects      int     `yaml:"max_reconnects"` // negative disables reconnects
	ReconnectDelayMS   int     `yaml:"reconnect_delay_ms"`
}

// ConversationConfig contains state machine frame counts and prompts
type ConversationConfig struct {
	SpeakingTimeoutFrames   int     `yaml:"speaking_timeout_frames"`
	ProcessingTimeoutFrames int     `yaml:"processing_timeout_frames"`
	WindowFrames            int     `yaml:"window_frames"`
	SilentWindowRatio       float64 `yaml:"silent_window_ratio"`
	InactivityWindows       int     `yaml:"inactivity_windows"`
	InactivityPrompt        string  `yaml:"inactivity_prompt"`
	FallbackMessage         string  `yaml:"fallback_message"`
	FallbackPrompt          string  `yaml:"fallback_prompt"`
}

// SchedulerConfig contains timeout scheduler configuration
type SchedulerConfig struct {
	Ceiling       int `yaml:"ceiling"`        // seconds
	SweepInterval int `yaml:"sweep_interval"` // seconds
}

// SynthesisConfig contains text-to-speech configuration. With no endpoint
// every prompt is replaced by the fallback tone.
type SynthesisConfig struct {
	Endpoint       string   `yaml:"endpoint"`
	APIKey         string   `yaml:"api_key"`
	DefaultVoice   string   `yaml:"default_voice"`
	Timeout        int      `yaml:"timeout"` // seconds
	MaxRetries     int      `yaml:"max_retries"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	CacheTTL       int      `yaml:"cache_ttl"` // seconds
	CacheSize      int      `yaml:"cache_size"`
	WarmupInterval int      `yaml:"warmup_interval"` // seconds
	Prefetch       []string `yaml:"prefetch"`
	ToneDurationMS int      `yaml:"tone_duration_ms"`
	ToneFrequency  float64  `yaml:"tone_frequency_hz"`
}

// DirectoryConfig points at the client configuration file
type DirectoryConfig struct {
	Path string `yaml:"path"`
}

// CallLogConfig selects where call summaries are stored
type CallLogConfig struct {
	Driver      string `yaml:"driver"` // log or postgres
	DSN         string `yaml:"dsn"`
	SaveTimeout int    `yaml:"save_timeout"` // seconds
}

// WebhookConfig contains call notification configuration
type WebhookConfig struct {
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
	Timeout int    `yaml:"timeout"` // seconds
}

// SummaryConfig selects the call summary extractor
type SummaryConfig struct {
	Provider string `yaml:"provider"` // heuristic or gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var config Config
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.Address == "" {
		s.Address = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.MediaPath == "" {
		s.MediaPath = "/media-stream"
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10
	}

	t := &c.Telephony
	if t.MaxConcurrentCalls == 0 {
		t.MaxConcurrentCalls = 100
	}
	if t.StaleTimeout == 0 {
		t.StaleTimeout = 120
	}
	if t.RetiredRetention == 0 {
		t.RetiredRetention = 24
	}
	if t.CleanupInterval == 0 {
		t.CleanupInterval = 30
	}
	if t.PlayoutQueueFrames == 0 {
		t.PlayoutQueueFrames = 500
	}
	if t.SilenceThreshold == 0 {
		t.SilenceThreshold = 0.02
	}
	if t.WriteTimeout == 0 {
		t.WriteTimeout = 5
	}

	r := &c.Realtime
	if r.URL == "" {
		r.URL = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview"
	}
	if r.Voice == "" {
		r.Voice = "alloy"
	}
	if r.InputEncoding == "" {
		r.InputEncoding = string(audio.EncodingMuLaw)
	}
	if r.InputSampleRate == 0 {
		r.InputSampleRate = defaultRate(r.InputEncoding)
	}
	if r.OutputEncoding == "" {
		r.OutputEncoding = string(audio.EncodingMuLaw)
	}
	if r.OutputSampleRate == 0 {
		r.OutputSampleRate = defaultRate(r.OutputEncoding)
	}
	if r.TranscriptionModel == "" {
		r.TranscriptionModel = "whisper-1"
	}
	if r.Temperature == 0 {
		r.Temperature = 0.8
	}
	if r.VADThreshold == 0 {
		r.VADThreshold = 0.5
	}
	if r.PrefixPaddingMS == 0 {
		r.PrefixPaddingMS = 300
	}
	if r.SilenceDurationMS == 0 {
		r.SilenceDurationMS = 500
	}
	if r.ConnectTimeout == 0 {
		r.ConnectTimeout = 15
	}
	if r.ConfirmTimeoutMS == 0 {
		r.ConfirmTimeoutMS = 2000
	}
	if r.MinAppendMS == 0 {
		r.MinAppendMS = 300
	}
	if r.MaxReconnects == 0 {
		r.MaxReconnects = 1
	}
	if r.ReconnectDelayMS == 0 {
		r.ReconnectDelayMS = 250
	}

	v := &c.Conversation
	if v.SpeakingTimeoutFrames == 0 {
		v.SpeakingTimeoutFrames = 25
	}
	if v.ProcessingTimeoutFrames == 0 {
		v.ProcessingTimeoutFrames = 100
	}
	if v.WindowFrames == 0 {
		v.WindowFrames = 50
	}
	if v.SilentWindowRatio == 0 {
		v.SilentWindowRatio = 0.9
	}
	if v.InactivityWindows == 0 {
		v.InactivityWindows = 10
	}

	if c.Scheduler.Ceiling == 0 {
		c.Scheduler.Ceiling = 30
	}
	if c.Scheduler.SweepInterval == 0 {
		c.Scheduler.SweepInterval = 30
	}

	y := &c.Synthesis
	if y.Timeout == 0 {
		y.Timeout = 4
	}
	if y.MaxConcurrent == 0 {
		y.MaxConcurrent = 8
	}
	if y.CacheTTL == 0 {
		y.CacheTTL = 600
	}
	if y.CacheSize == 0 {
		y.CacheSize = 256
	}
	if y.WarmupInterval == 0 {
		y.WarmupInterval = 240
	}

	if c.CallLog.Driver == "" {
		c.CallLog.Driver = "log"
	}
	if c.CallLog.SaveTimeout == 0 {
		c.CallLog.SaveTimeout = 10
	}

	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10
	}

	if c.Summary.Provider == "" {
		c.Summary.Provider = "heuristic"
	}
	if c.Summary.Timeout == 0 {
		c.Summary.Timeout = 20
	}

	l := &c.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	if l.Output == "" {
		l.Output = "stdout"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 100
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 5
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 28
	}
}

func defaultRate(encoding string) int {
	if enc, err := audio.ParseEncoding(encoding); err == nil && enc == audio.EncodingMuLaw {
		return audio.TelephonySampleRate
	}
	return 24000
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Telephony.Validate(); err != nil {
		return fmt.Errorf("telephony config: %w", err)
	}

	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime config: %w", err)
	}

	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation config: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}

	if err := c.CallLog.Validate(); err != nil {
		return fmt.Errorf("calllog config: %w", err)
	}

	if err := c.Webhook.Validate(); err != nil {
		return fmt.Errorf("webhook config: %w", err)
	}

	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("summary config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !strings.HasPrefix(s.MediaPath, "/") {
		return fmt.Errorf("media_path must start with '/', got '%s'", s.MediaPath)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates telephony configuration
func (t *TelephonyConfig) Validate() error {
	if t.MaxConcurrentCalls < 1 {
		return fmt.Errorf("max_concurrent_calls must be at least 1, got %d", t.MaxConcurrentCalls)
	}

	if t.StaleTimeout < 1 {
		return fmt.Errorf("stale_timeout must be at least 1 second, got %d", t.StaleTimeout)
	}

	if t.RetiredRetention < 1 {
		return fmt.Errorf("retired_retention must be at least 1 hour, got %d", t.RetiredRetention)
	}

	if t.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", t.CleanupInterval)
	}

	if t.PlayoutQueueFrames < 50 {
		return fmt.Errorf("playout_queue_frames must be at least 50, got %d", t.PlayoutQueueFrames)
	}

	if t.SilenceThreshold <= 0 || t.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1 (exclusive), got %f", t.SilenceThreshold)
	}

	if t.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", t.WriteTimeout)
	}

	return nil
}

// Validate validates realtime configuration
func (r *RealtimeConfig) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("url must be a ws:// or wss:// address, got '%s'", r.URL)
	}

	if _, err := r.InputFormat(); err != nil {
		return fmt.Errorf("input format: %w", err)
	}

	if _, err := r.OutputFormat(); err != nil {
		return fmt.Errorf("output format: %w", err)
	}

	if r.Temperature < 0.6 || r.Temperature > 1.2 {
		return fmt.Errorf("temperature must be between 0.6 and 1.2, got %f", r.Temperature)
	}

	if r.VADThreshold <= 0 || r.VADThreshold >= 1 {
		return fmt.Errorf("vad_threshold must be between 0 and 1 (exclusive), got %f", r.VADThreshold)
	}

	if r.ConnectTimeout < 1 || r.ConnectTimeout > 60 {
		return fmt.Errorf("connect_timeout must be between 1 and 60 seconds, got %d", r.ConnectTimeout)
	}

	if r.ConfirmTimeoutMS < 100 {
		return fmt.Errorf("confirm_timeout_ms must be at least 100, got %d", r.ConfirmTimeoutMS)
	}

	if r.MinAppendMS < 20 {
		return fmt.Errorf("min_append_ms must be at least 20, got %d", r.MinAppendMS)
	}

	if r.MaxReconnects > 5 {
		return fmt.Errorf("max_reconnects must be at most 5, got %d", r.MaxReconnects)
	}

	return nil
}

// InputFormat returns the format caller audio is sent to the AI in
func (r *RealtimeConfig) InputFormat() (audio.Format, error) {
	return parseFormat(r.InputEncoding, r.InputSampleRate)
}

// OutputFormat returns the format the AI speaks in
func (r *RealtimeConfig) OutputFormat() (audio.Format, error) {
	return parseFormat(r.OutputEncoding, r.OutputSampleRate)
}

func parseFormat(encoding string, rate int) (audio.Format, error) {
	enc, err := audio.ParseEncoding(encoding)
	if err != nil {
		return audio.Format{}, err
	}
	if enc == audio.EncodingWAV {
		return audio.Format{}, fmt.Errorf("wav is not a streaming encoding")
	}
	if rate < 8000 || rate > 48000 {
		return audio.Format{}, fmt.Errorf("sample rate must be between 8000 and 48000, got %d", rate)
	}
	return audio.Format{Encoding: enc, SampleRate: rate}, nil
}

// Validate validates conversation configuration
func (v *ConversationConfig) Validate() error {
	if v.SpeakingTimeoutFrames < 1 {
		return fmt.Errorf("speaking_timeout_frames must be at least 1, got %d", v.SpeakingTimeoutFrames)
	}

	if v.ProcessingTimeoutFrames < 1 {
		return fmt.Errorf("processing_timeout_frames must be at least 1, got %d", v.ProcessingTimeoutFrames)
	}

	if v.WindowFrames < 1 {
		return fmt.Errorf("window_frames must be at least 1, got %d", v.WindowFrames)
	}

	if v.SilentWindowRatio <= 0 || v.SilentWindowRatio > 1 {
		return fmt.Errorf("silent_window_ratio must be in (0, 1], got %f", v.SilentWindowRatio)
	}

	if v.InactivityWindows < 1 {
		return fmt.Errorf("inactivity_windows must be at least 1, got %d", v.InactivityWindows)
	}

	return nil
}

// Validate validates scheduler configuration
func (s *SchedulerConfig) Validate() error {
	if s.Ceiling < 1 {
		return fmt.Errorf("ceiling must be at least 1 second, got %d", s.Ceiling)
	}

	if s.SweepInterval < 1 {
		return fmt.Errorf("sweep_interval must be at least 1 second, got %d", s.SweepInterval)
	}

	return nil
}

// Validate validates synthesis configuration
func (y *SynthesisConfig) Validate() error {
	if y.Endpoint != "" {
		if u, err := url.Parse(y.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint must be an absolute URL, got '%s'", y.Endpoint)
		}
	}

	if y.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", y.Timeout)
	}

	if y.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", y.MaxRetries)
	}

	if y.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", y.MaxConcurrent)
	}

	if y.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", y.CacheSize)
	}

	return nil
}

// Validate validates call log configuration
func (l *CallLogConfig) Validate() error {
	switch l.Driver {
	case "log":
	case "postgres":
		if l.DSN == "" {
			return fmt.Errorf("dsn cannot be empty for the postgres driver")
		}
	default:
		return fmt.Errorf("driver must be 'log' or 'postgres', got '%s'", l.Driver)
	}

	if l.SaveTimeout < 1 {
		return fmt.Errorf("save_timeout must be at least 1 second, got %d", l.SaveTimeout)
	}

	return nil
}

// Validate validates webhook configuration
func (w *WebhookConfig) Validate() error {
	if w.URL != "" {
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url must be an http(s) address, got '%s'", w.URL)
		}
	}

	if w.Timeout < 1 || w.Timeout > 10 {
		return fmt.Errorf("timeout must be between 1 and 10 seconds, got %d", w.Timeout)
	}

	return nil
}

// Validate validates summary configuration
func (s *SummaryConfig) Validate() error {
	switch s.Provider {
	case "heuristic":
	case "gemini":
		if s.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the gemini provider")
		}
	default:
		return fmt.Errorf("provider must be 'heuristic' or 'gemini', got '%s'", s.Provider)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.MaxSizeMB < 1 {
		return fmt.Errorf("max_size_mb must be at least 1, got %d", l.MaxSizeMB)
	}

	if l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("max_backups and max_age_days cannot be negative")
	}

	return nil
}

// IsFile reports whether logs go to a file rather than a standard stream
func (l *LoggingConfig) IsFile() bool {
	return l.Output != "stdout" && l.Output != "stderr" && l.Output != ""
}

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// ListenAddress returns host:port for the listener
func (s *ServerConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// GetStaleTimeoutDuration returns the stale call timeout as a time.Duration
func (t *TelephonyConfig) GetStaleTimeoutDuration() time.Duration {
	return time.Duration(t.StaleTimeout) * time.Second
}

// GetRetiredRetentionDuration returns how long ended stream ids are kept
func (t *TelephonyConfig) GetRetiredRetentionDuration() time.Duration {
	return time.Duration(t.RetiredRetention) * time.Hour
}

// GetCleanupIntervalDuration returns the registry sweep interval as a time.Duration
func (t *TelephonyConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(t.CleanupInterval) * time.Second
}

// GetWriteTimeoutDuration returns the telephony write timeout as a time.Duration
func (t *TelephonyConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(t.WriteTimeout) * time.Second
}

// GetConnectTimeoutDuration returns the AI connect timeout as a time.Duration
func (r *RealtimeConfig) GetConnectTimeoutDuration() time.Duration {
	return time.Duration(r.ConnectTimeout) * time.Second
}

// GetConfirmTimeoutDuration returns the session confirmation wait as a time.Duration
func (r *RealtimeConfig) GetConfirmTimeoutDuration() time.Duration {
	return time.Duration(r.ConfirmTimeoutMS) * time.Millisecond
}

// GetReconnectDelayDuration returns the pause before reconnecting as a time.Duration
func (r *RealtimeConfig) GetReconnectDelayDuration() time.Duration {
	return time.Duration(r.ReconnectDelayMS) * time.Millisecond
}

// GetCeilingDuration returns the scheduler ceiling as a time.Duration
func (s *SchedulerConfig) GetCeilingDuration() time.Duration {
	return time.Duration(s.Ceiling) * time.Second
}

// GetSweepIntervalDuration returns the scheduler sweep interval as a time.Duration
func (s *SchedulerConfig) GetSweepIntervalDuration() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}

// GetTimeoutDuration returns the synthesis timeout as a time.Duration
func (y *SynthesisConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(y.Timeout) * time.Second
}

// GetCacheTTLDuration returns the synthesis cache lifetime as a time.Duration
func (y *SynthesisConfig) GetCacheTTLDuration() time.Duration {
	return time.Duration(y.CacheTTL) * time.Second
}

// GetWarmupIntervalDuration returns the warmup period as a time.Duration
func (y *SynthesisConfig) GetWarmupIntervalDuration() time.Duration {
	return time.Duration(y.WarmupInterval) * time.Second
}

// GetSaveTimeoutDuration returns the call log save timeout as a time.Duration
func (l *CallLogConfig) GetSaveTimeoutDuration() time.Duration {
	return time.Duration(l.SaveTimeout) * time.Second
}

// GetTimeoutDuration returns the webhook timeout as a time.Duration
func (w *WebhookConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(w.Timeout) * time.Second
}

// Reconnects returns how many times a lost AI session is reopened
func (r *RealtimeConfig) Reconnects() int {
	if r.MaxReconnects < 0 {
		return 0
	}
	return r.MaxReconnects
}

// GetTimeoutDuration returns the summary extraction timeout as a time.Duration
func (s *SummaryConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Sanitized returns a copy with secrets masked, safe to expose over HTTP
func (c *Config) Sanitized() Config {
	out := *c
	out.Realtime.APIKey = mask(out.Realtime.APIKey)
	out.Synthesis.APIKey = mask(out.Synthesis.APIKey)
	out.Summary.APIKey = mask(out.Summary.APIKey)
	out.Webhook.Secret = mask(out.Webhook.Secret)
	out.CallLog.DSN = maskDSN(out.CallLog.DSN)
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	out.Synthesis.Prefetch = append([]string(nil), c.Synthesis.Prefetch...)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
