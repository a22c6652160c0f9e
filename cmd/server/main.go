package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/bridge"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/calllog"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/config"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/conversation"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/directory"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/realtime"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/scheduler"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/server"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/summary"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/synth"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/webhook"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "callbridge"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger, logCloser := initLogger(cfg.Logging)
	defer logCloser.Close()

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("listen_address", cfg.Server.ListenAddress()),
		slog.String("media_path", cfg.Server.MediaPath),
		slog.Int("max_concurrent_calls", cfg.Telephony.MaxConcurrentCalls),
		slog.String("realtime_url", cfg.Realtime.URL),
		slog.String("realtime_voice", cfg.Realtime.Voice),
		slog.Int("max_reconnects", cfg.Realtime.Reconnects()),
		slog.Bool("synthesis_enabled", cfg.Synthesis.Endpoint != ""),
		slog.String("directory_path", cfg.Directory.Path),
		slog.String("calllog_driver", cfg.CallLog.Driver),
		slog.Bool("webhook_enabled", cfg.Webhook.URL != ""),
		slog.String("summary_provider", cfg.Summary.Provider),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	registry := stream.NewRegistry(logger, stream.Config{
		StaleTimeout:     cfg.Telephony.GetStaleTimeoutDuration(),
		RetiredRetention: cfg.Telephony.GetRetiredRetentionDuration(),
		CleanupInterval:  cfg.Telephony.GetCleanupIntervalDuration(),
	}, appMetrics)
	defer registry.Stop()

	sched := scheduler.New(scheduler.Config{
		Ceiling:       cfg.Scheduler.GetCeilingDuration(),
		SweepInterval: cfg.Scheduler.GetSweepIntervalDuration(),
	}, logger, appMetrics)
	go sched.Run(ctx)

	clients, err := newDirectory(cfg.Directory, logger)
	if err != nil {
		return err
	}

	synthService, err := newSynthService(cfg.Synthesis, logger, appMetrics)
	if err != nil {
		return err
	}
	if cfg.Synthesis.Endpoint != "" {
		go synthService.RunWarmup(ctx)
		go prefetchPrompts(ctx, synthService, cfg, clients)
	}

	sink, closeSink, err := newCallLog(ctx, cfg.CallLog, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	notifier, err := newNotifier(cfg.Webhook, logger, appMetrics)
	if err != nil {
		return err
	}

	extractor, err := newExtractor(ctx, cfg.Summary, logger)
	if err != nil {
		return err
	}

	bridgeConfig, err := newBridgeConfig(cfg)
	if err != nil {
		return err
	}

	callBridge, err := bridge.New(bridgeConfig, bridge.Deps{
		Registry:  registry,
		Scheduler: sched,
		Synth:     synthService,
		Directory: clients,
		Extractor: extractor,
		Sink:      sink,
		Notifier:  notifier,
		Logger:    logger,
		Metrics:   appMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	media := server.NewMediaHandler(callBridge, cfg.Telephony.MaxConcurrentCalls, cfg.Server.AllowedOrigins, logger, appMetrics)

	httpServer := server.NewHTTPServer(cfg, logger, server.Components{
		Registry:  registry,
		Bridge:    callBridge,
		Media:     media,
		Scheduler: sched,
		Synth:     synthService,
		Metrics:   appMetrics,
		Gatherer:  prometheus.DefaultGatherer,
	})

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", cfg.Server.ListenAddress()),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// End live calls, then let summaries and notifications finish
	media.Stop()
	callBridge.Wait()
	cancel()

	// Get final statistics
	stats := callBridge.GetStats()
	mediaStats := media.GetStatistics()
	logger.Info("Final bridge statistics",
		slog.Uint64("total_calls", stats.TotalCalls),
		slog.Uint64("panics", stats.Panics),
		slog.Uint64("summary_errors", stats.SummaryErrors),
		slog.Uint64("rejected_connections", mediaStats.Rejected),
	)

	return nil
}

func newBridgeConfig(cfg *config.Config) (bridge.Config, error) {
	in, err := cfg.Realtime.InputFormat()
	if err != nil {
		return bridge.Config{}, fmt.Errorf("realtime input format: %w", err)
	}
	out, err := cfg.Realtime.OutputFormat()
	if err != nil {
		return bridge.Config{}, fmt.Errorf("realtime output format: %w", err)
	}

	return bridge.Config{
		Realtime: realtime.Config{
			URL:                cfg.Realtime.URL,
			APIKey:             cfg.Realtime.APIKey,
			Voice:              cfg.Realtime.Voice,
			InputFormat:        in,
			OutputFormat:       out,
			VADThreshold:       cfg.Realtime.VADThreshold,
			PrefixPaddingMS:    cfg.Realtime.PrefixPaddingMS,
			SilenceDurationMS:  cfg.Realtime.SilenceDurationMS,
			TranscriptionModel: cfg.Realtime.TranscriptionModel,
			Temperature:        cfg.Realtime.Temperature,
			ConnectTimeout:     cfg.Realtime.GetConnectTimeoutDuration(),
			ConfirmTimeout:     cfg.Realtime.GetConfirmTimeoutDuration(),
			MinAppendMS:        cfg.Realtime.MinAppendMS,
		},
		BaseInstructions: cfg.Realtime.Instructions,
		Conversation: conversation.Config{
			SpeakingTimeoutFrames:   cfg.Conversation.SpeakingTimeoutFrames,
			ProcessingTimeoutFrames: cfg.Conversation.ProcessingTimeoutFrames,
			WindowFrames:            cfg.Conversation.WindowFrames,
			SilentWindowRatio:       cfg.Conversation.SilentWindowRatio,
			InactivityWindows:       cfg.Conversation.InactivityWindows,
		},
		InactivityPrompt:   cfg.Conversation.InactivityPrompt,
		FallbackMessage:    cfg.Conversation.FallbackMessage,
		FallbackPrompt:     cfg.Conversation.FallbackPrompt,
		SilenceThreshold:   cfg.Telephony.SilenceThreshold,
		PlayoutQueueFrames: cfg.Telephony.PlayoutQueueFrames,
		WriteTimeout:       cfg.Telephony.GetWriteTimeoutDuration(),
		ReconnectDelay:     cfg.Realtime.GetReconnectDelayDuration(),
		MaxReconnects:      cfg.Realtime.Reconnects(),
		SummaryTimeout:     cfg.Summary.GetTimeoutDuration(),
		SaveTimeout:        cfg.CallLog.GetSaveTimeoutDuration(),
		NotifyTimeout:      cfg.Webhook.GetTimeoutDuration(),
	}, nil
}

func newDirectory(cfg config.DirectoryConfig, logger *slog.Logger) (*directory.StaticProvider, error) {
	if cfg.Path == "" {
		logger.Warn("No client directory configured, every call uses the default greeting")
		return directory.NewStaticProvider(), nil
	}

	provider, err := directory.NewFileProvider(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load client directory: %w", err)
	}
	logger.Info("Client directory loaded",
		slog.String("path", cfg.Path),
		slog.Int("clients", provider.Len()),
	)

	// Reload on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := provider.Reload(); err != nil {
				logger.Error("Client directory reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("Client directory reloaded", slog.Int("clients", provider.Len()))
		}
	}()

	return provider.StaticProvider, nil
}

func newSynthService(cfg config.SynthesisConfig, logger *slog.Logger, m *metrics.Metrics) (*synth.Service, error) {
	var backend synth.Synthesizer
	if cfg.Endpoint != "" {
		client, err := synth.NewHTTPClient(synth.ClientConfig{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
			OutputFormat:  audio.Telephony,
			UserAgent:     serviceName + "/" + serviceVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create synthesis client: %w", err)
		}
		backend = client
	} else {
		logger.Warn("No synthesis endpoint configured, prompts are replaced by the fallback tone")
	}

	tone := synth.DefaultTone()
	if cfg.ToneDurationMS > 0 {
		tone.DurationMS = cfg.ToneDurationMS
	}
	if cfg.ToneFrequency > 0 {
		tone.FrequencyHz = cfg.ToneFrequency
	}

	service, err := synth.NewService(backend, synth.Config{
		DefaultVoice:   cfg.DefaultVoice,
		Timeout:        cfg.GetTimeoutDuration(),
		CacheTTL:       cfg.GetCacheTTLDuration(),
		CacheSize:      cfg.CacheSize,
		WarmupInterval: cfg.GetWarmupIntervalDuration(),
		Tone:           tone,
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis service: %w", err)
	}
	return service, nil
}

// prefetchPrompts renders the fixed prompts and every client greeting so
// the first calls do not wait on synthesis.
func prefetchPrompts(ctx context.Context, s *synth.Service, cfg *config.Config, clients *directory.StaticProvider) {
	prompts := append([]string{}, cfg.Synthesis.Prefetch...)
	prompts = append(prompts, directory.DefaultGreeting)
	if cfg.Conversation.FallbackMessage != "" {
		prompts = append(prompts, cfg.Conversation.FallbackMessage)
	} else {
		prompts = append(prompts, bridge.DefaultFallbackMessage)
	}
	if cfg.Conversation.FallbackPrompt != "" {
		prompts = append(prompts, cfg.Conversation.FallbackPrompt)
	} else {
		prompts = append(prompts, bridge.DefaultFallbackPrompt)
	}
	s.Prefetch(ctx, cfg.Synthesis.DefaultVoice, prompts...)

	for _, c := range clients.Clients() {
		s.Prefetch(ctx, c.Voice, c.GreetingText())
	}
}

func newCallLog(ctx context.Context, cfg config.CallLogConfig, logger *slog.Logger) (calllog.Sink, func(), error) {
	switch cfg.Driver {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.GetSaveTimeoutDuration())
		defer cancel()

		sink, err := calllog.NewPostgresSink(connectCtx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open call log: %w", err)
		}
		return sink, sink.Close, nil
	default:
		return calllog.NewLogSink(logger), func() {}, nil
	}
}

func newNotifier(cfg config.WebhookConfig, logger *slog.Logger, m *metrics.Metrics) (webhook.Notifier, error) {
	if cfg.URL == "" {
		return webhook.Nop{}, nil
	}

	notifier, err := webhook.NewHTTPNotifier(webhook.Config{
		URL:     cfg.URL,
		Secret:  cfg.Secret,
		Timeout: cfg.GetTimeoutDuration(),
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook notifier: %w", err)
	}
	return notifier, nil
}

func newExtractor(ctx context.Context, cfg config.SummaryConfig, logger *slog.Logger) (summary.Extractor, error) {
	heuristic := summary.NewHeuristicExtractor()
	if cfg.Provider != "gemini" {
		return heuristic, nil
	}

	extractor, err := summary.NewGeminiExtractor(ctx, summary.GeminiConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.GetTimeoutDuration(),
	}, heuristic, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary extractor: %w", err)
	}
	return extractor, nil
}

// initLogger creates and configures the structured logger based on
// configuration. The returned closer flushes a rotating log file.
func initLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Rotating log file
		file := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		output = file
		closer = file
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler).With(slog.String("service", serviceName)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
