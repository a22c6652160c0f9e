package server

import (
	"log/slog"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/bridge"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/config"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/metrics"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/scheduler"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/stream"
	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/synth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	cfg        *config.Config
	gatherer   *prometheus.Registry
	components Components
}

// newFixture builds the call pipeline with no AI endpoint reachable.
func newFixture(t *testing.T, maxCalls int) *fixture {
	t.Helper()
	logger := testLogger()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	registry := stream.NewRegistry(logger, stream.Config{}, m)
	t.Cleanup(registry.Stop)

	sched := scheduler.New(scheduler.Config{}, logger, m)
	speech, err := synth.NewService(nil, synth.Config{}, logger, m)
	if err != nil {
		t.Fatalf("Failed to create synthesis service: %v", err)
	}

	b, err := bridge.New(bridge.DefaultConfig(), bridge.Deps{
		Registry:  registry,
		Scheduler: sched,
		Synth:     speech,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}

	cfg := config.Default()
	cfg.Realtime.APIKey = "sk-secret"
	cfg.Webhook.Secret = "hook-secret"

	media := NewMediaHandler(b, maxCalls, nil, logger, m)
	t.Cleanup(media.Stop)

	return &fixture{
		cfg:      cfg,
		gatherer: reg,
		components: Components{
			Registry:  registry,
			Bridge:    b,
			Media:     media,
			Scheduler: sched,
			Synth:     speech,
			Metrics:   m,
			Gatherer:  reg,
		},
	}
}
