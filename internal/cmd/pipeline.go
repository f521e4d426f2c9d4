package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/steveyegge/agentotel/internal/attrs"
	"github.com/steveyegge/agentotel/internal/config"
	"github.com/steveyegge/agentotel/internal/identity"
	"github.com/steveyegge/agentotel/internal/profile"
	"github.com/steveyegge/agentotel/internal/runner"
	"github.com/steveyegge/agentotel/internal/telemetry"
	"github.com/steveyegge/agentotel/internal/translator"
)

// flushTimeout bounds the best-effort flush at shutdown.
const flushTimeout = 5 * time.Second

// consoleOut receives console-exporter output. Tests replace it.
var consoleOut io.Writer = os.Stdout

// pipeline is the wired translator plus the provider that must be flushed.
type pipeline struct {
	provider *telemetry.Provider
	runner   *runner.Runner
	log      zerolog.Logger
}

func newPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline, error) {
	prof := profile.For(cfg.ProfileName())

	provider, err := telemetry.Init(ctx, telemetryOptions(cfg, prof))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	userID, err := identity.UserID(cfg.StateDir)
	if err != nil {
		log.Warn().Err(err).Str("state_dir", cfg.StateDir).Msg("user id not persisted")
	}
	id := attrs.Identity{
		UserID:       userID,
		TerminalType: identity.DetectTerminal(),
		AppVersion:   appVersion(cfg),
	}

	tr := translator.New(translatorConfig(cfg, prof), id, provider.Metrics, provider.Logs)
	log.Info().
		Str("profile", prof.Name.String()).
		Str("exporter", cfg.Exporter).
		Bool("enabled", cfg.Enabled).
		Msg("telemetry pipeline ready")

	return &pipeline{
		provider: provider,
		runner: &runner.Runner{
			Translator: tr,
			Notifier:   runner.StderrNotifier{W: os.Stderr},
			Logger:     log,
		},
		log: log,
	}, nil
}

// shutdown flushes then closes the exporters.
func (p *pipeline) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.provider.Shutdown(ctx); err != nil {
		p.log.Warn().Err(err).Msg("telemetry flush incomplete")
	}
}

func appVersion(cfg *config.Config) string {
	if cfg.AppVersion != "" {
		return cfg.AppVersion
	}
	return Version
}

func telemetryOptions(cfg *config.Config, prof profile.Profile) telemetry.Options {
	return telemetry.Options{
		Profile:          prof,
		AppVersion:       appVersion(cfg),
		Exporter:         cfg.Exporter,
		Endpoint:         cfg.Endpoint,
		MetricsEndpoint:  cfg.MetricsEndpoint,
		LogsEndpoint:     cfg.LogsEndpoint,
		Headers:          cfg.Headers,
		DeltaTemporality: cfg.Delta(),
		MetricInterval:   cfg.MetricInterval,
		LogInterval:      cfg.LogInterval,
		Console:          consoleOut,
	}
}

func translatorConfig(cfg *config.Config, prof profile.Profile) translator.Config {
	return translator.Config{
		Profile:          prof,
		Enabled:          cfg.Enabled,
		IncludeSessionID: cfg.IncludeSessionID,
		IncludeVersion:   cfg.IncludeVersion,
		LogUserPrompts:   cfg.LogUserPrompts,
		LogToolDetails:   cfg.LogToolDetails,
	}
}
