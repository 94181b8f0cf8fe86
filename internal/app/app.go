package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/specialistvlad/observedseq/internal/config"
	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	model    *config.Model
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own logger and metrics registry. A pipeline file
// that fails to load is a fatal startup error and panics.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var model *config.Model
	if cfg.ConfigPath != "" {
		var err error
		model, err = loader.Load(ctx, cfg.ConfigPath)
		if err != nil {
			panic(fmt.Errorf("failed to load configuration: %w", err))
		}
		logger.Debug("Configuration loaded.", "stages", len(model.Stages), "headers", model.Headers != nil)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		model:    model,
		registry: reg,
		metrics:  metrics.New(reg),
	}
}

// listen resolves the HTTP address: flags first, then the pipeline file.
func (a *App) listen() string {
	if a.config.Listen != "" {
		return a.config.Listen
	}
	if a.model != nil && a.model.Server != nil && a.model.Server.Listen != "" {
		return a.model.Server.Listen
	}
	return DefaultListen
}
