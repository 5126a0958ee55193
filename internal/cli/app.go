package cli

import (
	"fmt"

	"github.com/cadre-oss/statecast/internal/clock"
	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/realtime"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
	"github.com/cadre-oss/statecast/internal/telemetry"
)

// app wires the core components from configuration.
type app struct {
	cfg        *config.Config
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	hub        *event.Hub
	translator *event.Translator
	live       *realtime.Provider
	store      store.Store
	detach     []func()
}

func newApp(cfg *config.Config, logger *telemetry.Logger) (*app, error) {
	metrics := telemetry.NewMetrics()
	reg := state.NewRegistry(cfg.Registry.Capacity, clock.Real())
	hub := event.NewHub(reg,
		event.WithLogger(logger.With("hub")),
		event.WithMetrics(metrics),
		event.WithValidator(event.ValidatorFor(cfg.Validation.Strict)),
	)

	a := &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		hub:        hub,
		translator: event.NewTranslator(hub, logger.With("translator")),
		live: realtime.New(hub,
			realtime.WithBufferSize(cfg.Realtime.BufferSize),
			realtime.WithDebounce(cfg.DebounceDuration()),
			realtime.WithMetrics(metrics),
		),
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.detach = append(a.detach, hub.Register(store.NewRecorder(st)))

	if cfg.Hooks.Enabled {
		hooks, err := event.BuildHooks(cfg.Hooks.Hooks, logger.With("hooks"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to build hooks: %w", err)
		}
		for _, h := range hooks {
			a.detach = append(a.detach, hub.Register(h))
			logger.Debug("Registered hook", "hook", h.Name())
		}
	}

	return a, nil
}

// Close detaches hooks and closes the store.
func (a *app) Close() error {
	for _, d := range a.detach {
		d()
	}
	return a.store.Close()
}

// newLogger builds the logger from the logging section and --verbose.
func newLogger(cfg *config.Config) (*telemetry.Logger, error) {
	logger, err := telemetry.NewLoggerFromConfig(cfg.Logging, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
