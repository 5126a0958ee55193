// Package statecast provides a public API for embedding the agent state
// hub in another program.
//
// Example usage:
//
//	import "github.com/cadre-oss/statecast/pkg/statecast"
//
//	sys, err := statecast.New(statecast.WithStore("sqlite", ".statecast/transitions.db"))
//	if err != nil {
//		return err
//	}
//	defer sys.Close()
//
//	stop := sys.SubscribeLive(func(ev statecast.Event) {
//		fmt.Println(ev.Actor, ev.State)
//	})
//	defer stop()
//
//	sys.Action("planner", "thinking", statecast.ActionOptions{})
package statecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadre-oss/statecast/internal/clock"
	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/playback"
	"github.com/cadre-oss/statecast/internal/realtime"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
	"github.com/cadre-oss/statecast/internal/telemetry"
)

// Re-exported data model.
type (
	State         = state.State
	Event         = state.Event
	Partial       = state.Partial
	Metadata      = state.Metadata
	ActionOptions = event.ActionOptions
	ReplayOptions = playback.ReplayOptions
	PlaybackState = playback.State
)

// Activity states.
const (
	Idle       = state.Idle
	Listening  = state.Listening
	Processing = state.Processing
	Validating = state.Validating
	Deciding   = state.Deciding
	Executing  = state.Executing
	Completed  = state.Completed
	Error      = state.Error
	NeedsInput = state.NeedsInput
)

type options struct {
	capacity   int
	bufferSize int
	debounce   time.Duration
	baseDelay  time.Duration
	strict     bool
	driver     string
	path       string
	logger     *telemetry.Logger
	clock      clock.Clock
}

// Option configures a System.
type Option func(*options)

// WithCapacity bounds the in-memory history.
func WithCapacity(n int) Option { return func(o *options) { o.capacity = n } }

// WithDebounce sets the quiet period for live subscribers.
func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

// WithBufferSize bounds the live view's event buffer.
func WithBufferSize(n int) Option { return func(o *options) { o.bufferSize = n } }

// WithBaseDelay sets the replay gap at speed 1.0.
func WithBaseDelay(d time.Duration) Option { return func(o *options) { o.baseDelay = d } }

// WithStrictValidation rejects events with an empty actor or out-of-range confidence.
func WithStrictValidation() Option { return func(o *options) { o.strict = true } }

// WithStore persists every transition. driver is "memory" or "sqlite".
func WithStore(driver, path string) Option {
	return func(o *options) { o.driver, o.path = driver, path }
}

// WithLogger sets the logger used for listener faults and replay.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = telemetry.Wrap(l) }
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// System bundles the hub, translator, live view, player and store.
type System struct {
	hub        *event.Hub
	translator *event.Translator
	live       *realtime.Provider
	player     *playback.Player
	store      store.Store
	detach     func()
}

// New creates a System.
func New(opts ...Option) (*System, error) {
	o := options{
		capacity:   state.DefaultCapacity,
		bufferSize: realtime.DefaultBufferSize,
		debounce:   realtime.DefaultDebounce,
		baseDelay:  playback.DefaultBaseDelay,
		driver:     "memory",
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = telemetry.NewLogger(false)
	}

	st, err := store.Open(o.driver, o.path)
	if err != nil {
		return nil, err
	}

	hub := event.NewHub(state.NewRegistry(o.capacity, o.clock),
		event.WithLogger(o.logger),
		event.WithValidator(event.ValidatorFor(o.strict)),
	)
	return &System{
		hub:        hub,
		translator: event.NewTranslator(hub, o.logger),
		live: realtime.New(hub,
			realtime.WithBufferSize(o.bufferSize),
			realtime.WithDebounce(o.debounce),
			realtime.WithClock(o.clock),
		),
		player: playback.New(
			playback.WithBaseDelay(o.baseDelay),
			playback.WithClock(o.clock),
			playback.WithLogger(o.logger),
		),
		store:  st,
		detach: hub.Register(store.NewRecorder(st)),
	}, nil
}

// Open creates a System from the statecast.yaml in dir, or defaults.
func Open(dir string) (*System, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := telemetry.NewLoggerFromConfig(cfg.Logging, false)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithCapacity(cfg.Registry.Capacity),
		WithBufferSize(cfg.Realtime.BufferSize),
		WithDebounce(cfg.DebounceDuration()),
		WithBaseDelay(cfg.BaseDelayDuration()),
		WithStore(cfg.Store.Driver, cfg.Store.Path),
	}
	if cfg.Validation.Strict {
		opts = append(opts, WithStrictValidation())
	}
	opts = append(opts, func(o *options) { o.logger = logger })
	return New(opts...)
}

// Emit validates and records p, then notifies subscribers.
func (s *System) Emit(p Partial) (Event, error) { return s.hub.Emit(p) }

// Action translates a free-text label into a state and emits it.
func (s *System) Action(actor, label string, opts ActionOptions) (Event, error) {
	return s.translator.EmitAction(actor, label, opts)
}

// RegisterAction adds or overrides an action label.
func (s *System) RegisterAction(label string, st State) { s.translator.Register(label, st) }

// Reset forces a transition to idle.
func (s *System) Reset() Event { return s.hub.Reset() }

// Current returns the current state (Idle before any event).
func (s *System) Current() State {
	st, _ := s.hub.Registry().Current()
	return st
}

// Latest returns the most recent event.
func (s *System) Latest() (Event, bool) { return s.hub.Registry().Latest() }

// History returns the in-memory history, oldest first.
func (s *System) History() []Event { return s.hub.Registry().History() }

// ClearHistory empties the in-memory history; the current state is kept.
func (s *System) ClearHistory() { s.hub.Registry().Clear() }

// Subscribe delivers every accepted event synchronously, in order.
func (s *System) Subscribe(fn func(Event)) func() { return s.hub.Subscribe(fn) }

// SubscribeLive delivers the latest event after each burst settles.
func (s *System) SubscribeLive(fn func(Event)) func() { return s.live.Subscribe(fn) }

// Transitions queries the store. Zero values match everything.
func (s *System) Transitions(ctx context.Context, actor string, st State, limit int) ([]Event, error) {
	return s.store.List(ctx, store.Query{Actor: actor, State: st, Limit: limit})
}

// Replay plays events back through fn at the given pace.
func (s *System) Replay(events []Event, fn func(Event, int), opts ReplayOptions) error {
	return s.player.Replay(events, fn, opts)
}

// Player exposes pause, resume, stop and speed control for Replay.
func (s *System) Player() *playback.Player { return s.player }

// Close stops playback, detaches the recorder and closes the store.
func (s *System) Close() error {
	s.player.Stop()
	s.detach()
	return s.store.Close()
}
