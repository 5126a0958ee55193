// Package playback replays recorded transitions at a controllable pace,
// independently of any live hub.
package playback

import (
	"sync"
	"time"

	"github.com/cadre-oss/statecast/internal/clock"
	"github.com/cadre-oss/statecast/internal/errors"
	"github.com/cadre-oss/statecast/internal/state"
)

// DefaultBaseDelay is the gap between events at speed 1.0.
const DefaultBaseDelay = 500 * time.Millisecond

// Callback receives each replayed event and its index in the sequence.
type Callback func(ev state.Event, index int)

// ReplayOptions controls a single replay. A zero Speed means 1.0.
type ReplayOptions struct {
	Speed float64
	Loop  bool
}

// State is a snapshot of the player.
type State struct {
	IsPlaying    bool    `json:"is_playing"`
	Paused       bool    `json:"paused"`
	CurrentIndex int     `json:"current_index"`
	Speed        float64 `json:"speed"`
	Loop         bool    `json:"loop"`
	Total        int     `json:"total"`
}

// Logger is the optional log sink. Callback panics go to Warn.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
}

// Player replays one sequence at a time. The first event is delivered on
// the Replay caller's goroutine; each following event is scheduled
// baseDelay/speed after the previous callback returns. A callback that
// panics ends the replay.
type Player struct {
	clock     clock.Clock
	baseDelay time.Duration
	logger    Logger

	mu      sync.Mutex
	events  []state.Event
	cb      Callback
	index   int // next event to deliver
	speed   float64
	loop    bool
	active  bool // a session exists, playing or paused
	playing bool
	gen     uint64
	timer   clock.Timer
	done    chan struct{}
}

// Option configures a Player.
type Option func(*Player)

// WithBaseDelay sets the delay between events at speed 1.0.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Player) {
		if d >= 0 {
			p.baseDelay = d
		}
	}
}

// WithClock sets the clock used for pacing.
func WithClock(c clock.Clock) Option {
	return func(p *Player) { p.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(p *Player) { p.logger = l }
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New creates an idle player.
func New(opts ...Option) *Player {
	p := &Player{
		clock:     clock.Real(),
		baseDelay: DefaultBaseDelay,
		speed:     1.0,
		done:      closedDone,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Replay starts delivering events to cb. It fails with REPLAY_IN_PROGRESS
// while another replay is playing, leaving that replay untouched. A paused
// replay is discarded and replaced. An empty sequence is a no-op.
func (p *Player) Replay(events []state.Event, cb Callback, opts ReplayOptions) error {
	speed := opts.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < 0 {
		return errors.Newf(errors.CodeInvalidSpeed, "speed must be positive, got %v", speed)
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return errors.New(errors.CodeReplayInProgress, "a replay is already playing").
			WithSuggestion("Stop or pause the current replay first")
	}
	if p.active {
		p.finishLocked()
	}
	if len(events) == 0 {
		p.mu.Unlock()
		return nil
	}

	p.events = make([]state.Event, len(events))
	for i, ev := range events {
		p.events[i] = ev.Clone()
	}
	p.cb = cb
	p.index = 0
	p.speed = speed
	p.loop = opts.Loop
	p.active = true
	p.playing = true
	p.done = make(chan struct{})
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.debug("Replay started", "events", len(events), "speed", speed, "loop", opts.Loop)
	p.step(gen)
	return nil
}

func (p *Player) step(gen uint64) {
	p.mu.Lock()
	if !p.playing || gen != p.gen {
		p.mu.Unlock()
		return
	}
	if p.index >= len(p.events) {
		// Paused during the last callback of a non-looping replay.
		if !p.loop {
			p.finishLocked()
			p.mu.Unlock()
			return
		}
		p.index = 0
	}
	ev := p.events[p.index].Clone()
	idx := p.index
	cb := p.cb
	done := p.done
	p.index++
	p.mu.Unlock()

	ok := p.deliver(cb, ev, idx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !ok {
		if p.active && p.done == done {
			p.finishLocked()
		}
		return
	}
	if !p.playing || gen != p.gen {
		return
	}
	if p.index >= len(p.events) {
		if !p.loop {
			total := len(p.events)
			p.finishLocked()
			p.debug("Replay finished", "events", total)
			return
		}
		p.index = 0
	}
	p.scheduleLocked(gen)
}

// deliver runs cb and reports false if it panicked.
func (p *Player) deliver(cb Callback, ev state.Event, idx int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.Warn("Replay callback panicked, stopping replay",
					"index", idx,
					"actor", ev.Actor,
					"state", string(ev.State),
					"panic", r,
				)
			}
			ok = false
		}
	}()
	cb(ev, idx)
	return true
}

func (p *Player) scheduleLocked(gen uint64) {
	delay := time.Duration(float64(p.baseDelay) / p.speed)
	p.timer = p.clock.AfterFunc(delay, func() { p.step(gen) })
}

// Pause cancels the pending delivery and keeps the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.playing = false
	p.cancelLocked()
}

// Resume continues a paused replay from where it stopped; the next event
// arrives after the normal paced delay.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing || !p.active {
		return
	}
	p.playing = true
	p.gen++
	p.scheduleLocked(p.gen)
}

// Stop cancels the replay and resets the position.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.finishLocked()
}

// SetSpeed changes pacing for deliveries scheduled from now on.
func (p *Player) SetSpeed(speed float64) error {
	if speed <= 0 {
		return errors.Newf(errors.CodeInvalidSpeed, "speed must be positive, got %v", speed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = speed
	return nil
}

// State returns a snapshot of the player.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		IsPlaying:    p.playing,
		Paused:       p.active && !p.playing,
		CurrentIndex: p.index,
		Speed:        p.speed,
		Loop:         p.loop,
		Total:        len(p.events),
	}
}

// Done is closed when the current replay finishes or is stopped. Looping
// replays only finish through Stop.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Player) cancelLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) finishLocked() {
	p.cancelLocked()
	p.active = false
	p.playing = false
	p.index = 0
	p.events = nil
	p.cb = nil
	if p.done != closedDone {
		close(p.done)
		p.done = closedDone
	}
}

func (p *Player) debug(msg string, keyvals ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, keyvals...)
	}
}
