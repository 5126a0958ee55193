// Package realtime provides a buffered, debounced live view over a hub.
package realtime

import (
	"sync"
	"time"

	"github.com/cadre-oss/statecast/internal/clock"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/state"
)

const (
	DefaultBufferSize = 50
	DefaultDebounce   = 100 * time.Millisecond
)

// Source is the subscribe half of event.Hub.
type Source interface {
	Subscribe(l event.Listener) func()
}

// Metrics receives provider counters. telemetry.Metrics implements it.
type Metrics interface {
	DeliverySuperseded()
}

// Provider keeps the most recent events in a ring buffer and delivers the
// latest one to each subscriber after a quiet period. Intermediate events
// within a burst are dropped from delivery but remain in the buffer.
type Provider struct {
	src      Source
	clock    clock.Clock
	debounce time.Duration
	metrics  Metrics

	mu      sync.Mutex
	buf     []state.Event
	head    int
	size    int
	lastSeq uint64
}

// Option configures a Provider.
type Option func(*Provider)

// WithBufferSize sets the ring buffer capacity. Values <= 0 are ignored.
func WithBufferSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.buf = make([]state.Event, n)
		}
	}
}

// WithDebounce sets the quiet period. Negative values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.debounce = d
		}
	}
}

// WithClock sets the clock used for debounce timers.
func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = clock.OrReal(c) }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// New creates a provider reading from src.
func New(src Source, opts ...Option) *Provider {
	p := &Provider{
		src:      src,
		clock:    clock.Real(),
		debounce: DefaultDebounce,
		buf:      make([]state.Event, DefaultBufferSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe delivers the latest event to cb once no new event has arrived
// for the debounce window. The returned function unsubscribes, cancels any
// pending delivery, and is safe to call more than once.
func (p *Provider) Subscribe(cb func(state.Event)) func() {
	d := &debouncer{provider: p, cb: cb}
	unsub := p.src.Subscribe(d.observe)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			d.close()
		})
	}
}

// Buffer returns the buffered events, oldest first.
func (p *Provider) Buffer() []state.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]state.Event, 0, p.size)
	start := (p.head - p.size + len(p.buf)) % len(p.buf)
	for i := 0; i < p.size; i++ {
		out = append(out, p.buf[(start+i)%len(p.buf)].Clone())
	}
	return out
}

// Latest returns the newest buffered event.
func (p *Provider) Latest() (state.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.size == 0 {
		return state.Event{}, false
	}
	idx := (p.head - 1 + len(p.buf)) % len(p.buf)
	return p.buf[idx].Clone(), true
}

// ClearBuffer empties the buffer. The hub is not affected.
func (p *Provider) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.buf {
		p.buf[i] = state.Event{}
	}
	p.head = 0
	p.size = 0
}

// record appends ev once, however many subscriptions observe it.
func (p *Provider) record(ev state.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Seq != 0 && ev.Seq <= p.lastSeq {
		return
	}
	p.lastSeq = ev.Seq
	p.buf[p.head] = ev
	p.head = (p.head + 1) % len(p.buf)
	if p.size < len(p.buf) {
		p.size++
	}
}

type debouncer struct {
	provider *Provider
	cb       func(state.Event)

	mu      sync.Mutex
	timer   clock.Timer
	pending state.Event
	gen     uint64
	closed  bool
}

func (d *debouncer) observe(ev state.Event) {
	d.provider.record(ev)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil && d.timer.Stop() && d.provider.metrics != nil {
		d.provider.metrics.DeliverySuperseded()
	}
	d.gen++
	d.pending = ev
	gen := d.gen
	d.timer = d.provider.clock.AfterFunc(d.provider.debounce, func() { d.fire(gen) })
}

func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	ev := d.pending
	d.pending = state.Event{}
	d.timer = nil
	d.mu.Unlock()

	d.cb(ev)
}

func (d *debouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
