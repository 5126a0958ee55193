package event

import (
	"sync"
	"sync/atomic"

	"github.com/cadre-oss/statecast/internal/state"
)

// SystemActor attributes transitions the hub makes on its own behalf.
const SystemActor = "system"

// Listener receives every accepted event. Each listener gets its own copy.
type Listener func(ev state.Event)

// Logger is a minimal logging interface so the hub doesn't depend on telemetry.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

type debugLogger interface {
	Debug(msg string, keyvals ...interface{})
}

// Metrics receives hub counters. telemetry.Metrics implements it.
type Metrics interface {
	EventAccepted(st state.State)
	EventRejected()
	ListenerFault()
	SubscribersChanged(n int)
}

type subscription struct {
	id      uint64
	name    string
	fn      Listener
	removed atomic.Bool
}

// Hub records transitions in a Registry and fans each one out to subscribers.
//
// Dispatch rules:
//  1. Listeners run synchronously, in registration order, one event at a time.
//  2. Every listener sees events in acceptance order, even with concurrent
//     emitters or listeners that emit from inside their callback.
//  3. A listener panic is recovered and logged; the remaining listeners and
//     the emitter are unaffected.
//  4. A listener removed during a fan-out is skipped if it has not been
//     reached yet, and never sees later events.
type Hub struct {
	reg      *state.Registry
	logger   Logger
	metrics  Metrics
	validate Validator

	mu       sync.Mutex
	subs     []*subscription
	nextID   uint64
	queue    []state.Event
	draining bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger used for listener faults. Nil is silent.
func WithLogger(l Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithValidator replaces the default LenientValidator.
func WithValidator(v Validator) HubOption {
	return func(h *Hub) {
		if v != nil {
			h.validate = v
		}
	}
}

// NewHub creates a hub over reg.
func NewHub(reg *state.Registry, opts ...HubOption) *Hub {
	h := &Hub{
		reg:      reg,
		validate: LenientValidator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry returns the registry the hub records into.
func (h *Hub) Registry() *state.Registry {
	return h.reg
}

// Subscribe registers l and returns a function that removes it. Subscribing
// the same function twice yields two independent registrations. The returned
// function is idempotent and may be called from inside a listener.
func (h *Hub) Subscribe(l Listener) func() {
	return h.subscribe("", l)
}

func (h *Hub) subscribe(name string, l Listener) func() {
	h.mu.Lock()
	h.nextID++
	sub := &subscription{id: h.nextID, name: name, fn: l}
	h.subs = append(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()
	h.subscribersChanged(n)

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(sub) })
	}
}

func (h *Hub) unsubscribe(sub *subscription) {
	sub.removed.Store(true)

	h.mu.Lock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			break
		}
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.subscribersChanged(n)
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emit validates p, records it, and delivers it to every subscriber. The
// only error is a validation failure; listener faults never reach the caller.
//
// If another goroutine is already delivering, Emit returns once p is
// accepted and queued; the active deliverer hands it out in order.
func (h *Hub) Emit(p state.Partial) (state.Event, error) {
	if err := h.validate(&p); err != nil {
		if h.metrics != nil {
			h.metrics.EventRejected()
		}
		return state.Event{}, err
	}

	h.mu.Lock()
	ev := h.reg.Accept(p)
	h.queue = append(h.queue, ev)
	if h.draining {
		h.mu.Unlock()
		h.accepted(ev)
		return ev, nil
	}
	h.draining = true
	h.mu.Unlock()

	h.accepted(ev)
	h.drain()
	return ev, nil
}

// Reset forces a transition to idle through the normal emit path.
func (h *Hub) Reset() state.Event {
	ev, err := h.Emit(state.Partial{Actor: SystemActor, State: state.Idle, Message: "reset"})
	if err != nil && h.logger != nil {
		h.logger.Warn("Reset rejected by validator", "error", err)
	}
	return ev
}

func (h *Hub) drain() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.draining = false
			h.mu.Unlock()
			return
		}
		ev := h.queue[0]
		h.queue[0] = state.Event{}
		h.queue = h.queue[1:]
		subs := make([]*subscription, len(h.subs))
		copy(subs, h.subs)
		h.mu.Unlock()

		for _, sub := range subs {
			if sub.removed.Load() {
				continue
			}
			h.deliver(sub, ev)
		}
	}
}

func (h *Hub) deliver(sub *subscription, ev state.Event) {
	defer func() {
		if r := recover(); r != nil {
			if h.metrics != nil {
				h.metrics.ListenerFault()
			}
			if h.logger != nil {
				h.logger.Warn("Listener panicked",
					"subscription", sub.id,
					"listener", sub.name,
					"actor", ev.Actor,
					"state", string(ev.State),
					"panic", r,
				)
			}
		}
	}()
	sub.fn(ev.Clone())
}

func (h *Hub) accepted(ev state.Event) {
	if h.metrics != nil {
		h.metrics.EventAccepted(ev.State)
	}
	if dl, ok := h.logger.(debugLogger); ok {
		dl.Debug("State accepted", "seq", ev.Seq, "actor", ev.Actor, "state", string(ev.State))
	}
}

func (h *Hub) subscribersChanged(n int) {
	if h.metrics != nil {
		h.metrics.SubscribersChanged(n)
	}
}
