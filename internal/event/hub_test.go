package event

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/cadre-oss/statecast/internal/errors"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/testutil"
)

// collector records every event it receives.
type collector struct {
	mu     sync.Mutex
	events []state.Event
}

func (c *collector) listen(ev state.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) received() []state.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]state.Event, len(c.events))
	copy(out, c.events)
	return out
}

// fakeMetrics counts hub callbacks.
type fakeMetrics struct {
	mu          sync.Mutex
	accepted    map[state.State]int
	rejected    int
	faults      int
	subscribers int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{accepted: make(map[state.State]int)}
}

func (m *fakeMetrics) EventAccepted(st state.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted[st]++
}

func (m *fakeMetrics) EventRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *fakeMetrics) ListenerFault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults++
}

func (m *fakeMetrics) SubscribersChanged(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = n
}

func newTestHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	return NewHub(state.NewRegistry(100, testutil.NewFakeClock()), opts...)
}

func mustEmit(t *testing.T, h *Hub, p state.Partial) state.Event {
	t.Helper()
	ev, err := h.Emit(p)
	if err != nil {
		t.Fatalf("emit %+v: %v", p, err)
	}
	return ev
}

func TestHub_EmitRecordsAndDelivers(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	hub.Subscribe(c.listen)

	ev := mustEmit(t, hub, state.Partial{Actor: "A", State: state.Listening})

	got := c.received()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ID != ev.ID || got[0].State != state.Listening {
		t.Fatalf("listener got %+v, emitter got %+v", got[0], ev)
	}
	if st, _ := hub.Registry().Current(); st != state.Listening {
		t.Fatalf("expected registry current listening, got %s", st)
	}
}

// Every subscriber sees all events in emission order.
func TestHub_Ordering(t *testing.T) {
	hub := newTestHub(t)
	a, b := &collector{}, &collector{}
	hub.Subscribe(a.listen)
	hub.Subscribe(b.listen)

	for i := 0; i < 20; i++ {
		mustEmit(t, hub, state.Partial{Actor: fmt.Sprintf("p%d", i%3), State: state.All[i%len(state.All)]})
	}

	for _, c := range []*collector{a, b} {
		got := c.received()
		if len(got) != 20 {
			t.Fatalf("expected 20 events, got %d", len(got))
		}
		for i := range got {
			if got[i].Seq != uint64(i+1) {
				t.Fatalf("position %d has seq %d", i, got[i].Seq)
			}
		}
	}
}

func TestHub_ListenersRunInRegistrationOrder(t *testing.T) {
	hub := newTestHub(t)
	var order []string
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("listener-%d", i)
		hub.Subscribe(func(state.Event) { order = append(order, name) })
	}

	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Processing})

	if len(order) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(order))
	}
	for i, name := range order {
		if want := fmt.Sprintf("listener-%d", i); name != want {
			t.Errorf("position %d: expected %s, got %s", i, want, name)
		}
	}
}

// A panicking listener doesn't affect the others or the emitter.
func TestHub_ListenerIsolation(t *testing.T) {
	logger := &testutil.WarnRecorder{}
	metrics := newFakeMetrics()
	hub := newTestHub(t, WithLogger(logger), WithMetrics(metrics))

	a, c := &collector{}, &collector{}
	hub.Subscribe(a.listen)
	hub.Subscribe(func(state.Event) { panic("renderer crashed") })
	hub.Subscribe(c.listen)

	for i := 0; i < 3; i++ {
		if _, err := hub.Emit(state.Partial{Actor: "A", State: state.Executing}); err != nil {
			t.Fatalf("listener fault escaped to emitter: %v", err)
		}
	}

	if len(a.received()) != 3 || len(c.received()) != 3 {
		t.Fatalf("expected 3 events each, got a=%d c=%d", len(a.received()), len(c.received()))
	}
	if len(logger.Warnings()) != 3 {
		t.Fatalf("expected 3 warnings, got %d", len(logger.Warnings()))
	}
	if metrics.faults != 3 {
		t.Fatalf("expected 3 faults counted, got %d", metrics.faults)
	}
}

func TestHub_SameListenerTwiceIsIndependent(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	unsub1 := hub.Subscribe(c.listen)
	hub.Subscribe(c.listen)

	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Idle})
	if n := len(c.received()); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	unsub1()
	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Listening})
	if n := len(c.received()); n != 3 {
		t.Fatalf("expected 3 deliveries after one unsubscribe, got %d", n)
	}
}

// Unsubscribe is idempotent and does not affect others.
func TestHub_UnsubscribeIdempotent(t *testing.T) {
	metrics := newFakeMetrics()
	hub := newTestHub(t, WithMetrics(metrics))
	a, b := &collector{}, &collector{}
	unsubA := hub.Subscribe(a.listen)
	hub.Subscribe(b.listen)

	unsubA()
	unsubA()
	unsubA()

	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}
	if metrics.subscribers != 1 {
		t.Fatalf("expected subscribers gauge 1, got %d", metrics.subscribers)
	}

	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Deciding})
	if len(a.received()) != 0 {
		t.Fatal("unsubscribed listener received an event")
	}
	if len(b.received()) != 1 {
		t.Fatal("remaining listener missed the event")
	}
}

func TestHub_UnsubscribeFromInsideListener(t *testing.T) {
	hub := newTestHub(t)
	calls := 0
	var unsub func()
	unsub = hub.Subscribe(func(state.Event) {
		calls++
		unsub()
	})
	later := &collector{}
	hub.Subscribe(later.listen)

	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Processing})
	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Completed})

	if calls != 1 {
		t.Fatalf("expected self-removing listener to run once, got %d", calls)
	}
	if len(later.received()) != 2 {
		t.Fatalf("expected later listener to get both events, got %d", len(later.received()))
	}
}

func TestHub_RemovedDuringFanOutIsSkipped(t *testing.T) {
	hub := newTestHub(t)
	second := &collector{}
	var unsubSecond func()
	hub.Subscribe(func(state.Event) { unsubSecond() })
	unsubSecond = hub.Subscribe(second.listen)

	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Processing})

	if len(second.received()) != 0 {
		t.Fatal("listener removed before it was reached should be skipped")
	}
}

func TestHub_ReentrantEmitKeepsOrder(t *testing.T) {
	hub := newTestHub(t)
	first := true
	hub.Subscribe(func(ev state.Event) {
		if first {
			first = false
			hub.Emit(state.Partial{Actor: "nested", State: state.Validating})
		}
	})
	c := &collector{}
	hub.Subscribe(c.listen)

	mustEmit(t, hub, state.Partial{Actor: "outer", State: state.Processing})

	got := c.received()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Actor != "outer" || got[1].Actor != "nested" {
		t.Fatalf("expected outer then nested, got %s then %s", got[0].Actor, got[1].Actor)
	}
}

func TestHub_ConcurrentEmittersOrdered(t *testing.T) {
	hub := NewHub(state.NewRegistry(1000, nil))
	c := &collector{}
	hub.Subscribe(c.listen)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				hub.Emit(state.Partial{Actor: fmt.Sprintf("w%d", i), State: state.Executing})
			}
		}(i)
	}
	wg.Wait()

	got := c.received()
	if len(got) != 200 {
		t.Fatalf("expected 200 events, got %d", len(got))
	}
	for i := range got {
		if got[i].Seq != uint64(i+1) {
			t.Fatalf("out of order at %d: seq %d", i, got[i].Seq)
		}
	}
}

func TestHub_ListenerMutationIsolated(t *testing.T) {
	hub := newTestHub(t)
	hub.Subscribe(func(ev state.Event) { ev.Metadata["k"] = "tampered" })
	c := &collector{}
	hub.Subscribe(c.listen)

	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Executing, Metadata: state.Metadata{"k": "v"}})

	if c.received()[0].Metadata["k"] != "v" {
		t.Fatal("one listener's mutation leaked to another")
	}
	if hub.Registry().History()[0].Metadata["k"] != "v" {
		t.Fatal("listener mutation leaked into the registry")
	}
}

// Reset is logged and broadcast like any other transition.
func TestHub_Reset(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	hub.Subscribe(c.listen)
	mustEmit(t, hub, state.Partial{Actor: "A", State: state.Executing})

	ev := hub.Reset()

	if ev.State != state.Idle || ev.Actor != SystemActor {
		t.Fatalf("unexpected reset event: %+v", ev)
	}
	hist := hub.Registry().History()
	if len(hist) != 2 || hist[1].State != state.Idle {
		t.Fatalf("reset not appended to history: %+v", hist)
	}
	got := c.received()
	if len(got) != 2 || got[1].ID != ev.ID {
		t.Fatal("reset not broadcast to subscribers")
	}
}

func TestHub_InvalidStateRejected(t *testing.T) {
	metrics := newFakeMetrics()
	hub := newTestHub(t, WithMetrics(metrics))
	c := &collector{}
	hub.Subscribe(c.listen)

	_, err := hub.Emit(state.Partial{Actor: "A", State: "sleeping"})
	if errors.AsCode(err) != errors.CodeInvalidEvent {
		t.Fatalf("expected INVALID_EVENT, got %v", err)
	}
	if hub.Registry().Len() != 0 || len(c.received()) != 0 {
		t.Fatal("rejected event must not be recorded or delivered")
	}
	if metrics.rejected != 1 {
		t.Fatalf("expected 1 rejection counted, got %d", metrics.rejected)
	}
}

func TestHub_StrictValidator(t *testing.T) {
	hub := newTestHub(t, WithValidator(StrictValidator))

	if _, err := hub.Emit(state.Partial{State: state.Idle}); err == nil {
		t.Fatal("strict hub should reject an empty actor")
	}
	if _, err := hub.Emit(state.Partial{Actor: "A", State: state.Idle}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHub_NaNConfidenceNeverRecorded(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	hub.Subscribe(c.listen)

	if _, err := hub.Emit(state.Partial{Actor: "A", State: state.Deciding, Confidence: state.Float64(math.NaN())}); err == nil {
		t.Fatal("expected NaN confidence to be rejected")
	}
	if hub.Registry().Len() != 0 || len(c.received()) != 0 {
		t.Fatal("rejected event must not be recorded or delivered")
	}

	ev := mustEmit(t, hub, state.Partial{Actor: "A", State: state.Deciding, Confidence: state.Float64(0.4)})
	if _, err := json.Marshal(ev); err != nil {
		t.Fatalf("accepted event must encode: %v", err)
	}
}
