//go:build integration

package integration

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/realtime"
	"github.com/cadre-oss/statecast/internal/server"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
	"github.com/cadre-oss/statecast/internal/telemetry"
	"github.com/cadre-oss/statecast/internal/testutil"
)

// harness wires a full stack on a real sqlite store and a fake clock.
type harness struct {
	t       *testing.T
	cfg     *config.Config
	clock   *testutil.FakeClock
	hub     *event.Hub
	live    *realtime.Provider
	store   store.Store
	metrics *telemetry.Metrics
	logs    *bytes.Buffer
	server  *httptest.Server

	mu     sync.Mutex
	events []state.Event // every accepted event, in delivery order
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "transitions.db")

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		t.Fatal(err)
	}

	logs := &bytes.Buffer{}
	logger := telemetry.NewLoggerTo(logs, 0, "json")
	metrics := telemetry.NewMetrics()
	clk := testutil.NewFakeClock()
	hub := event.NewHub(state.NewRegistry(cfg.Registry.Capacity, clk),
		event.WithLogger(logger),
		event.WithMetrics(metrics),
	)
	live := realtime.New(hub, realtime.WithClock(clk), realtime.WithMetrics(metrics))

	h := &harness{
		t:       t,
		cfg:     cfg,
		clock:   clk,
		hub:     hub,
		live:    live,
		store:   st,
		metrics: metrics,
		logs:    logs,
	}
	hub.Register(store.NewRecorder(st))
	hub.Register(&eventCapture{harness: h})

	srv := server.New(cfg, server.Deps{Hub: hub, Live: live, Store: st, Metrics: metrics, Logger: logger})
	h.server = httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		h.server.Close()
		st.Close()
	})
	return h
}

// assertStates checks the captured sequence of states.
func (h *harness) assertStates(want ...state.State) {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) != len(want) {
		h.t.Fatalf("expected %d events, got %d", len(want), len(h.events))
	}
	for i, ev := range h.events {
		if ev.State != want[i] {
			h.t.Errorf("event %d: expected %s, got %s", i, want[i], ev.State)
		}
	}
}

func (h *harness) captured() []state.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]state.Event, len(h.events))
	copy(out, h.events)
	return out
}

// eventCapture is a blocking hook that records events.
type eventCapture struct {
	harness *harness
}

func (c *eventCapture) Name() string             { return "test-capture" }
func (c *eventCapture) Matches(state.State) bool { return true }
func (c *eventCapture) IsBlocking() bool         { return true }

func (c *eventCapture) Handle(ev state.Event) error {
	c.harness.mu.Lock()
	defer c.harness.mu.Unlock()
	c.harness.events = append(c.harness.events, ev)
	return nil
}
