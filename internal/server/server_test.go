package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/realtime"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
	"github.com/cadre-oss/statecast/internal/telemetry"
	"github.com/cadre-oss/statecast/internal/testutil"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	hub     *event.Hub
	clock   *testutil.FakeClock
	store   *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := testutil.NewFakeClock()
	metrics := telemetry.NewMetrics()
	hub := event.NewHub(state.NewRegistry(10, clk), event.WithMetrics(metrics))
	st := store.NewMemoryStore(0)
	hub.Register(store.NewRecorder(st))

	cfg := config.Default()
	srv := New(cfg, Deps{
		Hub:     hub,
		Live:    realtime.New(hub, realtime.WithClock(clk), realtime.WithMetrics(metrics)),
		Store:   st,
		Metrics: metrics,
		Logger:  telemetry.NewLoggerTo(&bytes.Buffer{}, 0, "text"),
	})
	return &testEnv{srv: srv, handler: srv.Handler(), hub: hub, clock: clk, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]interface{}
	decode(t, rr, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestGetState_Initial(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/state", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp stateResponse
	decode(t, rr, &resp)
	if resp.State != state.Idle || resp.Event != nil {
		t.Errorf("initial state = %+v", resp)
	}
}

func TestEmitAndGetState(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/state/events", `{"actor":"agent","state":"processing","confidence":0.5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var ev state.Event
	decode(t, rr, &ev)
	if ev.Seq != 1 || ev.State != state.Processing || ev.ID == "" {
		t.Errorf("emitted event = %+v", ev)
	}

	var resp stateResponse
	decode(t, env.do(t, http.MethodGet, "/api/state", ""), &resp)
	if resp.State != state.Processing || resp.Event == nil || resp.Event.ID != ev.ID {
		t.Errorf("state after emit = %+v", resp)
	}
}

func TestEmit_InvalidState(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/state/events", `{"actor":"agent","state":"sleeping"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if body["code"] != "INVALID_EVENT" {
		t.Errorf("error body = %v", body)
	}
	if env.hub.Registry().Len() != 0 {
		t.Error("rejected event should not be recorded")
	}
}

func TestEmit_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/state/events", `{"actor":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAction(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/state/actions", `{"actor":"agent","action":"error_occurred","message":"boom","context":{"code":42}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var ev state.Event
	decode(t, rr, &ev)
	if ev.State != state.Error || !ev.RequiresUser {
		t.Errorf("action event = %+v", ev)
	}
	if ev.Metadata["action"] != "error_occurred" {
		t.Errorf("metadata = %v", ev.Metadata)
	}

	rr = env.do(t, http.MethodPost, "/api/state/actions", `{"actor":"agent"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing action status = %d, want 400", rr.Code)
	}
}

func TestHistoryAndClear(t *testing.T) {
	env := newTestEnv(t)
	for _, st := range []string{"listening", "processing", "completed"} {
		env.do(t, http.MethodPost, "/api/state/events", `{"actor":"agent","state":"`+st+`"}`)
	}

	var hist []state.Event
	decode(t, env.do(t, http.MethodGet, "/api/state/history", ""), &hist)
	if len(hist) != 3 {
		t.Fatalf("history length = %d", len(hist))
	}

	decode(t, env.do(t, http.MethodGet, "/api/state/history?limit=2", ""), &hist)
	if len(hist) != 2 || hist[0].State != state.Processing || hist[1].State != state.Completed {
		t.Errorf("recent = %+v", hist)
	}

	if rr := env.do(t, http.MethodGet, "/api/state/history?limit=abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rr.Code)
	}

	if rr := env.do(t, http.MethodDelete, "/api/state/history", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rr.Code)
	}
	decode(t, env.do(t, http.MethodGet, "/api/state/history", ""), &hist)
	if len(hist) != 0 {
		t.Errorf("history after clear = %d", len(hist))
	}

	var resp stateResponse
	decode(t, env.do(t, http.MethodGet, "/api/state", ""), &resp)
	if resp.State != state.Completed {
		t.Errorf("clear should keep the current state, got %s", resp.State)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/state/events", `{"actor":"agent","state":"executing"}`)
	rr := env.do(t, http.MethodPost, "/api/state/reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var ev state.Event
	decode(t, rr, &ev)
	if ev.State != state.Idle || ev.Actor != event.SystemActor {
		t.Errorf("reset event = %+v", ev)
	}
}

func TestTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/state/events", `{"actor":"a","state":"processing"}`)
	env.do(t, http.MethodPost, "/api/state/events", `{"actor":"b","state":"processing"}`)
	env.do(t, http.MethodPost, "/api/state/events", `{"actor":"a","state":"completed"}`)

	var events []state.Event
	decode(t, env.do(t, http.MethodGet, "/api/transitions?actor=a", ""), &events)
	if len(events) != 2 {
		t.Fatalf("actor filter = %d events", len(events))
	}

	decode(t, env.do(t, http.MethodGet, "/api/transitions?state=Processing&limit=1", ""), &events)
	if len(events) != 1 || events[0].Actor != "b" {
		t.Errorf("state filter = %+v", events)
	}

	if rr := env.do(t, http.MethodGet, "/api/transitions?state=nope", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad state status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/state/events", `{"actor":"agent","state":"deciding"}`)
	rr := env.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`statecast_hub_events_accepted_total{state="deciding"} 1`,
		`statecast_http_requests_total{method="POST",path="/api/state/events",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/state/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func readData(t *testing.T, r *bufio.Reader) SSEEvent {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read error: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev SSEEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad SSE payload %q: %v", line, err)
		}
		return ev
	}
}

func TestStream_DebouncedDelivery(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/state/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if hello := readData(t, reader); hello.Type != "connected" {
		t.Fatalf("first event type = %q", hello.Type)
	}

	for _, st := range []state.State{state.Listening, state.Processing, state.Executing} {
		if _, err := env.hub.Emit(state.Partial{Actor: "agent", State: st}); err != nil {
			t.Fatal(err)
		}
	}
	env.clock.Advance(realtime.DefaultDebounce)

	ev := readData(t, reader)
	if ev.Type != "state" {
		t.Fatalf("event type = %q", ev.Type)
	}
	data, _ := json.Marshal(ev.Data)
	var got state.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.State != state.Executing || got.Seq != 3 {
		t.Errorf("stream delivered %+v, want the last event of the burst", got)
	}
}

func TestBroker_UnsubscribesOnCancel(t *testing.T) {
	env := newTestEnv(t)
	before := env.hub.SubscriberCount()

	ctx, cancel := context.WithCancel(context.Background())
	env.srv.broker.Subscribe(ctx, "client-1")
	if env.srv.broker.ClientCount() != 1 || env.hub.SubscriberCount() != before+1 {
		t.Fatalf("subscribe did not register client")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for env.srv.broker.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.srv.broker.ClientCount() != 0 {
		t.Fatal("client not removed after cancel")
	}
	if env.hub.SubscriberCount() != before {
		t.Errorf("hub subscribers = %d, want %d", env.hub.SubscriberCount(), before)
	}
}
