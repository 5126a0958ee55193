package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cadre-oss/statecast/internal/realtime"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/telemetry"
)

// SSEEvent is sent to connected clients.
type SSEEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Client is a connected SSE client.
type Client struct {
	ID     string
	Events chan SSEEvent
}

// Broker manages SSE client connections. Every client is its own
// subscription to the realtime provider, so bursts are debounced per client.
type Broker struct {
	live   *realtime.Provider
	logger *telemetry.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	unsubs  map[string]func()
	closed  chan struct{}
	once    sync.Once
}

// NewBroker creates a new SSE broker.
func NewBroker(live *realtime.Provider, logger *telemetry.Logger) *Broker {
	return &Broker{
		live:    live,
		logger:  logger,
		clients: make(map[string]*Client),
		unsubs:  make(map[string]func()),
		closed:  make(chan struct{}),
	}
}

// Subscribe adds a new SSE client. The client receives debounced state
// events until ctx is cancelled. Events is never closed; readers select on
// ctx and Done as well.
func (b *Broker) Subscribe(ctx context.Context, clientID string) *Client {
	client := &Client{
		ID:     clientID,
		Events: make(chan SSEEvent, 64),
	}

	unsub := b.live.Subscribe(func(ev state.Event) {
		select {
		case client.Events <- SSEEvent{Type: "state", Timestamp: ev.Timestamp, Data: ev}:
		default:
			// Drop if client buffer is full
			b.logger.Warn("Dropping SSE event for slow client", "client", client.ID, "seq", ev.Seq)
		}
	})

	b.mu.Lock()
	b.clients[clientID] = client
	b.unsubs[clientID] = unsub
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.closed:
		}
		b.remove(clientID)
	}()

	return client
}

func (b *Broker) remove(clientID string) {
	b.mu.Lock()
	unsub := b.unsubs[clientID]
	delete(b.clients, clientID)
	delete(b.unsubs, clientID)
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Done is closed when the broker shuts down.
func (b *Broker) Done() <-chan struct{} {
	return b.closed
}

// Close disconnects every client.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.closed) })
}

// WriteSSE encodes an SSE event payload as JSON.
func WriteSSE(data interface{}) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}
