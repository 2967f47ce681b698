package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// SnapshotProvider resolves the full current state for a subscription
// scope. It is called from client goroutines (connect and refresh),
// never from the hub loop, so store latency cannot stall fan-out.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, scope string) (interface{}, error)
}

// Metrics receives hub observability signals. All methods must be safe
// for concurrent use; a nil Metrics disables instrumentation.
type Metrics interface {
	ClientCount(n int)
	EventBroadcast(eventType string)
	EventDropped(eventType string)
}

// Hub owns the websocket connection registry and fans committed
// mutation events out to subscribed clients. All registry mutation
// happens on the Run goroutine; request handlers only enqueue.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	events     chan Event

	snapshots SnapshotProvider
	logger    *zap.Logger
	metrics   Metrics
}

// NewHub constructs a hub. eventBuffer bounds the publish queue; a
// full queue drops events (with a warning) rather than blocking the
// mutation response path.
func NewHub(snapshots SnapshotProvider, logger *zap.Logger, metrics Metrics, eventBuffer int) *Hub {
	if eventBuffer <= 0 {
		eventBuffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, eventBuffer),
		snapshots:  snapshots,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run processes registry changes and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*Client]struct{})
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.reportClientCount()
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.reportClientCount()
			}
		case event := <-h.events:
			h.broadcast(event)
		}
	}
}

// Publish enqueues a committed-mutation event for fan-out. It never
// blocks: when the hub is saturated the event is dropped and clients
// catch up through their next refresh.
func (h *Hub) Publish(event Event) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("event queue full, dropping broadcast",
			zap.String("event_type", event.Type),
			zap.String("scope", event.Scope))
		if h.metrics != nil {
			h.metrics.EventDropped(event.Type)
		}
	}
}

// Register adds a client to the fan-out set.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// broadcast delivers an event to every matching client. A client whose
// send buffer is full is treated as dead and pruned on the spot; stale
// connections are cleaned up lazily on broadcast, not by timer.
func (h *Hub) broadcast(event Event) {
	payload, err := json.Marshal(outbound{Type: event.Type, Data: event.Data})
	if err != nil {
		h.logger.Error("marshal broadcast event", zap.Error(err), zap.String("event_type", event.Type))
		return
	}

	if h.metrics != nil {
		h.metrics.EventBroadcast(event.Type)
	}

	for client := range h.clients {
		if !client.matches(event.Scope) {
			continue
		}
		if !client.enqueue(payload) {
			delete(h.clients, client)
			client.close()
			h.logger.Info("pruned unresponsive client", zap.String("scope", client.scope))
			h.reportClientCount()
		}
	}
}

func (h *Hub) reportClientCount() {
	if h.metrics != nil {
		h.metrics.ClientCount(len(h.clients))
	}
}
