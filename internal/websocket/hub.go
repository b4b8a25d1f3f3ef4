package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"dicommart/internal/infrastructure"
	"dicommart/pkg/contracts/domain"
)

// broadcastBuffer bounds the events queued for the hub loop.
const broadcastBuffer = 256

type outbound struct {
	msgType string
	payload []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Only the Run loop closes client send channels.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	logger  *slog.Logger
	metrics *hubMetrics
}

// NewHub creates a hub. meter may be nil.
func NewHub(logger *slog.Logger, meter metric.Meter) (*Hub, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	metrics, err := newHubMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
	}, nil
}

// Start runs the hub loop in the background. It is a no-op when the hub is
// already running.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.Run()
}

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
				h.metrics.disconnected(ctx, time.Since(client.connectedAt), "shutdown")
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.connected(ctx)

			h.logger.InfoContext(client.context(), "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			if msg, err := encodeMessage(TypeConnection, map[string]string{
				"status":    "connected",
				"client_id": client.id,
			}, client.traceID); err == nil {
				select {
				case client.send <- msg:
				default:
				}
			}

		case client := <-h.unregister:
			h.remove(ctx, client, "closed")

		case out := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			sent := 0
			for _, client := range clients {
				select {
				case client.send <- out.payload:
					sent++
				default:
					h.metrics.dropped(ctx)
					h.logger.WarnContext(client.context(), "client send buffer full, disconnecting",
						slog.String("client_id", client.id))
					h.remove(ctx, client, "slow")
				}
			}
			h.metrics.sent(ctx, out.msgType, sent)
			h.logger.Debug("message broadcast",
				slog.String("type", out.msgType),
				slog.Int("clients", sent))
		}
	}
}

func (h *Hub) remove(ctx context.Context, client *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.metrics.disconnected(ctx, time.Since(client.connectedAt), reason)
	h.logger.InfoContext(client.context(), "client unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Int("total_clients", count),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

// Publish broadcasts a run event to every client. It never blocks: when the
// queue is full the event is dropped and logged.
func (h *Hub) Publish(ctx context.Context, event domain.RunEvent) error {
	payload, err := encodeMessage(event.Type, event, infrastructure.GetTraceID(ctx))
	if err != nil {
		return err
	}
	return h.enqueue(ctx, outbound{msgType: event.Type, payload: payload})
}

// Broadcast sends an arbitrary message to every client.
func (h *Hub) Broadcast(ctx context.Context, msgType string, data any) error {
	payload, err := encodeMessage(msgType, data, infrastructure.GetTraceID(ctx))
	if err != nil {
		return err
	}
	return h.enqueue(ctx, outbound{msgType: msgType, payload: payload})
}

func (h *Hub) enqueue(ctx context.Context, out outbound) error {
	select {
	case <-h.quit:
		return nil
	default:
	}
	select {
	case h.broadcast <- out:
	default:
		h.metrics.dropped(ctx)
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped", slog.String("type", out.msgType))
	}
	return nil
}

// Register adds client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client.send)
	}
}

// Unregister removes client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects every client and ends the hub loop.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}
