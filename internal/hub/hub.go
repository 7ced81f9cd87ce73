// Package hub fans lot count deltas out to websocket dashboard clients.
// Clients subscribe to individual lot IDs; an empty subscription receives
// nothing until the first subscribe message.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"lotwatch/internal/domain"
)

type Client struct {
	ID   string
	Send chan []byte

	mu   sync.RWMutex
	lots map[string]struct{}
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
		lots: make(map[string]struct{}),
	}
}

func (c *Client) AddLots(lotIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range lotIDs {
		c.lots[id] = struct{}{}
	}
}

func (c *Client) RemoveLots(lotIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range lotIDs {
		delete(c.lots, id)
	}
}

func (c *Client) Lots() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.lots))
	for id := range c.lots {
		out = append(out, id)
	}
	return out
}

type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	lotClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []domain.LotDelta

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		lotClients: make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []domain.LotDelta, 256),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client)

		case deltas := <-h.broadcast:
			h.fanout(deltas)
		}
	}
}

func (h *Hub) Subscribe(client *Client, lotIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddLots(lotIDs)
	for _, id := range lotIDs {
		if h.lotClients[id] == nil {
			h.lotClients[id] = make(map[*Client]struct{})
		}
		h.lotClients[id][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, lotIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveLots(lotIDs)
	for _, id := range lotIDs {
		if h.lotClients[id] != nil {
			delete(h.lotClients[id], client)
			if len(h.lotClients[id]) == 0 {
				delete(h.lotClients, id)
			}
		}
	}
}

// Broadcast queues deltas for fanout; drops the batch when the hub is
// backed up rather than blocking the poll loop.
func (h *Hub) Broadcast(deltas []domain.LotDelta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.broadcast <- deltas:
	default:
		h.logger.Warn("broadcast channel full, dropping deltas", "count", len(deltas))
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type DeltaMessage struct {
	Type    string            `json:"type"`
	Payload []domain.LotDelta `json:"payload"`
}

func (h *Hub) fanout(deltas []domain.LotDelta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perClient := make(map[*Client][]domain.LotDelta)
	for _, d := range deltas {
		for client := range h.lotClients[d.LotID] {
			perClient[client] = append(perClient[client], d)
		}
	}

	for client, ds := range perClient {
		data, err := json.Marshal(DeltaMessage{Type: "deltas", Payload: ds})
		if err != nil {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for _, id := range client.Lots() {
		if h.lotClients[id] != nil {
			delete(h.lotClients[id], client)
			if len(h.lotClients[id]) == 0 {
				delete(h.lotClients, id)
			}
		}
	}
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.lotClients = make(map[string]map[*Client]struct{})
}
