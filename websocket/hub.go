package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event types pushed to dashboard clients
const (
	EventDeliveryLogged    = "delivery_logged"
	EventDeliveryConfirmed = "delivery_confirmed"
	EventRequestCancelled  = "request_cancelled"
)

// Event is one dashboard notification
type Event struct {
	Type      string      `json:"type"`
	RequestID uint        `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans delivery lifecycle events out to connected dashboard clients.
// Delivery is best-effort: a client whose send buffer is full is dropped.
type Hub struct {
	clients map[*Client]bool

	Broadcast  chan *Event
	Register   chan *Client
	Unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new dashboard event hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan *Event, 16),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("🔌 Dashboard client connected: user %d", client.UserID)

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("🔌 Dashboard client disconnected: user %d", client.UserID)

		case event := <-h.Broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) broadcastEvent(event *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ Error marshaling event: %v", err)
		return
	}

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// Slow client: drop it rather than block the hub
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// Publish queues an event for all connected clients without blocking the
// caller; events are dropped when the hub's own buffer is full
func (h *Hub) Publish(eventType string, requestID uint, data interface{}) {
	event := &Event{
		Type:      eventType,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.Broadcast <- event:
	default:
		log.Printf("⚠️ Event buffer full, dropping %s for request %d", eventType, requestID)
	}
}

// ClientCount returns the number of connected dashboard clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
