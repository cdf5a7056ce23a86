package ws

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ChronoCoders/wordstream/internal/models"
)

// Hub tracks websocket clients and fans status events out to them. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.StatusEvent
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan models.StatusEvent, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			log.Debug().Str("remote", client.remote).Int("clients", len(h.clients)).Msg("websocket client registered")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		case event := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Broadcast queues event for every client. It never blocks once the hub has
// stopped.
func (h *Hub) Broadcast(event models.StatusEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
