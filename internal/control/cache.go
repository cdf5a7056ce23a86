package control

import (
	"sync"

	"github.com/ChronoCoders/wordstream/internal/models"
)

type StatusBroadcaster interface {
	Broadcast(event models.StatusEvent)
}

// StatusCache keeps the latest monitor event per server and forwards every
// event to the broadcaster.
type StatusCache struct {
	mu          sync.RWMutex
	latest      map[string]models.StatusEvent
	last        string
	bus         *EventBus
	broadcaster StatusBroadcaster
	done        chan struct{}
}

func NewStatusCache(bus *EventBus, broadcaster StatusBroadcaster) *StatusCache {
	c := &StatusCache{
		bus:         bus,
		broadcaster: broadcaster,
		latest:      make(map[string]models.StatusEvent),
		done:        make(chan struct{}),
	}
	go c.listen(bus.Subscribe())
	return c
}

func (c *StatusCache) listen(ch <-chan models.StatusEvent) {
	defer close(c.done)
	for event := range ch {
		c.mu.Lock()
		c.latest[event.ServerID] = event
		c.last = event.ServerID
		c.mu.Unlock()
		if c.broadcaster != nil {
			c.broadcaster.Broadcast(event)
		}
	}
}

// Done is closed once the bus is closed and the cache has stopped listening.
func (c *StatusCache) Done() <-chan struct{} {
	return c.done
}

// Latest returns the most recent event from any server.
func (c *StatusCache) Latest() (models.StatusEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.latest[c.last]
	return ev, ok
}

// ServerStatus returns the most recent event from serverID.
func (c *StatusCache) ServerStatus(serverID string) (models.StatusEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.latest[serverID]
	return ev, ok
}
