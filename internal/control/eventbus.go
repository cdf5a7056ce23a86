package control

import (
	"sync"

	"github.com/ChronoCoders/wordstream/internal/models"
)

const subscriberBuffer = 100

// EventBus fans status events out to every subscriber. Slow subscribers
// lose events rather than block the publisher.
type EventBus struct {
	mu     sync.Mutex
	subs   []chan models.StatusEvent
	closed bool
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Publish(event models.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Drop event if buffer full
		}
	}
}

// Subscribe returns a channel that receives every later event. It is closed
// by Close.
func (b *EventBus) Subscribe() <-chan models.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan models.StatusEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
