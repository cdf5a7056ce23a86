package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChronoCoders/wordstream/internal/corpus"
	"github.com/ChronoCoders/wordstream/internal/models"
	"github.com/ChronoCoders/wordstream/internal/session"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (b *recordingBroadcaster) Broadcast(event models.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	first := bus.Subscribe()
	second := bus.Subscribe()

	bus.Publish(models.StatusEvent{ServerID: "a"})

	assert.Equal(t, "a", (<-first).ServerID)
	assert.Equal(t, "a", (<-second).ServerID)

	bus.Close()
	_, ok := <-first
	assert.False(t, ok)
	bus.Publish(models.StatusEvent{ServerID: "ignored"})

	_, ok = <-bus.Subscribe()
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(models.StatusEvent{})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestStatusCache(t *testing.T) {
	bus := NewEventBus()
	b := &recordingBroadcaster{}
	cache := NewStatusCache(bus, b)

	_, ok := cache.Latest()
	assert.False(t, ok)

	now := time.Now()
	bus.Publish(models.StatusEvent{ServerID: "one", Time: now, Status: &models.Status{Producers: 3}})
	bus.Publish(models.StatusEvent{ServerID: "two", Time: now, Status: &models.Status{Producers: 5}})

	require.Eventually(t, func() bool { return b.count() == 2 }, time.Second, 5*time.Millisecond)

	latest, ok := cache.Latest()
	require.True(t, ok)
	assert.Equal(t, "two", latest.ServerID)

	one, ok := cache.ServerStatus("one")
	require.True(t, ok)
	assert.Equal(t, 3, one.Status.Producers)

	bus.Close()
	select {
	case <-cache.Done():
	case <-time.After(time.Second):
		t.Fatal("cache still listening after bus close")
	}
}

func TestLocalClient(t *testing.T) {
	registry := session.NewRegistry(session.NewPoolFactory(corpus.FromText("a b c")))
	t.Cleanup(registry.Shutdown)
	s, err := registry.Register("127.0.0.1:1")
	require.NoError(t, err)

	c := NewLocalClient(registry, nil)
	ctx := context.Background()

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, s.ID(), list[0].ID)

	st, err := c.GetSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", st.RemoteAddr)

	_, err = c.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, ok := c.Latest()
	assert.False(t, ok)
}
