package pool

import (
	"sync"

	"github.com/ChronoCoders/wordstream/internal/models"
)

// wordBuffer is a bounded FIFO that supports non-blocking pushes and
// non-destructive snapshots. Blocking takes select on ready.
//
// ready carries one token per queued word, so a taker that receives a token
// is guaranteed to find a word under mu. Tokens never exceed capacity, which
// keeps the send in tryPush from blocking.
type wordBuffer struct {
	mu       sync.Mutex
	items    []models.Word
	capacity int
	ready    chan struct{}
}

func newWordBuffer(capacity int) *wordBuffer {
	return &wordBuffer{
		items:    make([]models.Word, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, capacity),
	}
}

// tryPush appends w unless the buffer is full. It returns the occupancy
// observed after the attempt.
func (b *wordBuffer) tryPush(w models.Word) (bool, int) {
	b.mu.Lock()
	if len(b.items) >= b.capacity {
		n := len(b.items)
		b.mu.Unlock()
		return false, n
	}
	b.items = append(b.items, w)
	n := len(b.items)
	b.mu.Unlock()

	b.ready <- struct{}{}
	return true, n
}

// pop removes the head. The caller must already hold a ready token.
func (b *wordBuffer) pop() (models.Word, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.items[0]
	b.items[0] = models.Word{}
	b.items = b.items[1:]
	return w, len(b.items)
}

// tryTake removes the head without waiting.
func (b *wordBuffer) tryTake() (models.Word, int, bool) {
	select {
	case <-b.ready:
		w, n := b.pop()
		return w, n, true
	default:
		return models.Word{}, 0, false
	}
}

func (b *wordBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *wordBuffer) snapshot() []models.Word {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Word, len(b.items))
	copy(out, b.items)
	return out
}
