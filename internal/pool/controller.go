// Package pool implements producer pools: a bounded word buffer fed by a
// set of producer goroutines, with an optional governor that resizes the
// set from buffer occupancy.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ChronoCoders/wordstream/internal/corpus"
	"github.com/ChronoCoders/wordstream/internal/metrics"
	"github.com/ChronoCoders/wordstream/internal/models"
)

// ErrClosed is returned by TakeWord once the controller has been stopped.
var ErrClosed = errors.New("producer pool stopped")

const defaultBackoff = 50 * time.Millisecond

// Option configures a Controller.
type Option func(*Controller)

// WithBackoff sets how long a producer waits before retrying a full buffer.
func WithBackoff(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithGovernor overrides the self-adjusting governor settings. Zero fields
// keep their defaults.
func WithGovernor(cfg GovernorConfig) Option {
	return func(c *Controller) {
		c.gov = cfg.withDefaults()
	}
}

// Controller owns one bounded buffer, the producers feeding it and at most
// one governor.
//
// Thread-safety: all exported methods are safe for concurrent use. The
// producer set and governor pointer are guarded by mu; mu is never held
// while waiting for a goroutine to exit.
type Controller struct {
	id       string
	capacity int
	cursor   *corpus.Cursor
	buf      *wordBuffer
	history  *occupancyRing
	backoff  time.Duration
	gov      GovernorConfig

	// occupancy feeds the governor; defaults to the history average.
	occupancy func() float64

	mu        sync.Mutex
	producers map[string]*Producer
	governor  *governor
	closed    bool
	seq       int

	live        atomic.Int32
	transferred atomic.Int64

	drainOnce sync.Once
	drained   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a controller with an empty buffer of the given capacity that
// draws words from cursor.
func New(capacity int, cursor *corpus.Cursor, opts ...Option) (*Controller, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("invalid buffer capacity %d", capacity)
	}

	c := &Controller{
		id:        uuid.NewString(),
		capacity:  capacity,
		cursor:    cursor,
		buf:       newWordBuffer(capacity),
		backoff:   defaultBackoff,
		gov:       DefaultGovernorConfig(),
		producers: make(map[string]*Producer),
		drained:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.history = newOccupancyRing(c.gov.HistorySize)
	c.occupancy = c.history.average

	metrics.PoolsActive.Inc()
	log.Debug().Str("pool", c.id).Int("capacity", capacity).Msg("producer pool created")
	return c, nil
}

// ID returns the controller identifier.
func (c *Controller) ID() string {
	return c.id
}

// Capacity returns the buffer capacity.
func (c *Controller) Capacity() int {
	return c.capacity
}

// Size returns the number of producers in the pool.
func (c *Controller) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.producers)
}

// StartProducers adds n producers and starts each on its own goroutine. It
// returns how many were started, which is 0 once the controller is stopped.
func (c *Controller) StartProducers(n int) int {
	if n <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}

	for i := 0; i < n; i++ {
		c.seq++
		p := newProducer(fmt.Sprintf("%s-%d", c.id[:8], c.seq), c, c.cursor, c.backoff)
		c.producers[p.id] = p
		c.live.Add(1)
		p.start()
	}

	log.Debug().Str("pool", c.id).Int("started", n).Int("producers", len(c.producers)).Msg("producers started")
	return n
}

// StopProducers stops up to n producers and waits for each goroutine to exit.
// Asking for more producers than exist stops them all. Which producers are
// chosen is unspecified.
func (c *Controller) StopProducers(n int) int {
	if n <= 0 {
		return 0
	}

	c.mu.Lock()
	victims := make([]*Producer, 0, min(n, len(c.producers)))
	for id, p := range c.producers {
		if len(victims) == n {
			break
		}
		victims = append(victims, p)
		delete(c.producers, id)
	}
	remaining := len(c.producers)
	c.mu.Unlock()

	for _, p := range victims {
		p.stop()
	}
	for _, p := range victims {
		p.join()
	}

	if len(victims) > 0 {
		log.Debug().Str("pool", c.id).Int("stopped", len(victims)).Int("producers", remaining).Msg("producers stopped")
	}
	return len(victims)
}

// StopAll stops the governor, then every producer, and closes the
// controller. Takers blocked in TakeWord return ErrClosed. Safe to call more
// than once.
func (c *Controller) StopAll() {
	c.mu.Lock()
	c.closed = true
	g := c.governor
	c.governor = nil
	c.mu.Unlock()

	if g != nil {
		g.stop()
		g.join()
	}

	for {
		n := c.Size()
		if n == 0 {
			break
		}
		c.StopProducers(n)
	}

	c.closeOnce.Do(func() {
		close(c.done)
		metrics.PoolsActive.Dec()
		log.Debug().Str("pool", c.id).Int64("transferred", c.transferred.Load()).Msg("producer pool stopped")
	})
}

// Closed reports whether StopAll has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AddToBuffer enqueues w without blocking and reports whether there was room.
// Every attempt, successful or not, is recorded as an occupancy sample.
func (c *Controller) AddToBuffer(w models.Word) bool {
	ok, n := c.buf.tryPush(w)
	c.history.add(c.percent(n))
	return ok
}

// TakeWord blocks until a word is available and removes it. It returns
// EndOfStream once the corpus is used up, every producer has exited and the
// buffer is empty; ErrClosed after StopAll; ctx.Err() on cancellation.
func (c *Controller) TakeWord(ctx context.Context) (models.Word, error) {
	select {
	case <-c.buf.ready:
		w, n := c.buf.pop()
		return c.delivered(w, n), nil
	case <-c.drained:
		if w, n, ok := c.buf.tryTake(); ok {
			return c.delivered(w, n), nil
		}
		return models.EndOfStream, nil
	case <-c.done:
		return models.Word{}, ErrClosed
	case <-ctx.Done():
		return models.Word{}, ctx.Err()
	}
}

func (c *Controller) delivered(w models.Word, remaining int) models.Word {
	c.history.add(c.percent(remaining))
	c.transferred.Add(1)
	metrics.WordsTransferred.Inc()
	w.BufferLevel = c.history.average()
	return w
}

// Peek lists the buffered words in queue order without removing them.
func (c *Controller) Peek() []string {
	words := c.buf.snapshot()
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = fmt.Sprintf("Buffer %d: { Index: %d, Word: %s }", i, w.Index, strings.ReplaceAll(w.Text, `\`, `\\`))
	}
	return out
}

// BufferLevel returns floor(buffered / capacity * 100).
func (c *Controller) BufferLevel() int {
	return int(math.Floor(c.percent(c.buf.len())))
}

// RunningAverage returns the mean of the recent occupancy samples.
func (c *Controller) RunningAverage() float64 {
	return c.history.average()
}

// TransferStatus renders "<transferred> / <total>".
func (c *Controller) TransferStatus() string {
	return fmt.Sprintf("%d / %d", c.transferred.Load(), c.cursor.Total())
}

// PercentComplete returns floor(position / total * 100).
func (c *Controller) PercentComplete() int {
	total := c.cursor.Total()
	if total == 0 {
		return 100
	}
	return int(math.Floor(float64(c.cursor.Position()) / float64(total) * 100))
}

// SelfAdjusting reports whether a governor is running.
func (c *Controller) SelfAdjusting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.governor != nil
}

// Stats returns a snapshot of the pool.
func (c *Controller) Stats() models.PoolStats {
	c.mu.Lock()
	producers := len(c.producers)
	selfAdjusting := c.governor != nil
	c.mu.Unlock()

	return models.PoolStats{
		PoolID:          c.id,
		Producers:       producers,
		Capacity:        c.capacity,
		Buffered:        c.buf.len(),
		BufferLevel:     c.BufferLevel(),
		RunningAverage:  c.RunningAverage(),
		Transferred:     c.transferred.Load(),
		Total:           c.cursor.Total(),
		PercentComplete: c.PercentComplete(),
		TransferStatus:  c.TransferStatus(),
		SelfAdjusting:   selfAdjusting,
	}
}

func (c *Controller) percent(n int) float64 {
	return float64(n) / float64(c.capacity) * 100
}

// producerExited runs on the producer goroutine just before it finishes.
// Producers that ran the cursor dry leave the pool on their own; the last
// one out marks the pool drained.
func (c *Controller) producerExited(p *Producer) {
	metrics.ProducersActive.Dec()

	if !c.cursor.HasNext() {
		c.mu.Lock()
		if cur, ok := c.producers[p.id]; ok && cur == p {
			delete(c.producers, p.id)
		}
		c.mu.Unlock()
	}

	if c.live.Add(-1) == 0 && !c.cursor.HasNext() {
		c.drainOnce.Do(func() {
			close(c.drained)
			log.Debug().Str("pool", c.id).Msg("corpus exhausted, pool drained")
		})
	}
}
