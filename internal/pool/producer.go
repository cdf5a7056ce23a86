package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChronoCoders/wordstream/internal/corpus"
	"github.com/ChronoCoders/wordstream/internal/metrics"
)

type producerState int32

const (
	stateIdle producerState = iota
	stateRunning
	stateStopped
)

func (s producerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Producer moves words from a cursor into its controller's buffer on its
// own goroutine.
//
// Lifecycle: Idle -> Running -> Stopped. Stopped is terminal and is reached
// either through stop or when the cursor runs dry. stop only flips the
// state; callers that need the goroutine gone must join.
type Producer struct {
	id      string
	ctrl    *Controller
	cursor  *corpus.Cursor
	backoff time.Duration

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newProducer(id string, ctrl *Controller, cursor *corpus.Cursor, backoff time.Duration) *Producer {
	return &Producer{
		id:      id,
		ctrl:    ctrl,
		cursor:  cursor,
		backoff: backoff,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the producer identifier.
func (p *Producer) ID() string {
	return p.id
}

func (p *Producer) currentState() producerState {
	return producerState(p.state.Load())
}

func (p *Producer) running() bool {
	return p.currentState() == stateRunning
}

// start moves Idle to Running and spawns the produce loop. The controller
// calls it while holding its lock, right after creating the producer, so
// every producer visible in the pool has a goroutine to join.
func (p *Producer) start() {
	if !p.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		return
	}
	metrics.ProducersActive.Inc()
	go p.run()
}

func (p *Producer) run() {
	defer close(p.done)
	defer p.ctrl.producerExited(p)

	for p.running() && p.cursor.HasNext() {
		w := p.cursor.TakeNext()
		if w.IsEndOfStream() {
			break
		}

		for !p.ctrl.AddToBuffer(w) {
			metrics.BufferFullRetries.Inc()
			select {
			case <-p.stopCh:
				// the word in hand is abandoned
				p.state.Store(int32(stateStopped))
				return
			case <-time.After(p.backoff):
			}
		}
		metrics.WordsProduced.Inc()
	}

	p.state.Store(int32(stateStopped))
}

// stop asks the loop to exit. It is idempotent and does not wait.
func (p *Producer) stop() {
	p.stopOnce.Do(func() {
		p.state.Store(int32(stateStopped))
		close(p.stopCh)
	})
}

// join blocks until the produce loop has returned.
func (p *Producer) join() {
	<-p.done
}
