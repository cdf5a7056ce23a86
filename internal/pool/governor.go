package pool

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ChronoCoders/wordstream/internal/metrics"
)

// GovernorConfig tunes the self-adjusting loop.
//
// The pool shrinks when the running average occupancy is at or above
// HighWatermark and grows when it is at or below LowWatermark; between the
// two the size is left alone.
type GovernorConfig struct {
	HighWatermark float64
	LowWatermark  float64
	MaxProducers  int
	Interval      time.Duration
	HistorySize   int
}

// DefaultGovernorConfig returns 80/20 watermarks, 50 producers max, a
// 500ms cycle and a 100 sample history.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		HighWatermark: 80,
		LowWatermark:  20,
		MaxProducers:  50,
		Interval:      500 * time.Millisecond,
		HistorySize:   100,
	}
}

func (g GovernorConfig) withDefaults() GovernorConfig {
	d := DefaultGovernorConfig()
	if g.HighWatermark > 0 {
		d.HighWatermark = g.HighWatermark
	}
	if g.LowWatermark > 0 {
		d.LowWatermark = g.LowWatermark
	}
	if g.MaxProducers > 0 {
		d.MaxProducers = g.MaxProducers
	}
	if g.Interval > 0 {
		d.Interval = g.Interval
	}
	if g.HistorySize > 0 {
		d.HistorySize = g.HistorySize
	}
	return d
}

// governor is the single long-lived goroutine resizing a pool.
type governor struct {
	ctrl   *Controller
	stopCh chan struct{}
	done   chan struct{}
}

// StartSelfAdjusting makes sure at least one producer is running and starts
// the governor. It returns false without doing anything when a governor is
// already running or the pool is stopped.
func (c *Controller) StartSelfAdjusting() bool {
	c.mu.Lock()
	if c.closed || c.governor != nil {
		c.mu.Unlock()
		return false
	}
	g := &governor{
		ctrl:   c,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.governor = g
	c.mu.Unlock()

	if c.Size() == 0 {
		c.StartProducers(1)
	}
	go g.run()

	log.Debug().Str("pool", c.id).
		Float64("high", c.gov.HighWatermark).
		Float64("low", c.gov.LowWatermark).
		Int("max", c.gov.MaxProducers).
		Msg("governor started")
	return true
}

// StopSelfAdjusting stops and joins the governor, leaving the producers
// running at their current count.
func (c *Controller) StopSelfAdjusting() bool {
	c.mu.Lock()
	g := c.governor
	c.governor = nil
	c.mu.Unlock()

	if g == nil {
		return false
	}
	g.stop()
	g.join()
	return true
}

func (g *governor) run() {
	defer close(g.done)

	t := time.NewTicker(g.ctrl.gov.Interval)
	defer t.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-t.C:
			g.ctrl.adjust()
		}
	}
}

func (g *governor) stop() {
	close(g.stopCh)
}

func (g *governor) join() {
	<-g.done
}

// adjust runs one governor cycle and returns the change in pool size:
// -1, 0 or +1.
func (c *Controller) adjust() int {
	avg := c.occupancy()
	size := c.Size()

	switch {
	case avg >= c.gov.HighWatermark && size > 1:
		if c.StopProducers(1) == 0 {
			return 0
		}
		metrics.GovernorAdjustments.WithLabelValues("down").Inc()
		log.Debug().Str("pool", c.id).Float64("avg", avg).Int("producers", size-1).Msg("governor shrank pool")
		return -1
	case avg <= c.gov.LowWatermark && size < c.gov.MaxProducers && c.cursor.HasNext():
		if c.StartProducers(1) == 0 {
			return 0
		}
		metrics.GovernorAdjustments.WithLabelValues("up").Inc()
		log.Debug().Str("pool", c.id).Float64("avg", avg).Int("producers", size+1).Msg("governor grew pool")
		return 1
	}
	return 0
}
