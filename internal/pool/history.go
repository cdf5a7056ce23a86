package pool

import (
	"math"
	"sync"
)

// occupancyRing keeps the most recent buffer occupancy samples (percent).
// The oldest sample is overwritten once the ring is full.
type occupancyRing struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

func newOccupancyRing(size int) *occupancyRing {
	if size < 1 {
		size = 1
	}
	return &occupancyRing{samples: make([]float64, size)}
}

func (r *occupancyRing) add(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = v
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

func (r *occupancyRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// average returns the mean of the stored samples rounded to two decimals,
// or 0 when nothing has been recorded.
func (r *occupancyRing) average() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.samples)
	}
	if n == 0 {
		return 0
	}

	var sum float64
	for _, v := range r.samples[:n] {
		sum += v
	}
	return math.Round(sum/float64(n)*100) / 100
}
