// Package session models connected clients, the producer pools they can
// see, and the links that let several sessions share one pool.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChronoCoders/wordstream/internal/corpus"
	"github.com/ChronoCoders/wordstream/internal/models"
	"github.com/ChronoCoders/wordstream/internal/pool"
)

var (
	ErrNoPool         = errors.New("no active pool")
	ErrBufferLocked   = errors.New("buffer size is fixed once producers are started")
	ErrInvalidCount   = errors.New("count must not be negative")
	ErrUnknownSession = errors.New("session not found")
	ErrSelfLink       = errors.New("session can not link to itself")
	ErrAlreadyLinked  = errors.New("sessions already share a pool")
	ErrNotLinked      = errors.New("session is not linked to target")
	ErrRegistryFull   = errors.New("session registry full")
)

// PoolFactory builds a producer pool with the given buffer capacity.
type PoolFactory func(capacity int) (*pool.Controller, error)

// NewPoolFactory returns a factory whose pools each get a fresh cursor over c.
func NewPoolFactory(c *corpus.Corpus, opts ...pool.Option) PoolFactory {
	return func(capacity int) (*pool.Controller, error) {
		return pool.New(capacity, c.NewCursor(), opts...)
	}
}

// Handle is the shared slot through which sessions reach a pool. Linked
// sessions hold the same *Handle, so installing or clearing its controller
// is seen by all of them at once. Only the owner's departure retires it.
type Handle struct {
	mu      sync.Mutex
	owner   string
	ctrl    *pool.Controller
	retired bool
}

func newHandle(owner string) *Handle {
	return &Handle{owner: owner}
}

// Owner returns the id of the session that created the handle.
func (h *Handle) Owner() string {
	return h.owner
}

// Controller returns the current pool, or nil.
func (h *Handle) Controller() *pool.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl
}

// retire clears the handle for good and returns the controller it held.
func (h *Handle) retire() *pool.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.ctrl
	h.ctrl = nil
	h.retired = true
	return c
}

// Session is one connected client.
//
// handle, linkTarget and followers change only through Registry link
// operations, which serialize on the registry link lock and take mu for
// writing. Everything else reads them under mu.
type Session struct {
	id            string
	remoteAddr    string
	connectedAt   time.Time
	newPool       PoolFactory
	defaultBuffer int

	mu         sync.RWMutex
	handle     *Handle
	linkTarget string
	followers  map[string]struct{}

	taken atomic.Int64
}

func newSession(id, remoteAddr string, newPool PoolFactory, defaultBuffer int) *Session {
	return &Session{
		id:            id,
		remoteAddr:    remoteAddr,
		connectedAt:   time.Now(),
		newPool:       newPool,
		defaultBuffer: defaultBuffer,
		handle:        newHandle(id),
		followers:     make(map[string]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address the session connected from.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// ConnectedAt returns when the session was registered.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Taken returns how many words this session has taken.
func (s *Session) Taken() int64 {
	return s.taken.Load()
}

// LinkTarget returns the id of the session whose pool this one uses, or "".
func (s *Session) LinkTarget() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkTarget
}

// Followers returns the ids of the sessions linked to this one.
func (s *Session) Followers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.followers))
	for id := range s.followers {
		out = append(out, id)
	}
	return out
}

// Handle returns the pool handle the session currently holds.
func (s *Session) Handle() *Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Controller returns the pool visible to the session, or nil.
func (s *Session) Controller() *pool.Controller {
	return s.Handle().Controller()
}

// lockedHandle returns the session's live handle with its mutex held. A
// handle retired by a concurrent link change is skipped in favour of the
// replacement the session now holds.
func (s *Session) lockedHandle() *Handle {
	for {
		h := s.Handle()
		h.mu.Lock()
		if !h.retired {
			return h
		}
		h.mu.Unlock()
	}
}

// SetBufferSize creates the session's pool with capacity n. It fails once a
// pool exists.
func (s *Session) SetBufferSize(n int) error {
	if n < 1 {
		return fmt.Errorf("buffer size %d: %w", n, ErrInvalidCount)
	}

	h := s.lockedHandle()
	defer h.mu.Unlock()

	if h.ctrl != nil {
		return ErrBufferLocked
	}
	ctrl, err := s.newPool(n)
	if err != nil {
		return err
	}
	h.ctrl = ctrl
	return nil
}

// StartProducers starts count producers, or a self-adjusting pool when count
// is 0. The pool is created with bufferSize (or the default when
// bufferSize <= 0) if none exists. It returns how many producers are running.
func (s *Session) StartProducers(count, bufferSize int) (int, error) {
	if count < 0 {
		return 0, ErrInvalidCount
	}
	if bufferSize <= 0 {
		bufferSize = s.defaultBuffer
	}

	h := s.lockedHandle()
	ctrl := h.ctrl
	if ctrl == nil {
		var err error
		ctrl, err = s.newPool(bufferSize)
		if err != nil {
			h.mu.Unlock()
			return 0, err
		}
		h.ctrl = ctrl
	}
	h.mu.Unlock()

	if count == 0 {
		ctrl.StartSelfAdjusting()
	} else {
		ctrl.StartProducers(count)
	}
	// a linked session may stop the pool between the unlock and the start
	if ctrl.Closed() {
		return 0, ErrNoPool
	}
	return ctrl.Size(), nil
}

// StopProducers stops up to count producers and returns how many remain.
func (s *Session) StopProducers(count int) (int, error) {
	if count < 0 {
		return 0, ErrInvalidCount
	}
	ctrl := s.Controller()
	if ctrl == nil {
		return 0, ErrNoPool
	}
	ctrl.StopProducers(count)
	return ctrl.Size(), nil
}

// StopAllProducers stops the governor and every producer and discards the
// pool. Every session sharing the pool sees it gone.
func (s *Session) StopAllProducers() error {
	h := s.lockedHandle()
	ctrl := h.ctrl
	h.ctrl = nil
	h.mu.Unlock()

	if ctrl == nil {
		return ErrNoPool
	}
	ctrl.StopAll()
	return nil
}

// TakeWord blocks for the next word from the visible pool.
func (s *Session) TakeWord(ctx context.Context) (models.Word, error) {
	ctrl := s.Controller()
	if ctrl == nil {
		return models.Word{}, ErrNoPool
	}

	w, err := ctrl.TakeWord(ctx)
	if errors.Is(err, pool.ErrClosed) {
		return models.Word{}, ErrNoPool
	}
	if err != nil {
		return models.Word{}, err
	}
	if !w.IsEndOfStream() {
		s.taken.Add(1)
	}
	return w, nil
}

// Peek lists the buffered words without consuming them.
func (s *Session) Peek() ([]string, error) {
	ctrl := s.Controller()
	if ctrl == nil {
		return nil, ErrNoPool
	}
	return ctrl.Peek(), nil
}

// BufferLevel returns the buffer occupancy percentage.
func (s *Session) BufferLevel() (int, error) {
	ctrl := s.Controller()
	if ctrl == nil {
		return 0, ErrNoPool
	}
	return ctrl.BufferLevel(), nil
}

// TransferStatus returns "<transferred> / <total>".
func (s *Session) TransferStatus() (string, error) {
	ctrl := s.Controller()
	if ctrl == nil {
		return "", ErrNoPool
	}
	return ctrl.TransferStatus(), nil
}

// Status reports the session and, when present, its pool.
func (s *Session) Status() models.SessionStatus {
	s.mu.RLock()
	h := s.handle
	st := models.SessionStatus{
		ID:          s.id,
		RemoteAddr:  s.remoteAddr,
		LinkTarget:  s.linkTarget,
		Owner:       h.owner == s.id,
		Consumers:   len(s.followers),
		Taken:       s.taken.Load(),
		ConnectedAt: s.connectedAt,
	}
	s.mu.RUnlock()

	if ctrl := h.Controller(); ctrl != nil {
		ps := ctrl.Stats()
		st.HasPool = true
		st.Producers = ps.Producers
		st.BufferLevel = ps.BufferLevel
		st.TransferStatus = ps.TransferStatus
		st.PercentComplete = ps.PercentComplete
		st.SelfAdjusting = ps.SelfAdjusting
	}
	return st
}
