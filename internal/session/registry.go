package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ChronoCoders/wordstream/internal/metrics"
	"github.com/ChronoCoders/wordstream/internal/models"
)

const (
	defaultMaxSessions  = 1024
	defaultBufferSize   = 20
	maxRegisterAttempts = 100
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxSessions caps the number of concurrently registered sessions.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxSessions = n
		}
	}
}

// WithDefaultBufferSize sets the capacity used when a pool is started
// without an explicit buffer size.
func WithDefaultBufferSize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.defaultBuffer = n
		}
	}
}

// Registry maps session ids to sessions and owns every link change.
//
// Locking: linkMu serializes link, unlink, disconnect and shutdown so a
// session's linkage never changes under a concurrent teardown. mu guards
// the map only and is never held while a pool is being stopped.
type Registry struct {
	newPool       PoolFactory
	maxSessions   int
	defaultBuffer int
	newID         func() string

	mu       sync.RWMutex
	sessions map[string]*Session

	linkMu sync.Mutex
}

// NewRegistry returns an empty registry whose sessions build pools with newPool.
func NewRegistry(newPool PoolFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		newPool:       newPool,
		maxSessions:   defaultMaxSessions,
		defaultBuffer: defaultBufferSize,
		newID:         uuid.NewString,
		sessions:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a session for a new connection. It fails with
// ErrRegistryFull when the registry is at capacity or no unused id could be
// drawn within a bounded number of attempts.
func (r *Registry) Register(remoteAddr string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		metrics.SessionsRejected.Inc()
		return nil, fmt.Errorf("%w: %d sessions", ErrRegistryFull, len(r.sessions))
	}

	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		id := r.newID()
		if _, taken := r.sessions[id]; taken {
			continue
		}
		s := newSession(id, remoteAddr, r.newPool, r.defaultBuffer)
		r.sessions[id] = s
		metrics.SessionsActive.Set(float64(len(r.sessions)))
		log.Info().Str("session", id).Str("remote", remoteAddr).Msg("session registered")
		return s, nil
	}

	metrics.SessionsRejected.Inc()
	return nil, fmt.Errorf("%w: no free id after %d attempts", ErrRegistryFull, maxRegisterAttempts)
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns the registered sessions ordered by connection time.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].connectedAt.Equal(out[j].connectedAt) {
			return out[i].id < out[j].id
		}
		return out[i].connectedAt.Before(out[j].connectedAt)
	})
	return out
}

// Snapshot returns the status of every session. The map lock is held only
// long enough to copy the session list.
func (r *Registry) Snapshot() []models.SessionStatus {
	sessions := r.Sessions()
	out := make([]models.SessionStatus, len(sessions))
	for i, s := range sessions {
		out[i] = s.Status()
	}
	return out
}

// LinkTo makes s use target's pool. s gives up whatever pool it had first;
// a pool s owned is stopped.
func (r *Registry) LinkTo(s *Session, targetID string) error {
	r.linkMu.Lock()
	defer r.linkMu.Unlock()

	target, ok := r.Get(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, targetID)
	}
	if target == s {
		return ErrSelfLink
	}
	if target.Handle() == s.Handle() {
		return ErrAlreadyLinked
	}

	r.release(s)
	r.attach(s, target)

	log.Info().Str("session", s.id).Str("target", target.id).Msg("session linked to target")
	return nil
}

// Link makes the session followerID use s's pool. The follower gives up
// whatever pool it had first.
func (r *Registry) Link(s *Session, followerID string) error {
	r.linkMu.Lock()
	defer r.linkMu.Unlock()

	follower, ok := r.Get(followerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, followerID)
	}
	if follower == s {
		return ErrSelfLink
	}
	if follower.Handle() == s.Handle() {
		return ErrAlreadyLinked
	}

	r.release(follower)
	r.attach(follower, s)

	log.Info().Str("session", s.id).Str("follower", follower.id).Msg("session linked follower")
	return nil
}

// Unlink detaches s from targetID, leaving s with no pool.
func (r *Registry) Unlink(s *Session, targetID string) error {
	r.linkMu.Lock()
	defer r.linkMu.Unlock()

	if s.LinkTarget() == "" || s.LinkTarget() != targetID {
		return fmt.Errorf("%w: %s", ErrNotLinked, targetID)
	}
	r.release(s)

	log.Info().Str("session", s.id).Str("target", targetID).Msg("session unlinked")
	return nil
}

// Disconnect tears a session down: a pool it owns is stopped and joined,
// sessions linked under it are detached, and only then is it removed.
func (r *Registry) Disconnect(id string) (*Session, bool) {
	r.linkMu.Lock()
	defer r.linkMu.Unlock()

	s, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	r.release(s)

	r.mu.Lock()
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	log.Info().Str("session", id).Int64("taken", s.Taken()).Msg("session disconnected")
	return s, true
}

// Shutdown disconnects every session.
func (r *Registry) Shutdown() {
	for _, s := range r.Sessions() {
		r.Disconnect(s.id)
	}
}

// attach points s at target's handle. Caller holds linkMu and has released s.
func (r *Registry) attach(s, target *Session) {
	h := target.Handle()

	s.mu.Lock()
	s.handle = h
	s.linkTarget = target.id
	s.mu.Unlock()

	target.mu.Lock()
	target.followers[s.id] = struct{}{}
	target.mu.Unlock()
}

// release leaves s holding a fresh, empty handle of its own. Sessions linked
// under s are released first, s is removed from its target's followers, and
// a handle s owned is retired with its pool stopped. Caller holds linkMu.
func (r *Registry) release(s *Session) {
	for _, fid := range s.Followers() {
		if f, ok := r.Get(fid); ok {
			r.release(f)
		}
	}

	s.mu.Lock()
	old := s.handle
	targetID := s.linkTarget
	s.handle = newHandle(s.id)
	s.linkTarget = ""
	s.followers = make(map[string]struct{})
	s.mu.Unlock()

	if targetID != "" {
		if target, ok := r.Get(targetID); ok {
			target.mu.Lock()
			delete(target.followers, s.id)
			target.mu.Unlock()
		}
	}

	if old.owner == s.id {
		if ctrl := old.retire(); ctrl != nil {
			ctrl.StopAll()
		}
	}
}
