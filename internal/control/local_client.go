package control

import (
	"context"
	"errors"

	"github.com/ChronoCoders/wordstream/internal/models"
	"github.com/ChronoCoders/wordstream/internal/session"
)

// ErrSessionNotFound is returned for an id that is not registered.
var ErrSessionNotFound = errors.New("session not found")

// LocalClient serves StatusSource from the in-process registry and cache.
type LocalClient struct {
	registry *session.Registry
	cache    *StatusCache
}

func NewLocalClient(registry *session.Registry, cache *StatusCache) *LocalClient {
	return &LocalClient{registry: registry, cache: cache}
}

func (c *LocalClient) ListSessions(ctx context.Context) ([]models.SessionStatus, error) {
	return c.registry.Snapshot(), nil
}

func (c *LocalClient) GetSession(ctx context.Context, id string) (*models.SessionStatus, error) {
	s, ok := c.registry.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	st := s.Status()
	return &st, nil
}

func (c *LocalClient) Latest() (models.StatusEvent, bool) {
	if c.cache == nil {
		return models.StatusEvent{}, false
	}
	return c.cache.Latest()
}
