package control

import (
	"context"

	"github.com/ChronoCoders/wordstream/internal/models"
)

// StatusSource answers admin queries about live sessions and monitor output.
type StatusSource interface {
	ListSessions(ctx context.Context) ([]models.SessionStatus, error)
	GetSession(ctx context.Context, id string) (*models.SessionStatus, error)
	Latest() (models.StatusEvent, bool)
}
