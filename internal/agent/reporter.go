package agent

import (
	"context"

	"github.com/ChronoCoders/wordstream/internal/control"
	"github.com/ChronoCoders/wordstream/internal/models"
)

// Reporter defines where the monitor sends its status events.
type Reporter interface {
	Report(ctx context.Context, event models.StatusEvent) error
}

// EventBusReporter reports status to the in-process EventBus.
type EventBusReporter struct {
	bus *control.EventBus
}

func NewEventBusReporter(bus *control.EventBus) *EventBusReporter {
	return &EventBusReporter{bus: bus}
}

func (r *EventBusReporter) Report(ctx context.Context, event models.StatusEvent) error {
	r.bus.Publish(event)
	return nil
}
