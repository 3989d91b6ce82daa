package events

import (
	"context"
	"errors"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
)

// Publisher hands committed domain events to the notification subsystem.
// Delivery is fire-and-forget: a failed publish never undoes the transition.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Fanout publishes every event to each of its publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the structured log. It is the publisher used
// when neither redis nor email is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	logger.InfoContext(ctx, "Domain event",
		"event_id", event.ID,
		"type", event.Type,
		"equipment_id", event.EquipmentID,
		"reservation_id", event.ReservationID,
		"user_id", event.RequesterID,
		"conflict_ids", event.ConflictIDs,
		"attributes", event.Attributes,
	)
	return nil
}
