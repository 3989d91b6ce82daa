package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/events"
	"equipment-scheduler/internal/logger"
	"equipment-scheduler/internal/repository"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultMaxReservation     = 7 * 24 * time.Hour
	DefaultMaintenanceLead    = 7 * 24 * time.Hour
	DefaultReturnReminderLead = 24 * time.Hour
	DefaultLostAfter          = 7 * 24 * time.Hour
)

type schedulerService struct {
	store     repository.Store
	publisher events.Publisher
	detector  *ConflictDetector
	custody   CustodyTracker
	gate      *MaintenanceGate
	policies  []RequestPolicy
	readers   map[string]domain.RfidReader
	reminder  time.Duration
	clock     func() time.Time
	newID     func() string
	log       *slog.Logger
}

// Option configures NewSchedulerService.
type Option func(*schedulerService)

// WithClock replaces time.Now. Readings are converted with domain.Naive.
func WithClock(clock func() time.Time) Option {
	return func(s *schedulerService) { s.clock = clock }
}

// WithPolicies replaces the default request policies.
func WithPolicies(policies ...RequestPolicy) Option {
	return func(s *schedulerService) { s.policies = policies }
}

// WithReaders registers the RFID readers scans may come from. Scans from an
// unregistered reader fail with ErrUnknownReader.
func WithReaders(readers []domain.RfidReader) Option {
	return func(s *schedulerService) {
		for _, r := range readers {
			s.readers[r.ID] = r
		}
	}
}

// WithMaintenancePredicate replaces the maintenance-due rule used by the
// alert sweep.
func WithMaintenancePredicate(due MaintenanceDuePredicate) Option {
	return func(s *schedulerService) { s.gate = NewMaintenanceGate(due) }
}

// WithEventIDs replaces the event id generator.
func WithEventIDs(newID func() string) Option {
	return func(s *schedulerService) { s.newID = newID }
}

// WithReturnReminderLead sets how long before the expected return a loan
// gets its due-soon reminder. Non-positive values keep the default.
func WithReturnReminderLead(lead time.Duration) Option {
	return func(s *schedulerService) {
		if lead > 0 {
			s.reminder = lead
		}
	}
}

// NewSchedulerService wires the scheduling engine over store. A nil
// publisher logs events instead of delivering them.
func NewSchedulerService(store repository.Store, publisher events.Publisher, opts ...Option) SchedulerService {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	s := &schedulerService{
		store:     store,
		publisher: publisher,
		detector:  NewConflictDetector(),
		gate:      NewMaintenanceGate(NextMaintenanceWithin(DefaultMaintenanceLead)),
		policies:  []RequestPolicy{MaxDurationPolicy{Max: DefaultMaxReservation}},
		readers:   make(map[string]domain.RfidReader),
		reminder:  DefaultReturnReminderLead,
		clock:     time.Now,
		newID:     uuid.NewString,
		log:       logger.WithService("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *schedulerService) now() time.Time {
	return domain.Naive(s.clock())
}

func (s *schedulerService) event(t domain.EventType, r *domain.Reservation, at time.Time) domain.Event {
	e := domain.Event{ID: s.newID(), Type: t, OccurredAt: at}
	if r != nil {
		e.EquipmentID = r.EquipmentID
		e.ReservationID = r.ID
		e.RequesterID = r.RequesterID
	}
	return e
}

// publish runs after commit. Failures are logged and never surface to the
// caller: the transition already happened.
func (s *schedulerService) publish(ctx context.Context, pending ...domain.Event) {
	for _, e := range pending {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.WarnContext(ctx, "Failed to publish event", "event_id", e.ID, "type", e.Type, "error", err)
		}
	}
}

// withReservation runs fn under the lock of the reservation's equipment,
// handing it the reservation as read inside the lock.
func (s *schedulerService) withReservation(ctx context.Context, op string, reservationID int32, fn func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error) error {
	// The equipment of a reservation never changes, so the unlocked read
	// is only used to pick the lock.
	r, err := s.store.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	log := logger.WithOperation(op, r.EquipmentID)
	log.DebugContext(ctx, "Acquiring equipment lock", "reservation_id", reservationID)
	err = s.store.WithEquipmentLock(ctx, r.EquipmentID, func(ctx context.Context, tx repository.Repositories) error {
		current, err := tx.Reservations().GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
	if err != nil {
		log.WarnContext(ctx, "Operation refused", "reservation_id", reservationID, "error", err)
	}
	return err
}

// authorize checks the actor and the lifecycle table before anything is
// written.
func authorize(actor domain.Actor, action domain.Action, r *domain.Reservation) error {
	if err := domain.CanPerform(actor, action, r); err != nil {
		return err
	}
	_, err := domain.NextStatus(r.Status, action)
	return err
}

// RequestReservation creates a pending reservation and approves it on the spot
// when the equipment needs no approval and the window is free.
func (s *schedulerService) RequestReservation(ctx context.Context, actor domain.Actor, equipmentID int32, window domain.TimeWindow) (*domain.Reservation, error) {
	log := logger.WithOperation("RequestReservation", equipmentID)

	window, err := domain.NewTimeWindow(window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if actor.Kind != domain.ActorRequester && actor.Kind != domain.ActorStaff {
		return nil, domain.ErrNotPermitted
	}

	now := s.now()
	var created *domain.Reservation
	var pending []domain.Event
	err = s.store.WithEquipmentLock(ctx, equipmentID, func(ctx context.Context, tx repository.Repositories) error {
		pending = pending[:0]
		eq, err := tx.Equipment().GetByID(ctx, equipmentID)
		if err != nil {
			return err
		}
		for _, p := range s.policies {
			if err := p.CheckRequest(ctx, actor, eq, window, now); err != nil {
				return err
			}
		}

		r := &domain.Reservation{
			EquipmentID: equipmentID,
			RequesterID: actor.UserID,
			Window:      window,
			Status:      domain.ReservationStatusPending,
			CreatedAt:   now,
		}
		if err := tx.Reservations().Create(ctx, r); err != nil {
			return err
		}
		created = r
		pending = append(pending, s.event(domain.EventReservationRequested, r, now))
		if eq.RequiresApproval {
			return nil
		}

		// Equipment without an approval step is approved on the spot, under
		// the same lock, when nothing blocks the window.
		conflicts, err := s.detector.FindConflicts(ctx, tx.Reservations(), equipmentID, window, r.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			ev := s.event(domain.EventConflictRejected, r, now)
			ev.ConflictIDs = reservationIDs(conflicts)
			ev.Attributes = map[string]string{"stage": "auto_approval"}
			pending = append(pending, ev)
			return nil
		}
		if err := r.Apply(domain.ActionApprove); err != nil {
			return err
		}
		if err := tx.Reservations().UpdateStatus(ctx, r); err != nil {
			return err
		}
		ev := s.event(domain.EventReservationApproved, r, now)
		ev.Attributes = map[string]string{"approved_by": string(domain.ActorSystem)}
		pending = append(pending, ev)
		return nil
	})
	if err != nil {
		log.WarnContext(ctx, "Reservation request refused", "user_id", actor.UserID, "window", window.String(), "error", err)
		return nil, err
	}

	log.InfoContext(ctx, "Reservation requested", "reservation_id", created.ID, "status", created.Status)
	s.publish(ctx, pending...)
	return created, nil
}

// Approve re-checks conflicts under the equipment lock. A conflicting
// approval fails with a *domain.ConflictError and emits ConflictRejected.
func (s *schedulerService) Approve(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Reservation, error) {
	now := s.now()
	var approved *domain.Reservation
	var rejected *domain.Event
	err := s.withReservation(ctx, "Approve", reservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
		if err := authorize(actor, domain.ActionApprove, r); err != nil {
			return err
		}
		conflicts, err := s.detector.FindConflicts(ctx, tx.Reservations(), r.EquipmentID, r.Window, r.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			ids := reservationIDs(conflicts)
			ev := s.event(domain.EventConflictRejected, r, now)
			ev.ConflictIDs = ids
			ev.Attributes = map[string]string{"stage": "approval"}
			rejected = &ev
			return &domain.ConflictError{EquipmentID: r.EquipmentID, ConflictIDs: ids, RequestedFor: r.Window}
		}
		if err := r.Apply(domain.ActionApprove); err != nil {
			return err
		}
		if err := tx.Reservations().UpdateStatus(ctx, r); err != nil {
			return err
		}
		approved = r
		return nil
	})
	if err != nil {
		if rejected != nil {
			s.publish(ctx, *rejected)
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "Reservation approved", "reservation_id", approved.ID, "equipment_id", approved.EquipmentID)
	ev := s.event(domain.EventReservationApproved, approved, now)
	ev.Attributes = map[string]string{"approved_by": actorLabel(actor)}
	s.publish(ctx, ev)
	return approved, nil
}

// Reject is staff-only and valid from pending.
func (s *schedulerService) Reject(ctx context.Context, actor domain.Actor, reservationID int32, reason string) (*domain.Reservation, error) {
	now := s.now()
	var rejected *domain.Reservation
	err := s.withReservation(ctx, "Reject", reservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
		if err := authorize(actor, domain.ActionReject, r); err != nil {
			return err
		}
		if err := r.Apply(domain.ActionReject); err != nil {
			return err
		}
		if err := tx.Reservations().UpdateStatus(ctx, r); err != nil {
			return err
		}
		rejected = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Reservation rejected", "reservation_id", rejected.ID, "reason", reason)
	ev := s.event(domain.EventReservationRejected, rejected, now)
	ev.Attributes = withReason(map[string]string{"rejected_by": actorLabel(actor)}, reason)
	s.publish(ctx, ev)
	return rejected, nil
}

// Cancel refuses an active reservation while its equipment is still out.
func (s *schedulerService) Cancel(ctx context.Context, actor domain.Actor, reservationID int32, reason string) (*domain.Reservation, error) {
	now := s.now()
	var cancelled *domain.Reservation
	var previous domain.ReservationStatus
	err := s.withReservation(ctx, "Cancel", reservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
		if err := authorize(actor, domain.ActionCancel, r); err != nil {
			return err
		}
		if r.Status == domain.ReservationStatusActive {
			loan, err := tx.Loans().GetByReservation(ctx, r.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err == nil && !loan.IsReturned() {
				return fmt.Errorf("%w: reservation %d has equipment out on loan, check it in first",
					domain.ErrPrecedingActionRequired, r.ID)
			}
		}
		previous = r.Status
		if err := r.Apply(domain.ActionCancel); err != nil {
			return err
		}
		if err := tx.Reservations().UpdateStatus(ctx, r); err != nil {
			return err
		}
		cancelled = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Reservation cancelled", "reservation_id", cancelled.ID, "previous_status", previous)
	ev := s.event(domain.EventReservationCancelled, cancelled, now)
	ev.Attributes = withReason(map[string]string{
		"cancelled_by":    actorLabel(actor),
		"previous_status": string(previous),
	}, reason)
	s.publish(ctx, ev)
	return cancelled, nil
}

func actorLabel(actor domain.Actor) string {
	if actor.Kind == domain.ActorSystem {
		return string(domain.ActorSystem)
	}
	return fmt.Sprintf("%s:%d", actor.Kind, actor.UserID)
}

func withReason(attrs map[string]string, reason string) map[string]string {
	if reason != "" {
		attrs["reason"] = reason
	}
	return attrs
}
