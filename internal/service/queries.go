package service

import (
	"context"
	"time"

	"equipment-scheduler/internal/domain"
)

func (s *schedulerService) GetReservation(ctx context.Context, reservationID int32) (*domain.Reservation, error) {
	return s.store.Reservations().GetByID(ctx, reservationID)
}

func (s *schedulerService) GetLoan(ctx context.Context, reservationID int32) (*domain.Loan, error) {
	return s.store.Loans().GetByReservation(ctx, reservationID)
}

func (s *schedulerService) ListEquipmentReservations(ctx context.Context, equipmentID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	if _, err := s.store.Equipment().GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	return s.store.Reservations().ListByEquipment(ctx, equipmentID, statuses...)
}

func (s *schedulerService) ListRequesterReservations(ctx context.Context, requesterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return s.store.Reservations().ListByRequester(ctx, requesterID, statuses...)
}

// CheckAvailability reports the reservations that would block window. It
// takes no lock, so the answer is advisory: approval re-checks under lock.
func (s *schedulerService) CheckAvailability(ctx context.Context, equipmentID int32, window domain.TimeWindow) ([]domain.Reservation, error) {
	window, err := domain.NewTimeWindow(window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Equipment().GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	return s.detector.FindConflicts(ctx, s.store.Reservations(), equipmentID, window, 0)
}

func (s *schedulerService) ListOverdueLoans(ctx context.Context) ([]domain.Loan, error) {
	now := s.now()
	open, err := s.store.Loans().ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	overdue := make([]domain.Loan, 0)
	for i := range open {
		if s.custody.IsOverdue(&open[i], now) {
			overdue = append(overdue, open[i])
		}
	}
	return overdue, nil
}

// ListPendingReservations is the staff approval queue across all equipment,
// oldest request first.
func (s *schedulerService) ListPendingReservations(ctx context.Context, actor domain.Actor) ([]domain.Reservation, error) {
	if actor.Kind != domain.ActorStaff {
		return nil, domain.ErrNotPermitted
	}
	return s.store.Reservations().ListByStatus(ctx, domain.ReservationStatusPending)
}

// ListLostEquipment returns tagged equipment that no reader has seen within
// olderThan. Untagged equipment cannot be scanned and is never reported.
func (s *schedulerService) ListLostEquipment(ctx context.Context, actor domain.Actor, olderThan time.Duration) ([]domain.Equipment, error) {
	if actor.Kind != domain.ActorStaff {
		return nil, domain.ErrNotPermitted
	}
	if olderThan <= 0 {
		olderThan = DefaultLostAfter
	}
	items, err := s.store.Equipment().List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-olderThan)
	lost := make([]domain.Equipment, 0)
	for _, e := range items {
		if e.RfidTag == nil {
			continue
		}
		if e.LastScan == nil || e.LastScan.ScannedAt.Before(cutoff) {
			lost = append(lost, e)
		}
	}
	return lost, nil
}
