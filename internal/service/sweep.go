package service

import (
	"context"
	"errors"
	"fmt"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

// SweepOverdueLoans emits LoanOverdue for every open loan past its expected
// return. Each sweep re-announces loans that are still out.
func (s *schedulerService) SweepOverdueLoans(ctx context.Context) ([]domain.Loan, error) {
	now := s.now()
	overdue, err := s.ListOverdueLoans(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]domain.Event, 0, len(overdue))
	for _, l := range overdue {
		r, err := s.store.Reservations().GetByID(ctx, l.ReservationID)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to load reservation of overdue loan", "reservation_id", l.ReservationID, "error", err)
			continue
		}
		ev := s.event(domain.EventLoanOverdue, r, now)
		ev.Attributes = map[string]string{
			"expected_return_at": l.ExpectedReturnAt.Format(domain.DateTimeLayout),
			"overdue_minutes":    fmt.Sprintf("%d", int64(now.Sub(l.ExpectedReturnAt).Minutes())),
		}
		pending = append(pending, ev)
	}

	s.log.InfoContext(ctx, "Overdue sweep finished", "overdue", len(overdue))
	s.publish(ctx, pending...)
	return overdue, nil
}

// SweepReturnReminders emits one LoanDueSoon per open loan coming due within
// the reminder lead. The loan's latch keeps later sweeps quiet until an
// extension moves the due date.
func (s *schedulerService) SweepReturnReminders(ctx context.Context) ([]domain.Loan, error) {
	now := s.now()
	open, err := s.store.Loans().ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	var reminded []domain.Loan
	var errs []error
	for i := range open {
		if open[i].ReturnReminderSent || !s.custody.DueSoon(&open[i], now, s.reminder) {
			continue
		}
		var marked *domain.Loan
		var owner *domain.Reservation
		err := s.withReservation(ctx, "SweepReturnReminders", open[i].ReservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
			marked, owner = nil, nil
			l, err := tx.Loans().GetByReservation(ctx, r.ID)
			if err != nil {
				return err
			}
			// Re-checked: the loan may have been returned, extended or
			// reminded since the list was read.
			if l.ReturnReminderSent || !s.custody.DueSoon(l, now, s.reminder) {
				return nil
			}
			l.ReturnReminderSent = true
			if err := tx.Loans().Update(ctx, l); err != nil {
				return err
			}
			marked, owner = l, r
			return nil
		})
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to send return reminder", "reservation_id", open[i].ReservationID, "error", err)
			errs = append(errs, err)
			continue
		}
		if marked == nil {
			continue
		}

		ev := s.event(domain.EventLoanDueSoon, owner, now)
		ev.Attributes = map[string]string{
			"expected_return_at": marked.ExpectedReturnAt.Format(domain.DateTimeLayout),
			"due_in_minutes":     fmt.Sprintf("%d", int64(marked.ExpectedReturnAt.Sub(now).Minutes())),
		}
		s.publish(ctx, ev)
		reminded = append(reminded, *marked)
	}

	s.log.InfoContext(ctx, "Return reminder sweep finished", "reminded", len(reminded), "failed", len(errs))
	return reminded, errors.Join(errs...)
}

// SweepMaintenanceAlerts raises one MaintenanceAlertDue per item whose
// maintenance has come due since its latch was last reset.
func (s *schedulerService) SweepMaintenanceAlerts(ctx context.Context) ([]domain.Equipment, error) {
	now := s.now()
	items, err := s.store.Equipment().List(ctx)
	if err != nil {
		return nil, err
	}

	var alerted []domain.Equipment
	var errs []error
	for i := range items {
		if !s.gate.ShouldAlert(&items[i], now) {
			continue
		}
		var marked *domain.Equipment
		err := s.store.WithEquipmentLock(ctx, items[i].ID, func(ctx context.Context, tx repository.Repositories) error {
			marked = nil
			current, err := tx.Equipment().GetByID(ctx, items[i].ID)
			if err != nil {
				return err
			}
			// Another sweep may have raised the alert since the list was read.
			if !s.gate.ShouldAlert(current, now) {
				return nil
			}
			if err := s.gate.MarkAlerted(ctx, tx.Equipment(), current); err != nil {
				return err
			}
			marked = current
			return nil
		})
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to raise maintenance alert", "equipment_id", items[i].ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if marked == nil {
			continue
		}

		ev := domain.Event{ID: s.newID(), Type: domain.EventMaintenanceAlertDue, OccurredAt: now, EquipmentID: marked.ID,
			Attributes: map[string]string{"name": marked.Name}}
		if marked.NextMaintenance != nil {
			ev.Attributes["next_maintenance"] = marked.NextMaintenance.Format(domain.DateTimeLayout)
		}
		s.publish(ctx, ev)
		alerted = append(alerted, *marked)
	}

	s.log.InfoContext(ctx, "Maintenance sweep finished", "alerted", len(alerted), "failed", len(errs))
	return alerted, errors.Join(errs...)
}

// ResetMaintenanceAlert re-arms the latch once the equipment has been serviced.
func (s *schedulerService) ResetMaintenanceAlert(ctx context.Context, actor domain.Actor, equipmentID int32) (*domain.Equipment, error) {
	if actor.Kind != domain.ActorStaff {
		return nil, domain.ErrNotPermitted
	}
	var reset *domain.Equipment
	err := s.store.WithEquipmentLock(ctx, equipmentID, func(ctx context.Context, tx repository.Repositories) error {
		e, err := tx.Equipment().GetByID(ctx, equipmentID)
		if err != nil {
			return err
		}
		if err := s.gate.ResetAlert(ctx, tx.Equipment(), e); err != nil {
			return err
		}
		reset = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Maintenance alert reset", "equipment_id", equipmentID, "user_id", actor.UserID)
	return reset, nil
}
