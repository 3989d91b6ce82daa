package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

// Checkout opens the loan of an approved reservation and makes it active.
func (s *schedulerService) Checkout(ctx context.Context, actor domain.Actor, reservationID int32, expectedReturn *time.Time) (*domain.Loan, error) {
	now := s.now()
	var loan *domain.Loan
	var pending []domain.Event
	err := s.withReservation(ctx, "Checkout", reservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
		var err error
		loan, pending, err = s.checkout(ctx, tx, actor, r, now, expectedReturn)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Loan checked out", "reservation_id", reservationID,
		"expected_return_at", loan.ExpectedReturnAt.Format(domain.DateTimeLayout))
	s.publish(ctx, pending...)
	return loan, nil
}

func (s *schedulerService) Checkin(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Loan, error) {
	now := s.now()
	var loan *domain.Loan
	var pending []domain.Event
	err := s.withReservation(ctx, "Checkin", reservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
		var err error
		loan, pending, err = s.checkin(ctx, tx, actor, r, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Loan returned", "reservation_id", reservationID,
		"actual_return_at", loan.ActualReturnAt.Format(domain.DateTimeLayout))
	s.publish(ctx, pending...)
	return loan, nil
}

// ExtendLoan moves the expected return of an open loan later.
func (s *schedulerService) ExtendLoan(ctx context.Context, actor domain.Actor, reservationID int32, newExpectedReturn time.Time) (*domain.Loan, error) {
	now := s.now()
	var loan *domain.Loan
	var previous time.Time
	var owner *domain.Reservation
	err := s.withReservation(ctx, "ExtendLoan", reservationID, func(ctx context.Context, tx repository.Repositories, r *domain.Reservation) error {
		if err := domain.CanPerform(actor, domain.ActionExtend, r); err != nil {
			return err
		}
		l, err := tx.Loans().GetByReservation(ctx, r.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.TransitionError{From: r.Status, Action: domain.ActionExtend}
		}
		if err != nil {
			return err
		}
		previous = l.ExpectedReturnAt
		if err := s.custody.ExtendDueDate(l, newExpectedReturn); err != nil {
			return err
		}
		if err := tx.Loans().Update(ctx, l); err != nil {
			return err
		}
		loan, owner = l, r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Loan extended", "reservation_id", reservationID,
		"from", previous.Format(domain.DateTimeLayout), "to", loan.ExpectedReturnAt.Format(domain.DateTimeLayout))
	ev := s.event(domain.EventLoanExtended, owner, now)
	ev.Attributes = map[string]string{
		"previous_expected_return_at": previous.Format(domain.DateTimeLayout),
		"expected_return_at":          loan.ExpectedReturnAt.Format(domain.DateTimeLayout),
	}
	s.publish(ctx, ev)
	return loan, nil
}

// checkout runs inside the equipment lock. Every refusal is decided before
// the first write.
func (s *schedulerService) checkout(ctx context.Context, tx repository.Repositories, actor domain.Actor, r *domain.Reservation, at time.Time, expectedReturn *time.Time) (*domain.Loan, []domain.Event, error) {
	if err := authorize(actor, domain.ActionCheckout, r); err != nil {
		return nil, nil, err
	}
	loan, err := s.custody.OpenLoan(r, at, expectedReturn)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Apply(domain.ActionCheckout); err != nil {
		return nil, nil, err
	}
	if err := tx.Reservations().UpdateStatus(ctx, r); err != nil {
		return nil, nil, err
	}
	if err := tx.Loans().Create(ctx, loan); err != nil {
		return nil, nil, err
	}

	ev := s.event(domain.EventLoanCheckedOut, r, at)
	ev.Attributes = map[string]string{
		"checked_out_by":     actorLabel(actor),
		"expected_return_at": loan.ExpectedReturnAt.Format(domain.DateTimeLayout),
	}
	return loan, []domain.Event{ev}, nil
}

func (s *schedulerService) checkin(ctx context.Context, tx repository.Repositories, actor domain.Actor, r *domain.Reservation, at time.Time) (*domain.Loan, []domain.Event, error) {
	if err := authorize(actor, domain.ActionCheckin, r); err != nil {
		return nil, nil, err
	}
	loan, err := tx.Loans().GetByReservation(ctx, r.ID)
	if err != nil {
		return nil, nil, err
	}
	if loan.IsReturned() {
		return nil, nil, &domain.TransitionError{From: r.Status, Action: domain.ActionCheckin}
	}
	if err := s.custody.RecordReturn(loan, at); err != nil {
		return nil, nil, err
	}
	if err := r.Apply(domain.ActionCheckin); err != nil {
		return nil, nil, err
	}
	if err := tx.Reservations().UpdateStatus(ctx, r); err != nil {
		return nil, nil, err
	}
	if err := tx.Loans().Update(ctx, loan); err != nil {
		return nil, nil, err
	}

	ev := s.event(domain.EventLoanReturned, r, at)
	ev.Attributes = map[string]string{
		"checked_in_by":      actorLabel(actor),
		"expected_return_at": loan.ExpectedReturnAt.Format(domain.DateTimeLayout),
		"actual_return_at":   loan.ActualReturnAt.Format(domain.DateTimeLayout),
		"late":               fmt.Sprintf("%t", loan.ActualReturnAt.After(loan.ExpectedReturnAt)),
	}
	return loan, []domain.Event{ev}, nil
}
