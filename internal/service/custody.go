package service

import (
	"fmt"
	"time"

	"equipment-scheduler/internal/domain"
)

// CustodyTracker holds the loan rules. Its methods mutate only the loan
// they are given; persistence is up to the caller.
type CustodyTracker struct{}

// OpenLoan builds the loan for a reservation being checked out. The expected
// return defaults to the window end and may only be overridden later.
func (CustodyTracker) OpenLoan(r *domain.Reservation, now time.Time, expectedReturn *time.Time) (*domain.Loan, error) {
	expected := r.Window.End
	if expectedReturn != nil {
		override := domain.Naive(*expectedReturn)
		if override.Before(expected) {
			return nil, fmt.Errorf("%w: expected return %s precedes window end %s", domain.ErrInvalidExtension,
				override.Format(domain.DateTimeLayout), expected.Format(domain.DateTimeLayout))
		}
		expected = override
	}
	return &domain.Loan{
		ReservationID:    r.ID,
		CheckoutAt:       domain.Naive(now),
		ExpectedReturnAt: expected,
	}, nil
}

// IsOverdue is true while the loan is out and now is past the expected return.
func (CustodyTracker) IsOverdue(l *domain.Loan, now time.Time) bool {
	return l.ActualReturnAt == nil && domain.Naive(now).After(l.ExpectedReturnAt)
}

// DueSoon is true while the loan is out, not yet overdue, and due within lead
// of now.
func (c CustodyTracker) DueSoon(l *domain.Loan, now time.Time, lead time.Duration) bool {
	if l.IsReturned() || c.IsOverdue(l, now) {
		return false
	}
	return !l.ExpectedReturnAt.After(domain.Naive(now).Add(lead))
}

// ExtendDueDate moves the deadline forward. Moving it back would silently
// shorten the commitment and is refused. A later deadline re-arms the
// due-soon reminder.
func (CustodyTracker) ExtendDueDate(l *domain.Loan, newExpectedReturn time.Time) error {
	if l.IsReturned() {
		return fmt.Errorf("%w: reservation %d", domain.ErrAlreadyReturned, l.ReservationID)
	}
	next := domain.Naive(newExpectedReturn)
	if next.Before(l.ExpectedReturnAt) {
		return fmt.Errorf("%w: %s precedes current expected return %s", domain.ErrInvalidExtension,
			next.Format(domain.DateTimeLayout), l.ExpectedReturnAt.Format(domain.DateTimeLayout))
	}
	if next.After(l.ExpectedReturnAt) {
		l.ReturnReminderSent = false
	}
	l.ExpectedReturnAt = next
	return nil
}

// RecordReturn closes the loan. A second call fails with ErrAlreadyReturned
// and leaves the loan untouched so duplicate check-ins are detectable. A
// return stamped before the checkout is refused.
func (CustodyTracker) RecordReturn(l *domain.Loan, now time.Time) error {
	if l.IsReturned() {
		return fmt.Errorf("%w: reservation %d returned at %s", domain.ErrAlreadyReturned, l.ReservationID,
			l.ActualReturnAt.Format(domain.DateTimeLayout))
	}
	returned := domain.Naive(now)
	if returned.Before(l.CheckoutAt) {
		return fmt.Errorf("%w: return at %s precedes checkout at %s", domain.ErrInvalidTransition,
			returned.Format(domain.DateTimeLayout), l.CheckoutAt.Format(domain.DateTimeLayout))
	}
	l.ActualReturnAt = &returned
	return nil
}

// CustodyCandidate picks the reservation an RFID scan at a custody reader
// acts on. It answers only when exactly one reservation of the equipment is
// in the source state for the reader's role; otherwise ok is false.
func (CustodyTracker) CustodyCandidate(role domain.CustodyRole, reservations []domain.Reservation) (target domain.Reservation, action domain.Action, candidates int, ok bool) {
	var want domain.ReservationStatus
	switch role {
	case domain.CustodyCheckout:
		want, action = domain.ReservationStatusApproved, domain.ActionCheckout
	case domain.CustodyCheckin:
		want, action = domain.ReservationStatusActive, domain.ActionCheckin
	default:
		return domain.Reservation{}, "", 0, false
	}

	for _, r := range reservations {
		if r.Status == want {
			candidates++
			target = r
		}
	}
	if candidates != 1 {
		return domain.Reservation{}, action, candidates, false
	}
	return target, action, 1, true
}
