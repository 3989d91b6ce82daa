package domain

import "time"

// Loan records physical custody of the equipment behind an active
// reservation. There is at most one loan per reservation.
type Loan struct {
	ReservationID    int32      `json:"reservation_id"`
	CheckoutAt       time.Time  `json:"checkout_at"`
	ExpectedReturnAt time.Time  `json:"expected_return_at"`
	ActualReturnAt   *time.Time `json:"actual_return_at,omitempty"`
	// ReturnReminderSent latches the due-soon reminder until the due date
	// moves later.
	ReturnReminderSent bool `json:"return_reminder_sent"`
}

// IsReturned reports whether the equipment has been checked back in.
func (l *Loan) IsReturned() bool {
	return l.ActualReturnAt != nil
}
