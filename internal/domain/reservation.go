package domain

import (
	"fmt"
	"time"
)

// ReservationStatus is a state in the reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusApproved  ReservationStatus = "approved"
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusRejected  ReservationStatus = "rejected"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// BlockingStatuses are the statuses that hold equipment for their window.
var BlockingStatuses = []ReservationStatus{ReservationStatusApproved, ReservationStatusActive}

// IsTerminal reports whether no further transition leaves s.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusCompleted, ReservationStatusRejected, ReservationStatusCancelled:
		return true
	}
	return false
}

// Blocks reports whether a reservation in this status prevents overlapping
// approvals on the same equipment.
func (s ReservationStatus) Blocks() bool {
	return s == ReservationStatusApproved || s == ReservationStatusActive
}

// Valid reports whether s is one of the known statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusApproved, ReservationStatusActive,
		ReservationStatusCompleted, ReservationStatusRejected, ReservationStatusCancelled:
		return true
	}
	return false
}

// ParseReservationStatus validates a status filter value.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	s := ReservationStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown reservation status %q", value)
	}
	return s, nil
}

// Reservation is a requester's claim on one equipment item for one window.
// It is never deleted; terminal statuses are kept for audit.
type Reservation struct {
	ID          int32             `json:"id"`
	EquipmentID int32             `json:"equipment_id"`
	RequesterID int32             `json:"user_id"`
	Window      TimeWindow        `json:"window"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}
