package domain

import "time"

// EventType names a domain event in the notification stream.
type EventType string

const (
	EventReservationRequested EventType = "ReservationRequested"
	EventReservationApproved  EventType = "ReservationApproved"
	EventConflictRejected     EventType = "ConflictRejected"
	EventReservationRejected  EventType = "ReservationRejected"
	EventReservationCancelled EventType = "ReservationCancelled"
	EventLoanCheckedOut       EventType = "LoanCheckedOut"
	EventLoanExtended         EventType = "LoanExtended"
	EventLoanReturned         EventType = "LoanReturned"
	EventLoanDueSoon          EventType = "LoanDueSoon"
	EventLoanOverdue          EventType = "LoanOverdue"
	EventMaintenanceAlertDue  EventType = "MaintenanceAlertDue"
	EventRfidScanRecorded     EventType = "RfidScanRecorded"
)

// Event is a domain event handed to the notification subsystem after the
// transition that produced it has been committed.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	EquipmentID   int32             `json:"equipment_id"`
	ReservationID int32             `json:"reservation_id,omitempty"`
	RequesterID   int32             `json:"user_id,omitempty"`
	ConflictIDs   []int32           `json:"conflict_ids,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}
