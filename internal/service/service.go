package service

import (
	"context"
	"time"

	"equipment-scheduler/internal/domain"
)

// SchedulerService is the single entry point for reservation and loan
// operations. Every state change runs under the equipment lock and its
// events are published only after the change is committed.
type SchedulerService interface {
	RequestReservation(ctx context.Context, actor domain.Actor, equipmentID int32, window domain.TimeWindow) (*domain.Reservation, error)
	Approve(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Reservation, error)
	Reject(ctx context.Context, actor domain.Actor, reservationID int32, reason string) (*domain.Reservation, error)
	Checkout(ctx context.Context, actor domain.Actor, reservationID int32, expectedReturn *time.Time) (*domain.Loan, error)
	Checkin(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Loan, error)
	ExtendLoan(ctx context.Context, actor domain.Actor, reservationID int32, newExpectedReturn time.Time) (*domain.Loan, error)
	Cancel(ctx context.Context, actor domain.Actor, reservationID int32, reason string) (*domain.Reservation, error)

	RecordScan(ctx context.Context, actor domain.Actor, scan ScanRequest) (*ScanResult, error)

	SweepOverdueLoans(ctx context.Context) ([]domain.Loan, error)
	SweepReturnReminders(ctx context.Context) ([]domain.Loan, error)
	SweepMaintenanceAlerts(ctx context.Context) ([]domain.Equipment, error)
	ResetMaintenanceAlert(ctx context.Context, actor domain.Actor, equipmentID int32) (*domain.Equipment, error)

	GetReservation(ctx context.Context, reservationID int32) (*domain.Reservation, error)
	GetLoan(ctx context.Context, reservationID int32) (*domain.Loan, error)
	ListEquipmentReservations(ctx context.Context, equipmentID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListRequesterReservations(ctx context.Context, requesterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	CheckAvailability(ctx context.Context, equipmentID int32, window domain.TimeWindow) ([]domain.Reservation, error)
	ListOverdueLoans(ctx context.Context) ([]domain.Loan, error)
	ListPendingReservations(ctx context.Context, actor domain.Actor) ([]domain.Reservation, error)
	ListLostEquipment(ctx context.Context, actor domain.Actor, olderThan time.Duration) ([]domain.Equipment, error)
	ListScans(ctx context.Context, equipmentID int32, limit int) ([]domain.RfidEvent, error)
}

// ScanRequest is a tag read from a reader. The equipment is identified by
// EquipmentID, or by RfidTag when the id is zero.
type ScanRequest struct {
	ReaderID    string
	EquipmentID int32
	RfidTag     string
	ScannedAt   time.Time
}

// ScanResult reports what a scan did. Action is empty when the scan was only
// recorded; Refused explains why a custody reader did not act.
type ScanResult struct {
	Event       domain.RfidEvent
	Equipment   domain.Equipment
	Action      domain.Action
	Reservation *domain.Reservation
	Loan        *domain.Loan
	Refused     string
}
