package repository

import (
	"context"

	"equipment-scheduler/internal/domain"
)

// Repository methods return domain.ErrNotFound (possibly wrapped) when the
// requested row does not exist and domain.ErrTransient for retryable store
// failures.

// EquipmentRepository reads inventory rows and writes the fields scheduling
// owns.
type EquipmentRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Equipment, error)
	GetByRfidTag(ctx context.Context, tag string) (*domain.Equipment, error)
	List(ctx context.Context) ([]domain.Equipment, error)
	SetMaintenanceAlert(ctx context.Context, id int32, sent bool) error
	UpdateLastScan(ctx context.Context, id int32, scan domain.RfidScan) error
}

// ReservationRepository persists reservations. Rows are never deleted.
type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id int32) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, r *domain.Reservation) error
	// ListByEquipment returns reservations ordered by window start then id.
	// With no statuses every reservation of the equipment is returned.
	ListByEquipment(ctx context.Context, equipmentID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListByRequester(ctx context.Context, requesterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	// ListByStatus returns reservations across all equipment, oldest
	// request first.
	ListByStatus(ctx context.Context, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
}

// LoanRepository persists at most one loan per reservation.
type LoanRepository interface {
	Create(ctx context.Context, l *domain.Loan) error
	GetByReservation(ctx context.Context, reservationID int32) (*domain.Loan, error)
	Update(ctx context.Context, l *domain.Loan) error
	// ListOpen returns loans without an actual return, ordered by expected return.
	ListOpen(ctx context.Context) ([]domain.Loan, error)
}

// RfidEventRepository is the append-only scan log.
type RfidEventRepository interface {
	Append(ctx context.Context, e *domain.RfidEvent) error
	ListByEquipment(ctx context.Context, equipmentID int32, limit int) ([]domain.RfidEvent, error)
}

// Repositories groups the repositories visible inside one unit of work.
type Repositories interface {
	Equipment() EquipmentRepository
	Reservations() ReservationRepository
	Loans() LoanRepository
	RfidEvents() RfidEventRepository
}

// Store is the persistent store behind the scheduler. Its own repositories
// read without locking; WithEquipmentLock serializes writers per equipment.
type Store interface {
	Repositories

	// WithEquipmentLock runs fn as one atomic unit holding an exclusive lock
	// on the equipment. Writers on other equipment are not blocked. If fn
	// returns an error nothing it wrote is kept.
	WithEquipmentLock(ctx context.Context, equipmentID int32, fn func(ctx context.Context, tx Repositories) error) error
}
