package postgres

import (
	"context"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
	"equipment-scheduler/internal/repository"

	"github.com/lib/pq"
)

const reservationColumns = `id, equipment_id, user_id, start_datetime, end_datetime, status, created_at`

type reservationRepository struct {
	db querier
}

func NewReservationRepository(db querier) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var r domain.Reservation
	if err := row.Scan(&r.ID, &r.EquipmentID, &r.RequesterID, &r.Window.Start, &r.Window.End, &r.Status, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Window.Start = domain.Naive(r.Window.Start)
	r.Window.End = domain.Naive(r.Window.End)
	r.CreatedAt = domain.Naive(r.CreatedAt)
	return &r, nil
}

func (r *reservationRepository) Create(ctx context.Context, rs *domain.Reservation) error {
	query := `INSERT INTO equipment_reservation (equipment_id, user_id, start_datetime, end_datetime, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	logger.DatabaseCall("INSERT", "equipment_reservation", "equipmentID", rs.EquipmentID, "userID", rs.RequesterID)
	err := r.db.QueryRowContext(ctx, query, rs.EquipmentID, rs.RequesterID, rs.Window.Start, rs.Window.End, rs.Status, rs.CreatedAt).Scan(&rs.ID)
	logger.DatabaseResult("INSERT", 1, err, "reservationID", rs.ID)
	return classify(err)
}

func (r *reservationRepository) GetByID(ctx context.Context, id int32) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM equipment_reservation WHERE id = $1`
	rs, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "reservation", id)
	}
	return rs, nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, rs *domain.Reservation) error {
	query := `UPDATE equipment_reservation SET status = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, rs.Status, rs.ID)
	return affectedOne(res, err, "reservation", rs.ID)
}

func (r *reservationRepository) ListByEquipment(ctx context.Context, equipmentID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "equipment_id", equipmentID, statuses)
}

func (r *reservationRepository) ListByRequester(ctx context.Context, requesterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "user_id", requesterID, statuses)
}

// list is shared by the two listings; column is never user input.
func (r *reservationRepository) list(ctx context.Context, column string, id int32, statuses []domain.ReservationStatus) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM equipment_reservation WHERE ` + column + ` = $1`
	args := []any{id}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	query += ` ORDER BY start_datetime, id`
	return r.query(ctx, query, args...)
}

func (r *reservationRepository) ListByStatus(ctx context.Context, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM equipment_reservation`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	query += ` ORDER BY created_at, id`
	return r.query(ctx, query, args...)
}

func (r *reservationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		rs, err := scanReservation(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *rs)
	}
	return out, classify(rows.Err())
}
