package postgres

import (
	"context"
	"database/sql"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

const equipmentColumns = `id, name, rfid_tag, requires_approval, next_maintenance, maintenance_alert_sent,
	rfid_last_scan, rfid_last_location, rfid_reader_id`

type equipmentRepository struct {
	db querier
}

// NewEquipmentRepository runs against a *sql.DB or, inside WithEquipmentLock, a *sql.Tx.
func NewEquipmentRepository(db querier) repository.EquipmentRepository {
	return &equipmentRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(row rowScanner) (*domain.Equipment, error) {
	var (
		e        domain.Equipment
		tag      sql.NullString
		next     sql.NullTime
		scanned  sql.NullTime
		location sql.NullString
		reader   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Name, &tag, &e.RequiresApproval, &next, &e.MaintenanceAlertSent,
		&scanned, &location, &reader); err != nil {
		return nil, err
	}
	if tag.Valid {
		e.RfidTag = &tag.String
	}
	e.NextMaintenance = timePtr(next)
	if scanned.Valid {
		e.LastScan = &domain.RfidScan{
			ScannedAt: domain.Naive(scanned.Time),
			Location:  location.String,
			ReaderID:  reader.String,
		}
	}
	return &e, nil
}

func (r *equipmentRepository) GetByID(ctx context.Context, id int32) (*domain.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = $1`
	e, err := scanEquipment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "equipment", id)
	}
	return e, nil
}

func (r *equipmentRepository) GetByRfidTag(ctx context.Context, tag string) (*domain.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE rfid_tag = $1`
	e, err := scanEquipment(r.db.QueryRowContext(ctx, query, tag))
	if err != nil {
		return nil, notFound(err, "equipment with rfid tag", tag)
	}
	return e, nil
}

func (r *equipmentRepository) List(ctx context.Context) ([]domain.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var items []domain.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, classify(err)
		}
		items = append(items, *e)
	}
	return items, classify(rows.Err())
}

func (r *equipmentRepository) SetMaintenanceAlert(ctx context.Context, id int32, sent bool) error {
	query := `UPDATE equipment SET maintenance_alert_sent = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, sent, id)
	return affectedOne(res, err, "equipment", id)
}

func (r *equipmentRepository) UpdateLastScan(ctx context.Context, id int32, scan domain.RfidScan) error {
	query := `UPDATE equipment SET rfid_last_scan = $1, rfid_last_location = $2, rfid_reader_id = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, scan.ScannedAt, scan.Location, scan.ReaderID, id)
	return affectedOne(res, err, "equipment", id)
}

func affectedOne(res sql.Result, err error, what string, id any) error {
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return notFound(sql.ErrNoRows, what, id)
	}
	return nil
}
