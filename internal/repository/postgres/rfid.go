package postgres

import (
	"context"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

type rfidEventRepository struct {
	db querier
}

func NewRfidEventRepository(db querier) repository.RfidEventRepository {
	return &rfidEventRepository{db: db}
}

func (r *rfidEventRepository) Append(ctx context.Context, e *domain.RfidEvent) error {
	query := `INSERT INTO rfid_event (equipment_id, reader_id, location, scanned_at) VALUES ($1, $2, $3, $4) RETURNING id`
	return classify(r.db.QueryRowContext(ctx, query, e.EquipmentID, e.ReaderID, e.Location, e.ScannedAt).Scan(&e.ID))
}

// ListByEquipment returns the most recent scans first.
func (r *rfidEventRepository) ListByEquipment(ctx context.Context, equipmentID int32, limit int) ([]domain.RfidEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, equipment_id, reader_id, location, scanned_at FROM rfid_event
	          WHERE equipment_id = $1 ORDER BY scanned_at DESC, id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, equipmentID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var events []domain.RfidEvent
	for rows.Next() {
		var e domain.RfidEvent
		if err := rows.Scan(&e.ID, &e.EquipmentID, &e.ReaderID, &e.Location, &e.ScannedAt); err != nil {
			return nil, classify(err)
		}
		e.ScannedAt = domain.Naive(e.ScannedAt)
		events = append(events, e)
	}
	return events, classify(rows.Err())
}
