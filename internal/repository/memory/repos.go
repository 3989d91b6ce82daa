package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"equipment-scheduler/internal/domain"
)

type equipmentRepo struct{ v view }

func (r *equipmentRepo) GetByID(ctx context.Context, id int32) (*domain.Equipment, error) {
	defer r.v.lock(false)()
	e, ok := r.v.getEquipment(id)
	if !ok {
		return nil, fmt.Errorf("equipment %d: %w", id, domain.ErrNotFound)
	}
	c := cloneEquipment(e)
	return &c, nil
}

func (r *equipmentRepo) GetByRfidTag(ctx context.Context, tag string) (*domain.Equipment, error) {
	defer r.v.lock(false)()
	for _, e := range r.v.s.equipment {
		if cur, _ := r.v.getEquipment(e.ID); cur.RfidTag != nil && *cur.RfidTag == tag {
			c := cloneEquipment(cur)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("equipment with rfid tag %s: %w", tag, domain.ErrNotFound)
}

func (r *equipmentRepo) List(ctx context.Context) ([]domain.Equipment, error) {
	defer r.v.lock(false)()
	items := make([]domain.Equipment, 0, len(r.v.s.equipment))
	for id := range r.v.s.equipment {
		e, _ := r.v.getEquipment(id)
		items = append(items, cloneEquipment(e))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *equipmentRepo) SetMaintenanceAlert(ctx context.Context, id int32, sent bool) error {
	defer r.v.lock(true)()
	e, ok := r.v.getEquipment(id)
	if !ok {
		return fmt.Errorf("equipment %d: %w", id, domain.ErrNotFound)
	}
	e.MaintenanceAlertSent = sent
	r.v.putEquipment(e)
	return nil
}

func (r *equipmentRepo) UpdateLastScan(ctx context.Context, id int32, scan domain.RfidScan) error {
	defer r.v.lock(true)()
	e, ok := r.v.getEquipment(id)
	if !ok {
		return fmt.Errorf("equipment %d: %w", id, domain.ErrNotFound)
	}
	e.LastScan = &scan
	r.v.putEquipment(e)
	return nil
}

type reservationRepo struct{ v view }

func (r *reservationRepo) Create(ctx context.Context, rs *domain.Reservation) error {
	defer r.v.lock(true)()
	if _, ok := r.v.getEquipment(rs.EquipmentID); !ok {
		return fmt.Errorf("equipment %d: %w", rs.EquipmentID, domain.ErrNotFound)
	}
	rs.ID = r.v.s.lastResv.Add(1)
	r.v.putReservation(*rs)
	return nil
}

func (r *reservationRepo) GetByID(ctx context.Context, id int32) (*domain.Reservation, error) {
	defer r.v.lock(false)()
	rs, ok := r.v.getReservation(id)
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	return &rs, nil
}

func (r *reservationRepo) UpdateStatus(ctx context.Context, rs *domain.Reservation) error {
	defer r.v.lock(true)()
	cur, ok := r.v.getReservation(rs.ID)
	if !ok {
		return fmt.Errorf("reservation %d: %w", rs.ID, domain.ErrNotFound)
	}
	cur.Status = rs.Status
	r.v.putReservation(cur)
	return nil
}

func (r *reservationRepo) ListByEquipment(ctx context.Context, equipmentID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(func(rs domain.Reservation) bool { return rs.EquipmentID == equipmentID }, statuses), nil
}

func (r *reservationRepo) ListByRequester(ctx context.Context, requesterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(func(rs domain.Reservation) bool { return rs.RequesterID == requesterID }, statuses), nil
}

func (r *reservationRepo) ListByStatus(ctx context.Context, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	out := r.list(func(domain.Reservation) bool { return true }, statuses)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *reservationRepo) list(match func(domain.Reservation) bool, statuses []domain.ReservationStatus) []domain.Reservation {
	defer r.v.lock(false)()
	var out []domain.Reservation
	for _, rs := range r.v.allReservations() {
		if match(rs) && hasStatus(rs.Status, statuses) {
			out = append(out, rs)
		}
	}
	sortReservations(out)
	return out
}

type loanRepo struct{ v view }

func (r *loanRepo) Create(ctx context.Context, l *domain.Loan) error {
	defer r.v.lock(true)()
	if _, ok := r.v.getReservation(l.ReservationID); !ok {
		return fmt.Errorf("reservation %d: %w", l.ReservationID, domain.ErrNotFound)
	}
	if _, exists := r.v.getLoan(l.ReservationID); exists {
		return fmt.Errorf("loan for reservation %d already exists", l.ReservationID)
	}
	r.v.putLoan(cloneLoan(*l))
	return nil
}

func (r *loanRepo) GetByReservation(ctx context.Context, reservationID int32) (*domain.Loan, error) {
	defer r.v.lock(false)()
	l, ok := r.v.getLoan(reservationID)
	if !ok {
		return nil, fmt.Errorf("loan for reservation %d: %w", reservationID, domain.ErrNotFound)
	}
	c := cloneLoan(l)
	return &c, nil
}

func (r *loanRepo) Update(ctx context.Context, l *domain.Loan) error {
	defer r.v.lock(true)()
	if _, ok := r.v.getLoan(l.ReservationID); !ok {
		return fmt.Errorf("loan for reservation %d: %w", l.ReservationID, domain.ErrNotFound)
	}
	r.v.putLoan(cloneLoan(*l))
	return nil
}

func (r *loanRepo) ListOpen(ctx context.Context) ([]domain.Loan, error) {
	defer r.v.lock(false)()
	var open []domain.Loan
	for _, l := range r.v.allLoans() {
		if !l.IsReturned() {
			open = append(open, l)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].ExpectedReturnAt.Equal(open[j].ExpectedReturnAt) {
			return open[i].ExpectedReturnAt.Before(open[j].ExpectedReturnAt)
		}
		return open[i].ReservationID < open[j].ReservationID
	})
	return open, nil
}

type rfidRepo struct{ v view }

func (r *rfidRepo) Append(ctx context.Context, e *domain.RfidEvent) error {
	defer r.v.lock(true)()
	e.ID = r.v.s.lastEvent.Add(1)
	if r.v.tx != nil {
		r.v.tx.rfidEvents = append(r.v.tx.rfidEvents, *e)
		return nil
	}
	r.v.s.rfidEvents = append(r.v.s.rfidEvents, *e)
	return nil
}

func (r *rfidRepo) ListByEquipment(ctx context.Context, equipmentID int32, limit int) ([]domain.RfidEvent, error) {
	defer r.v.lock(false)()
	all := append([]domain.RfidEvent(nil), r.v.s.rfidEvents...)
	if r.v.tx != nil {
		all = append(all, r.v.tx.rfidEvents...)
	}
	var out []domain.RfidEvent
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].EquipmentID == equipmentID {
			out = append(out, all[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScannedAt.After(out[j].ScannedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneEquipment(e domain.Equipment) domain.Equipment {
	if e.RfidTag != nil {
		tag := *e.RfidTag
		e.RfidTag = &tag
	}
	e.NextMaintenance = cloneTime(e.NextMaintenance)
	if e.LastScan != nil {
		scan := *e.LastScan
		e.LastScan = &scan
	}
	return e
}

func cloneLoan(l domain.Loan) domain.Loan {
	l.ActualReturnAt = cloneTime(l.ActualReturnAt)
	return l
}
