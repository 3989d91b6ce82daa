// Package memory is an in-process Store used for development runs and tests.
// It honours the same locking contract as the postgres store: writers are
// serialized per equipment and a failed unit of work leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

// Store is an in-process repository.Store for tests and the memory store
// type. Equipment is seeded with AddEquipment.
type Store struct {
	mu           sync.RWMutex
	equipment    map[int32]domain.Equipment
	reservations map[int32]domain.Reservation
	loans        map[int32]domain.Loan
	rfidEvents   []domain.RfidEvent
	lastEquip    int32
	lastResv     atomic.Int32
	lastEvent    atomic.Int64

	locksMu sync.Mutex
	locks   map[int32]*sync.Mutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		equipment:    make(map[int32]domain.Equipment),
		reservations: make(map[int32]domain.Reservation),
		loans:        make(map[int32]domain.Loan),
		locks:        make(map[int32]*sync.Mutex),
	}
}

// AddEquipment stands in for the inventory subsystem. A zero ID is assigned
// the next free one.
func (s *Store) AddEquipment(e domain.Equipment) domain.Equipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		s.lastEquip++
		e.ID = s.lastEquip
	} else if e.ID > s.lastEquip {
		s.lastEquip = e.ID
	}
	s.equipment[e.ID] = cloneEquipment(e)
	return cloneEquipment(e)
}

// SetNextMaintenance is the inventory side of the maintenance-due predicate.
func (s *Store) SetNextMaintenance(id int32, next *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.equipment[id]; ok {
		e.NextMaintenance = cloneTime(next)
		s.equipment[id] = e
	}
}

func (s *Store) Equipment() repository.EquipmentRepository       { return &equipmentRepo{view{s: s}} }
func (s *Store) Reservations() repository.ReservationRepository { return &reservationRepo{view{s: s}} }
func (s *Store) Loans() repository.LoanRepository               { return &loanRepo{view{s: s}} }
func (s *Store) RfidEvents() repository.RfidEventRepository     { return &rfidRepo{view{s: s}} }

func (s *Store) lockFor(equipmentID int32) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[equipmentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[equipmentID] = l
	}
	return l
}

func (s *Store) WithEquipmentLock(ctx context.Context, equipmentID int32, fn func(ctx context.Context, tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	s.mu.RLock()
	_, ok := s.equipment[equipmentID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("equipment %d: %w", equipmentID, domain.ErrNotFound)
	}

	l := s.lockFor(equipmentID)
	l.Lock()
	defer l.Unlock()

	t := newTxn()
	if err := fn(ctx, txRepos{view{s: s, tx: t}}); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

// txn stages writes made inside WithEquipmentLock until fn succeeds.
type txn struct {
	equipment    map[int32]domain.Equipment
	reservations map[int32]domain.Reservation
	loans        map[int32]domain.Loan
	rfidEvents   []domain.RfidEvent
}

func newTxn() *txn {
	return &txn{
		equipment:    make(map[int32]domain.Equipment),
		reservations: make(map[int32]domain.Reservation),
		loans:        make(map[int32]domain.Loan),
	}
}

func (s *Store) commit(t *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range t.equipment {
		s.equipment[id] = e
	}
	for id, r := range t.reservations {
		s.reservations[id] = r
	}
	for id, l := range t.loans {
		s.loans[id] = l
	}
	s.rfidEvents = append(s.rfidEvents, t.rfidEvents...)
}

type txRepos struct {
	v view
}

func (r txRepos) Equipment() repository.EquipmentRepository       { return &equipmentRepo{r.v} }
func (r txRepos) Reservations() repository.ReservationRepository { return &reservationRepo{r.v} }
func (r txRepos) Loans() repository.LoanRepository               { return &loanRepo{r.v} }
func (r txRepos) RfidEvents() repository.RfidEventRepository     { return &rfidRepo{r.v} }

// view reads through the staged writes of tx (when set) to the committed state.
type view struct {
	s  *Store
	tx *txn
}

func (v view) getEquipment(id int32) (domain.Equipment, bool) {
	if v.tx != nil {
		if e, ok := v.tx.equipment[id]; ok {
			return e, true
		}
	}
	e, ok := v.s.equipment[id]
	return e, ok
}

func (v view) putEquipment(e domain.Equipment) {
	if v.tx != nil {
		v.tx.equipment[e.ID] = e
		return
	}
	v.s.equipment[e.ID] = e
}

func (v view) getReservation(id int32) (domain.Reservation, bool) {
	if v.tx != nil {
		if r, ok := v.tx.reservations[id]; ok {
			return r, true
		}
	}
	r, ok := v.s.reservations[id]
	return r, ok
}

func (v view) putReservation(r domain.Reservation) {
	if v.tx != nil {
		v.tx.reservations[r.ID] = r
		return
	}
	v.s.reservations[r.ID] = r
}

func (v view) allReservations() []domain.Reservation {
	merged := make(map[int32]domain.Reservation, len(v.s.reservations))
	for id, r := range v.s.reservations {
		merged[id] = r
	}
	if v.tx != nil {
		for id, r := range v.tx.reservations {
			merged[id] = r
		}
	}
	out := make([]domain.Reservation, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out
}

func (v view) getLoan(id int32) (domain.Loan, bool) {
	if v.tx != nil {
		if l, ok := v.tx.loans[id]; ok {
			return l, true
		}
	}
	l, ok := v.s.loans[id]
	return l, ok
}

func (v view) putLoan(l domain.Loan) {
	if v.tx != nil {
		v.tx.loans[l.ReservationID] = l
		return
	}
	v.s.loans[l.ReservationID] = l
}

func (v view) allLoans() []domain.Loan {
	merged := make(map[int32]domain.Loan, len(v.s.loans))
	for id, l := range v.s.loans {
		merged[id] = l
	}
	if v.tx != nil {
		for id, l := range v.tx.loans {
			merged[id] = l
		}
	}
	out := make([]domain.Loan, 0, len(merged))
	for _, l := range merged {
		out = append(out, cloneLoan(l))
	}
	return out
}

// lock takes the data mutex for the duration of one repository call. Staged
// writes live in tx and belong to the goroutine holding the equipment lock.
func (v view) lock(write bool) func() {
	if write && v.tx == nil {
		v.s.mu.Lock()
		return v.s.mu.Unlock
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func hasStatus(s domain.ReservationStatus, statuses []domain.ReservationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Window.Start.Equal(rs[j].Window.Start) {
			return rs[i].Window.Start.Before(rs[j].Window.Start)
		}
		return rs[i].ID < rs[j].ID
	})
}
