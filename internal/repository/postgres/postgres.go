package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
	"equipment-scheduler/internal/repository"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside an equipment lock.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repos struct {
	equipment    repository.EquipmentRepository
	reservations repository.ReservationRepository
	loans        repository.LoanRepository
	rfidEvents   repository.RfidEventRepository
}

func newRepos(q querier) repos {
	return repos{
		equipment:    NewEquipmentRepository(q),
		reservations: NewReservationRepository(q),
		loans:        NewLoanRepository(q),
		rfidEvents:   NewRfidEventRepository(q),
	}
}

func (r repos) Equipment() repository.EquipmentRepository       { return r.equipment }
func (r repos) Reservations() repository.ReservationRepository { return r.reservations }
func (r repos) Loans() repository.LoanRepository               { return r.loans }
func (r repos) RfidEvents() repository.RfidEventRepository     { return r.rfidEvents }

// Store is the postgres-backed repository.Store.
type Store struct {
	repos
	db          *sql.DB
	lockTimeout time.Duration
}

// Option configures NewStore.
type Option func(*Store)

// WithLockTimeout bounds how long a writer waits for another writer's
// equipment lock before failing with domain.ErrTransient.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// NewStore wraps an open database. Schema migrations are applied separately
// by Migrate.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		repos: newRepos(db),
		db:    db,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithEquipmentLock opens a read-committed transaction and takes a row lock
// on the equipment before running fn. Concurrent writers for the same
// equipment queue on the row; conflict checks made inside fn therefore see
// every committed approval.
func (s *Store) WithEquipmentLock(ctx context.Context, equipmentID int32, fn func(ctx context.Context, tx repository.Repositories) error) error {
	logger.DatabaseCall("BEGIN", "equipment lock", "equipmentID", equipmentID)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		logger.DatabaseResult("BEGIN", 0, err)
		return classify(err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(err)
		}
	}

	var id int32
	err = tx.QueryRowContext(ctx, `SELECT id FROM equipment WHERE id = $1 FOR UPDATE`, equipmentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("equipment %d: %w", equipmentID, domain.ErrNotFound)
	}
	if err != nil {
		logger.DatabaseResult("SELECT FOR UPDATE", 0, err, "equipmentID", equipmentID)
		return classify(err)
	}

	if err := fn(ctx, newRepos(tx)); err != nil {
		return err
	}

	err = tx.Commit()
	logger.DatabaseResult("COMMIT", 0, err, "equipmentID", equipmentID)
	return classify(err)
}

// classify marks retryable postgres failures with domain.ErrTransient. A
// violation of the reservation overlap exclusion becomes
// domain.ErrSchedulingConflict. Other errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", // lock_not_available
			"40001", // serialization_failure
			"40P01", // deadlock_detected
			"57014", // query_canceled (statement or lock timeout)
			"53300": // too_many_connections
			return fmt.Errorf("%w: %v", domain.ErrTransient, err)
		case "23P01": // exclusion_violation
			return fmt.Errorf("%w: %v", domain.ErrSchedulingConflict, err)
		}
		if pqErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return err
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, domain.ErrNotFound)
	}
	return classify(err)
}

func statusStrings(statuses []domain.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := domain.Naive(t.Time)
	return &v
}
