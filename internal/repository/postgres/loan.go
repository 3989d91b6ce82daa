package postgres

import (
	"context"
	"database/sql"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

const loanColumns = `reservation_id, checkout_at, expected_return_at, actual_return_at, return_reminder_sent`

type loanRepository struct {
	db querier
}

func NewLoanRepository(db querier) repository.LoanRepository {
	return &loanRepository{db: db}
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var (
		l        domain.Loan
		returned sql.NullTime
	)
	if err := row.Scan(&l.ReservationID, &l.CheckoutAt, &l.ExpectedReturnAt, &returned, &l.ReturnReminderSent); err != nil {
		return nil, err
	}
	l.CheckoutAt = domain.Naive(l.CheckoutAt)
	l.ExpectedReturnAt = domain.Naive(l.ExpectedReturnAt)
	l.ActualReturnAt = timePtr(returned)
	return &l, nil
}

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	query := `INSERT INTO equipment_loan (reservation_id, checkout_at, expected_return_at, actual_return_at, return_reminder_sent)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, l.ReservationID, l.CheckoutAt, l.ExpectedReturnAt, nullTime(l.ActualReturnAt), l.ReturnReminderSent)
	return classify(err)
}

func (r *loanRepository) GetByReservation(ctx context.Context, reservationID int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM equipment_loan WHERE reservation_id = $1`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, reservationID))
	if err != nil {
		return nil, notFound(err, "loan for reservation", reservationID)
	}
	return l, nil
}

func (r *loanRepository) Update(ctx context.Context, l *domain.Loan) error {
	query := `UPDATE equipment_loan SET expected_return_at = $1, actual_return_at = $2, return_reminder_sent = $3
	          WHERE reservation_id = $4`
	res, err := r.db.ExecContext(ctx, query, l.ExpectedReturnAt, nullTime(l.ActualReturnAt), l.ReturnReminderSent, l.ReservationID)
	return affectedOne(res, err, "loan for reservation", l.ReservationID)
}

func (r *loanRepository) ListOpen(ctx context.Context) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM equipment_loan WHERE actual_return_at IS NULL ORDER BY expected_return_at, reservation_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, classify(err)
		}
		loans = append(loans, *l)
	}
	return loans, classify(rows.Err())
}
