package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/service"
)

func TestSchedulerService_ReturnReminderSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("Reminds once per due date", func(t *testing.T) {
		f := newFixture(t, true, service.WithReturnReminderLead(2*time.Hour))
		r := f.approved(t, alice, window(9, 12))
		f.now = at(9, 0)
		_, err := f.svc.Checkout(ctx, staff, r.ID, nil)
		require.NoError(t, err)

		reminded, err := f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)
		assert.Empty(t, reminded)

		f.now = at(10, 30)
		reminded, err = f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)
		require.Len(t, reminded, 1)
		assert.True(t, reminded[0].ReturnReminderSent)

		dueSoon := f.pub.published(domain.EventLoanDueSoon)
		require.Len(t, dueSoon, 1)
		assert.Equal(t, r.ID, dueSoon[0].ReservationID)
		assert.Equal(t, alice.UserID, dueSoon[0].RequesterID)
		assert.Equal(t, "90", dueSoon[0].Attributes["due_in_minutes"])

		f.now = at(11, 0)
		reminded, err = f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)
		assert.Empty(t, reminded)
		assert.Len(t, f.pub.published(domain.EventLoanDueSoon), 1)

		loan, err := f.svc.GetLoan(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, loan.ReturnReminderSent)
	})

	t.Run("Extension re-arms the reminder", func(t *testing.T) {
		f := newFixture(t, true, service.WithReturnReminderLead(time.Hour))
		r := f.approved(t, alice, window(9, 12))
		f.now = at(9, 0)
		_, err := f.svc.Checkout(ctx, staff, r.ID, nil)
		require.NoError(t, err)

		f.now = at(11, 15)
		_, err = f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)

		_, err = f.svc.ExtendLoan(ctx, staff, r.ID, at(15, 0))
		require.NoError(t, err)
		loan, err := f.svc.GetLoan(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, loan.ReturnReminderSent)

		reminded, err := f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)
		assert.Empty(t, reminded)

		f.now = at(14, 30)
		reminded, err = f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)
		require.Len(t, reminded, 1)
		assert.Len(t, f.pub.published(domain.EventLoanDueSoon), 2)
	})

	t.Run("Overdue and returned loans are skipped", func(t *testing.T) {
		f := newFixture(t, true)
		overdue := f.approved(t, alice, window(9, 10))
		returned := f.approved(t, bob, window(10, 11))
		f.now = at(9, 0)
		_, err := f.svc.Checkout(ctx, staff, overdue.ID, nil)
		require.NoError(t, err)
		_, err = f.svc.Checkout(ctx, staff, returned.ID, nil)
		require.NoError(t, err)
		f.now = at(10, 30)
		_, err = f.svc.Checkin(ctx, staff, returned.ID)
		require.NoError(t, err)

		reminded, err := f.svc.SweepReturnReminders(ctx)
		require.NoError(t, err)
		assert.Empty(t, reminded)
		assert.Empty(t, f.pub.published(domain.EventLoanDueSoon))
	})
}
