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

var readers = service.WithReaders([]domain.RfidReader{
	{ID: "desk-out", Location: "Loans desk", Custody: domain.CustodyCheckout},
	{ID: "desk-in", Location: "Returns desk", Custody: domain.CustodyCheckin},
	{ID: "hall", Location: "Main hall"},
})

var scanner = domain.SystemActor()

func TestSchedulerService_RecordScan(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown reader", func(t *testing.T) {
		f := newFixture(t, true, readers)
		_, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "attic", EquipmentID: f.equipmentID})
		assert.ErrorIs(t, err, domain.ErrUnknownReader)
	})

	t.Run("Location reader records only", func(t *testing.T) {
		f := newFixture(t, true, readers)
		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "hall", RfidTag: "TAG-PROJ-1"})
		require.NoError(t, err)
		assert.Empty(t, res.Action)
		assert.Equal(t, f.equipmentID, res.Equipment.ID)
		require.NotNil(t, res.Equipment.LastScan)
		assert.Equal(t, "Main hall", res.Equipment.LastScan.Location)

		scans, err := f.svc.ListScans(ctx, f.equipmentID, 10)
		require.NoError(t, err)
		require.Len(t, scans, 1)
		assert.Equal(t, "hall", scans[0].ReaderID)
		assert.Len(t, f.pub.published(domain.EventRfidScanRecorded), 1)
	})

	t.Run("Unknown tag", func(t *testing.T) {
		f := newFixture(t, true, readers)
		_, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "hall", RfidTag: "TAG-NONE"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Single candidate checks out and in", func(t *testing.T) {
		f := newFixture(t, true, readers)
		r := f.approved(t, alice, window(9, 12))

		f.now = at(9, 0)
		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "desk-out", EquipmentID: f.equipmentID})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionCheckout, res.Action)
		require.NotNil(t, res.Loan)
		assert.Equal(t, at(12, 0), res.Loan.ExpectedReturnAt)

		stored, err := f.svc.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusActive, stored.Status)

		checkedOut := f.pub.published(domain.EventLoanCheckedOut)
		require.Len(t, checkedOut, 1)
		assert.Equal(t, "desk-out", checkedOut[0].Attributes["reader_id"])
		assert.Equal(t, "system", checkedOut[0].Attributes["checked_out_by"])

		f.now = at(11, 0)
		res, err = f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "desk-in", RfidTag: "TAG-PROJ-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionCheckin, res.Action)

		loan, err := f.svc.GetLoan(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, loan.ActualReturnAt)
		assert.Equal(t, at(11, 0), *loan.ActualReturnAt)
	})

	t.Run("Ambiguous candidates are only recorded", func(t *testing.T) {
		f := newFixture(t, true, readers)
		first := f.approved(t, alice, window(9, 10))
		second := f.approved(t, bob, window(11, 12))

		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "desk-out", EquipmentID: f.equipmentID})
		require.NoError(t, err)
		assert.Empty(t, res.Action)
		assert.NotEmpty(t, res.Refused)

		for _, id := range []int32{first.ID, second.ID} {
			stored, err := f.svc.GetReservation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.ReservationStatusApproved, stored.Status)
		}
		scans, err := f.svc.ListScans(ctx, f.equipmentID, 0)
		require.NoError(t, err)
		assert.Len(t, scans, 1)
	})

	t.Run("No candidate at checkin reader", func(t *testing.T) {
		f := newFixture(t, true, readers)
		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "desk-in", EquipmentID: f.equipmentID})
		require.NoError(t, err)
		assert.Empty(t, res.Action)
		assert.Contains(t, res.Refused, "0 reservations")
	})

	t.Run("Requester cannot submit scans", func(t *testing.T) {
		f := newFixture(t, true, readers)
		r := f.approved(t, alice, window(9, 12))

		res, err := f.svc.RecordScan(ctx, bob, service.ScanRequest{ReaderID: "desk-out", EquipmentID: f.equipmentID})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, domain.ErrNotPermitted)

		stored, err := f.svc.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusApproved, stored.Status)
		scans, err := f.svc.ListScans(ctx, f.equipmentID, 0)
		require.NoError(t, err)
		assert.Empty(t, scans)
	})

	t.Run("Staff scan is attributed", func(t *testing.T) {
		f := newFixture(t, true, readers)
		f.approved(t, alice, window(9, 12))

		res, err := f.svc.RecordScan(ctx, staff, service.ScanRequest{ReaderID: "desk-out", EquipmentID: f.equipmentID})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionCheckout, res.Action)
		checkedOut := f.pub.published(domain.EventLoanCheckedOut)
		require.Len(t, checkedOut, 1)
		assert.Equal(t, "staff:1", checkedOut[0].Attributes["scanned_by"])
	})
}

func TestSchedulerService_RecordScanTimestamps(t *testing.T) {
	ctx := context.Background()

	t.Run("Late-arriving older scan keeps the newer position", func(t *testing.T) {
		f := newFixture(t, true, readers)
		f.now = at(10, 30)

		_, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "hall", EquipmentID: f.equipmentID, ScannedAt: at(10, 0)})
		require.NoError(t, err)
		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "desk-out", EquipmentID: f.equipmentID, ScannedAt: at(9, 0)})
		require.NoError(t, err)

		require.NotNil(t, res.Equipment.LastScan)
		assert.Equal(t, at(10, 0), res.Equipment.LastScan.ScannedAt)
		assert.Equal(t, "Main hall", res.Equipment.LastScan.Location)

		stored, err := f.store.Equipment().GetByID(ctx, f.equipmentID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastScan)
		assert.Equal(t, at(10, 0), stored.LastScan.ScannedAt)
		assert.Equal(t, "hall", stored.LastScan.ReaderID)

		scans, err := f.svc.ListScans(ctx, f.equipmentID, 0)
		require.NoError(t, err)
		assert.Len(t, scans, 2)
	})

	t.Run("Checkin stamped before checkout is refused", func(t *testing.T) {
		f := newFixture(t, true, readers)
		r := f.approved(t, alice, window(9, 12))

		f.now = at(10, 0)
		_, err := f.svc.Checkout(ctx, staff, r.ID, nil)
		require.NoError(t, err)

		f.now = at(10, 5)
		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "desk-in", EquipmentID: f.equipmentID, ScannedAt: at(8, 0)})
		require.NoError(t, err)
		assert.Empty(t, res.Action)
		assert.Contains(t, res.Refused, "precedes checkout")

		loan, err := f.svc.GetLoan(ctx, r.ID)
		require.NoError(t, err)
		assert.Nil(t, loan.ActualReturnAt)
		stored, err := f.svc.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusActive, stored.Status)
		assert.Empty(t, f.pub.published(domain.EventLoanReturned))

		scans, err := f.svc.ListScans(ctx, f.equipmentID, 0)
		require.NoError(t, err)
		assert.Len(t, scans, 1)
	})

	t.Run("Future-dated scan is rejected", func(t *testing.T) {
		f := newFixture(t, true, readers)
		f.now = at(10, 0)

		_, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "hall", EquipmentID: f.equipmentID, ScannedAt: at(11, 0)})
		assert.ErrorIs(t, err, domain.ErrInvalidScan)

		scans, err := f.svc.ListScans(ctx, f.equipmentID, 0)
		require.NoError(t, err)
		assert.Empty(t, scans)
	})

	t.Run("Small reader clock skew is tolerated", func(t *testing.T) {
		f := newFixture(t, true, readers)
		f.now = at(10, 0)

		res, err := f.svc.RecordScan(ctx, scanner, service.ScanRequest{ReaderID: "hall", EquipmentID: f.equipmentID,
			ScannedAt: at(10, 0).Add(30 * time.Second)})
		require.NoError(t, err)
		require.NotNil(t, res.Equipment.LastScan)
		assert.Equal(t, at(10, 0).Add(30*time.Second), res.Equipment.LastScan.ScannedAt)
	})
}
