package service_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository/memory"
	"equipment-scheduler/internal/service"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func window(startHour, endHour int) domain.TimeWindow {
	return domain.TimeWindow{Start: at(startHour, 0), End: at(endHour, 0)}
}

var (
	staff = domain.Actor{UserID: 1, Kind: domain.ActorStaff}
	alice = domain.Actor{UserID: 7, Kind: domain.ActorRequester}
	bob   = domain.Actor{UserID: 8, Kind: domain.ActorRequester}
	carol = domain.Actor{UserID: 9, Kind: domain.ActorRequester}
)

type fixture struct {
	store       *memory.Store
	pub         *MockPublisher
	svc         service.SchedulerService
	now         time.Time
	equipmentID int32
}

func newFixture(t *testing.T, requiresApproval bool, opts ...service.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), pub: new(MockPublisher), now: at(8, 0)}
	tag := "TAG-PROJ-1"
	eq := f.store.AddEquipment(domain.Equipment{Name: "Projector", RfidTag: &tag, RequiresApproval: requiresApproval})
	f.equipmentID = eq.ID
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	opts = append([]service.Option{service.WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = service.NewSchedulerService(f.store, f.pub, opts...)
	return f
}

func (f *fixture) approved(t *testing.T, actor domain.Actor, w domain.TimeWindow) *domain.Reservation {
	t.Helper()
	r, err := f.svc.RequestReservation(context.Background(), actor, f.equipmentID, w)
	require.NoError(t, err)
	r, err = f.svc.Approve(context.Background(), staff, r.ID)
	require.NoError(t, err)
	return r
}

func TestSchedulerService_ApprovalConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	first, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, window(9, 12))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPending, first.Status)

	first, err = f.svc.Approve(ctx, staff, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, first.Status)

	t.Run("Overlapping approval fails", func(t *testing.T) {
		second, err := f.svc.RequestReservation(ctx, bob, f.equipmentID, window(11, 13))
		require.NoError(t, err)

		res, err := f.svc.Approve(ctx, staff, second.ID)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, domain.ErrSchedulingConflict)

		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, []int32{first.ID}, conflict.ConflictIDs)

		stored, err := f.svc.GetReservation(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusPending, stored.Status)

		rejected := f.pub.published(domain.EventConflictRejected)
		require.Len(t, rejected, 1)
		assert.Equal(t, second.ID, rejected[0].ReservationID)
		assert.Equal(t, []int32{first.ID}, rejected[0].ConflictIDs)
	})

	t.Run("Touching windows do not conflict", func(t *testing.T) {
		third, err := f.svc.RequestReservation(ctx, carol, f.equipmentID, window(12, 14))
		require.NoError(t, err)

		res, err := f.svc.Approve(ctx, staff, third.ID)
		assert.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusApproved, res.Status)
	})

	t.Run("Approve twice", func(t *testing.T) {
		_, err := f.svc.Approve(ctx, staff, first.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Requester cannot approve", func(t *testing.T) {
		r, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, window(15, 16))
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, alice, r.ID)
		assert.ErrorIs(t, err, domain.ErrNotPermitted)
	})

	t.Run("Availability lists blockers", func(t *testing.T) {
		blockers, err := f.svc.CheckAvailability(ctx, f.equipmentID, window(10, 13))
		require.NoError(t, err)
		require.Len(t, blockers, 2)
		assert.Equal(t, first.ID, blockers[0].ID)
	})
}

func TestSchedulerService_RequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	t.Run("Invalid window", func(t *testing.T) {
		_, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, window(12, 12))
		assert.ErrorIs(t, err, domain.ErrInvalidWindow)
		_, err = f.svc.RequestReservation(ctx, alice, f.equipmentID, window(12, 9))
		assert.ErrorIs(t, err, domain.ErrInvalidWindow)
	})

	t.Run("Longer than the maximum", func(t *testing.T) {
		w := domain.TimeWindow{Start: at(9, 0), End: at(9, 0).Add(8 * 24 * time.Hour)}
		_, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, w)
		assert.ErrorIs(t, err, domain.ErrPolicyViolation)
	})

	t.Run("Unknown equipment", func(t *testing.T) {
		_, err := f.svc.RequestReservation(ctx, alice, 999, window(9, 10))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("System cannot request", func(t *testing.T) {
		_, err := f.svc.RequestReservation(ctx, domain.SystemActor(), f.equipmentID, window(9, 10))
		assert.ErrorIs(t, err, domain.ErrNotPermitted)
	})

	mine, err := f.svc.ListRequesterReservations(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestSchedulerService_AutoApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	first, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, window(9, 12))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, first.Status)

	second, err := f.svc.RequestReservation(ctx, bob, f.equipmentID, window(10, 11))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPending, second.Status)

	rejected := f.pub.published(domain.EventConflictRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, []int32{first.ID}, rejected[0].ConflictIDs)
	assert.Len(t, f.pub.published(domain.EventReservationApproved), 1)
	assert.Len(t, f.pub.published(domain.EventReservationRequested), 2)
}

func TestSchedulerService_LoanLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	r := f.approved(t, alice, window(9, 12))

	f.now = at(9, 5)
	loan, err := f.svc.Checkout(ctx, staff, r.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, at(12, 0), loan.ExpectedReturnAt)
	assert.Equal(t, at(9, 5), loan.CheckoutAt)
	assert.Nil(t, loan.ActualReturnAt)

	t.Run("Cancel with equipment out", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, alice, r.ID, "changed plans")
		assert.ErrorIs(t, err, domain.ErrPrecedingActionRequired)

		stored, err := f.svc.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusActive, stored.Status)
	})

	t.Run("Extend earlier is refused", func(t *testing.T) {
		_, err := f.svc.ExtendLoan(ctx, staff, r.ID, at(11, 0))
		assert.ErrorIs(t, err, domain.ErrInvalidExtension)

		stored, err := f.svc.GetLoan(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, at(12, 0), stored.ExpectedReturnAt)
	})

	t.Run("Extend later", func(t *testing.T) {
		extended, err := f.svc.ExtendLoan(ctx, staff, r.ID, at(15, 0))
		require.NoError(t, err)
		assert.Equal(t, at(15, 0), extended.ExpectedReturnAt)
		assert.Len(t, f.pub.published(domain.EventLoanExtended), 1)
	})

	t.Run("Requester cannot extend", func(t *testing.T) {
		_, err := f.svc.ExtendLoan(ctx, alice, r.ID, at(16, 0))
		assert.ErrorIs(t, err, domain.ErrNotPermitted)
	})

	f.now = at(14, 30)
	returned, err := f.svc.Checkin(ctx, staff, r.ID)
	require.NoError(t, err)
	require.NotNil(t, returned.ActualReturnAt)
	assert.Equal(t, at(14, 30), *returned.ActualReturnAt)

	stored, err := f.svc.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCompleted, stored.Status)

	t.Run("Checkin twice", func(t *testing.T) {
		_, err := f.svc.Checkin(ctx, staff, r.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Cancel after checkin", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, alice, r.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Extend after return", func(t *testing.T) {
		_, err := f.svc.ExtendLoan(ctx, staff, r.ID, at(18, 0))
		assert.ErrorIs(t, err, domain.ErrAlreadyReturned)
	})

	returnedEvents := f.pub.published(domain.EventLoanReturned)
	require.Len(t, returnedEvents, 1)
	assert.Equal(t, "false", returnedEvents[0].Attributes["late"])
}

func TestSchedulerService_CheckoutOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	r := f.approved(t, alice, window(9, 12))

	earlier := at(10, 0)
	_, err := f.svc.Checkout(ctx, staff, r.ID, &earlier)
	assert.ErrorIs(t, err, domain.ErrInvalidExtension)

	stored, err := f.svc.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, stored.Status)
	_, err = f.svc.GetLoan(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	later := at(13, 0)
	loan, err := f.svc.Checkout(ctx, staff, r.ID, &later)
	require.NoError(t, err)
	assert.Equal(t, later, loan.ExpectedReturnAt)
}

func TestSchedulerService_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	t.Run("Owner cancels pending", func(t *testing.T) {
		r, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, window(9, 10))
		require.NoError(t, err)
		res, err := f.svc.Cancel(ctx, alice, r.ID, "no longer needed")
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusCancelled, res.Status)

		cancelled := f.pub.published(domain.EventReservationCancelled)
		require.Len(t, cancelled, 1)
		assert.Equal(t, "no longer needed", cancelled[0].Attributes["reason"])
		assert.Equal(t, "pending", cancelled[0].Attributes["previous_status"])
	})

	t.Run("Other requester cannot cancel", func(t *testing.T) {
		r := f.approved(t, alice, window(10, 11))
		_, err := f.svc.Cancel(ctx, bob, r.ID, "")
		assert.ErrorIs(t, err, domain.ErrNotPermitted)
	})

	t.Run("Cancelled reservation frees the window", func(t *testing.T) {
		r := f.approved(t, alice, window(13, 15))
		_, err := f.svc.Cancel(ctx, staff, r.ID, "")
		require.NoError(t, err)

		other, err := f.svc.RequestReservation(ctx, bob, f.equipmentID, window(13, 15))
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, staff, other.ID)
		assert.NoError(t, err)
	})

	t.Run("Reject approved", func(t *testing.T) {
		r := f.approved(t, carol, window(16, 17))
		res, err := f.svc.Reject(ctx, staff, r.ID, "equipment withdrawn")
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusRejected, res.Status)

		_, err = f.svc.Cancel(ctx, carol, r.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestSchedulerService_OverdueSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	r := f.approved(t, alice, window(9, 12))
	_, err := f.svc.Checkout(ctx, staff, r.ID, nil)
	require.NoError(t, err)

	f.now = at(11, 0)
	overdue, err := f.svc.SweepOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.now = at(13, 0)
	overdue, err = f.svc.SweepOverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, r.ID, overdue[0].ReservationID)

	events := f.pub.published(domain.EventLoanOverdue)
	require.Len(t, events, 1)
	assert.Equal(t, alice.UserID, events[0].RequesterID)
	assert.Equal(t, "60", events[0].Attributes["overdue_minutes"])

	_, err = f.svc.Checkin(ctx, staff, r.ID)
	require.NoError(t, err)
	overdue, err = f.svc.ListOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	late := f.pub.published(domain.EventLoanReturned)
	require.Len(t, late, 1)
	assert.Equal(t, "true", late[0].Attributes["late"])
}

func TestSchedulerService_ConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	const requests = 12
	ids := make([]int32, requests)
	for i := range ids {
		actor := domain.Actor{UserID: int32(100 + i), Kind: domain.ActorRequester}
		r, err := f.svc.RequestReservation(ctx, actor, f.equipmentID, window(9+i%3, 13))
		require.NoError(t, err)
		ids[i] = r.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, requests)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int32) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(ctx, staff, id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSchedulingConflict)
	}
	assert.Equal(t, 1, succeeded)

	approved, err := f.svc.ListEquipmentReservations(ctx, f.equipmentID, domain.ReservationStatusApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestSchedulerService_RandomInterleavingsKeepWindowsDisjoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	walkIn := f.store.AddEquipment(domain.Equipment{Name: "Tripod", RequiresApproval: false})
	equipment := []int32{f.equipmentID, walkIn.ID}
	requesters := []domain.Actor{alice, bob, carol}

	type owned struct {
		id    int32
		owner domain.Actor
	}
	var (
		mu    sync.Mutex
		known []owned
	)
	pick := func(rng *rand.Rand) (owned, bool) {
		mu.Lock()
		defer mu.Unlock()
		if len(known) == 0 {
			return owned{}, false
		}
		return known[rng.Intn(len(known))], true
	}
	expected := []error{
		domain.ErrSchedulingConflict,
		domain.ErrInvalidTransition,
		domain.ErrPrecedingActionRequired,
	}

	const (
		workers = 8
		steps   = 60
	)
	seed := time.Now().UnixNano()
	t.Logf("seed %d", seed)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(rng *rand.Rand) {
			defer wg.Done()
			for i := 0; i < steps; i++ {
				var err error
				switch op := rng.Intn(6); op {
				case 0:
					actor := requesters[rng.Intn(len(requesters))]
					start := 8 + rng.Intn(10)
					var r *domain.Reservation
					r, err = f.svc.RequestReservation(ctx, actor, equipment[rng.Intn(len(equipment))], window(start, start+1+rng.Intn(3)))
					if err == nil {
						mu.Lock()
						known = append(known, owned{id: r.ID, owner: actor})
						mu.Unlock()
					}
				default:
					target, ok := pick(rng)
					if !ok {
						continue
					}
					switch op {
					case 1:
						_, err = f.svc.Approve(ctx, staff, target.id)
					case 2:
						_, err = f.svc.Reject(ctx, staff, target.id, "")
					case 3:
						_, err = f.svc.Cancel(ctx, target.owner, target.id, "")
					case 4:
						_, err = f.svc.Checkout(ctx, staff, target.id, nil)
					case 5:
						_, err = f.svc.Checkin(ctx, staff, target.id)
					}
				}
				if err == nil {
					continue
				}
				matched := false
				for _, want := range expected {
					matched = matched || errors.Is(err, want)
				}
				assert.True(t, matched, "unexpected error: %v", err)
			}
		}(rand.New(rand.NewSource(seed + int64(w))))
	}
	wg.Wait()

	for _, id := range equipment {
		blocking, err := f.svc.ListEquipmentReservations(ctx, id, domain.BlockingStatuses...)
		require.NoError(t, err)
		for i := range blocking {
			for j := i + 1; j < len(blocking); j++ {
				assert.False(t, blocking[i].Window.Overlaps(blocking[j].Window),
					"equipment %d: reservations %d %s and %d %s overlap", id,
					blocking[i].ID, blocking[i].Window, blocking[j].ID, blocking[j].Window)
			}
			if blocking[i].Status == domain.ReservationStatusActive {
				loan, err := f.svc.GetLoan(ctx, blocking[i].ID)
				require.NoError(t, err)
				assert.False(t, loan.IsReturned(), "active reservation %d has a returned loan", blocking[i].ID)
			}
		}
	}
}

func TestSchedulerService_PublishFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.pub.ExpectedCalls = nil
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	r, err := f.svc.RequestReservation(ctx, alice, f.equipmentID, window(9, 10))
	require.NoError(t, err)
	res, err := f.svc.Approve(ctx, staff, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, res.Status)
	f.pub.AssertNumberOfCalls(t, "Publish", 2)
}
