package service

import (
	"context"
	"sort"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

// ConflictDetector finds approved or active reservations that overlap a
// candidate window. Callers that act on the answer must run it inside the
// equipment lock so the snapshot cannot go stale before the write.
type ConflictDetector struct{}

// NewConflictDetector returns a detector. It holds no state and is safe for
// concurrent use.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// FindConflicts returns the blocking reservations of the equipment whose
// window overlaps window, ordered by start then id. excludeID (0 for none)
// skips the reservation being re-evaluated.
func (d *ConflictDetector) FindConflicts(ctx context.Context, reservations repository.ReservationRepository, equipmentID int32, window domain.TimeWindow, excludeID int32) ([]domain.Reservation, error) {
	blocking, err := reservations.ListByEquipment(ctx, equipmentID, domain.BlockingStatuses...)
	if err != nil {
		return nil, err
	}

	conflicts := make([]domain.Reservation, 0)
	for _, r := range blocking {
		if r.ID == excludeID || !r.Status.Blocks() {
			continue
		}
		if r.Window.Overlaps(window) {
			conflicts = append(conflicts, r)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].Window.Start.Equal(conflicts[j].Window.Start) {
			return conflicts[i].Window.Start.Before(conflicts[j].Window.Start)
		}
		return conflicts[i].ID < conflicts[j].ID
	})
	return conflicts, nil
}

func reservationIDs(rs []domain.Reservation) []int32 {
	ids := make([]int32, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}
