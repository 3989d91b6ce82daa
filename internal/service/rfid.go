package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

// MaxScanClockSkew is how far ahead of the server clock a reader may stamp
// a scan before it is refused.
const MaxScanClockSkew = time.Minute

// RecordScan stores a tag read and, at custody readers, performs the single
// checkout or checkin the read unambiguously refers to. When zero or several
// reservations could be meant the scan is only recorded.
//
// Only staff and reader (system) actors may submit scans. A scan older than
// the equipment's last scan is kept in the log but does not move the
// last-known position.
func (s *schedulerService) RecordScan(ctx context.Context, actor domain.Actor, scan ScanRequest) (*ScanResult, error) {
	if actor.Kind != domain.ActorStaff && actor.Kind != domain.ActorSystem {
		return nil, domain.ErrNotPermitted
	}
	reader, ok := s.readers[scan.ReaderID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownReader, scan.ReaderID)
	}

	now := s.now()
	at := now
	if !scan.ScannedAt.IsZero() {
		at = domain.Naive(scan.ScannedAt)
		if at.After(now.Add(MaxScanClockSkew)) {
			return nil, fmt.Errorf("%w: scanned at %s is in the future", domain.ErrInvalidScan, at.Format(domain.DateTimeLayout))
		}
	}

	equipmentID := scan.EquipmentID
	if equipmentID == 0 {
		if scan.RfidTag == "" {
			return nil, fmt.Errorf("scan names no equipment: %w", domain.ErrNotFound)
		}
		eq, err := s.store.Equipment().GetByRfidTag(ctx, scan.RfidTag)
		if err != nil {
			return nil, err
		}
		equipmentID = eq.ID
	}

	result := &ScanResult{}
	var pending []domain.Event
	err := s.store.WithEquipmentLock(ctx, equipmentID, func(ctx context.Context, tx repository.Repositories) error {
		*result = ScanResult{}
		pending = pending[:0]

		eq, err := tx.Equipment().GetByID(ctx, equipmentID)
		if err != nil {
			return err
		}
		event := &domain.RfidEvent{
			EquipmentID: eq.ID,
			ReaderID:    reader.ID,
			Location:    reader.Location,
			ScannedAt:   at,
		}
		if err := tx.RfidEvents().Append(ctx, event); err != nil {
			return err
		}
		if eq.LastScan == nil || at.After(eq.LastScan.ScannedAt) {
			last := domain.RfidScan{ScannedAt: at, Location: reader.Location, ReaderID: reader.ID}
			if err := tx.Equipment().UpdateLastScan(ctx, eq.ID, last); err != nil {
				return err
			}
			eq.LastScan = &last
		}
		result.Event = *event
		result.Equipment = *eq

		recorded := domain.Event{ID: s.newID(), Type: domain.EventRfidScanRecorded, OccurredAt: at, EquipmentID: eq.ID,
			Attributes: map[string]string{"reader_id": reader.ID, "location": reader.Location, "scanned_by": actorLabel(actor)}}
		pending = append(pending, recorded)

		if reader.Custody == domain.CustodyNone {
			return nil
		}
		open, err := tx.Reservations().ListByEquipment(ctx, eq.ID, domain.ReservationStatusApproved, domain.ReservationStatusActive)
		if err != nil {
			return err
		}
		target, action, candidates, ok := s.custody.CustodyCandidate(reader.Custody, open)
		if !ok {
			result.Refused = fmt.Sprintf("%d reservations match a %s at reader %s, exactly one is required", candidates, action, reader.ID)
			return nil
		}

		var loan *domain.Loan
		var custodyEvents []domain.Event
		switch action {
		case domain.ActionCheckout:
			loan, custodyEvents, err = s.checkout(ctx, tx, domain.SystemActor(), &target, at, nil)
		case domain.ActionCheckin:
			loan, custodyEvents, err = s.checkin(ctx, tx, domain.SystemActor(), &target, at)
		}
		if err != nil {
			if isRefusal(err) {
				result.Refused = err.Error()
				return nil
			}
			return err
		}
		for i := range custodyEvents {
			custodyEvents[i].Attributes["reader_id"] = reader.ID
			custodyEvents[i].Attributes["scanned_by"] = actorLabel(actor)
		}
		pending = append(pending, custodyEvents...)
		result.Action = action
		result.Reservation = &target
		result.Loan = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "RFID scan recorded", "equipment_id", equipmentID, "reader_id", reader.ID,
		"action", result.Action, "refused", result.Refused)
	s.publish(ctx, pending...)
	return result, nil
}

// ListScans returns the newest scans of an equipment item first.
func (s *schedulerService) ListScans(ctx context.Context, equipmentID int32, limit int) ([]domain.RfidEvent, error) {
	if _, err := s.store.Equipment().GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	return s.store.RfidEvents().ListByEquipment(ctx, equipmentID, limit)
}

// isRefusal separates business-rule refusals, which leave the scan recorded,
// from store failures, which abort it.
func isRefusal(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidTransition,
		domain.ErrInvalidExtension,
		domain.ErrAlreadyReturned,
		domain.ErrNotPermitted,
		domain.ErrPrecedingActionRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
