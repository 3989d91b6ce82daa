package service

import (
	"context"
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/repository"
)

// MaintenanceDuePredicate is supplied by the inventory subsystem.
type MaintenanceDuePredicate interface {
	MaintenanceDue(e *domain.Equipment, now time.Time) bool
}

// MaintenanceDueFunc adapts a plain function to MaintenanceDuePredicate.
type MaintenanceDueFunc func(e *domain.Equipment, now time.Time) bool

func (f MaintenanceDueFunc) MaintenanceDue(e *domain.Equipment, now time.Time) bool {
	return f(e, now)
}

// NextMaintenanceWithin treats equipment as due when its next maintenance
// date falls within lead of now (or has already passed).
func NextMaintenanceWithin(lead time.Duration) MaintenanceDueFunc {
	return func(e *domain.Equipment, now time.Time) bool {
		if e.NextMaintenance == nil {
			return false
		}
		return !e.NextMaintenance.After(domain.Naive(now).Add(lead))
	}
}

// MaintenanceGate is a one-shot latch per equipment item: a persistent due
// condition raises one alert until the latch is reset after service.
type MaintenanceGate struct {
	due MaintenanceDuePredicate
}

// NewMaintenanceGate builds a gate that alerts when due reports true.
func NewMaintenanceGate(due MaintenanceDuePredicate) *MaintenanceGate {
	return &MaintenanceGate{due: due}
}

// ShouldAlert is true when maintenance is due and the latch is still armed.
func (g *MaintenanceGate) ShouldAlert(e *domain.Equipment, now time.Time) bool {
	return !e.MaintenanceAlertSent && g.due.MaintenanceDue(e, now)
}

// MarkAlerted persists the latch and mirrors it on e.
func (g *MaintenanceGate) MarkAlerted(ctx context.Context, repo repository.EquipmentRepository, e *domain.Equipment) error {
	if err := repo.SetMaintenanceAlert(ctx, e.ID, true); err != nil {
		return err
	}
	e.MaintenanceAlertSent = true
	return nil
}

// ResetAlert re-arms the latch.
func (g *MaintenanceGate) ResetAlert(ctx context.Context, repo repository.EquipmentRepository, e *domain.Equipment) error {
	if err := repo.SetMaintenanceAlert(ctx, e.ID, false); err != nil {
		return err
	}
	e.MaintenanceAlertSent = false
	return nil
}
