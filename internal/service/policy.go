package service

import (
	"context"
	"fmt"
	"time"

	"equipment-scheduler/internal/domain"
)

// RequestPolicy is a caller-supplied rule evaluated before a reservation
// request is stored. The lifecycle itself has no opinion about windows in
// the past or very long windows.
type RequestPolicy interface {
	CheckRequest(ctx context.Context, actor domain.Actor, equipment *domain.Equipment, window domain.TimeWindow, now time.Time) error
}

// MaxDurationPolicy caps the length of a reservation window.
type MaxDurationPolicy struct {
	Max time.Duration
}

func (p MaxDurationPolicy) CheckRequest(_ context.Context, _ domain.Actor, _ *domain.Equipment, window domain.TimeWindow, _ time.Time) error {
	if p.Max > 0 && window.Duration() > p.Max {
		return fmt.Errorf("%w: window %s is longer than %s", domain.ErrPolicyViolation, window, p.Max)
	}
	return nil
}

// FutureStartPolicy refuses requests from non-staff actors whose window
// starts more than Grace before now. Staff may still back-date entries.
type FutureStartPolicy struct {
	Grace time.Duration
}

func (p FutureStartPolicy) CheckRequest(_ context.Context, actor domain.Actor, _ *domain.Equipment, window domain.TimeWindow, now time.Time) error {
	if actor.Kind == domain.ActorStaff {
		return nil
	}
	if window.Start.Before(domain.Naive(now).Add(-p.Grace)) {
		return fmt.Errorf("%w: window %s starts in the past", domain.ErrPolicyViolation, window)
	}
	return nil
}
