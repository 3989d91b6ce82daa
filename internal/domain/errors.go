package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidWindow           = errors.New("invalid time window")
	ErrSchedulingConflict      = errors.New("scheduling conflict")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrPrecedingActionRequired = errors.New("preceding action required")
	ErrInvalidExtension        = errors.New("invalid loan extension")
	ErrAlreadyReturned         = errors.New("loan already returned")
	ErrNotFound                = errors.New("not found")
	ErrNotPermitted            = errors.New("actor not permitted")
	ErrUnknownReader           = errors.New("unknown rfid reader")
	ErrPolicyViolation         = errors.New("request policy violation")
	ErrInvalidScan             = errors.New("invalid rfid scan")

	// ErrTransient marks store failures (lock timeouts, serialization
	// failures, lost connections) that the caller may retry.
	ErrTransient = errors.New("transient store failure")
)

// ConflictError is returned when approval finds overlapping approved or
// active reservations on the same equipment.
type ConflictError struct {
	EquipmentID  int32
	ConflictIDs  []int32
	RequestedFor TimeWindow
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.ConflictIDs))
	for i, id := range e.ConflictIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("scheduling conflict on equipment %d for %s with reservations [%s]",
		e.EquipmentID, e.RequestedFor, strings.Join(ids, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}

// TransitionError describes an action the lifecycle table does not allow
// from the reservation's current status.
type TransitionError struct {
	From   ReservationStatus
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: cannot %s a %s reservation", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
