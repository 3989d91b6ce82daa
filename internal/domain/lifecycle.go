package domain

// Action is a reservation lifecycle transition.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCheckout Action = "checkout"
	ActionCheckin  Action = "checkin"
	ActionCancel   Action = "cancel"
	ActionExtend   Action = "extend"
)

// ActorKind decides which actions an actor may perform.
type ActorKind string

const (
	ActorRequester ActorKind = "requester"
	ActorStaff     ActorKind = "staff"
	ActorSystem    ActorKind = "system"
)

// Actor is whoever triggers an operation: a person identified by the
// identity subsystem, or the system itself (RFID custody readers).
type Actor struct {
	UserID int32     `json:"user_id"`
	Kind   ActorKind `json:"kind"`
}

// SystemActor is the actor used for transitions triggered by custody readers.
func SystemActor() Actor {
	return Actor{Kind: ActorSystem}
}

// transitions is the reservation lifecycle. A (status, action) pair missing
// from the table is an invalid transition.
var transitions = map[ReservationStatus]map[Action]ReservationStatus{
	ReservationStatusPending: {
		ActionApprove: ReservationStatusApproved,
		ActionReject:  ReservationStatusRejected,
		ActionCancel:  ReservationStatusCancelled,
	},
	ReservationStatusApproved: {
		ActionCheckout: ReservationStatusActive,
		ActionReject:   ReservationStatusRejected,
		ActionCancel:   ReservationStatusCancelled,
	},
	ReservationStatusActive: {
		ActionCheckin: ReservationStatusCompleted,
		ActionCancel:  ReservationStatusCancelled,
	},
}

var permittedActors = map[Action][]ActorKind{
	ActionApprove:  {ActorStaff},
	ActionReject:   {ActorStaff},
	ActionCheckout: {ActorStaff, ActorSystem},
	ActionCheckin:  {ActorStaff, ActorSystem},
	ActionExtend:   {ActorStaff, ActorSystem},
	ActionCancel:   {ActorRequester, ActorStaff},
}

// NextStatus looks up the status reached by applying action to from.
func NextStatus(from ReservationStatus, action Action) (ReservationStatus, error) {
	to, ok := transitions[from][action]
	if !ok {
		return "", &TransitionError{From: from, Action: action}
	}
	return to, nil
}

// CanPerform checks the actor side of the table. Requesters may only act on
// their own reservations.
func CanPerform(actor Actor, action Action, r *Reservation) error {
	for _, kind := range permittedActors[action] {
		if kind != actor.Kind {
			continue
		}
		if kind == ActorRequester && r != nil && r.RequesterID != actor.UserID {
			return ErrNotPermitted
		}
		return nil
	}
	return ErrNotPermitted
}

// Apply moves the reservation along the lifecycle table.
func (r *Reservation) Apply(action Action) error {
	to, err := NextStatus(r.Status, action)
	if err != nil {
		return err
	}
	r.Status = to
	return nil
}
