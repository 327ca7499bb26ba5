// Package session owns the verification lifecycle of capture sessions:
// the only stateful part of the measurement pipeline.
package session

import "errors"

// State is a verification lifecycle state.
type State string

// Lifecycle states. Accepted and Abandoned are terminal.
const (
	StateCaptured      State = "captured"
	StatePendingReview State = "pending_review"
	StateAccepted      State = "accepted"
	StateRetaking      State = "retaking"
	StateAbandoned     State = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateAbandoned
}

// Reason explains what triggered a state transition.
type Reason string

// Transition reasons carried on emitted events.
const (
	ReasonAggregated         Reason = "aggregated"
	ReasonUserConfirmed      Reason = "user_confirmed"
	ReasonUserRejected       Reason = "user_rejected"
	ReasonGracePeriodExpired Reason = "grace_period_expired"
	ReasonUserAbandoned      Reason = "user_abandoned"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when the requested transition is
	// not legal from the session's current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSessionImmutable is returned when mutating an accepted session.
	ErrSessionImmutable = errors.New("accepted session is immutable")
	// ErrRetakeLimit is returned when starting a retake would exceed the
	// configured maximum. This is terminal for the capture chain and
	// requires manual intervention.
	ErrRetakeLimit = errors.New("maximum retake count exhausted")
	// ErrViewAlreadyCaptured is returned when a view is ingested twice
	// in the same session.
	ErrViewAlreadyCaptured = errors.New("view already captured in this session")
)
