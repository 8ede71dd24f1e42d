package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition needs a target state and an event")
	ErrInvalidEvent      = errors.New("statemachine: nil event")
	ErrInvalidState      = errors.New("statemachine: nil state")
)

// ErrNoTransitionAvailable is returned when the current state has no
// transition for the fired event.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("statemachine: no transition from %q on %q", e.StateName, e.EventName)
}

// NewErrNoTransitionAvailable builds an ErrNoTransitionAvailable.
func NewErrNoTransitionAvailable(state, event string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{StateName: state, EventName: event}
}

// ErrTransitionRejected is returned when transitions exist but every one
// of them was refused by a guard.
type ErrTransitionRejected struct {
	StateName string
	EventName string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("statemachine: guards rejected %q on %q", e.EventName, e.StateName)
}

// NewErrTransitionRejected builds an ErrTransitionRejected.
func NewErrTransitionRejected(state, event string) *ErrTransitionRejected {
	return &ErrTransitionRejected{StateName: state, EventName: event}
}

// IsNoTransitionAvailableError reports whether err wraps ErrNoTransitionAvailable.
func IsNoTransitionAvailableError(err error) bool {
	var target *ErrNoTransitionAvailable
	return errors.As(err, &target)
}

// IsTransitionRejectedError reports whether err wraps ErrTransitionRejected.
func IsTransitionRejectedError(err error) bool {
	var target *ErrTransitionRejected
	return errors.As(err, &target)
}
