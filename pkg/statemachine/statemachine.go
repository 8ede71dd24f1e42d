package statemachine

import "context"

// State is a named node of a definition.
type State interface {
	Name() string
}

// Event is a named trigger.
type Event interface {
	Name() string
}

// Action runs while a transition is taken. A non-nil error aborts the
// transition and leaves the machine in its source state.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard decides whether a transition may be taken for the given payload.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition moves the machine from From to To when Event fires.
type Transition struct {
	From    State // nil matches every non-terminal state
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// StringState is a State named by its own value.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event named by its own value.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
