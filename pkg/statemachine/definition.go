package statemachine

import "fmt"

// Definition is an immutable transition table. Build it once and start any
// number of independent Machines from it.
type Definition struct {
	initial   State
	terminal  map[string]bool
	specific  map[string]map[string][]Transition
	wildcards map[string][]Transition
}

// Option configures a Definition during construction.
type Option func(*Definition) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*Transition)

// Define builds a transition table starting at initial.
func Define(initial State, opts ...Option) (*Definition, error) {
	if initial == nil {
		return nil, ErrInvalidState
	}

	d := &Definition{
		initial:   initial,
		terminal:  make(map[string]bool),
		specific:  make(map[string]map[string][]Transition),
		wildcards: make(map[string][]Transition),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustDefine is Define that panics on error. Use it for package-level tables.
func MustDefine(initial State, opts ...Option) *Definition {
	d, err := Define(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to define state machine: %v", err))
	}
	return d
}

// Initial returns the state every Machine starts in.
func (d *Definition) Initial() State {
	return d.initial
}

// IsTerminal reports whether no event may leave s.
func (d *Definition) IsTerminal(s State) bool {
	return s != nil && d.terminal[s.Name()]
}

// Start creates a Machine positioned at the initial state.
func (d *Definition) Start() *Machine {
	return &Machine{def: d, current: d.initial, history: []State{d.initial}}
}

// WithTransition adds a transition from one state to another.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		if from == nil || to == nil || event == nil {
			return ErrInvalidTransition
		}
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}

		byEvent, ok := d.specific[from.Name()]
		if !ok {
			byEvent = make(map[string][]Transition)
			d.specific[from.Name()] = byEvent
		}
		byEvent[event.Name()] = append(byEvent[event.Name()], t)
		return nil
	}
}

// WithTransitionFromAny adds a transition available in every non-terminal
// state. Specific transitions take precedence.
func WithTransitionFromAny(to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		if to == nil || event == nil {
			return ErrInvalidTransition
		}
		t := Transition{To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		d.wildcards[event.Name()] = append(d.wildcards[event.Name()], t)
		return nil
	}
}

// WithTerminal marks states that accept no further events.
func WithTerminal(states ...State) Option {
	return func(d *Definition) error {
		for _, s := range states {
			if s == nil {
				return ErrInvalidState
			}
			d.terminal[s.Name()] = true
		}
		return nil
	}
}

// WithGuard adds a guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(t *Transition) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}

// WithAction adds an action to a transition.
func WithAction(action Action) TransitionOption {
	return func(t *Transition) {
		if action != nil {
			t.Actions = append(t.Actions, action)
		}
	}
}

// candidates returns the transitions to consider for event in state s, most
// specific first.
func (d *Definition) candidates(s State, event Event) []Transition {
	if d.terminal[s.Name()] {
		return nil
	}
	var out []Transition
	if byEvent, ok := d.specific[s.Name()]; ok {
		out = append(out, byEvent[event.Name()]...)
	}
	return append(out, d.wildcards[event.Name()]...)
}
