package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine is one running instance of a Definition. It is safe for
// concurrent use.
type Machine struct {
	mu      sync.Mutex
	def     *Definition
	current State
	history []State
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns every state visited so far, in order.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Done reports whether the machine reached a terminal state.
func (m *Machine) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def.IsTerminal(m.current)
}

// Fire applies the first transition for event whose guards all pass.
// Actions run before the state changes; a failing action aborts the transition.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	transitions := m.def.candidates(m.current, event)
	if len(transitions) == 0 {
		return NewErrNoTransitionAvailable(m.current.Name(), event.Name())
	}

	t, ok := m.pick(ctx, transitions, event, data)
	if !ok {
		return NewErrTransitionRejected(m.current.Name(), event.Name())
	}

	for _, action := range t.Actions {
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = t.To
	m.history = append(m.history, t.To)
	return nil
}

// CanFire reports whether Fire would find a transition for event.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.pick(ctx, m.def.candidates(m.current, event), event, data)
	return ok
}

func (m *Machine) pick(ctx context.Context, transitions []Transition, event Event, data any) (Transition, bool) {
next:
	for _, t := range transitions {
		for _, guard := range t.Guards {
			if !guard(ctx, m.current, event, data) {
				continue next
			}
		}
		return t, true
	}
	return Transition{}, false
}
