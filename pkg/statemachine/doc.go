// Package statemachine implements small finite state machines.
//
// A Definition is an immutable transition table built once, typically at
// package level. Each run of a process gets its own Machine from
// Definition.Start, so many runs can progress concurrently over one table.
//
//	const (
//		Pending = statemachine.StringState("pending")
//		Paid    = statemachine.StringState("paid")
//		Failed  = statemachine.StringState("failed")
//
//		Pay  = statemachine.StringEvent("pay")
//		Fail = statemachine.StringEvent("fail")
//	)
//
//	var orderFlow = statemachine.MustDefine(Pending,
//		statemachine.WithTransition(Pending, Paid, Pay),
//		statemachine.WithTransitionFromAny(Failed, Fail),
//		statemachine.WithTerminal(Paid, Failed),
//	)
//
//	m := orderFlow.Start()
//	if err := m.Fire(ctx, Pay, nil); err != nil {
//		// ErrNoTransitionAvailable or ErrTransitionRejected
//	}
//
// Guards decide whether a transition applies; the first transition whose
// guards all pass wins. Actions run before the state changes and abort the
// transition on error. Terminal states accept no events, including those
// registered with WithTransitionFromAny.
package statemachine
