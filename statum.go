// Package statum provides a finite state machine engine for Go that drives
// domain entities through named states, either by applying transitions by
// name or by handling trigger events, with guard rules, commands and
// pluggable persistence.
//
// A machine is made of States and Transitions. Guard rules and commands are
// referenced by name and resolved against a Registry when a transition is
// added:
//
//	reg := statum.NewRegistry().
//		RegisterRule("IsPaid", statum.RuleFor(func(o *Order) (bool, error) { return o.Paid, nil })).
//		RegisterCommand("Ship", statum.CommandFor(func(o *Order) error { return o.Ship() }))
//
//	bp, err := statum.NewBuilder("order").
//		State("new").Initial().To("shipped").On("ship").When("IsPaid").Do("Ship").
//		State("shipped").Final().
//		Build()
//
//	c := statum.NewContext(ctx, statum.NewIdentifier("order", order.ID), statum.WithEntity(order))
//	m, err := bp.NewMachine(c, statum.WithRegistry(reg))
//	ok, err := m.Handle("ship")
//
// Every transition runs the same pipeline: the guard phase (hooks, the
// entity TransitionChecker and the rules), the exit phase, the transition
// phase (handlers, commands, closure and the state write) and the entry
// phase. A guard that does not apply is not an error; every other failure is
// returned as an *Error and recorded on the Context.
package statum
