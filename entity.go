package statum

// Entities opt into pipeline callbacks by implementing the interfaces below.
// A missing implementation is never an error: checks default to true and
// handlers to a no-op.

// TransitionChecker can veto a transition before its rules are evaluated
type TransitionChecker interface {
	OnCheckCanTransition(t *Transition, event string) (bool, error)
}

// StateExitHandler is called before the source state is exited
type StateExitHandler interface {
	OnExitState(t *Transition, event string) error
}

// EventHandler is called for transitions started by an event
type EventHandler interface {
	OnEvent(t *Transition, event string) error
}

// TransitionHandler is called before the transition commands run
type TransitionHandler interface {
	OnTransition(t *Transition, event string) error
}

// StateEnterHandler is called after the target state is stored
type StateEnterHandler interface {
	OnEnterState(t *Transition, event string) error
}

// Callback is an entity handler bound to a single trigger event
type Callback func(t *Transition, event string) error

// TriggerHandlerProvider maps trigger events to entity handlers, called
// after EventHandler for event driven transitions
type TriggerHandlerProvider interface {
	TriggerHandlers() map[string]Callback
}

// TriggerHandler is a machine level handler bound to a single trigger event
type TriggerHandler func(c Context, t *Transition, event string) error
