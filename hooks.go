package statum

import "fmt"

// CheckHook runs first in the guard phase; returning false vetoes the transition
type CheckHook func(m *StateMachine, t *Transition, event string) (bool, error)

// Hook runs at a fixed point of the transition pipeline
type Hook func(m *StateMachine, t *Transition, event string) error

// FailureHook is told about every error raised inside the pipeline
type FailureHook func(m *StateMachine, t *Transition, event string, err error)

// Hooks groups the pipeline callbacks of one extension. Nil fields are skipped.
type Hooks struct {
	// BeforeCheck runs before the entity check and the transition rules
	BeforeCheck CheckHook
	// BeforeExit runs before the source state is exited
	BeforeExit Hook
	// OnTransition runs before the entity transition handlers
	OnTransition Hook
	// AfterEnter runs after the target state is entered
	AfterEnter Hook
	// OnFailure runs after a failed transition was recorded on the context
	OnFailure FailureHook
}

// hookManager runs registered hooks in registration order
type hookManager struct {
	hooks []Hooks
}

func (hm *hookManager) add(h Hooks) {
	hm.hooks = append(hm.hooks, h)
}

func (hm *hookManager) snapshot() []Hooks {
	hooks := make([]Hooks, len(hm.hooks))
	copy(hooks, hm.hooks)
	return hooks
}

func (hm *hookManager) beforeCheck(m *StateMachine, t *Transition, event string) (bool, error) {
	for _, h := range hm.snapshot() {
		if h.BeforeCheck == nil {
			continue
		}
		ok, err := safeCheckHook(h.BeforeCheck, m, t, event)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (hm *hookManager) run(stage string, pick func(Hooks) Hook, m *StateMachine, t *Transition, event string) error {
	for _, h := range hm.snapshot() {
		hook := pick(h)
		if hook == nil {
			continue
		}
		if err := safeHook(stage, hook, m, t, event); err != nil {
			return err
		}
	}
	return nil
}

func (hm *hookManager) beforeExit(m *StateMachine, t *Transition, event string) error {
	return hm.run("BeforeExit", func(h Hooks) Hook { return h.BeforeExit }, m, t, event)
}

func (hm *hookManager) onTransition(m *StateMachine, t *Transition, event string) error {
	return hm.run("OnTransition", func(h Hooks) Hook { return h.OnTransition }, m, t, event)
}

func (hm *hookManager) afterEnter(m *StateMachine, t *Transition, event string) error {
	return hm.run("AfterEnter", func(h Hooks) Hook { return h.AfterEnter }, m, t, event)
}

func (hm *hookManager) onFailure(m *StateMachine, t *Transition, event string, err error) {
	for _, h := range hm.snapshot() {
		if h.OnFailure == nil {
			continue
		}
		func() {
			// a failing failure hook must not mask the original error
			defer func() { _ = recover() }()
			h.OnFailure(m, t, event, err)
		}()
	}
}

func safeCheckHook(hook CheckHook, m *StateMachine, t *Transition, event string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("hook panic in BeforeCheck: %v", r)
		}
	}()
	return hook(m, t, event)
}

func safeHook(stage string, hook Hook, m *StateMachine, t *Transition, event string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic in %s: %v", stage, r)
		}
	}()
	return hook(m, t, event)
}

// safeCall runs an entity callback, converting a panic into an error
func safeCall(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", name, r)
		}
	}()
	return fn()
}
