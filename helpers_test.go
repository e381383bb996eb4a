package statum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// testEntity is a domain object that records every pipeline callback
type testEntity struct {
	mu      sync.Mutex
	Counter int
	Allowed bool
	Veto    bool
	Calls   []string

	FailOn   string
	PanicOn  string
	handlers map[string]Callback
}

func newTestEntity() *testEntity {
	e := &testEntity{Allowed: true}
	e.handlers = map[string]Callback{
		"go": func(t *Transition, event string) error { return e.record("onGo", t, event) },
	}
	return e
}

func (e *testEntity) record(name string, t *Transition, event string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.PanicOn == name {
		panic(name)
	}
	e.Calls = append(e.Calls, fmt.Sprintf("%s:%s:%s", name, t.Name(), event))
	if e.FailOn == name {
		return errBoom
	}
	return nil
}

func (e *testEntity) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Calls...)
}

func (e *testEntity) OnCheckCanTransition(t *Transition, event string) (bool, error) {
	if err := e.record("OnCheckCanTransition", t, event); err != nil {
		return false, err
	}
	return !e.Veto, nil
}

func (e *testEntity) OnExitState(t *Transition, event string) error {
	return e.record("OnExitState", t, event)
}

func (e *testEntity) OnEvent(t *Transition, event string) error {
	return e.record("OnEvent", t, event)
}

func (e *testEntity) OnTransition(t *Transition, event string) error {
	return e.record("OnTransition", t, event)
}

func (e *testEntity) OnEnterState(t *Transition, event string) error {
	return e.record("OnEnterState", t, event)
}

func (e *testEntity) TriggerHandlers() map[string]Callback {
	return e.handlers
}

// newTestRegistry registers the rules and commands used across the tests
func newTestRegistry() *Registry {
	return NewRegistry().
		RegisterRule("IsAllowed", RuleFor(func(e *testEntity) (bool, error) { return e.Allowed, nil })).
		RegisterRule("IsGo", RuleWithEvent(func(_ *testEntity, event string) (bool, error) { return event == "go", nil })).
		RegisterRule("Broken", RuleFor(func(*testEntity) (bool, error) { return false, errBoom })).
		RegisterRule("Panics", RuleFor(func(*testEntity) (bool, error) { panic("rule") })).
		RegisterRule("Unbuildable", func(any) (Rule, error) { return nil, errBoom }).
		RegisterCommand("Inc", CommandFor(func(e *testEntity) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.Counter++
			return nil
		})).
		RegisterCommand("Record", CommandWithEvent(func(e *testEntity, event string) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.Calls = append(e.Calls, "Record:"+event)
			return nil
		})).
		RegisterCommand("Fail", CommandFor(func(*testEntity) error { return errBoom })).
		RegisterCommand("Unbuildable", func(any) (Command, error) { return nil, errBoom })
}

// newTestContext binds e to a fresh memory adapter
func newTestContext(machine string, e *testEntity) *EntityContext {
	return NewContext(context.Background(), NewIdentifier(machine, "1"), WithEntity(e))
}

// newTestMachine creates a machine over new -> a -> b -> done (final)
func newTestMachine(t *testing.T, e *testEntity, opts ...Option) *StateMachine {
	t.Helper()
	opts = append([]Option{WithRegistry(newTestRegistry())}, opts...)
	m, err := New(newTestContext("test", e), opts...)
	require.NoError(t, err)

	initial := NewState("new", AsInitial())
	a := NewState("a")
	b := NewState("b")
	done := NewState("done", AsFinal())
	require.NoError(t, m.AddTransitions(
		NewTransition(initial, a, WithEvent("go")),
		NewTransition(a, b, WithEvent("go")),
		NewTransition(b, done, WithEvent("finish")),
	))
	return m
}

// HookRecorder captures hook invocations in order
type HookRecorder struct {
	mu       sync.Mutex
	Calls    []string
	Failures []error
	Veto     bool
}

func (r *HookRecorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, s)
}

// Hooks returns hooks writing into the recorder
func (r *HookRecorder) Hooks() Hooks {
	return Hooks{
		BeforeCheck: func(_ *StateMachine, t *Transition, _ string) (bool, error) {
			r.add("BeforeCheck:" + t.Name())
			return !r.Veto, nil
		},
		BeforeExit: func(_ *StateMachine, t *Transition, _ string) error {
			r.add("BeforeExit:" + t.Name())
			return nil
		},
		OnTransition: func(_ *StateMachine, t *Transition, _ string) error {
			r.add("OnTransition:" + t.Name())
			return nil
		},
		AfterEnter: func(_ *StateMachine, t *Transition, _ string) error {
			r.add("AfterEnter:" + t.Name())
			return nil
		},
		OnFailure: func(_ *StateMachine, _ *Transition, _ string, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.Failures = append(r.Failures, err)
		},
	}
}

// AssertState checks the current state of m
func AssertState(t *testing.T, m *StateMachine, expected string) {
	t.Helper()
	current, err := m.CurrentState()
	require.NoError(t, err)
	require.Equal(t, expected, current.Name())
}
