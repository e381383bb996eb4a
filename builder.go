package statum

import (
	"errors"
	"fmt"
)

// MachineBuilder provides the main entry point for describing a machine
type MachineBuilder interface {
	State(name string) StateBuilder
	Build() (*Blueprint, error)
}

// StateBuilder configures one state and the transitions leaving it
type StateBuilder interface {
	To(target string) TransitionBuilder

	Initial() StateBuilder
	Final() StateBuilder
	OnEntry(commands ...string) StateBuilder
	OnExit(commands ...string) StateBuilder
	Describe(description string) StateBuilder

	State(name string) StateBuilder
	Build() (*Blueprint, error)
}

// TransitionBuilder configures one transition
type TransitionBuilder interface {
	// Event binding
	On(event string) TransitionBuilder

	// Guard rules, all of which must apply
	When(rules ...string) TransitionBuilder

	// Commands and the inline closure
	Do(commands ...string) TransitionBuilder
	Closure(fn Closure) TransitionBuilder

	Describe(description string) TransitionBuilder
	Meta(key, value string) TransitionBuilder

	// Another transition from the same state
	To(target string) TransitionBuilder

	// Navigation back
	State(name string) StateBuilder
	Build() (*Blueprint, error)
}

type stateDef struct {
	name string
	opts []StateOption
}

type transitionDef struct {
	from string
	to   string
	opts []TransitionOption
}

type machineBuilderImpl struct {
	name        string
	states      map[string]*stateDef
	stateOrder  []string
	transitions []*transitionDef
}

// NewBuilder creates a builder for the machine with the given name
func NewBuilder(name string) MachineBuilder {
	return &machineBuilderImpl{
		name:   name,
		states: make(map[string]*stateDef),
	}
}

func (mb *machineBuilderImpl) def(name string) *stateDef {
	if s, ok := mb.states[name]; ok {
		return s
	}
	s := &stateDef{name: name}
	mb.states[name] = s
	mb.stateOrder = append(mb.stateOrder, name)
	return s
}

// State creates or reopens a state
func (mb *machineBuilderImpl) State(name string) StateBuilder {
	return &stateBuilderImpl{machineBuilder: mb, state: mb.def(name)}
}

// Build creates the states and transitions
func (mb *machineBuilderImpl) Build() (*Blueprint, error) {
	if err := mb.validate(); err != nil {
		return nil, err
	}

	bp := &Blueprint{name: mb.name}
	states := make(map[string]*State, len(mb.states))
	var errs []error
	for _, name := range mb.stateOrder {
		def := mb.states[name]
		s, err := ParseState(def.name, def.opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		states[name] = s
		bp.states = append(bp.states, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, def := range mb.transitions {
		bp.transitions = append(bp.transitions, NewTransition(states[def.from], states[def.to], def.opts...))
	}
	return bp, nil
}

func (mb *machineBuilderImpl) validate() error {
	if mb.name == "" {
		return NewConfigurationError("Builder", "machine name cannot be empty")
	}
	initial := 0
	for _, name := range mb.stateOrder {
		if name == "" {
			return NewConfigurationError("Builder", "state name cannot be empty")
		}
		probe := &State{}
		for _, opt := range mb.states[name].opts {
			opt(probe)
		}
		if probe.IsInitial() {
			initial++
		}
	}
	if initial > 1 {
		return NewConfigurationError("Builder", fmt.Sprintf("%d states are tagged initial", initial))
	}

	seen := make(map[string]bool, len(mb.transitions))
	for _, t := range mb.transitions {
		name := TransitionName(t.from, t.to)
		if seen[name] {
			return NewConfigurationError("Builder", fmt.Sprintf("duplicate transition '%s'", name))
		}
		seen[name] = true
	}
	return nil
}

func (mb *machineBuilderImpl) addTransition(from, to string) *transitionDef {
	mb.def(to)
	t := &transitionDef{from: from, to: to}
	mb.transitions = append(mb.transitions, t)
	return t
}

type stateBuilderImpl struct {
	machineBuilder *machineBuilderImpl
	state          *stateDef
}

// To creates a transition to another state
func (sb *stateBuilderImpl) To(target string) TransitionBuilder {
	return &transitionBuilderImpl{
		machineBuilder: sb.machineBuilder,
		transition:     sb.machineBuilder.addTransition(sb.state.name, target),
	}
}

// Initial marks the state as initial
func (sb *stateBuilderImpl) Initial() StateBuilder {
	sb.state.opts = append(sb.state.opts, AsInitial())
	return sb
}

// Final marks the state as final
func (sb *stateBuilderImpl) Final() StateBuilder {
	sb.state.opts = append(sb.state.opts, AsFinal())
	return sb
}

// OnEntry adds commands run when the state is entered
func (sb *stateBuilderImpl) OnEntry(commands ...string) StateBuilder {
	sb.state.opts = append(sb.state.opts, WithEntryCommand(commands...))
	return sb
}

// OnExit adds commands run when the state is exited
func (sb *stateBuilderImpl) OnExit(commands ...string) StateBuilder {
	sb.state.opts = append(sb.state.opts, WithExitCommand(commands...))
	return sb
}

// Describe sets the state description
func (sb *stateBuilderImpl) Describe(description string) StateBuilder {
	sb.state.opts = append(sb.state.opts, WithStateDescription(description))
	return sb
}

// State navigates to another state
func (sb *stateBuilderImpl) State(name string) StateBuilder {
	return sb.machineBuilder.State(name)
}

// Build finalizes the machine
func (sb *stateBuilderImpl) Build() (*Blueprint, error) {
	return sb.machineBuilder.Build()
}

type transitionBuilderImpl struct {
	machineBuilder *machineBuilderImpl
	transition     *transitionDef
}

// On sets the trigger event
func (tb *transitionBuilderImpl) On(event string) TransitionBuilder {
	tb.transition.opts = append(tb.transition.opts, WithEvent(event))
	return tb
}

// When adds guard rules
func (tb *transitionBuilderImpl) When(rules ...string) TransitionBuilder {
	tb.transition.opts = append(tb.transition.opts, WithRules(rules...))
	return tb
}

// Do adds commands
func (tb *transitionBuilderImpl) Do(commands ...string) TransitionBuilder {
	tb.transition.opts = append(tb.transition.opts, WithCommands(commands...))
	return tb
}

// Closure sets the inline action
func (tb *transitionBuilderImpl) Closure(fn Closure) TransitionBuilder {
	tb.transition.opts = append(tb.transition.opts, WithClosure(fn))
	return tb
}

// Describe sets the transition description
func (tb *transitionBuilderImpl) Describe(description string) TransitionBuilder {
	tb.transition.opts = append(tb.transition.opts, WithDescription(description))
	return tb
}

// Meta attaches a metadata pair
func (tb *transitionBuilderImpl) Meta(key, value string) TransitionBuilder {
	tb.transition.opts = append(tb.transition.opts, WithMetadata(key, value))
	return tb
}

// To creates another transition from the same source state
func (tb *transitionBuilderImpl) To(target string) TransitionBuilder {
	return &transitionBuilderImpl{
		machineBuilder: tb.machineBuilder,
		transition:     tb.machineBuilder.addTransition(tb.transition.from, target),
	}
}

// State navigates to another state
func (tb *transitionBuilderImpl) State(name string) StateBuilder {
	return tb.machineBuilder.State(name)
}

// Build finalizes the machine
func (tb *transitionBuilderImpl) Build() (*Blueprint, error) {
	return tb.machineBuilder.Build()
}

// Blueprint is a reusable machine definition. The same blueprint can be
// loaded into machines bound to different entities.
type Blueprint struct {
	name        string
	states      []*State
	transitions []*Transition
}

// NewBlueprint groups existing states and transitions under a machine name
func NewBlueprint(name string, states []*State, transitions []*Transition) *Blueprint {
	return &Blueprint{name: name, states: states, transitions: transitions}
}

// Name returns the machine name
func (b *Blueprint) Name() string {
	return b.name
}

// States returns the states in declaration order
func (b *Blueprint) States() []*State {
	return append([]*State(nil), b.states...)
}

// Transitions returns the transitions in declaration order
func (b *Blueprint) Transitions() []*Transition {
	return append([]*Transition(nil), b.transitions...)
}

// Load adds the concrete states and then the transitions to m, so pattern
// transitions expand against every declared state. m gets its own copies:
// the blueprint is never resolved against the registry of m.
func (b *Blueprint) Load(m *StateMachine) error {
	owned := make(map[string]*State, len(b.states))
	own := func(s *State) *State {
		if c, ok := owned[s.Name()]; ok {
			return c
		}
		c := s.clone()
		owned[s.Name()] = c
		return c
	}
	for _, s := range b.states {
		if s.IsRegex() {
			continue
		}
		if err := m.AddState(own(s)); err != nil {
			return err
		}
	}
	for _, t := range b.transitions {
		if err := m.AddTransition(t.detach(own(t.From()), own(t.To()))); err != nil {
			return err
		}
	}
	return nil
}

// NewMachine creates a machine for c and loads the blueprint into it
func (b *Blueprint) NewMachine(c Context, opts ...Option) (*StateMachine, error) {
	if c != nil && c.Machine() != b.name {
		return nil, NewContextMismatchError(b.name, c.Machine())
	}
	m, err := New(c, opts...)
	if err != nil {
		return nil, err
	}
	if err := b.Load(m); err != nil {
		return nil, err
	}
	return m, nil
}
