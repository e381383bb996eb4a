package statum

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/anggasct/statum/internal/logging"
)

// StateMachine owns the states and transitions of one machine definition and
// drives the entity of its Context through them.
//
// A StateMachine is not safe for concurrent use. Serializing transitions of
// one entity across processes is left to the persistence layer.
type StateMachine struct {
	ctx Context

	states          map[string]*State
	stateOrder      []string
	transitions     map[string]*Transition
	transitionOrder []string
	current         *State

	registry *Registry
	hooks    hookManager
	triggers map[string]TriggerHandler
	base     *slog.Logger
	logger   *slog.Logger
}

// Option configures a StateMachine
type Option func(*StateMachine)

// WithRegistry sets the registry rule and command names are resolved against
func WithRegistry(reg *Registry) Option {
	return func(m *StateMachine) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// WithLogger sets the logger; nothing is logged by default
func WithLogger(logger *slog.Logger) Option {
	return func(m *StateMachine) {
		if logger != nil {
			m.base = logger
		}
	}
}

// WithHooks registers pipeline hooks, run in registration order
func WithHooks(hooks ...Hooks) Option {
	return func(m *StateMachine) {
		for _, h := range hooks {
			m.hooks.add(h)
		}
	}
}

// WithTriggerHandler binds a handler to a trigger event. It runs for event
// driven transitions after the entity handlers for that event.
func WithTriggerHandler(event string, handler TriggerHandler) Option {
	return func(m *StateMachine) {
		if event != "" && handler != nil {
			m.triggers[event] = handler
		}
	}
}

// New creates a machine bound to c
func New(c Context, opts ...Option) (*StateMachine, error) {
	if c == nil {
		return nil, NewConfigurationError("StateMachine", errNilContext.Error())
	}
	m := &StateMachine{
		states:      make(map[string]*State),
		transitions: make(map[string]*Transition),
		triggers:    make(map[string]TriggerHandler),
		registry:    NewRegistry(),
		base:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bind(c)
	return m, nil
}

// MustNew is like New but panics on error
func MustNew(c Context, opts ...Option) *StateMachine {
	m, err := New(c, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *StateMachine) bind(c Context) {
	m.ctx = c
	m.current = nil
	if binder, ok := c.(MachineBinder); ok {
		binder.BindMachine(m)
	}
	m.logger = m.base.With(logging.Machine(c.Machine()), logging.EntityID(c.ID(false)))
}

// Context returns the bound context
func (m *StateMachine) Context() Context {
	return m.ctx
}

// SetContext rebinds the machine to another entity of the same machine and
// resets the cached current state
func (m *StateMachine) SetContext(c Context) error {
	if c == nil {
		return NewConfigurationError("StateMachine", errNilContext.Error())
	}
	if m.ctx != nil && m.ctx.Machine() != c.Machine() {
		return NewContextMismatchError(m.ctx.Machine(), c.Machine())
	}
	m.bind(c)
	return nil
}

// Name returns the machine name of the bound context
func (m *StateMachine) Name() string {
	return m.ctx.Machine()
}

// Registry returns the registry used to resolve rule and command names
func (m *StateMachine) Registry() *Registry {
	return m.registry
}

// Apply performs the transition with the given name if its guards allow it.
// It returns false without an error when the transition is not taken.
func (m *StateMachine) Apply(name string) (bool, error) {
	t, ok := m.transitions[name]
	if !ok {
		return false, NewTransitionNotFoundError(name)
	}
	return m.perform(t, "", true)
}

// Handle performs the first transition of the current state that is
// triggered by event and whose guards allow it, in registration order.
func (m *StateMachine) Handle(event string) (bool, error) {
	current, err := m.CurrentState()
	if err != nil {
		return false, err
	}
	for _, t := range m.registered(current.TransitionsTriggeredBy(event)) {
		ok, err := m.perform(t, event, true)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	m.logger.Debug("event not handled", logging.Event(event), logging.State(current.Name()))
	return false, nil
}

// CanApply reports whether the named transition is allowed from the current
// state. An unknown name is simply not allowed.
func (m *StateMachine) CanApply(name string) (bool, error) {
	t, ok := m.transitions[name]
	if !ok {
		return false, nil
	}
	return m.checkCan(t, "")
}

// CanHandle reports whether any transition of the current state triggered by
// event is allowed
func (m *StateMachine) CanHandle(event string) (bool, error) {
	current, err := m.CurrentState()
	if err != nil {
		return false, err
	}
	for _, t := range m.registered(current.TransitionsTriggeredBy(event)) {
		ok, err := m.checkCan(t, event)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// HasEvent reports whether the current state has a transition triggered by event
func (m *StateMachine) HasEvent(event string) (bool, error) {
	current, err := m.CurrentState()
	if err != nil {
		return false, err
	}
	return len(m.registered(current.TransitionsTriggeredBy(event))) > 0, nil
}

// registered maps the outgoing transitions of a state to the instances this
// machine registered under the same names. States can be shared between
// machines, so their lists may hold another machine's copies.
func (m *StateMachine) registered(ts []*Transition) []*Transition {
	out := make([]*Transition, 0, len(ts))
	for _, t := range ts {
		if r, ok := m.transitions[t.Name()]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Run performs the first allowed transition of the current state, in
// registration order, regardless of trigger events
func (m *StateMachine) Run() (bool, error) {
	current, err := m.CurrentState()
	if err != nil {
		return false, wrapError(err, ErrCodeRunFailed, "")
	}
	for _, t := range m.registered(current.Transitions()) {
		ok, err := m.perform(t, "", true)
		if err != nil {
			return false, wrapError(err, ErrCodeRunFailed, t.Name())
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// RunToCompletion calls Run until no transition fires and returns the number
// of transitions performed. Guards that keep alternating make it loop forever.
func (m *StateMachine) RunToCompletion() (int, error) {
	count := 0
	for {
		ok, err := m.Run()
		if err != nil {
			return count, wrapError(err, ErrCodeRunToCompletionFailed, "")
		}
		if !ok {
			return count, nil
		}
		count++
	}
}

// perform runs the transition pipeline: guard, exit, transition and entry.
func (m *StateMachine) perform(t *Transition, event string, checkGuards bool) (bool, error) {
	if checkGuards {
		ok, err := m.checkCan(t, event)
		if err != nil {
			return false, m.fail(t, event, wrapError(err, ErrCodeCanFailed, t.Name()))
		}
		if !ok {
			m.logger.Debug("transition not taken", logging.Transition(t.Name()), logging.Event(event))
			return false, nil
		}
	}
	if err := m.transition(t, event); err != nil {
		return false, m.fail(t, event, wrapError(err, ErrCodeTransitionFailed, t.Name()))
	}
	m.logger.Info("transition performed",
		logging.Transition(t.Name()),
		logging.Event(event),
		logging.State(t.To().Name()),
	)
	return true, nil
}

func (m *StateMachine) fail(t *Transition, event string, err error) error {
	if herr := m.ctx.SetFailedTransition(t, err); herr != nil {
		m.logger.Error("failed transition not recorded",
			logging.Transition(t.Name()),
			logging.Error(herr),
		)
	}
	m.hooks.onFailure(m, t, event, err)
	m.logger.Warn("transition failed",
		logging.Transition(t.Name()),
		logging.Event(event),
		logging.Error(err),
	)
	return err
}

// checkCan runs the guard phase. A transition that is not registered or does
// not leave the current state is never allowed.
func (m *StateMachine) checkCan(t *Transition, event string) (bool, error) {
	if registered, ok := m.transitions[t.Name()]; !ok || registered != t {
		return false, nil
	}
	current, err := m.CurrentState()
	if err != nil {
		return false, err
	}
	if !current.HasTransition(t.Name()) {
		return false, nil
	}
	ok, err := m.hooks.beforeCheck(m, t, event)
	if err != nil || !ok {
		return false, err
	}
	entity, err := m.ctx.Entity()
	if err != nil {
		return false, err
	}
	if checker, ok := entity.(TransitionChecker); ok {
		var allowed bool
		err := safeCall("OnCheckCanTransition", func() (err error) {
			allowed, err = checker.OnCheckCanTransition(t, event)
			return err
		})
		if err != nil || !allowed {
			return false, err
		}
	}
	return t.Can(m.ctx, event)
}

func (m *StateMachine) transition(t *Transition, event string) error {
	entity, err := m.ctx.Entity()
	if err != nil {
		return err
	}

	// exit
	if err := m.hooks.beforeExit(m, t, event); err != nil {
		return err
	}
	if h, ok := entity.(StateExitHandler); ok {
		if err := safeCall("OnExitState", func() error { return h.OnExitState(t, event) }); err != nil {
			return err
		}
	}
	if err := t.From().ExitAction(m.ctx, event); err != nil {
		return err
	}

	// transition
	if err := m.hooks.onTransition(m, t, event); err != nil {
		return err
	}
	if event != "" {
		if err := m.handleEvent(entity, t, event); err != nil {
			return err
		}
	}
	if h, ok := entity.(TransitionHandler); ok {
		if err := safeCall("OnTransition", func() error { return h.OnTransition(t, event) }); err != nil {
			return err
		}
	}
	if err := t.Process(m.ctx, event); err != nil {
		return err
	}
	if err := m.setCurrent(t.To()); err != nil {
		return err
	}

	// entry
	if h, ok := entity.(StateEnterHandler); ok {
		if err := safeCall("OnEnterState", func() error { return h.OnEnterState(t, event) }); err != nil {
			return err
		}
	}
	if err := t.To().EntryAction(m.ctx, event); err != nil {
		return err
	}
	return m.hooks.afterEnter(m, t, event)
}

func (m *StateMachine) handleEvent(entity any, t *Transition, event string) error {
	if h, ok := entity.(EventHandler); ok {
		if err := safeCall("OnEvent", func() error { return h.OnEvent(t, event) }); err != nil {
			return err
		}
	}
	if p, ok := entity.(TriggerHandlerProvider); ok {
		if cb := p.TriggerHandlers()[event]; cb != nil {
			if err := safeCall("trigger handler "+event, func() error { return cb(t, event) }); err != nil {
				return err
			}
		}
	}
	if h := m.triggers[event]; h != nil {
		return safeCall("trigger handler "+event, func() error { return h(m.ctx, t, event) })
	}
	return nil
}

// setCurrent writes the state through the context before updating the cache.
// Once the write lands the cache follows it, even when the history append
// failed.
func (m *StateMachine) setCurrent(s *State) error {
	err := m.ctx.SetState(s.Name())
	var historyErr *HistoryError
	if err != nil && !errors.As(err, &historyErr) {
		return NewPersistenceError("write state", err)
	}
	m.current = s
	if historyErr != nil {
		m.logger.Error("history not recorded",
			logging.State(s.Name()),
			logging.Error(historyErr.Err),
		)
	}
	return nil
}

// CurrentState returns the current state, resolving the persisted state name
// against the loaded states on first use
func (m *StateMachine) CurrentState() (*State, error) {
	if m.current != nil {
		return m.current, nil
	}
	name, err := m.ctx.State()
	if err != nil {
		var engineErr *Error
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, NewPersistenceError("read state", err)
	}
	s, ok := m.states[name]
	if !ok {
		return nil, NewNoCurrentStateError(m.ctx.Machine(), name)
	}
	m.current = s
	return s, nil
}

// SetState forces the current state, bypassing guards and commands. The
// state must be one of the loaded states.
func (m *StateMachine) SetState(s *State) error {
	if s == nil {
		return NewConfigurationError("StateMachine", "state cannot be nil")
	}
	known, ok := m.states[s.Name()]
	if !ok {
		return NewNoCurrentStateError(m.ctx.Machine(), s.Name())
	}
	if err := m.setCurrent(known); err != nil {
		return err
	}
	m.logger.Info("state forced", logging.State(known.Name()))
	return nil
}

// InitialState returns the first state tagged initial. With allowMissing a
// machine without one returns nil instead of an error.
func (m *StateMachine) InitialState(allowMissing bool) (*State, error) {
	for _, name := range m.stateOrder {
		if s := m.states[name]; s.IsInitial() {
			return s, nil
		}
	}
	if allowMissing {
		return nil, nil
	}
	return nil, NewNoInitialStateError(m.ctx.Machine())
}

// States returns the loaded states in the order they were added
func (m *StateMachine) States() []*State {
	out := make([]*State, 0, len(m.stateOrder))
	for _, name := range m.stateOrder {
		out = append(out, m.states[name])
	}
	return out
}

// State returns the loaded state with the given name
func (m *StateMachine) State(name string) (*State, bool) {
	s, ok := m.states[name]
	return s, ok
}

// Transitions returns the registered transitions in registration order
func (m *StateMachine) Transitions() []*Transition {
	out := make([]*Transition, 0, len(m.transitionOrder))
	for _, name := range m.transitionOrder {
		out = append(out, m.transitions[name])
	}
	return out
}

// Transition returns the registered transition with the given name
func (m *StateMachine) Transition(name string) (*Transition, bool) {
	t, ok := m.transitions[name]
	return t, ok
}

// AddState adds a state that no transition references yet, so that pattern
// transitions added later can expand to it. Adding a known name is a no-op.
func (m *StateMachine) AddState(s *State) error {
	if s == nil {
		return NewConfigurationError("StateMachine", "state cannot be nil")
	}
	_, err := m.addState(s)
	return err
}

func (m *StateMachine) addState(s *State) (*State, error) {
	if existing, ok := m.states[s.Name()]; ok {
		return existing, nil
	}
	if s.resolved && s.registry != m.registry {
		return nil, NewConfigurationError("StateMachine",
			fmt.Sprintf("state '%s' is bound to another registry", s.Name()))
	}
	if err := s.resolve(m.registry); err != nil {
		return nil, err
	}
	m.states[s.Name()] = s
	m.stateOrder = append(m.stateOrder, s.Name())
	return s, nil
}

// AddTransitions adds transitions in order, stopping at the first error
func (m *StateMachine) AddTransitions(ts ...*Transition) error {
	for _, t := range ts {
		if err := m.AddTransition(t); err != nil {
			return err
		}
	}
	return nil
}

// AddTransition registers a transition. When an endpoint is a pattern state,
// one copy is registered for every matching pair of known states, skipping
// self transitions.
func (m *StateMachine) AddTransition(t *Transition) error {
	if t == nil || t.From() == nil || t.To() == nil {
		return NewConfigurationError("StateMachine", "transition needs both endpoints")
	}
	if t.resolved && t.registry != m.registry {
		return NewConfigurationError("StateMachine",
			fmt.Sprintf("transition '%s' is bound to another registry", t.Name()))
	}
	if err := t.Resolve(m.registry); err != nil {
		return err
	}
	from, to := t.From(), t.To()
	if !from.IsRegex() && !to.IsRegex() {
		return m.addConcrete(t)
	}

	known := m.States()
	froms := []*State{from}
	if from.IsRegex() {
		froms = from.MatchingStates(known)
	}
	tos := []*State{to}
	if to.IsRegex() {
		tos = to.MatchingStates(known)
	}
	for _, f := range froms {
		for _, target := range tos {
			if f.Name() == target.Name() {
				continue
			}
			if err := m.addConcrete(t.Copy(f, target)); err != nil {
				return err
			}
		}
	}
	return nil
}

// addConcrete registers a transition without pattern endpoints
func (m *StateMachine) addConcrete(t *Transition) error {
	if t.From().IsFinal() {
		m.logger.Debug("transition from final state skipped", logging.Transition(t.Name()))
		return nil
	}
	from, err := m.addState(t.From())
	if err != nil {
		return err
	}
	to, err := m.addState(t.To())
	if err != nil {
		return err
	}
	if from.IsFinal() {
		m.logger.Debug("transition from final state skipped", logging.Transition(t.Name()))
		return nil
	}
	t.rebind(from, to)
	from.addTransition(t)

	name := t.Name()
	if _, exists := m.transitions[name]; !exists {
		m.transitionOrder = append(m.transitionOrder, name)
	}
	m.transitions[name] = t

	if m.current != nil {
		switch m.current.Name() {
		case from.Name():
			m.current = from
		case to.Name():
			m.current = to
		}
	}
	return nil
}

func (m *StateMachine) String() string {
	return fmt.Sprintf("StateMachine: [%s]", m.ctx.ID(true))
}
