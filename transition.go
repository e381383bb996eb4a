package statum

import (
	"fmt"
	"maps"
	"strings"
)

// Separator joins the endpoint names into a transition name
const Separator = "_to_"

// TransitionName returns the canonical name of a transition between two states
func TransitionName(from, to string) string {
	return from + Separator + to
}

// Closure is an inline action run after the transition commands
type Closure func(entity any, event string) error

// Copier is implemented by transition extensions that must be cloned when a
// pattern transition is expanded into concrete copies
type Copier interface {
	CopyExtension() any
}

// Transition is a named directed edge between two states with an optional
// trigger event, guard rules and commands.
type Transition struct {
	from        *State
	to          *State
	event       string
	rules       []string
	commands    []string
	closure     Closure
	description string
	metadata    map[string]string
	extension   any

	ruleFactories    []namedRule
	commandFactories []namedCommand
	resolved         bool
	registry         *Registry
}

// TransitionOption configures a Transition
type TransitionOption func(*Transition)

// WithEvent binds the transition to a trigger event
func WithEvent(event string) TransitionOption {
	return func(t *Transition) {
		t.event = event
	}
}

// WithRules adds registry rule names; all of them must apply for the transition to fire
func WithRules(names ...string) TransitionOption {
	return func(t *Transition) {
		t.rules = append(t.rules, names...)
	}
}

// WithCommands adds registry command names executed in order when the transition fires
func WithCommands(names ...string) TransitionOption {
	return func(t *Transition) {
		t.commands = append(t.commands, names...)
	}
}

// WithClosure sets an inline action run after the commands
func WithClosure(fn Closure) TransitionOption {
	return func(t *Transition) {
		t.closure = fn
	}
}

// WithDescription sets a free text description
func WithDescription(description string) TransitionOption {
	return func(t *Transition) {
		t.description = description
	}
}

// WithMetadata attaches a key value pair
func WithMetadata(key, value string) TransitionOption {
	return func(t *Transition) {
		if t.metadata == nil {
			t.metadata = make(map[string]string)
		}
		t.metadata[key] = value
	}
}

// WithExtension attaches application data carried through Copy. Values
// implementing Copier are cloned, anything else is shared.
func WithExtension(ext any) TransitionOption {
	return func(t *Transition) {
		t.extension = ext
	}
}

// NewTransition creates a transition between two states. Unless one of the
// endpoints is a pattern or the source is final, the transition is linked
// onto the outgoing list of from.
func NewTransition(from, to *State, opts ...TransitionOption) *Transition {
	t := &Transition{from: from, to: to}
	for _, opt := range opts {
		opt(t)
	}
	t.link()
	return t
}

func (t *Transition) link() {
	if t.from == nil || t.to == nil {
		return
	}
	if t.from.IsRegex() || t.to.IsRegex() || t.from.IsFinal() {
		return
	}
	t.from.addTransition(t)
}

// Name returns "<from>_to_<to>"
func (t *Transition) Name() string {
	return TransitionName(t.from.Name(), t.to.Name())
}

// From returns the source state
func (t *Transition) From() *State {
	return t.from
}

// To returns the target state
func (t *Transition) To() *State {
	return t.to
}

// Event returns the trigger event, which defaults to the transition name
func (t *Transition) Event() string {
	if t.event == "" {
		return t.Name()
	}
	return t.event
}

// HasEvent reports whether an explicit trigger event was set
func (t *Transition) HasEvent() bool {
	return t.event != ""
}

// Rules returns the rule names
func (t *Transition) Rules() []string {
	return append([]string(nil), t.rules...)
}

// Commands returns the command names
func (t *Transition) Commands() []string {
	return append([]string(nil), t.commands...)
}

// Closure returns the inline action, if any
func (t *Transition) Closure() Closure {
	return t.closure
}

// Description returns the description
func (t *Transition) Description() string {
	return t.description
}

// Metadata returns a copy of the metadata
func (t *Transition) Metadata() map[string]string {
	return maps.Clone(t.metadata)
}

// Extension returns the attached application data
func (t *Transition) Extension() any {
	return t.extension
}

// IsTriggeredBy reports whether event selects this transition. Both the
// explicit event and the transition name act as triggers.
func (t *Transition) IsTriggeredBy(event string) bool {
	if event == "" {
		return false
	}
	return event == t.event || event == t.Name()
}

// IsResolved reports whether the rule and command names are bound to factories
func (t *Transition) IsResolved() bool {
	return t.resolved
}

// Resolve binds the rule and command names to factories from reg
func (t *Transition) Resolve(reg *Registry) error {
	rules, err := reg.resolveRules(t.Name(), t.rules)
	if err != nil {
		return err
	}
	commands, err := reg.resolveCommands(t.Name(), t.commands)
	if err != nil {
		return err
	}
	t.ruleFactories, t.commandFactories, t.resolved, t.registry = rules, commands, true, reg
	return nil
}

// Can evaluates the guard rules against the context entity. Without rules
// the transition is always allowed.
func (t *Transition) Can(c Context, event string) (bool, error) {
	if len(t.rules) == 0 {
		return true, nil
	}
	if !t.resolved {
		return false, NewGuardCreationError(t.Name(), strings.Join(t.rules, ","), errNotResolved)
	}
	entity, err := c.Entity()
	if err != nil {
		return false, err
	}
	rule, err := t.buildRule(entity, event)
	if err != nil {
		return false, err
	}
	ok, err := safeApplies(rule)
	if err != nil {
		return false, NewGuardEvaluationError(t.Name(), err)
	}
	return ok, nil
}

func (t *Transition) buildRule(entity any, event string) (Rule, error) {
	built := make([]Rule, 0, len(t.ruleFactories))
	for _, nr := range t.ruleFactories {
		rule, err := safeBuildRule(nr.factory, entity)
		if err != nil {
			return nil, NewGuardCreationError(t.Name(), nr.name, err)
		}
		if event != "" {
			if setter, ok := rule.(EventSetter); ok {
				setter.SetEvent(event)
			}
		}
		built = append(built, rule)
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return NewAndRule(built...), nil
}

// Process executes the commands and then the closure for the context entity.
// A failure leaves the entity as it is; nothing is rolled back.
func (t *Transition) Process(c Context, event string) error {
	if len(t.commands) == 0 && t.closure == nil {
		return nil
	}
	if len(t.commands) > 0 && !t.resolved {
		return NewActionExecutionError(t.Name(),
			NewActionCreationError(t.Name(), strings.Join(t.commands, ","), errNotResolved))
	}
	entity, err := c.Entity()
	if err != nil {
		return NewActionExecutionError(t.Name(), err)
	}
	cmd, err := buildCommand(t.Name(), t.commandFactories, entity, event)
	if err != nil {
		return NewActionExecutionError(t.Name(), err)
	}
	if err := safeExecute(cmd); err != nil {
		return NewActionExecutionError(t.Name(), err)
	}
	if t.closure != nil {
		if err := safeClosure(t.closure, entity, event); err != nil {
			return NewActionExecutionError(t.Name(), err)
		}
	}
	return nil
}

// Copy returns a transition between other endpoints carrying everything else
// over. It is how pattern transitions are expanded.
func (t *Transition) Copy(from, to *State) *Transition {
	c := &Transition{
		from:             from,
		to:               to,
		event:            t.event,
		rules:            append([]string(nil), t.rules...),
		commands:         append([]string(nil), t.commands...),
		closure:          t.closure,
		description:      t.description,
		metadata:         maps.Clone(t.metadata),
		extension:        t.extension,
		ruleFactories:    append([]namedRule(nil), t.ruleFactories...),
		commandFactories: append([]namedCommand(nil), t.commandFactories...),
		resolved:         t.resolved,
		registry:         t.registry,
	}
	if copier, ok := t.extension.(Copier); ok {
		c.extension = copier.CopyExtension()
	}
	c.link()
	return c
}

// detach copies the transition onto other endpoints without its registry
// bindings
func (t *Transition) detach(from, to *State) *Transition {
	c := t.Copy(from, to)
	c.ruleFactories, c.commandFactories, c.resolved, c.registry = nil, nil, false, nil
	return c
}

// rebind points the transition at the canonical state instances of a machine
func (t *Transition) rebind(from, to *State) {
	t.from, t.to = from, to
}

func (t *Transition) String() string {
	return t.Name()
}

func safeClosure(fn Closure, entity any, event string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("closure panic: %v", r)
		}
	}()
	return fn(entity, event)
}
