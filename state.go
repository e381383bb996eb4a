package statum

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix marks a state name as a pattern, e.g. "regex:/^order-.*/"
const RegexPrefix = "regex:"

// StateType tags the role of a state in a machine
type StateType int

const (
	// StateNormal is an intermediate state
	StateNormal StateType = iota
	// StateInitial is the state an entity starts in
	StateInitial
	// StateFinal has no outgoing transitions
	StateFinal
	// StateRegex is a pattern expanded against concrete states when transitions are added
	StateRegex
)

func (t StateType) String() string {
	switch t {
	case StateInitial:
		return "initial"
	case StateFinal:
		return "final"
	case StateRegex:
		return "regex"
	default:
		return "normal"
	}
}

// ParseStateType converts a type name back to a StateType
func ParseStateType(name string) (StateType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "normal":
		return StateNormal, nil
	case "initial":
		return StateInitial, nil
	case "final":
		return StateFinal, nil
	case "regex":
		return StateRegex, nil
	}
	return StateNormal, NewConfigurationError("State", fmt.Sprintf("unknown state type '%s'", name))
}

// State is a named node of a machine. A state is shared by every transition
// that references it, so its outgoing list always holds the complete set.
type State struct {
	name        string
	stateType   StateType
	pattern     *regexp.Regexp
	description string
	transitions []*Transition

	entry         []string
	exit          []string
	entryCommands []namedCommand
	exitCommands  []namedCommand
	resolved      bool
	registry      *Registry
}

// StateOption configures a State
type StateOption func(*State)

// AsInitial tags the state as the initial state
func AsInitial() StateOption {
	return func(s *State) {
		if s.stateType != StateRegex {
			s.stateType = StateInitial
		}
	}
}

// AsFinal tags the state as a final state
func AsFinal() StateOption {
	return func(s *State) {
		if s.stateType != StateRegex {
			s.stateType = StateFinal
		}
	}
}

// WithStateType sets the type directly; the regex type cannot be set this way
func WithStateType(t StateType) StateOption {
	return func(s *State) {
		if s.stateType != StateRegex && t != StateRegex {
			s.stateType = t
		}
	}
}

// WithEntryCommand adds registry command names run when the state is entered
func WithEntryCommand(names ...string) StateOption {
	return func(s *State) {
		s.entry = append(s.entry, names...)
	}
}

// WithExitCommand adds registry command names run when the state is exited
func WithExitCommand(names ...string) StateOption {
	return func(s *State) {
		s.exit = append(s.exit, names...)
	}
}

// WithStateDescription sets a free text description
func WithStateDescription(description string) StateOption {
	return func(s *State) {
		s.description = description
	}
}

// NewState creates a state. A name carrying RegexPrefix creates a pattern
// state and panics if the expression does not compile; use ParseState to get
// an error instead.
func NewState(name string, opts ...StateOption) *State {
	s, err := ParseState(name, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseState creates a state, compiling the pattern of a regex name
func ParseState(name string, opts ...StateOption) (*State, error) {
	s := &State{name: name, stateType: StateNormal}
	if IsRegexName(name) {
		pattern, err := compilePattern(name)
		if err != nil {
			return nil, NewConfigurationError("State", fmt.Sprintf("invalid pattern '%s': %v", name, err))
		}
		s.stateType = StateRegex
		s.pattern = pattern
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRegexState creates a pattern state from an expression with or without
// the RegexPrefix and the surrounding slashes
func NewRegexState(expr string) (*State, error) {
	if !IsRegexName(expr) {
		expr = RegexPrefix + expr
	}
	return ParseState(expr)
}

// IsRegexName reports whether a state name uses the pattern convention
func IsRegexName(name string) bool {
	return strings.HasPrefix(name, RegexPrefix)
}

func compilePattern(name string) (*regexp.Regexp, error) {
	expr := strings.TrimPrefix(name, RegexPrefix)
	if len(expr) >= 2 && strings.HasPrefix(expr, "/") && strings.HasSuffix(expr, "/") {
		expr = expr[1 : len(expr)-1]
	}
	return regexp.Compile(expr)
}

// Name returns the state name
func (s *State) Name() string {
	return s.name
}

// Type returns the state type
func (s *State) Type() StateType {
	return s.stateType
}

// Description returns the state description
func (s *State) Description() string {
	return s.description
}

// IsInitial reports whether the state is the initial state
func (s *State) IsInitial() bool {
	return s.stateType == StateInitial
}

// IsNormal reports whether the state is a normal state
func (s *State) IsNormal() bool {
	return s.stateType == StateNormal
}

// IsFinal reports whether the state is a final state
func (s *State) IsFinal() bool {
	return s.stateType == StateFinal
}

// IsRegex reports whether the state is a pattern state
func (s *State) IsRegex() bool {
	return s.stateType == StateRegex
}

// Matches reports whether a concrete state name is matched by this state.
// A non-pattern state only matches its own name.
func (s *State) Matches(name string) bool {
	if s.IsRegex() {
		return !IsRegexName(name) && s.pattern.MatchString(name)
	}
	return s.name == name
}

// MatchingStates filters candidates down to the concrete states this state matches
func (s *State) MatchingStates(candidates []*State) []*State {
	var matched []*State
	for _, c := range candidates {
		if c.IsRegex() {
			continue
		}
		if s.Matches(c.name) {
			matched = append(matched, c)
		}
	}
	return matched
}

// Transitions returns the outgoing transitions in the order they were added
func (s *State) Transitions() []*Transition {
	out := make([]*Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// TransitionsTriggeredBy returns the outgoing transitions bound to event
func (s *State) TransitionsTriggeredBy(event string) []*Transition {
	var out []*Transition
	for _, t := range s.transitions {
		if t.IsTriggeredBy(event) {
			out = append(out, t)
		}
	}
	return out
}

// HasTransition reports whether a transition with that name leaves this state
func (s *State) HasTransition(name string) bool {
	for _, t := range s.transitions {
		if t.Name() == name {
			return true
		}
	}
	return false
}

// EntryCommands returns the command names run on entry
func (s *State) EntryCommands() []string {
	return append([]string(nil), s.entry...)
}

// ExitCommands returns the command names run on exit
func (s *State) ExitCommands() []string {
	return append([]string(nil), s.exit...)
}

// EntryAction runs the entry commands of the state for the context entity
func (s *State) EntryAction(c Context, event string) error {
	return s.runCommands(c, event, s.entry, s.entryCommands)
}

// ExitAction runs the exit commands of the state for the context entity
func (s *State) ExitAction(c Context, event string) error {
	return s.runCommands(c, event, s.exit, s.exitCommands)
}

func (s *State) runCommands(c Context, event string, names []string, commands []namedCommand) error {
	if len(names) == 0 {
		return nil
	}
	owner := "state " + s.name
	if !s.resolved {
		return NewActionCreationError(owner, strings.Join(names, ","), errNotResolved)
	}
	entity, err := c.Entity()
	if err != nil {
		return NewActionExecutionError(owner, err)
	}
	cmd, err := buildCommand(owner, commands, entity, event)
	if err != nil {
		return NewActionExecutionError(owner, err)
	}
	if err := safeExecute(cmd); err != nil {
		return NewActionExecutionError(owner, err)
	}
	return nil
}

// resolve binds the entry and exit command names to registry factories
func (s *State) resolve(reg *Registry) error {
	owner := "state " + s.name
	entry, err := reg.resolveCommands(owner, s.entry)
	if err != nil {
		return err
	}
	exit, err := reg.resolveCommands(owner, s.exit)
	if err != nil {
		return err
	}
	s.entryCommands, s.exitCommands, s.resolved, s.registry = entry, exit, true, reg
	return nil
}

// clone returns an unresolved copy of the state configuration without any
// outgoing transitions
func (s *State) clone() *State {
	return &State{
		name:        s.name,
		stateType:   s.stateType,
		pattern:     s.pattern,
		description: s.description,
		entry:       append([]string(nil), s.entry...),
		exit:        append([]string(nil), s.exit...),
	}
}

// addTransition links an outgoing transition, replacing one with the same name
func (s *State) addTransition(t *Transition) {
	for i, existing := range s.transitions {
		if existing.Name() == t.Name() {
			s.transitions[i] = t
			return
		}
	}
	s.transitions = append(s.transitions, t)
}

func (s *State) String() string {
	return s.name
}
