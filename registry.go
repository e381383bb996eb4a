package statum

import (
	"errors"
	"slices"
	"sync"
)

// Built-in registry names
const (
	RuleTrue    = "True"
	RuleFalse   = "False"
	CommandNull = "Null"
)

var errUnknownName = errors.New("not registered")

// Registry maps rule and command names to their factories. Transitions and
// states refer to rules and commands by name; the names are resolved against
// a Registry when the transition is added to a machine.
type Registry struct {
	mu       sync.RWMutex
	rules    map[string]RuleFactory
	commands map[string]CommandFactory
}

// NewRegistry creates a registry holding the built-in True, False and Null entries
func NewRegistry() *Registry {
	r := &Registry{
		rules:    make(map[string]RuleFactory),
		commands: make(map[string]CommandFactory),
	}
	r.RegisterRule(RuleTrue, func(any) (Rule, error) { return TrueRule{}, nil })
	r.RegisterRule(RuleFalse, func(any) (Rule, error) { return FalseRule{}, nil })
	r.RegisterCommand(CommandNull, func(any) (Command, error) { return NullCommand{}, nil })
	return r
}

// RegisterRule binds a rule name to a factory. It panics on an empty name or
// a nil factory.
func (r *Registry) RegisterRule(name string, factory RuleFactory) *Registry {
	if name == "" || factory == nil {
		panic("statum: RegisterRule requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[name] = factory
	return r
}

// RegisterCommand binds a command name to a factory. It panics on an empty
// name or a nil factory.
func (r *Registry) RegisterCommand(name string, factory CommandFactory) *Registry {
	if name == "" || factory == nil {
		panic("statum: RegisterCommand requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = factory
	return r
}

// Rule returns the factory registered for name
func (r *Registry) Rule(name string) (RuleFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.rules[name]
	return f, ok
}

// Command returns the factory registered for name
func (r *Registry) Command(name string) (CommandFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.commands[name]
	return f, ok
}

// RuleNames returns the registered rule names, sorted
func (r *Registry) RuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CommandNames returns the registered command names, sorted
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type namedRule struct {
	name    string
	factory RuleFactory
}

func (r *Registry) resolveRules(owner string, names []string) ([]namedRule, error) {
	out := make([]namedRule, 0, len(names))
	for _, name := range names {
		f, ok := r.Rule(name)
		if !ok {
			return nil, NewGuardCreationError(owner, name, errUnknownName)
		}
		out = append(out, namedRule{name: name, factory: f})
	}
	return out, nil
}

func (r *Registry) resolveCommands(owner string, names []string) ([]namedCommand, error) {
	out := make([]namedCommand, 0, len(names))
	for _, name := range names {
		f, ok := r.Command(name)
		if !ok {
			return nil, NewActionCreationError(owner, name, errUnknownName)
		}
		out = append(out, namedCommand{name: name, factory: f})
	}
	return out, nil
}
