package statum

import (
	"fmt"
)

// Rule is a guard bound to an entity deciding whether a transition may fire
type Rule interface {
	Applies() (bool, error)
}

// RuleFactory constructs a Rule for an entity
type RuleFactory func(entity any) (Rule, error)

// EventSetter is implemented by rules and commands that want the trigger event
type EventSetter interface {
	SetEvent(event string)
}

// RuleFunc adapts a plain function to the Rule interface
type RuleFunc func() (bool, error)

// Applies calls f
func (f RuleFunc) Applies() (bool, error) {
	return f()
}

// TrueRule always applies
type TrueRule struct{}

// Applies returns true
func (TrueRule) Applies() (bool, error) {
	return true, nil
}

// FalseRule never applies
type FalseRule struct{}

// Applies returns false
func (FalseRule) Applies() (bool, error) {
	return false, nil
}

// AndRule applies when all of its rules apply. Rules are evaluated left to
// right and evaluation stops at the first one that does not apply.
type AndRule struct {
	rules []Rule
}

// NewAndRule chains rules with a logical AND
func NewAndRule(rules ...Rule) *AndRule {
	return &AndRule{rules: rules}
}

// Applies evaluates the chained rules
func (r *AndRule) Applies() (bool, error) {
	for _, rule := range r.rules {
		ok, err := safeApplies(rule)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// SetEvent passes the event to every chained rule that accepts it
func (r *AndRule) SetEvent(event string) {
	for _, rule := range r.rules {
		if setter, ok := rule.(EventSetter); ok {
			setter.SetEvent(event)
		}
	}
}

// Rules returns the chained rules
func (r *AndRule) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// RuleFor builds a factory from a predicate over a typed entity
func RuleFor[T any](fn func(entity T) (bool, error)) RuleFactory {
	return func(entity any) (Rule, error) {
		typed, err := assertEntity[T](entity)
		if err != nil {
			return nil, err
		}
		return RuleFunc(func() (bool, error) { return fn(typed) }), nil
	}
}

// RuleWithEvent builds a factory from a predicate that also sees the trigger event
func RuleWithEvent[T any](fn func(entity T, event string) (bool, error)) RuleFactory {
	return func(entity any) (Rule, error) {
		typed, err := assertEntity[T](entity)
		if err != nil {
			return nil, err
		}
		return &eventRule[T]{entity: typed, fn: fn}, nil
	}
}

type eventRule[T any] struct {
	entity T
	event  string
	fn     func(T, string) (bool, error)
}

func (r *eventRule[T]) SetEvent(event string) {
	r.event = event
}

func (r *eventRule[T]) Applies() (bool, error) {
	return r.fn(r.entity, r.event)
}

func assertEntity[T any](entity any) (T, error) {
	typed, ok := entity.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("entity of type %T does not satisfy %T", entity, &zero)
	}
	return typed, nil
}

func safeApplies(rule Rule) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("rule panic: %v", r)
		}
	}()
	return rule.Applies()
}

func safeBuildRule(factory RuleFactory, entity any) (rule Rule, err error) {
	defer func() {
		if r := recover(); r != nil {
			rule, err = nil, fmt.Errorf("rule factory panic: %v", r)
		}
	}()
	rule, err = factory(entity)
	if err == nil && rule == nil {
		err = fmt.Errorf("rule factory returned nil")
	}
	return rule, err
}
