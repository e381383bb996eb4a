package statum

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Context binds one entity, one persisted state source and one machine name.
// It is the only way the machine reads or writes the state of an entity.
type Context interface {
	context.Context

	// Entity returns the domain object rules and commands operate on
	Entity() (any, error)
	// State returns the persisted state name
	State() (string, error)
	// SetState persists a new state name
	SetState(name string) error
	// SetFailedTransition records a failed transition for auditing
	SetFailedTransition(t *Transition, err error) error
	// ID returns a stable identifier of the entity
	ID(withMachine bool) string
	// Machine returns the machine name
	Machine() string
}

// MachineBinder is implemented by contexts that want to know the machine
// they are bound to
type MachineBinder interface {
	BindMachine(m *StateMachine)
}

// EntityBuilder builds the domain entity of a context
type EntityBuilder interface {
	Build(ctx context.Context, id Identifier) (any, error)
}

// EntityBuilderFunc adapts a function to the EntityBuilder interface
type EntityBuilderFunc func(ctx context.Context, id Identifier) (any, error)

// Build calls f
func (f EntityBuilderFunc) Build(ctx context.Context, id Identifier) (any, error) {
	return f(ctx, id)
}

// StaticEntity returns a builder that always returns v
func StaticEntity(v any) EntityBuilder {
	return EntityBuilderFunc(func(context.Context, Identifier) (any, error) {
		return v, nil
	})
}

// EntityContext is the default Context, backed by an Adapter
type EntityContext struct {
	context.Context
	id      Identifier
	adapter Adapter
	builder EntityBuilder

	mu      sync.Mutex
	entity  any
	built   bool
	machine *StateMachine
}

// ContextOption configures an EntityContext
type ContextOption func(*EntityContext)

// WithAdapter sets the persistence adapter, a MemoryAdapter by default
func WithAdapter(adapter Adapter) ContextOption {
	return func(c *EntityContext) {
		c.adapter = adapter
	}
}

// WithEntityBuilder sets the builder used to load the entity lazily
func WithEntityBuilder(builder EntityBuilder) ContextOption {
	return func(c *EntityContext) {
		c.builder = builder
	}
}

// WithEntity uses v as the entity
func WithEntity(v any) ContextOption {
	return WithEntityBuilder(StaticEntity(v))
}

// NewContext creates a context for the entity identified by id. Without an
// entity builder the context itself is the entity.
func NewContext(parent context.Context, id Identifier, opts ...ContextOption) *EntityContext {
	if parent == nil {
		parent = context.Background()
	}
	c := &EntityContext{
		Context: parent,
		id:      id,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.adapter == nil {
		c.adapter = NewMemoryAdapter()
	}
	return c
}

// BindMachine lets the context fall back to the initial state of m for
// entities that were never persisted
func (c *EntityContext) BindMachine(m *StateMachine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machine = m
}

// Entity builds the entity on first use and caches it
func (c *EntityContext) Entity() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built {
		return c.entity, nil
	}
	if c.builder == nil {
		c.entity, c.built = c, true
		return c.entity, nil
	}
	entity, err := c.builder.Build(c.Context, c.id)
	if err != nil {
		return nil, fmt.Errorf("build entity %s: %w", c.id, err)
	}
	c.entity, c.built = entity, true
	return entity, nil
}

// State returns the persisted state, or the initial state of the bound
// machine when nothing was persisted yet
func (c *EntityContext) State() (string, error) {
	state, err := c.adapter.GetState(c.Context, c.id)
	if err == nil {
		return state, nil
	}
	c.mu.Lock()
	m := c.machine
	c.mu.Unlock()
	if errors.Is(err, ErrNotPersisted) && m != nil {
		initial, ierr := m.InitialState(false)
		if ierr != nil {
			return "", ierr
		}
		return initial.Name(), nil
	}
	return "", err
}

// SetState persists the state and appends it to the history. A failed
// history append after a successful write is reported as a *HistoryError.
func (c *EntityContext) SetState(name string) error {
	if _, err := c.adapter.SetState(c.Context, c.id, name); err != nil {
		return err
	}
	if err := c.adapter.AddHistory(c.Context, NewHistoryRecord(c.id, name)); err != nil {
		return &HistoryError{State: name, Err: err}
	}
	return nil
}

// Add persists state for an entity that was never stored; an empty state
// means the initial state of the bound machine
func (c *EntityContext) Add(state string) (bool, error) {
	if state == "" {
		var err error
		if state, err = c.State(); err != nil {
			return false, err
		}
	}
	added, err := c.adapter.Add(c.Context, c.id, state)
	if err != nil || !added {
		return added, err
	}
	if err := c.adapter.AddHistory(c.Context, NewHistoryRecord(c.id, state)); err != nil {
		return true, &HistoryError{State: state, Err: err}
	}
	return true, nil
}

// IsPersisted reports whether a state was stored for the entity
func (c *EntityContext) IsPersisted() (bool, error) {
	return c.adapter.IsPersisted(c.Context, c.id)
}

// History returns the audit trail of the entity
func (c *EntityContext) History() ([]HistoryRecord, error) {
	return c.adapter.History(c.Context, c.id)
}

// SetFailedTransition appends an exception record to the history
func (c *EntityContext) SetFailedTransition(t *Transition, err error) error {
	record := NewHistoryRecord(c.id, "")
	record.Exception = true
	if t != nil {
		record.State = t.From().Name()
		record.Transition = t.Name()
	}
	if err != nil {
		record.Message = err.Error()
	}
	return c.adapter.AddHistory(c.Context, record)
}

// ID returns the entity id, optionally prefixed with the machine name
func (c *EntityContext) ID(withMachine bool) string {
	return c.id.ID(withMachine)
}

// Machine returns the machine name
func (c *EntityContext) Machine() string {
	return c.id.Machine
}

// Identifier returns the identifier of the entity
func (c *EntityContext) Identifier() Identifier {
	return c.id
}

// Adapter returns the persistence adapter
func (c *EntityContext) Adapter() Adapter {
	return c.adapter
}

func (c *EntityContext) String() string {
	return fmt.Sprintf("Context [id: %s, machine: %s]", c.id.EntityID, c.id.Machine)
}
