package statum

import (
	"fmt"
)

// Command is an action bound to an entity
type Command interface {
	Execute() error
}

// CommandFactory constructs a Command for an entity
type CommandFactory func(entity any) (Command, error)

// CommandFunc adapts a plain function to the Command interface
type CommandFunc func() error

// Execute calls f
func (f CommandFunc) Execute() error {
	return f()
}

// NullCommand does nothing
type NullCommand struct{}

// Execute returns nil
func (NullCommand) Execute() error {
	return nil
}

// CompositeCommand executes its commands in order and stops at the first failure
type CompositeCommand struct {
	commands []Command
}

// NewCompositeCommand composes commands sequentially
func NewCompositeCommand(commands ...Command) *CompositeCommand {
	return &CompositeCommand{commands: commands}
}

// Add appends a command
func (c *CompositeCommand) Add(cmd Command) {
	c.commands = append(c.commands, cmd)
}

// Commands returns the composed commands
func (c *CompositeCommand) Commands() []Command {
	return append([]Command(nil), c.commands...)
}

// Execute runs the composed commands
func (c *CompositeCommand) Execute() error {
	for i, cmd := range c.commands {
		if err := safeExecute(cmd); err != nil {
			return fmt.Errorf("command %d of %d: %w", i+1, len(c.commands), err)
		}
	}
	return nil
}

// SetEvent passes the event to every composed command that accepts it
func (c *CompositeCommand) SetEvent(event string) {
	for _, cmd := range c.commands {
		if setter, ok := cmd.(EventSetter); ok {
			setter.SetEvent(event)
		}
	}
}

// CommandFor builds a factory from an action over a typed entity
func CommandFor[T any](fn func(entity T) error) CommandFactory {
	return func(entity any) (Command, error) {
		typed, err := assertEntity[T](entity)
		if err != nil {
			return nil, err
		}
		return CommandFunc(func() error { return fn(typed) }), nil
	}
}

// CommandWithEvent builds a factory from an action that also sees the trigger event
func CommandWithEvent[T any](fn func(entity T, event string) error) CommandFactory {
	return func(entity any) (Command, error) {
		typed, err := assertEntity[T](entity)
		if err != nil {
			return nil, err
		}
		return &eventCommand[T]{entity: typed, fn: fn}, nil
	}
}

type eventCommand[T any] struct {
	entity T
	event  string
	fn     func(T, string) error
}

func (c *eventCommand[T]) SetEvent(event string) {
	c.event = event
}

func (c *eventCommand[T]) Execute() error {
	return c.fn(c.entity, c.event)
}

type namedCommand struct {
	name    string
	factory CommandFactory
}

// buildCommand constructs the commands for entity and folds them into one:
// a NullCommand when there are none, the command itself when there is one
// and a CompositeCommand otherwise.
func buildCommand(owner string, commands []namedCommand, entity any, event string) (Command, error) {
	if len(commands) == 0 {
		return NullCommand{}, nil
	}
	built := make([]Command, 0, len(commands))
	for _, nc := range commands {
		cmd, err := safeBuildCommand(nc.factory, entity)
		if err != nil {
			return nil, NewActionCreationError(owner, nc.name, err)
		}
		if event != "" {
			if setter, ok := cmd.(EventSetter); ok {
				setter.SetEvent(event)
			}
		}
		built = append(built, cmd)
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return NewCompositeCommand(built...), nil
}

func safeExecute(cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panic: %v", r)
		}
	}()
	return cmd.Execute()
}

func safeBuildCommand(factory CommandFactory, entity any) (cmd Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			cmd, err = nil, fmt.Errorf("command factory panic: %v", r)
		}
	}()
	cmd, err = factory(entity)
	if err == nil && cmd == nil {
		err = fmt.Errorf("command factory returned nil")
	}
	return cmd, err
}
