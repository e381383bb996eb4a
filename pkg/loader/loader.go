// Package loader reads machine definitions from YAML, JSON or generic maps
// and turns them into statum blueprints.
package loader

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/anggasct/statum"
)

// NameList is a list of rule or command names. In documents it may be
// written as a sequence or as a single comma separated string.
type NameList []string

// UnmarshalYAML accepts both a scalar and a sequence
func (n *NameList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*n = splitNames(value.Value)
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*n = cleanNames(names)
		return nil
	}
	return fmt.Errorf("line %d: expected a name or a list of names", value.Line)
}

func splitNames(s string) NameList {
	return cleanNames(strings.Split(s, ","))
}

func cleanNames(names []string) NameList {
	out := make(NameList, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// StateDefinition describes one state
type StateDefinition struct {
	Name        string   `yaml:"name" json:"name" mapstructure:"name"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty" mapstructure:"type"`
	Entry       NameList `yaml:"entry,omitempty" json:"entry,omitempty" mapstructure:"entry"`
	Exit        NameList `yaml:"exit,omitempty" json:"exit,omitempty" mapstructure:"exit"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
}

// TransitionDefinition describes one transition. From may be a regex state
// name, in which case the transition is expanded when it is added.
type TransitionDefinition struct {
	From        string            `yaml:"from" json:"from" mapstructure:"from"`
	To          string            `yaml:"to" json:"to" mapstructure:"to"`
	Event       string            `yaml:"event,omitempty" json:"event,omitempty" mapstructure:"event"`
	Rules       NameList          `yaml:"rules,omitempty" json:"rules,omitempty" mapstructure:"rules"`
	Commands    NameList          `yaml:"commands,omitempty" json:"commands,omitempty" mapstructure:"commands"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty" mapstructure:"metadata"`
}

// Name returns the transition name
func (t TransitionDefinition) Name() string {
	return statum.TransitionName(t.From, t.To)
}

// Definition is the serializable form of a machine
type Definition struct {
	Name        string                 `yaml:"name" json:"name" mapstructure:"name"`
	States      []StateDefinition      `yaml:"states,omitempty" json:"states,omitempty" mapstructure:"states"`
	Transitions []TransitionDefinition `yaml:"transitions" json:"transitions" mapstructure:"transitions"`
}

// Parse decodes a YAML or JSON document
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	return &def, nil
}

// LoadFile reads and parses a definition file
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// FromMap decodes a definition from generic data, e.g. a section of an
// application config
func FromMap(data map[string]any) (*Definition, error) {
	var def Definition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       nameListHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &def,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return &def, nil
}

var nameListType = reflect.TypeOf(NameList{})

func nameListHook(from, to reflect.Type, data any) (any, error) {
	if to != nameListType || from.Kind() != reflect.String {
		return data, nil
	}
	return splitNames(data.(string)), nil
}

// Merge combines definitions of the same machine. States are shared by name
// and later non-empty fields win; a later transition with the same name
// replaces the earlier one in place.
func Merge(defs ...*Definition) (*Definition, error) {
	out := &Definition{}
	states := make(map[string]int)
	transitions := make(map[string]int)
	for _, def := range defs {
		if def == nil {
			continue
		}
		if out.Name == "" {
			out.Name = def.Name
		} else if def.Name != "" && def.Name != out.Name {
			return nil, fmt.Errorf("cannot merge machine '%s' into '%s'", def.Name, out.Name)
		}
		for _, s := range def.States {
			i, ok := states[s.Name]
			if !ok {
				states[s.Name] = len(out.States)
				out.States = append(out.States, s)
				continue
			}
			out.States[i] = mergeState(out.States[i], s)
		}
		for _, t := range def.Transitions {
			if i, ok := transitions[t.Name()]; ok {
				out.Transitions[i] = t
				continue
			}
			transitions[t.Name()] = len(out.Transitions)
			out.Transitions = append(out.Transitions, t)
		}
	}
	return out, nil
}

func mergeState(dst, src StateDefinition) StateDefinition {
	if src.Type != "" {
		dst.Type = src.Type
	}
	if len(src.Entry) > 0 {
		dst.Entry = src.Entry
	}
	if len(src.Exit) > 0 {
		dst.Exit = src.Exit
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	return dst
}

// Validate checks the definition. When reg is not nil every referenced rule
// and command must be registered. All problems are reported together.
func (d *Definition) Validate(reg *statum.Registry) error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("machine name is required"))
	}

	initial := 0
	seenStates := make(map[string]bool, len(d.States))
	for i, s := range d.States {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("state %d: name is required", i))
			continue
		}
		if seenStates[s.Name] {
			errs = append(errs, fmt.Errorf("state '%s': declared twice", s.Name))
		}
		seenStates[s.Name] = true
		st, err := statum.ParseStateType(s.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("state '%s': %w", s.Name, err))
		}
		if st == statum.StateInitial {
			initial++
		}
		if st == statum.StateRegex && !statum.IsRegexName(s.Name) {
			errs = append(errs, fmt.Errorf("state '%s': regex states need the '%s' prefix", s.Name, statum.RegexPrefix))
		}
		if statum.IsRegexName(s.Name) {
			if _, err := statum.NewRegexState(s.Name); err != nil {
				errs = append(errs, fmt.Errorf("state '%s': %w", s.Name, err))
			}
		}
		errs = append(errs, checkNames(reg, "state '"+s.Name+"'", nil, append(append(NameList{}, s.Entry...), s.Exit...))...)
	}
	if initial > 1 {
		errs = append(errs, fmt.Errorf("%d states are tagged initial", initial))
	}

	seenTransitions := make(map[string]bool, len(d.Transitions))
	for i, t := range d.Transitions {
		if t.From == "" || t.To == "" {
			errs = append(errs, fmt.Errorf("transition %d: from and to are required", i))
			continue
		}
		if seenTransitions[t.Name()] {
			errs = append(errs, fmt.Errorf("transition '%s': declared twice", t.Name()))
		}
		seenTransitions[t.Name()] = true
		errs = append(errs, checkNames(reg, "transition '"+t.Name()+"'", t.Rules, t.Commands)...)
	}
	return errors.Join(errs...)
}

func checkNames(reg *statum.Registry, owner string, rules, commands NameList) []error {
	if reg == nil {
		return nil
	}
	var errs []error
	for _, name := range rules {
		if _, ok := reg.Rule(name); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown rule '%s'", owner, name))
		}
	}
	for _, name := range commands {
		if _, ok := reg.Command(name); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown command '%s'", owner, name))
		}
	}
	return errs
}

// Blueprint creates the states and transitions of the definition. States
// referenced only by transitions are created as normal states.
func (d *Definition) Blueprint() (*statum.Blueprint, error) {
	if err := d.Validate(nil); err != nil {
		return nil, err
	}

	var order []*statum.State
	states := make(map[string]*statum.State)
	for _, s := range d.States {
		st, _ := statum.ParseStateType(s.Type)
		state, err := statum.ParseState(s.Name,
			statum.WithStateType(st),
			statum.WithEntryCommand(s.Entry...),
			statum.WithExitCommand(s.Exit...),
			statum.WithStateDescription(s.Description),
		)
		if err != nil {
			return nil, err
		}
		states[s.Name] = state
		order = append(order, state)
	}

	lookup := func(name string) (*statum.State, error) {
		if s, ok := states[name]; ok {
			return s, nil
		}
		s, err := statum.ParseState(name)
		if err != nil {
			return nil, err
		}
		states[name] = s
		order = append(order, s)
		return s, nil
	}

	transitions := make([]*statum.Transition, 0, len(d.Transitions))
	for _, t := range d.Transitions {
		from, err := lookup(t.From)
		if err != nil {
			return nil, err
		}
		to, err := lookup(t.To)
		if err != nil {
			return nil, err
		}
		opts := []statum.TransitionOption{
			statum.WithEvent(t.Event),
			statum.WithRules(t.Rules...),
			statum.WithCommands(t.Commands...),
			statum.WithDescription(t.Description),
		}
		for k, v := range t.Metadata {
			opts = append(opts, statum.WithMetadata(k, v))
		}
		transitions = append(transitions, statum.NewTransition(from, to, opts...))
	}
	return statum.NewBlueprint(d.Name, order, transitions), nil
}
