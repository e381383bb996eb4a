package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/statum"
)

type order struct {
	Paid    bool
	Charged int
	Notes   []string
}

func orderRegistry() *statum.Registry {
	return statum.NewRegistry().
		RegisterRule("IsPaid", statum.RuleFor(func(o *order) (bool, error) { return o.Paid, nil })).
		RegisterCommand("Charge", statum.CommandFor(func(o *order) error {
			o.Charged++
			return nil
		})).
		RegisterCommand("Notify", statum.CommandWithEvent(func(o *order, event string) error {
			o.Notes = append(o.Notes, event)
			return nil
		}))
}

func TestParseYAML(t *testing.T) {
	def, err := LoadFile("testdata/order.yaml")
	require.NoError(t, err)

	assert.Equal(t, "order", def.Name)
	require.Len(t, def.States, 4)
	assert.Equal(t, "initial", def.States[0].Type)
	assert.Equal(t, NameList{"Notify"}, def.States[1].Entry)

	require.Len(t, def.Transitions, 3)
	assert.Equal(t, NameList{"IsPaid"}, def.Transitions[0].Rules)
	assert.Equal(t, NameList{"Charge", "Notify"}, def.Transitions[0].Commands)
	assert.Equal(t, "post", def.Transitions[1].Metadata["carrier"])
	assert.Equal(t, "regex:/^(new|paid)$/_to_cancelled", def.Transitions[2].Name())
}

func TestParseJSON(t *testing.T) {
	def, err := Parse([]byte(`{"name":"light","transitions":[{"from":"off","to":"on","event":"toggle","commands":"A, B"}]}`))
	require.NoError(t, err)

	require.Len(t, def.Transitions, 1)
	assert.Equal(t, "off_to_on", def.Transitions[0].Name())
	assert.Equal(t, NameList{"A", "B"}, def.Transitions[0].Commands)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("name: [unterminated"))
	assert.Error(t, err)

	_, err = Parse([]byte("name: x\ntransitions:\n  - from: a\n    to: b\n    rules: {a: b}\n"))
	assert.Error(t, err)

	_, err = LoadFile("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestFromMap(t *testing.T) {
	def, err := FromMap(map[string]any{
		"name": "light",
		"states": []any{
			map[string]any{"name": "off", "type": "initial", "exit": "Log,Count"},
		},
		"transitions": []any{
			map[string]any{"from": "off", "to": "on", "event": "toggle", "rules": []any{"Powered"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, NameList{"Log", "Count"}, def.States[0].Exit)
	assert.Equal(t, NameList{"Powered"}, def.Transitions[0].Rules)

	_, err = FromMap(map[string]any{"name": "light", "unknown": true})
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := &Definition{
		Name:   "order",
		States: []StateDefinition{{Name: "new", Type: "initial"}, {Name: "paid"}},
		Transitions: []TransitionDefinition{
			{From: "new", To: "paid", Event: "pay"},
		},
	}
	b := &Definition{
		States: []StateDefinition{{Name: "paid", Description: "money received"}, {Name: "done", Type: "final"}},
		Transitions: []TransitionDefinition{
			{From: "new", To: "paid", Event: "settle"},
			{From: "paid", To: "done"},
		},
	}

	merged, err := Merge(a, nil, b)
	require.NoError(t, err)

	assert.Equal(t, "order", merged.Name)
	require.Len(t, merged.States, 3)
	assert.Equal(t, "money received", merged.States[1].Description)
	require.Len(t, merged.Transitions, 2)
	assert.Equal(t, "settle", merged.Transitions[0].Event)

	_, err = Merge(a, &Definition{Name: "invoice"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	def := &Definition{
		States: []StateDefinition{
			{Name: "a", Type: "initial"},
			{Name: "b", Type: "initial"},
			{Name: "a"},
			{Name: "c", Type: "bogus"},
			{Name: "d", Type: "regex"},
			{Name: "regex:/[/"},
		},
		Transitions: []TransitionDefinition{
			{From: "a", To: "b", Rules: NameList{"Missing"}, Commands: NameList{"Null", "Gone"}},
			{From: "a", To: "b"},
			{From: "a"},
		},
	}

	err := def.Validate(statum.NewRegistry())
	require.Error(t, err)
	for _, msg := range []string{
		"machine name is required",
		"state 'a': declared twice",
		"unknown state type 'bogus'",
		"state 'd': regex states need",
		"state 'regex:/[/'",
		"2 states are tagged initial",
		"unknown rule 'Missing'",
		"unknown command 'Gone'",
		"transition 'a_to_b': declared twice",
		"transition 2: from and to are required",
	} {
		assert.Contains(t, err.Error(), msg)
	}
	assert.NotContains(t, err.Error(), "'Null'")

	valid, err := LoadFile("testdata/order.yaml")
	require.NoError(t, err)
	assert.NoError(t, valid.Validate(orderRegistry()))
}

func TestBlueprint(t *testing.T) {
	def, err := LoadFile("testdata/order.yaml")
	require.NoError(t, err)

	bp, err := def.Blueprint()
	require.NoError(t, err)
	assert.Equal(t, "order", bp.Name())
	assert.Len(t, bp.States(), 5, "the regex source is kept as a state")

	o := &order{}
	c := statum.NewContext(context.Background(), statum.NewIdentifier("order", "42"), statum.WithEntity(o))
	m, err := bp.NewMachine(c, statum.WithRegistry(orderRegistry()))
	require.NoError(t, err)

	_, ok := m.Transition("new_to_cancelled")
	assert.True(t, ok)
	_, ok = m.Transition("paid_to_cancelled")
	assert.True(t, ok)

	shipped, ok := m.Transition("paid_to_shipped")
	require.True(t, ok)
	assert.Equal(t, "post", shipped.Metadata()["carrier"])

	handled, err := m.Handle("pay")
	require.NoError(t, err)
	assert.False(t, handled)

	o.Paid = true
	handled, err = m.Handle("pay")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, o.Charged)
	assert.Equal(t, []string{"pay", "pay"}, o.Notes, "transition command and entry command")

	handled, err = m.Handle("cancel")
	require.NoError(t, err)
	assert.True(t, handled)

	current, err := m.CurrentState()
	require.NoError(t, err)
	assert.True(t, current.IsFinal())
}

func TestBlueprintInvalid(t *testing.T) {
	_, err := (&Definition{}).Blueprint()
	assert.Error(t, err)
}
