package statum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	bp, err := NewBuilder("order").
		State("new").Initial().Describe("fresh order").OnExit("Record").
		To("paid").On("pay").When("IsAllowed").Do("Inc").Describe("payment").Meta("ui", "primary").
		To("cancelled").On("cancel").
		State("paid").OnEntry("Inc").
		To("shipped").On("ship").
		State("shipped").Final().
		State("cancelled").Final().
		Build()
	require.NoError(t, err)
	assert.Equal(t, "order", bp.Name())

	var states []string
	for _, s := range bp.States() {
		states = append(states, s.Name())
	}
	assert.Equal(t, []string{"new", "paid", "cancelled", "shipped"}, states)

	var transitions []string
	for _, tr := range bp.Transitions() {
		transitions = append(transitions, tr.Name())
	}
	assert.Equal(t, []string{"new_to_paid", "new_to_cancelled", "paid_to_shipped"}, transitions)

	pay := bp.Transitions()[0]
	assert.Equal(t, "pay", pay.Event())
	assert.Equal(t, []string{"IsAllowed"}, pay.Rules())
	assert.Equal(t, []string{"Inc"}, pay.Commands())
	assert.Equal(t, "payment", pay.Description())
	assert.Equal(t, "primary", pay.Metadata()["ui"])
	assert.Equal(t, "fresh order", bp.States()[0].Description())
	assert.True(t, bp.States()[2].IsFinal())
}

func TestBuilder_Validation(t *testing.T) {
	_, err := NewBuilder("").State("a").Build()
	assert.True(t, IsConfigurationError(err))

	_, err = NewBuilder("m").State("a").Initial().State("b").Initial().Build()
	assert.True(t, IsConfigurationError(err))

	_, err = NewBuilder("m").State("a").To("b").To("b").Build()
	assert.ErrorContains(t, err, "duplicate transition 'a_to_b'")

	_, err = NewBuilder("m").State("regex:/([/").To("b").Build()
	assert.True(t, IsConfigurationError(err))
}

func TestBlueprint_NewMachine(t *testing.T) {
	bp, err := NewBuilder("test").
		State("new").Initial().To("a").On("go").When("IsAllowed").Do("Inc").
		State("a").OnEntry("Inc").To("done").
		State("done").Final().
		Build()
	require.NoError(t, err)

	e := newTestEntity()
	m, err := bp.NewMachine(newTestContext("test", e), WithRegistry(newTestRegistry()))
	require.NoError(t, err)

	ok, err := m.Handle("go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, e.Counter, "transition command and entry command")

	n, err := m.RunToCompletion()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	AssertState(t, m, "done")

	_, err = bp.NewMachine(newTestContext("other", e), WithRegistry(newTestRegistry()))
	assert.True(t, IsContextMismatch(err))

	_, err = bp.NewMachine(newTestContext("test", e))
	assert.True(t, IsActionError(err), "entry commands must resolve against the registry")
}

func TestBlueprint_PatternTransitions(t *testing.T) {
	bp, err := NewBuilder("test").
		State("draft").Initial().To("review").
		State("review").To("published").
		State("published").Final().
		State("regex:/^(draft|review)$/").To("archived").On("archive").
		State("archived").Final().
		Build()
	require.NoError(t, err)

	m, err := bp.NewMachine(newTestContext("test", newTestEntity()))
	require.NoError(t, err)

	_, ok := m.Transition("draft_to_archived")
	assert.True(t, ok)
	_, ok = m.Transition("review_to_archived")
	assert.True(t, ok)
	_, ok = m.Transition("published_to_archived")
	assert.False(t, ok)

	ok, err = m.Handle("archive")
	require.NoError(t, err)
	assert.True(t, ok)
	AssertState(t, m, "archived")
}

func TestNewBlueprint(t *testing.T) {
	a := NewState("a", AsInitial())
	b := NewState("b")
	bp := NewBlueprint("m", []*State{a, b}, []*Transition{NewTransition(a, b)})

	m, err := bp.NewMachine(newTestContext("m", newTestEntity()))
	require.NoError(t, err)
	ok, err := m.Apply("a_to_b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBlueprint_MachinesKeepTheirOwnRegistry(t *testing.T) {
	bp, err := NewBuilder("test").
		State("a").Initial().OnEntry("Enter").To("b").When("Gate").
		State("b").
		Build()
	require.NoError(t, err)

	open := NewRegistry().
		RegisterRule("Gate", func(any) (Rule, error) { return TrueRule{}, nil }).
		RegisterCommand("Enter", func(any) (Command, error) { return NullCommand{}, nil })
	shut := NewRegistry().
		RegisterRule("Gate", func(any) (Rule, error) { return FalseRule{}, nil }).
		RegisterCommand("Enter", func(any) (Command, error) { return NullCommand{}, nil })

	first, err := bp.NewMachine(newTestContext("test", newTestEntity()), WithRegistry(open))
	require.NoError(t, err)
	ok, err := first.CanApply("a_to_b")
	require.NoError(t, err)
	assert.True(t, ok)

	second, err := bp.NewMachine(NewContext(context.Background(), NewIdentifier("test", "2"), WithEntity(newTestEntity())), WithRegistry(shut))
	require.NoError(t, err)
	ok, err = second.CanApply("a_to_b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = first.CanApply("a_to_b")
	require.NoError(t, err)
	assert.True(t, ok, "loading the blueprint again leaves the first machine alone")

	for _, tr := range bp.Transitions() {
		assert.False(t, tr.IsResolved())
	}
}
