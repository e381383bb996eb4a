package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/statum"
	"github.com/anggasct/statum/pkg/adapters/redis"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAdapterState(t *testing.T) {
	mr, client := setup(t)
	adapter := redis.New(client, redis.WithPrefix("test:"))
	ctx := context.Background()
	id := statum.NewIdentifier("order", "1")

	_, err := adapter.GetState(ctx, id)
	assert.ErrorIs(t, err, statum.ErrNotPersisted)

	persisted, err := adapter.IsPersisted(ctx, id)
	require.NoError(t, err)
	assert.False(t, persisted)

	isNew, err := adapter.SetState(ctx, id, "new")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, mr.Exists("test:state:order_1"))

	isNew, err = adapter.SetState(ctx, id, "paid")
	require.NoError(t, err)
	assert.False(t, isNew)

	state, err := adapter.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "paid", state)

	persisted, err = adapter.IsPersisted(ctx, id)
	require.NoError(t, err)
	assert.True(t, persisted)
}

func TestAdapterAdd(t *testing.T) {
	_, client := setup(t)
	adapter := redis.New(client)
	ctx := context.Background()
	id := statum.NewIdentifier("order", "1")

	added, err := adapter.Add(ctx, id, "new")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = adapter.Add(ctx, id, "paid")
	require.NoError(t, err)
	assert.False(t, added)

	state, err := adapter.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", state)

	ids, err := adapter.EntityIDs(ctx, "order", "new")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestAdapterEntityIDs(t *testing.T) {
	_, client := setup(t)
	adapter := redis.New(client)
	ctx := context.Background()

	for _, entity := range []string{"3", "1", "2"} {
		_, err := adapter.SetState(ctx, statum.NewIdentifier("order", entity), "new")
		require.NoError(t, err)
	}
	_, err := adapter.SetState(ctx, statum.NewIdentifier("order", "2"), "paid")
	require.NoError(t, err)
	_, err = adapter.SetState(ctx, statum.NewIdentifier("invoice", "9"), "new")
	require.NoError(t, err)

	ids, err := adapter.EntityIDs(ctx, "order", "new")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids)

	ids, err = adapter.EntityIDs(ctx, "order", "paid")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)

	ids, err = adapter.EntityIDs(ctx, "order", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	ids, err = adapter.EntityIDs(ctx, "shipment", "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAdapterHistory(t *testing.T) {
	mr, client := setup(t)
	adapter := redis.New(client)
	ctx := context.Background()
	id := statum.NewIdentifier("order", "1")

	first := statum.NewHistoryRecord(id, "new")
	second := statum.NewHistoryRecord(id, "paid")
	second.Transition = "new_to_paid"
	require.NoError(t, adapter.AddHistory(ctx, first))
	require.NoError(t, adapter.AddHistory(ctx, second))

	records, err := adapter.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, "new_to_paid", records[1].Transition)
	assert.WithinDuration(t, second.Timestamp, records[1].Timestamp, time.Millisecond)

	_, err = mr.RPush("statum:history:order_1", "{not json")
	require.NoError(t, err)
	_, err = adapter.History(ctx, id)
	assert.ErrorIs(t, err, redis.ErrCorruptRecord)
}

func TestAdapterWithMachine(t *testing.T) {
	_, client := setup(t)
	adapter := redis.New(client)

	bp, err := statum.NewBuilder("light").
		State("off").Initial().To("on").On("toggle").
		State("on").To("off").On("toggle").
		Build()
	require.NoError(t, err)

	c := statum.NewContext(context.Background(), statum.NewIdentifier("light", "kitchen"), statum.WithAdapter(adapter))
	m, err := bp.NewMachine(c)
	require.NoError(t, err)

	ok, err := m.Handle("toggle")
	require.NoError(t, err)
	require.True(t, ok)

	// a fresh machine for the same entity reads the stored state
	c2 := statum.NewContext(context.Background(), statum.NewIdentifier("light", "kitchen"), statum.WithAdapter(adapter))
	m2, err := bp.NewMachine(c2)
	require.NoError(t, err)
	state, err := m2.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, "on", state.Name())

	history, err := c2.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "on", history[0].State)
}
