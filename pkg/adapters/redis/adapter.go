// Package redis stores entity states and history in redis.
//
// Key layout, below the configured prefix:
//
//	state:<machine>_<entity>           current state name
//	history:<machine>_<entity>         list of JSON history records
//	entities:<machine>                 set of every stored entity id
//	index:<machine>:<state>            set of entity ids currently in state
//	lock:<key>                         Locker keys
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	backend "github.com/redis/go-redis/v9"

	"github.com/anggasct/statum"
)

// Adapter implements statum.Adapter on redis
type Adapter struct {
	client backend.UniversalClient
	prefix string
}

var _ statum.Adapter = (*Adapter)(nil)

// Option configures the adapter
type Option func(*Adapter)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = prefix
	}
}

// New creates an adapter on an existing client
func New(client backend.UniversalClient, opts ...Option) *Adapter {
	a := &Adapter{
		client: client,
		prefix: "statum:",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) stateKey(id statum.Identifier) string {
	return a.prefix + "state:" + id.ID(true)
}

func (a *Adapter) historyKey(id statum.Identifier) string {
	return a.prefix + "history:" + id.ID(true)
}

func (a *Adapter) entitiesKey(machine string) string {
	return a.prefix + "entities:" + machine
}

func (a *Adapter) indexKey(machine, state string) string {
	return a.prefix + "index:" + machine + ":" + state
}

// GetState returns the stored state name
func (a *Adapter) GetState(ctx context.Context, id statum.Identifier) (string, error) {
	state, err := a.client.Get(ctx, a.stateKey(id)).Result()
	if errors.Is(err, backend.Nil) {
		return "", statum.ErrNotPersisted
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

// SetState stores the state and moves the entity between state indexes
func (a *Adapter) SetState(ctx context.Context, id statum.Identifier, state string) (bool, error) {
	previous, err := a.client.SetArgs(ctx, a.stateKey(id), state, backend.SetArgs{Get: true}).Result()
	isNew := errors.Is(err, backend.Nil)
	if err != nil && !isNew {
		return false, fmt.Errorf("failed to set state: %w", err)
	}

	_, err = a.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		if !isNew && previous != state {
			pipe.SRem(ctx, a.indexKey(id.Machine, previous), id.EntityID)
		}
		pipe.SAdd(ctx, a.indexKey(id.Machine, state), id.EntityID)
		pipe.SAdd(ctx, a.entitiesKey(id.Machine), id.EntityID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update state index: %w", err)
	}
	return isNew, nil
}

// Add stores the state only if the entity has none
func (a *Adapter) Add(ctx context.Context, id statum.Identifier, state string) (bool, error) {
	added, err := a.client.SetNX(ctx, a.stateKey(id), state, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add state: %w", err)
	}
	if !added {
		return false, nil
	}
	_, err = a.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.SAdd(ctx, a.indexKey(id.Machine, state), id.EntityID)
		pipe.SAdd(ctx, a.entitiesKey(id.Machine), id.EntityID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update state index: %w", err)
	}
	return true, nil
}

// IsPersisted reports whether the entity has a stored state
func (a *Adapter) IsPersisted(ctx context.Context, id statum.Identifier) (bool, error) {
	n, err := a.client.Exists(ctx, a.stateKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check state: %w", err)
	}
	return n > 0, nil
}

// AddHistory appends a JSON encoded record
func (a *Adapter) AddHistory(ctx context.Context, record statum.HistoryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	id := statum.Identifier{EntityID: record.EntityID, Machine: record.Machine}
	if err := a.client.RPush(ctx, a.historyKey(id), data).Err(); err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// History returns the audit trail, oldest first
func (a *Adapter) History(ctx context.Context, id statum.Identifier) ([]statum.HistoryRecord, error) {
	values, err := a.client.LRange(ctx, a.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	records := make([]statum.HistoryRecord, 0, len(values))
	for _, v := range values {
		var record statum.HistoryRecord
		if err := json.Unmarshal([]byte(v), &record); err != nil {
			return nil, errors.Join(ErrCorruptRecord, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// EntityIDs returns the sorted ids of the entities of machine in state, or
// all of them when state is empty
func (a *Adapter) EntityIDs(ctx context.Context, machine, state string) ([]string, error) {
	key := a.entitiesKey(machine)
	if state != "" {
		key = a.indexKey(machine, state)
	}
	ids, err := a.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close closes the underlying client
func (a *Adapter) Close() error {
	return a.client.Close()
}
