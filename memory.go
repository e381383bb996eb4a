package statum

import (
	"context"
	"slices"
	"sync"
)

// MemoryAdapter keeps states and history in process memory
type MemoryAdapter struct {
	mu      sync.RWMutex
	states  map[Identifier]string
	history map[Identifier][]HistoryRecord
}

// NewMemoryAdapter creates an empty in-memory adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		states:  make(map[Identifier]string),
		history: make(map[Identifier][]HistoryRecord),
	}
}

// GetState returns the stored state name
func (a *MemoryAdapter) GetState(_ context.Context, id Identifier) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	state, ok := a.states[id]
	if !ok {
		return "", ErrNotPersisted
	}
	return state, nil
}

// SetState stores the state name
func (a *MemoryAdapter) SetState(_ context.Context, id Identifier, state string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.states[id]
	a.states[id] = state
	return !exists, nil
}

// Add stores the state if the entity is unknown
func (a *MemoryAdapter) Add(_ context.Context, id Identifier, state string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.states[id]; exists {
		return false, nil
	}
	a.states[id] = state
	return true, nil
}

// IsPersisted reports whether the entity has a stored state
func (a *MemoryAdapter) IsPersisted(_ context.Context, id Identifier) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.states[id]
	return ok, nil
}

// AddHistory appends a record
func (a *MemoryAdapter) AddHistory(_ context.Context, record HistoryRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := Identifier{EntityID: record.EntityID, Machine: record.Machine}
	a.history[id] = append(a.history[id], record)
	return nil
}

// History returns a copy of the audit trail
func (a *MemoryAdapter) History(_ context.Context, id Identifier) ([]HistoryRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.history[id]), nil
}

// EntityIDs returns the sorted ids of the entities of machine in state
func (a *MemoryAdapter) EntityIDs(_ context.Context, machine, state string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []string
	for id, s := range a.states {
		if id.Machine != machine {
			continue
		}
		if state != "" && s != state {
			continue
		}
		ids = append(ids, id.EntityID)
	}
	slices.Sort(ids)
	return ids, nil
}
