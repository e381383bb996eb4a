package statum

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identifier names one entity within one machine
type Identifier struct {
	EntityID string `json:"entity_id" yaml:"entity_id"`
	Machine  string `json:"machine" yaml:"machine"`
}

// NewIdentifier creates an identifier, generating a random entity id when
// entityID is empty
func NewIdentifier(machine, entityID string) Identifier {
	if entityID == "" {
		entityID = uuid.NewString()
	}
	return Identifier{EntityID: entityID, Machine: machine}
}

// ID returns the entity id, prefixed with the machine name when withMachine is set
func (id Identifier) ID(withMachine bool) string {
	if withMachine {
		return id.Machine + "_" + id.EntityID
	}
	return id.EntityID
}

func (id Identifier) String() string {
	return id.ID(true)
}

// HistoryRecord is one entry of the audit trail of an entity
type HistoryRecord struct {
	ID         string    `json:"id" bson:"_id"`
	Machine    string    `json:"machine" bson:"machine"`
	EntityID   string    `json:"entity_id" bson:"entity_id"`
	State      string    `json:"state" bson:"state"`
	Transition string    `json:"transition,omitempty" bson:"transition,omitempty"`
	Message    string    `json:"message,omitempty" bson:"message,omitempty"`
	Exception  bool      `json:"exception" bson:"exception"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// NewHistoryRecord creates a record for id with a fresh record id and the current time
func NewHistoryRecord(id Identifier, state string) HistoryRecord {
	return HistoryRecord{
		ID:        uuid.NewString(),
		Machine:   id.Machine,
		EntityID:  id.EntityID,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}

// Adapter persists the current state and history of entities.
// GetState returns ErrNotPersisted for an entity that was never stored.
type Adapter interface {
	// GetState returns the stored state name
	GetState(ctx context.Context, id Identifier) (string, error)
	// SetState stores the state name and reports whether the entity was new
	SetState(ctx context.Context, id Identifier, state string) (bool, error)
	// Add stores the state only if the entity was never stored and reports whether it did
	Add(ctx context.Context, id Identifier, state string) (bool, error)
	// IsPersisted reports whether the entity has a stored state
	IsPersisted(ctx context.Context, id Identifier) (bool, error)
	// AddHistory appends a record to the audit trail
	AddHistory(ctx context.Context, record HistoryRecord) error
	// History returns the audit trail of the entity, oldest first
	History(ctx context.Context, id Identifier) ([]HistoryRecord, error)
	// EntityIDs returns the ids of the entities of machine currently in state,
	// or all of them when state is empty
	EntityIDs(ctx context.Context, machine, state string) ([]string, error)
}
