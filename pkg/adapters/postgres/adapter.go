// Package postgres stores entity states and history in PostgreSQL through
// pgx. Run Migrate once to create the tables.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anggasct/statum"
)

// DB is the subset of *pgxpool.Pool used by the adapter
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	getStateQuery = `SELECT state FROM statum_states WHERE machine = $1 AND entity_id = $2`

	// xmax is zero only for a freshly inserted row
	setStateQuery = `INSERT INTO statum_states (machine, entity_id, state) VALUES ($1, $2, $3)
ON CONFLICT (machine, entity_id) DO UPDATE SET state = EXCLUDED.state, changed_at = now()
RETURNING (xmax = 0)`

	addStateQuery = `INSERT INTO statum_states (machine, entity_id, state) VALUES ($1, $2, $3)
ON CONFLICT (machine, entity_id) DO NOTHING`

	isPersistedQuery = `SELECT EXISTS (SELECT 1 FROM statum_states WHERE machine = $1 AND entity_id = $2)`

	addHistoryQuery = `INSERT INTO statum_history (id, machine, entity_id, state, transition, message, exception, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	historyQuery = `SELECT id, state, transition, message, exception, created_at FROM statum_history
WHERE machine = $1 AND entity_id = $2 ORDER BY created_at, id`

	entityIDsQuery = `SELECT entity_id FROM statum_states
WHERE machine = $1 AND ($2 = '' OR state = $2) ORDER BY entity_id`
)

// Adapter implements statum.Adapter on postgres
type Adapter struct {
	db DB
}

var _ statum.Adapter = (*Adapter)(nil)

// New creates an adapter; pass a *pgxpool.Pool or a transaction
func New(db DB) *Adapter {
	return &Adapter{db: db}
}

// GetState returns the stored state name
func (a *Adapter) GetState(ctx context.Context, id statum.Identifier) (string, error) {
	var state string
	err := a.db.QueryRow(ctx, getStateQuery, id.Machine, id.EntityID).Scan(&state)
	if isNotFound(err) {
		return "", statum.ErrNotPersisted
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

// SetState upserts the state and reports whether the row was inserted
func (a *Adapter) SetState(ctx context.Context, id statum.Identifier, state string) (bool, error) {
	var inserted bool
	if err := a.db.QueryRow(ctx, setStateQuery, id.Machine, id.EntityID, state).Scan(&inserted); err != nil {
		return false, fmt.Errorf("failed to set state: %w", err)
	}
	return inserted, nil
}

// Add inserts the state only if the entity has no row
func (a *Adapter) Add(ctx context.Context, id statum.Identifier, state string) (bool, error) {
	tag, err := a.db.Exec(ctx, addStateQuery, id.Machine, id.EntityID, state)
	if err != nil {
		return false, fmt.Errorf("failed to add state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsPersisted reports whether the entity has a stored state
func (a *Adapter) IsPersisted(ctx context.Context, id statum.Identifier) (bool, error) {
	var exists bool
	if err := a.db.QueryRow(ctx, isPersistedQuery, id.Machine, id.EntityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check state: %w", err)
	}
	return exists, nil
}

// AddHistory inserts a history row
func (a *Adapter) AddHistory(ctx context.Context, r statum.HistoryRecord) error {
	_, err := a.db.Exec(ctx, addHistoryQuery,
		r.ID, r.Machine, r.EntityID, r.State, r.Transition, r.Message, r.Exception, r.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// History returns the audit trail, oldest first
func (a *Adapter) History(ctx context.Context, id statum.Identifier) ([]statum.HistoryRecord, error) {
	rows, err := a.db.Query(ctx, historyQuery, id.Machine, id.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statum.HistoryRecord, error) {
		r := statum.HistoryRecord{Machine: id.Machine, EntityID: id.EntityID}
		var ts time.Time
		err := row.Scan(&r.ID, &r.State, &r.Transition, &r.Message, &r.Exception, &ts)
		r.Timestamp = ts.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return records, nil
}

// EntityIDs returns the sorted ids of the entities of machine in state, or
// all of them when state is empty
func (a *Adapter) EntityIDs(ctx context.Context, machine, state string) ([]string, error) {
	rows, err := a.db.Query(ctx, entityIDsQuery, machine, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}
	return ids, nil
}
