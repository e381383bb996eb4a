// Package mongo stores entity states and history in MongoDB
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/anggasct/statum"
)

// Collection is the subset of *mongo.Collection used by the adapter
type Collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
}

// stateDocument is one entity in the states collection
type stateDocument struct {
	ID        string    `bson:"_id"`
	Machine   string    `bson:"machine"`
	EntityID  string    `bson:"entity_id"`
	State     string    `bson:"state"`
	ChangedAt time.Time `bson:"changed_at"`
}

// Adapter implements statum.Adapter on two collections
type Adapter struct {
	states  Collection
	history Collection
}

var _ statum.Adapter = (*Adapter)(nil)

// New creates an adapter on explicit collections
func New(states, history Collection) *Adapter {
	return &Adapter{states: states, history: history}
}

// NewFromDatabase uses the statum_states and statum_history collections of db
func NewFromDatabase(db *mongo.Database) *Adapter {
	return New(db.Collection("statum_states"), db.Collection("statum_history"))
}

// EnsureIndexes creates the lookup indexes used by EntityIDs and History
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("statum_states").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "machine", Value: 1}, {Key: "state", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create state index: %w", err)
	}
	_, err = db.Collection("statum_history").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "machine", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}
	return nil
}

func byID(id statum.Identifier) bson.M {
	return bson.M{"_id": id.ID(true)}
}

// GetState returns the stored state name
func (a *Adapter) GetState(ctx context.Context, id statum.Identifier) (string, error) {
	var doc stateDocument
	err := a.states.FindOne(ctx, byID(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", statum.ErrNotPersisted
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state: %w", err)
	}
	return doc.State, nil
}

// SetState upserts the state and reports whether the document was inserted
func (a *Adapter) SetState(ctx context.Context, id statum.Identifier, state string) (bool, error) {
	update := bson.M{
		"$set":         bson.M{"state": state, "changed_at": time.Now().UTC()},
		"$setOnInsert": bson.M{"machine": id.Machine, "entity_id": id.EntityID},
	}
	res, err := a.states.UpdateOne(ctx, byID(id), update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to set state: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

// Add inserts the state only if the entity has no document
func (a *Adapter) Add(ctx context.Context, id statum.Identifier, state string) (bool, error) {
	update := bson.M{
		"$setOnInsert": bson.M{
			"machine":    id.Machine,
			"entity_id":  id.EntityID,
			"state":      state,
			"changed_at": time.Now().UTC(),
		},
	}
	res, err := a.states.UpdateOne(ctx, byID(id), update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to add state: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

// IsPersisted reports whether the entity has a stored state
func (a *Adapter) IsPersisted(ctx context.Context, id statum.Identifier) (bool, error) {
	n, err := a.states.CountDocuments(ctx, byID(id), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check state: %w", err)
	}
	return n > 0, nil
}

// AddHistory inserts a history document
func (a *Adapter) AddHistory(ctx context.Context, record statum.HistoryRecord) error {
	if _, err := a.history.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// History returns the audit trail, oldest first
func (a *Adapter) History(ctx context.Context, id statum.Identifier) ([]statum.HistoryRecord, error) {
	filter := bson.M{"machine": id.Machine, "entity_id": id.EntityID}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := a.history.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	var records []statum.HistoryRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return records, nil
}

// EntityIDs returns the sorted ids of the entities of machine in state, or
// all of them when state is empty
func (a *Adapter) EntityIDs(ctx context.Context, machine, state string) ([]string, error) {
	filter := bson.M{"machine": machine}
	if state != "" {
		filter["state"] = state
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "entity_id", Value: 1}}).
		SetProjection(bson.M{"entity_id": 1})
	cursor, err := a.states.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	var docs []stateDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.EntityID)
	}
	return ids, nil
}
