// internal/store/mongostore/mongostore.go

// Package mongostore implements store.Store on MongoDB: one collection per
// document kind, document ids as _id, $addToSet for set-union fields,
// sessions for transactions, and change streams for subscriptions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zonehunt/zonehunt-service/internal/store"
)

// Store is a MongoDB-backed document store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the given MongoDB URI and pings it.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Get(ctx context.Context, path string) (store.Doc, error) {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	return getDoc(ctx, s.db.Collection(collection), id)
}

func getDoc(ctx context.Context, coll *mongo.Collection, id string) (store.Doc, error) {
	var raw bson.M
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return fromBSON(raw), nil
}

func (s *Store) Set(ctx context.Context, path string, data store.Doc) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": id}, toBSON(id, data), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data store.Doc) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).InsertOne(ctx, toBSON(id, data))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields store.Update) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id}, updateDoc(fields))
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// updateDoc translates a store.Update into a Mongo update document:
// plain fields become $set, UnionValue fields become $addToSet with $each.
func updateDoc(fields store.Update) bson.M {
	set := bson.M{}
	addToSet := bson.M{}
	for k, v := range fields {
		if union, ok := v.(store.UnionValue); ok {
			addToSet[k] = bson.M{"$each": union.Elems}
			continue
		}
		set[k] = v
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	return update
}

// mongoTx runs Tx operations inside a session context.
type mongoTx struct {
	store *Store
	ctx   mongo.SessionContext
}

func (t *mongoTx) Get(path string) (store.Doc, error) {
	return t.store.Get(t.ctx, path)
}

func (t *mongoTx) Set(path string, data store.Doc) error {
	return t.store.Set(t.ctx, path, data)
}

func (t *mongoTx) Update(path string, fields store.Update) error {
	return t.store.Update(t.ctx, path, fields)
}

func (t *mongoTx) Delete(path string) error {
	return t.store.Delete(t.ctx, path)
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&mongoTx{store: s, ctx: sc})
	})
	if err != nil {
		// WithTransaction already retried transient conflicts internally.
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%v: %w", err, store.ErrConflict)
		}
		return err
	}
	return nil
}

// toBSON copies a Doc into a bson map carrying the document id as _id.
func toBSON(id string, data store.Doc) bson.M {
	out := bson.M{"_id": id}
	for k, v := range data {
		out[k] = v
	}
	return out
}

// fromBSON strips _id and normalizes driver types back into Doc form.
func fromBSON(raw bson.M) store.Doc {
	out := make(store.Doc, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		out[k] = normalize(v)
	}
	return out
}

// normalize flattens the bson types the driver decodes into the plain
// map/slice/primitive shapes the decoders upstream expect.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}
