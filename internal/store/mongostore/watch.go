// internal/store/mongostore/watch.go
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zonehunt/zonehunt-service/internal/store"
)

// changeEvent is the slice of a change stream document we care about.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// docWatch is a single-document change-stream subscription.
type docWatch struct {
	cancel    context.CancelFunc
	ch        chan store.Snapshot
	closeOnce sync.Once
}

func (w *docWatch) Snapshots() <-chan store.Snapshot { return w.ch }

func (w *docWatch) Close() {
	w.closeOnce.Do(w.cancel)
}

func (s *Store) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	coll := s.db.Collection(collection)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	cs, err := coll.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	w := &docWatch{cancel: cancel, ch: make(chan store.Snapshot, 32)}

	// Initial delivery: current state, present or not. The stream was opened
	// first so no mutation slips between the read and the watch.
	initial := store.Snapshot{Path: path}
	if data, err := getDoc(ctx, coll, id); err == nil {
		initial.Exists = true
		initial.Data = data
	} else if !errors.Is(err, store.ErrNotFound) {
		cancel()
		cs.Close(context.Background())
		return nil, err
	}

	go func() {
		defer close(w.ch)
		defer cs.Close(context.Background())

		if !send(streamCtx, w.ch, initial) {
			return
		}
		for cs.Next(streamCtx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				continue
			}
			snap := store.Snapshot{Path: path}
			if ev.OperationType != "delete" && ev.FullDocument != nil {
				snap.Exists = true
				snap.Data = fromBSON(ev.FullDocument)
			}
			if !send(streamCtx, w.ch, snap) {
				return
			}
		}
	}()

	return w, nil
}

// queryWatch is a live id-in query over one collection.
type queryWatch struct {
	cancel    context.CancelFunc
	ch        chan map[string]store.Doc
	closeOnce sync.Once
}

func (w *queryWatch) Results() <-chan map[string]store.Doc { return w.ch }

func (w *queryWatch) Close() {
	w.closeOnce.Do(w.cancel)
}

func (s *Store) QueryIDsIn(ctx context.Context, collection string, ids []string) (store.QuerySubscription, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("id-in query requires a non-empty id list")
	}
	coll := s.db.Collection(collection)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": bson.M{"$in": ids}}}},
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	cs, err := coll.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	// Seed the mapping with the current result set.
	current := make(map[string]store.Doc, len(ids))
	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		cancel()
		cs.Close(context.Background())
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			continue
		}
		if id, ok := raw["_id"].(string); ok {
			current[id] = fromBSON(raw)
		}
	}
	cursor.Close(ctx)

	w := &queryWatch{cancel: cancel, ch: make(chan map[string]store.Doc, 32)}

	go func() {
		defer close(w.ch)
		defer cs.Close(context.Background())

		if !send(streamCtx, w.ch, copyResult(current)) {
			return
		}
		for cs.Next(streamCtx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				continue
			}
			switch ev.OperationType {
			case "delete":
				delete(current, ev.DocumentKey.ID)
			default:
				if ev.FullDocument != nil {
					current[ev.DocumentKey.ID] = fromBSON(ev.FullDocument)
				}
			}
			if !send(streamCtx, w.ch, copyResult(current)) {
				return
			}
		}
	}()

	return w, nil
}

func copyResult(m map[string]store.Doc) map[string]store.Doc {
	out := make(map[string]store.Doc, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// send delivers v unless the watch context was cancelled.
func send[T any](ctx context.Context, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
