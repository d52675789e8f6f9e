// internal/store/memstore/memstore.go

// Package memstore is an in-process implementation of store.Store with the
// full semantics the core relies on: set-union field updates, optimistic
// multi-document transactions, and ordered per-document change fan-out.
// It backs the test suites and serves as the default store when no external
// document database is configured.
package memstore

import (
	"context"
	"reflect"
	"sync"

	"github.com/zonehunt/zonehunt-service/internal/store"
)

// snapshotBuffer is the per-subscriber channel capacity. When a slow consumer
// falls this far behind, the oldest pending snapshot is dropped; every
// delivery carries full document state, so the latest always wins.
const snapshotBuffer = 32

// txRetries bounds the internal retry loop before ErrConflict surfaces.
const txRetries = 5

type record struct {
	data    store.Doc
	version uint64
}

// Store is the in-memory document store.
type Store struct {
	mu sync.Mutex

	docs map[string]record // path -> record

	docSubs   map[string]map[*docSub]struct{} // path -> subscribers
	querySubs map[*querySub]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs:      make(map[string]record),
		docSubs:   make(map[string]map[*docSub]struct{}),
		querySubs: make(map[*querySub]struct{}),
	}
}

func (s *Store) Get(ctx context.Context, path string) (store.Doc, error) {
	if _, _, err := store.SplitPath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDoc(rec.data), nil
}

func (s *Store) Set(ctx context.Context, path string, data store.Doc) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(path, cloneDoc(data))
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data store.Doc) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; ok {
		return store.ErrAlreadyExists
	}
	s.writeLocked(path, cloneDoc(data))
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields store.Update) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[path]
	if !ok {
		return store.ErrNotFound
	}
	next := cloneDoc(rec.data)
	applyUpdate(next, fields)
	s.writeLocked(path, next)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(path)
	return nil
}

// writeLocked stores the document and fans the change out. Caller holds mu.
func (s *Store) writeLocked(path string, data store.Doc) {
	rec := s.docs[path]
	s.docs[path] = record{data: data, version: rec.version + 1}
	s.notifyLocked(path)
}

// deleteLocked removes the document (if present) and fans the deletion out.
// Caller holds mu.
func (s *Store) deleteLocked(path string) {
	if _, ok := s.docs[path]; !ok {
		return
	}
	delete(s.docs, path)
	s.notifyLocked(path)
}

func (s *Store) notifyLocked(path string) {
	snap := s.snapshotLocked(path)
	for sub := range s.docSubs[path] {
		sub.push(snap)
	}
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return
	}
	for q := range s.querySubs {
		if q.collection == collection && q.ids[id] {
			q.push(s.queryResultLocked(q))
		}
	}
}

func (s *Store) snapshotLocked(path string) store.Snapshot {
	rec, ok := s.docs[path]
	if !ok {
		return store.Snapshot{Path: path, Exists: false}
	}
	return store.Snapshot{Path: path, Exists: true, Data: cloneDoc(rec.data)}
}

func (s *Store) queryResultLocked(q *querySub) map[string]store.Doc {
	out := make(map[string]store.Doc, len(q.ids))
	for id := range q.ids {
		if rec, ok := s.docs[q.collection+"/"+id]; ok {
			out[id] = cloneDoc(rec.data)
		}
	}
	return out
}

// applyUpdate merges fields into doc, resolving UnionValue fields as
// duplicate-free array appends.
func applyUpdate(doc store.Doc, fields store.Update) {
	for k, v := range fields {
		union, ok := v.(store.UnionValue)
		if !ok {
			doc[k] = cloneValue(v)
			continue
		}
		existing, _ := doc[k].([]interface{})
		for _, elem := range union.Elems {
			if !containsElem(existing, elem) {
				existing = append(existing, cloneValue(elem))
			}
		}
		doc[k] = existing
	}
}

func containsElem(arr []interface{}, elem interface{}) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, elem) {
			return true
		}
	}
	return false
}

func cloneDoc(d store.Doc) store.Doc {
	if d == nil {
		return nil
	}
	out := make(store.Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case store.Doc:
		return cloneDoc(val)
	case map[string]interface{}:
		return map[string]interface{}(cloneDoc(store.Doc(val)))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
