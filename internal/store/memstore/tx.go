// internal/store/memstore/tx.go
package memstore

import (
	"context"
	"fmt"

	"github.com/zonehunt/zonehunt-service/internal/store"
)

// memTx buffers reads and writes for one transaction attempt. Reads record
// the version observed so commit can detect concurrent writers; writes stage
// locally and apply atomically on commit.
type memTx struct {
	store *Store

	readVersions map[string]uint64
	staged       map[string]*stagedWrite
}

type stagedWrite struct {
	deleted bool
	data    store.Doc // nil when deleted
}

func (t *memTx) Get(path string) (store.Doc, error) {
	if _, _, err := store.SplitPath(path); err != nil {
		return nil, err
	}
	// Reads observe this transaction's own staged writes first.
	if w, ok := t.staged[path]; ok {
		if w.deleted {
			return nil, store.ErrNotFound
		}
		return cloneDoc(w.data), nil
	}

	t.store.mu.Lock()
	rec, ok := t.store.docs[path]
	t.store.mu.Unlock()
	if !ok {
		t.readVersions[path] = 0
		return nil, store.ErrNotFound
	}
	t.readVersions[path] = rec.version
	return cloneDoc(rec.data), nil
}

func (t *memTx) Set(path string, data store.Doc) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	t.staged[path] = &stagedWrite{data: cloneDoc(data)}
	return nil
}

func (t *memTx) Update(path string, fields store.Update) error {
	current, err := t.Get(path)
	if err != nil {
		return err
	}
	applyUpdate(current, fields)
	t.staged[path] = &stagedWrite{data: current}
	return nil
}

func (t *memTx) Delete(path string) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	t.staged[path] = &stagedWrite{deleted: true}
	return nil
}

// commit validates the read set and applies staged writes under the store
// lock. Returns false when a concurrent writer invalidated a read.
func (t *memTx) commit() bool {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for path, version := range t.readVersions {
		rec, ok := t.store.docs[path]
		current := uint64(0)
		if ok {
			current = rec.version
		}
		if current != version {
			return false
		}
	}

	for path, w := range t.staged {
		if w.deleted {
			t.store.deleteLocked(path)
		} else {
			t.store.writeLocked(path, w.data)
		}
	}
	return true
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; attempt < txRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{
			store:        s,
			readVersions: make(map[string]uint64),
			staged:       make(map[string]*stagedWrite),
		}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.commit() {
			return nil
		}
	}
	return fmt.Errorf("transaction exhausted %d attempts: %w", txRetries, store.ErrConflict)
}
