// internal/store/memstore/subscribe.go
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/zonehunt/zonehunt-service/internal/store"
)

// docSub is a single-document subscription.
type docSub struct {
	store *Store
	path  string
	ch    chan store.Snapshot

	closeOnce sync.Once
}

func (d *docSub) Snapshots() <-chan store.Snapshot { return d.ch }

func (d *docSub) Close() {
	d.closeOnce.Do(func() {
		d.store.mu.Lock()
		if subs, ok := d.store.docSubs[d.path]; ok {
			delete(subs, d)
			if len(subs) == 0 {
				delete(d.store.docSubs, d.path)
			}
		}
		d.store.mu.Unlock()
		close(d.ch)
	})
}

// push delivers a snapshot without ever blocking the store lock: when the
// subscriber has fallen snapshotBuffer deliveries behind, the oldest pending
// snapshot is discarded. Each snapshot carries full state, so consumers
// always converge on the latest.
func (d *docSub) push(snap store.Snapshot) {
	for {
		select {
		case d.ch <- snap:
			return
		default:
			select {
			case <-d.ch:
			default:
			}
		}
	}
}

func (s *Store) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	if _, _, err := store.SplitPath(path); err != nil {
		return nil, err
	}
	sub := &docSub{store: s, path: path, ch: make(chan store.Snapshot, snapshotBuffer)}

	s.mu.Lock()
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[*docSub]struct{})
	}
	s.docSubs[path][sub] = struct{}{}
	// Initial delivery: current state, present or not.
	sub.push(s.snapshotLocked(path))
	s.mu.Unlock()

	return sub, nil
}

// querySub is a live id-in query over one collection.
type querySub struct {
	store      *Store
	collection string
	ids        map[string]bool
	ch         chan map[string]store.Doc

	closeOnce sync.Once
}

func (q *querySub) Results() <-chan map[string]store.Doc { return q.ch }

func (q *querySub) Close() {
	q.closeOnce.Do(func() {
		q.store.mu.Lock()
		delete(q.store.querySubs, q)
		q.store.mu.Unlock()
		close(q.ch)
	})
}

func (q *querySub) push(result map[string]store.Doc) {
	for {
		select {
		case q.ch <- result:
			return
		default:
			select {
			case <-q.ch:
			default:
			}
		}
	}
}

func (s *Store) QueryIDsIn(ctx context.Context, collection string, ids []string) (store.QuerySubscription, error) {
	if collection == "" {
		return nil, fmt.Errorf("empty collection name")
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("id-in query requires a non-empty id list")
	}
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	sub := &querySub{
		store:      s,
		collection: collection,
		ids:        idSet,
		ch:         make(chan map[string]store.Doc, snapshotBuffer),
	}

	s.mu.Lock()
	s.querySubs[sub] = struct{}{}
	sub.push(s.queryResultLocked(sub))
	s.mu.Unlock()

	return sub, nil
}
