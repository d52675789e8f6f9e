// internal/presence/tracker.go

// Package presence maintains the live user-id-to-coordinate mapping for the
// members of a lobby, and pushes the local user's own coordinate into the
// store. The tracker side only consumes; the reporter side only writes.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// Collection holds the per-user profile documents carrying last-known
// coordinates.
const Collection = "users"

// Tracker follows the member set of one lobby. Every change to the set tears
// down the previous store query and opens a fresh one scoped to exactly the
// current members; every delivery replaces the published mapping wholesale.
// Coordinates are never expired: the mapping holds whatever the store last
// said per member, however old.
type Tracker struct {
	store  store.Store
	logger *logrus.Logger

	mu         sync.Mutex
	sub        store.QuerySubscription
	generation int
	closed     bool

	out chan map[string]geo.Coordinate
}

// NewTracker returns a Tracker with no members. logger may be nil.
func NewTracker(s store.Store, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{
		store:  s,
		logger: logger,
		out:    make(chan map[string]geo.Coordinate, 16),
	}
}

// Updates delivers the full member-coordinate mapping on every change.
func (t *Tracker) Updates() <-chan map[string]geo.Coordinate { return t.out }

// SetMembers re-scopes the tracker to the given member ids, replacing any
// previous query subscription. An empty set clears the published mapping and
// leaves no subscription open.
func (t *Tracker) SetMembers(ctx context.Context, memberIDs []string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("tracker closed")
	}
	if t.sub != nil {
		t.sub.Close()
		t.sub = nil
	}
	t.generation++
	gen := t.generation

	if len(memberIDs) == 0 {
		t.mu.Unlock()
		t.publish(gen, map[string]geo.Coordinate{})
		return nil
	}

	sub, err := t.store.QueryIDsIn(ctx, Collection, memberIDs)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("tracking members: %w", err)
	}
	t.sub = sub
	t.mu.Unlock()

	go t.pump(gen, sub)
	return nil
}

// pump projects raw profile documents into coordinates until the query
// subscription closes or a newer generation supersedes this one.
func (t *Tracker) pump(gen int, sub store.QuerySubscription) {
	for result := range sub.Results() {
		mapping := make(map[string]geo.Coordinate, len(result))
		for id, doc := range result {
			coord, ok := decodeCoordinate(doc)
			if !ok {
				// Profile exists but has no location yet; skip until the
				// first report lands.
				continue
			}
			mapping[id] = coord
		}
		if !t.publish(gen, mapping) {
			return
		}
	}
}

// publish pushes a mapping unless the tracker moved on to a newer member
// set or was closed. Returns false when this generation is stale. The send
// happens under the tracker lock so a stale pump can never write to a
// closed channel.
func (t *Tracker) publish(gen int, mapping map[string]geo.Coordinate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.generation {
		return false
	}
	select {
	case t.out <- mapping:
	default:
		// Replace the pending mapping rather than block; only the latest
		// full map matters.
		select {
		case <-t.out:
		default:
		}
		t.out <- mapping
	}
	return true
}

// Close tears down any open subscription and stops delivery. Idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.generation++
	sub := t.sub
	t.sub = nil
	close(t.out)
	t.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

func decodeCoordinate(doc store.Doc) (geo.Coordinate, bool) {
	lat, okLat := toFloat(doc["latitude"])
	lon, okLon := toFloat(doc["longitude"])
	if !okLat || !okLon {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Latitude: lat, Longitude: lon}, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
