// internal/presence/tracker_test.go
package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/store"
	"github.com/zonehunt/zonehunt-service/internal/store/memstore"
)

func seedUser(t *testing.T, s *memstore.Store, uid string, lat, lon float64) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), Collection+"/"+uid, store.Doc{
		"uid":       uid,
		"latitude":  lat,
		"longitude": lon,
	}))
}

func TestTrackerFollowsMembers(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedUser(t, s, "a", 37.0, -122.0)
	seedUser(t, s, "b", 38.0, -121.0)

	tr := NewTracker(s, nil)
	defer tr.Close()

	require.NoError(t, tr.SetMembers(ctx, []string{"a", "b"}))

	mapping := recvMapping(t, tr)
	assert.Len(t, mapping, 2)
	assert.Equal(t, geo.Coordinate{Latitude: 37.0, Longitude: -122.0}, mapping["a"])

	// A location write for a tracked member re-delivers the full map.
	require.NoError(t, s.Update(ctx, Collection+"/a", store.Update{"latitude": 37.5}))
	mapping = waitForCoordinate(t, tr, "a", geo.Coordinate{Latitude: 37.5, Longitude: -122.0})
	assert.Len(t, mapping, 2)
}

func TestTrackerReScopesOnMembershipChange(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedUser(t, s, "a", 37.0, -122.0)
	seedUser(t, s, "b", 38.0, -121.0)

	tr := NewTracker(s, nil)
	defer tr.Close()

	require.NoError(t, tr.SetMembers(ctx, []string{"a", "b"}))
	recvMapping(t, tr)

	// Drop b from the set; deliveries shrink to a alone.
	require.NoError(t, tr.SetMembers(ctx, []string{"a"}))
	deadline := time.After(time.Second)
	for {
		mapping := recvMappingDeadline(t, tr, deadline)
		if len(mapping) == 1 {
			assert.Contains(t, mapping, "a")
			break
		}
	}

	// Writes to the dropped member no longer deliver anything new.
	require.NoError(t, s.Update(ctx, Collection+"/b", store.Update{"latitude": 39.0}))
	select {
	case mapping := <-tr.Updates():
		assert.NotContains(t, mapping, "b")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTrackerEmptyMembersClearsMapping(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedUser(t, s, "a", 37.0, -122.0)

	tr := NewTracker(s, nil)
	defer tr.Close()

	require.NoError(t, tr.SetMembers(ctx, []string{"a"}))
	recvMapping(t, tr)

	require.NoError(t, tr.SetMembers(ctx, nil))
	deadline := time.After(time.Second)
	for {
		mapping := recvMappingDeadline(t, tr, deadline)
		if len(mapping) == 0 {
			return
		}
	}
}

func TestTrackerSkipsProfilesWithoutLocation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Set(ctx, Collection+"/fresh", store.Doc{"uid": "fresh", "username": "maya"}))
	seedUser(t, s, "a", 37.0, -122.0)

	tr := NewTracker(s, nil)
	defer tr.Close()

	require.NoError(t, tr.SetMembers(ctx, []string{"a", "fresh"}))
	mapping := recvMapping(t, tr)
	assert.Contains(t, mapping, "a")
	assert.NotContains(t, mapping, "fresh")
}

func TestTrackerCloseIdempotent(t *testing.T) {
	s := memstore.New()
	seedUser(t, s, "a", 37.0, -122.0)

	tr := NewTracker(s, nil)
	require.NoError(t, tr.SetMembers(context.Background(), []string{"a"}))

	tr.Close()
	tr.Close()

	assert.Error(t, tr.SetMembers(context.Background(), []string{"a"}))
	_, ok := <-tr.Updates()
	assert.False(t, ok, "updates channel should be closed")
}

func TestReporterCreatesProfileOnFirstReport(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	r := NewReporter(s, "new-user")

	require.NoError(t, r.Report(ctx, geo.Coordinate{Latitude: 37.0, Longitude: -122.0}))

	doc, err := s.Get(ctx, Collection+"/new-user")
	require.NoError(t, err)
	assert.Equal(t, "new-user", doc["uid"])
	assert.Equal(t, 37.0, doc["latitude"])
}

func TestReporterOverwritesLastKnown(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Set(ctx, Collection+"/u1", store.Doc{
		"uid":      "u1",
		"username": "maya",
	}))
	r := NewReporter(s, "u1")

	require.NoError(t, r.Report(ctx, geo.Coordinate{Latitude: 37.0, Longitude: -122.0}))
	require.NoError(t, r.Report(ctx, geo.Coordinate{Latitude: 37.5, Longitude: -122.5}))

	doc, err := s.Get(ctx, Collection+"/u1")
	require.NoError(t, err)
	assert.Equal(t, 37.5, doc["latitude"])
	assert.Equal(t, "maya", doc["username"], "unrelated profile fields survive")
}

type fakeSource struct {
	initial geo.Coordinate
	hasFix  bool
	updates chan geo.Coordinate
}

func (f *fakeSource) Current(ctx context.Context) (geo.Coordinate, bool) { return f.initial, f.hasFix }
func (f *fakeSource) Stream(ctx context.Context) <-chan geo.Coordinate  { return f.updates }

func TestReporterRunConsumesSource(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	r := NewReporter(s, "u1")

	src := &fakeSource{
		initial: geo.Coordinate{Latitude: 37.0, Longitude: -122.0},
		hasFix:  true,
		updates: make(chan geo.Coordinate, 2),
	}
	src.updates <- geo.Coordinate{Latitude: 37.1, Longitude: -122.1}
	src.updates <- geo.Coordinate{Latitude: 37.2, Longitude: -122.2}
	close(src.updates)

	require.NoError(t, r.Run(ctx, src))

	doc, err := s.Get(ctx, Collection+"/u1")
	require.NoError(t, err)
	assert.Equal(t, 37.2, doc["latitude"])
}

func recvMapping(t *testing.T, tr *Tracker) map[string]geo.Coordinate {
	t.Helper()
	return recvMappingDeadline(t, tr, time.After(time.Second))
}

func recvMappingDeadline(t *testing.T, tr *Tracker, deadline <-chan time.Time) map[string]geo.Coordinate {
	t.Helper()
	select {
	case mapping, ok := <-tr.Updates():
		require.True(t, ok, "tracker closed unexpectedly")
		return mapping
	case <-deadline:
		t.Fatal("timed out waiting for presence mapping")
		return nil
	}
}

func waitForCoordinate(t *testing.T, tr *Tracker, uid string, want geo.Coordinate) map[string]geo.Coordinate {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		mapping := recvMappingDeadline(t, tr, deadline)
		if mapping[uid] == want {
			return mapping
		}
	}
}
