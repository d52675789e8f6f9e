// internal/presence/reporter.go
package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// Source supplies device coordinates: the current fix if one is known, and a
// live stream of updates. The stream runs until its context is cancelled and
// is not restartable; callers re-subscribe instead.
type Source interface {
	Current(ctx context.Context) (geo.Coordinate, bool)
	Stream(ctx context.Context) <-chan geo.Coordinate
}

// Reporter pushes the local user's coordinate into their profile document,
// overwriting the last-known position on every update. No history is kept.
type Reporter struct {
	store  store.Store
	userID string
}

// NewReporter returns a Reporter for the given user.
func NewReporter(s store.Store, userID string) *Reporter {
	return &Reporter{store: s, userID: userID}
}

// Report writes one coordinate. The profile document is created implicitly
// on the first report if the user has none yet.
func (r *Reporter) Report(ctx context.Context, coord geo.Coordinate) error {
	path := Collection + "/" + r.userID
	fields := store.Update{
		"latitude":  coord.Latitude,
		"longitude": coord.Longitude,
	}
	err := r.store.Update(ctx, path, fields)
	if errors.Is(err, store.ErrNotFound) {
		err = r.store.Set(ctx, path, store.Doc{
			"uid":       r.userID,
			"latitude":  coord.Latitude,
			"longitude": coord.Longitude,
		})
	}
	if err != nil {
		return fmt.Errorf("reporting location for %s: %w", r.userID, err)
	}
	return nil
}

// Run consumes a location source until the context ends, reporting every
// update. Errors are returned only for the final failed write; transient
// mid-stream failures are dropped on the floor the way the original client
// dropped them, since the next fix overwrites the record anyway.
func (r *Reporter) Run(ctx context.Context, src Source) error {
	if coord, ok := src.Current(ctx); ok {
		if err := r.Report(ctx, coord); err != nil {
			return err
		}
	}
	stream := src.Stream(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case coord, ok := <-stream:
			if !ok {
				return nil
			}
			_ = r.Report(ctx, coord)
		}
	}
}
