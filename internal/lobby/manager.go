// internal/lobby/manager.go

// Package lobby owns the lifecycle of one shared lobby document: creation
// with a unique game code, membership, chat-visible state transitions, and
// the live subscription that fans lobby changes out to the rest of the app.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zonehunt/zonehunt-service/internal/gamecode"
	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/identity"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// ErrNotHost indicates a non-host tried a host-only operation while
// Config.HostOnlyStart is enabled.
var ErrNotHost = errors.New("operation restricted to the lobby host")

// ErrGameActive indicates a join was rejected because the game already
// started and Config.RejectJoinWhenActive is enabled.
var ErrGameActive = errors.New("game already active")

// ErrRadiusOutOfRange indicates a zone radius outside the allowed bounds.
var ErrRadiusOutOfRange = fmt.Errorf("zone radius must be between %v and %v meters", MinZoneRadius, MaxZoneRadius)

// Config carries the policy knobs the source left open. Defaults preserve
// the observed behavior: anyone may start the game, and joining an active
// lobby is not blocked.
type Config struct {
	HostOnlyStart        bool
	RejectJoinWhenActive bool
}

// Manager coordinates create/join/leave/start transitions for lobby
// documents and hands out live subscriptions. All store access goes through
// the injected Store; the Manager holds no lobby state of its own beyond
// open subscriptions.
type Manager struct {
	store  store.Store
	codes  *gamecode.Generator
	cfg    Config
	logger *logrus.Logger

	mu   sync.Mutex
	subs map[string]*Subscription // code -> open subscription
}

// NewManager builds a Manager on the given store. logger may be nil.
func NewManager(s store.Store, cfg Config, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		store:  s,
		codes:  gamecode.New(s),
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

func docPath(code string) string { return Collection + "/" + code }

// Create reserves a unique game code and writes a fresh lobby document with
// the host as sole member and state waiting. A radius of zero takes the
// default. The code-uniqueness probe can lose a race to a concurrent
// creator; one retry with a fresh code covers that before the error
// surfaces.
func (m *Manager) Create(ctx context.Context, hostID string, hostLoc geo.Coordinate, radius float64) (*Snapshot, error) {
	if hostID == "" {
		return nil, identity.ErrUnauthenticated
	}
	if radius == 0 {
		radius = DefaultZoneRadius
	}
	if radius < MinZoneRadius || radius > MaxZoneRadius {
		return nil, ErrRadiusOutOfRange
	}

	for attempt := 0; attempt < 2; attempt++ {
		code, err := m.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}
		doc := encodeLobby(code, hostID, hostLoc, radius, time.Now().UTC())
		err = m.store.Create(ctx, docPath(code), doc)
		if errors.Is(err, store.ErrAlreadyExists) {
			m.logger.Warnf("lobby %s: lost code reservation race, regenerating", code)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating lobby %s: %w", code, err)
		}
		return decodeLobby(doc)
	}
	return nil, gamecode.ErrExhausted
}

// Join adds userID to the lobby's member set. The union update is
// commutative and duplicate-safe, so concurrent joiners need no
// coordination; the existence probe alone decides NotFound.
func (m *Manager) Join(ctx context.Context, code, userID string) error {
	if userID == "" {
		return identity.ErrUnauthenticated
	}
	data, err := m.store.Get(ctx, docPath(code))
	if err != nil {
		return fmt.Errorf("lobby %s: %w", code, err)
	}

	if m.cfg.RejectJoinWhenActive {
		if state, _ := data["gameState"].(string); state == StateActive {
			return fmt.Errorf("lobby %s: %w", code, ErrGameActive)
		}
	}

	err = m.store.Update(ctx, docPath(code), store.Update{
		"users": store.ArrayUnion(userID),
	})
	if err != nil {
		return fmt.Errorf("joining lobby %s: %w", code, err)
	}
	return nil
}

// Leave removes userID from the member set, deleting the document when the
// last member departs. The read-modify-write runs inside a store
// transaction: two concurrent leavers must not clobber each other's removal
// with a stale member list. Leaving a lobby that no longer exists is a
// no-op.
func (m *Manager) Leave(ctx context.Context, code, userID string) error {
	if userID == "" {
		return identity.ErrUnauthenticated
	}
	err := m.store.RunTransaction(ctx, func(tx store.Tx) error {
		data, err := tx.Get(docPath(code))
		if errors.Is(err, store.ErrNotFound) {
			return nil // already gone
		}
		if err != nil {
			return err
		}

		members, _ := stringSlice(data["users"])
		remaining := make([]string, 0, len(members))
		for _, member := range members {
			if member != userID {
				remaining = append(remaining, member)
			}
		}
		if len(remaining) == len(members) {
			return nil // was not a member
		}
		if len(remaining) == 0 {
			return tx.Delete(docPath(code))
		}
		out := make([]interface{}, len(remaining))
		for i, member := range remaining {
			out[i] = member
		}
		return tx.Update(docPath(code), store.Update{"users": out})
	})
	if err != nil {
		return fmt.Errorf("leaving lobby %s: %w", code, err)
	}
	return nil
}

// StartGame flips the lobby to active. Re-invoking on an active lobby is an
// effective no-op. With HostOnlyStart set, callerID must match the hostId
// recorded at creation.
func (m *Manager) StartGame(ctx context.Context, code, callerID string) error {
	if m.cfg.HostOnlyStart {
		data, err := m.store.Get(ctx, docPath(code))
		if err != nil {
			return fmt.Errorf("lobby %s: %w", code, err)
		}
		if host, _ := data["hostId"].(string); host != callerID {
			return fmt.Errorf("lobby %s: %w", code, ErrNotHost)
		}
	}
	err := m.store.Update(ctx, docPath(code), store.Update{"gameState": StateActive})
	if err != nil {
		return fmt.Errorf("starting lobby %s: %w", code, err)
	}
	return nil
}

// UpdateZoneRadius overwrites the geofence radius. Last writer wins; only
// the host edits this in practice, so no transaction is needed.
func (m *Manager) UpdateZoneRadius(ctx context.Context, code string, radius float64) error {
	if radius < MinZoneRadius || radius > MaxZoneRadius {
		return ErrRadiusOutOfRange
	}
	err := m.store.Update(ctx, docPath(code), store.Update{"zoneRadius": radius})
	if err != nil {
		return fmt.Errorf("updating lobby %s radius: %w", code, err)
	}
	return nil
}
