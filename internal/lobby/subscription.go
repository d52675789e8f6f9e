// internal/lobby/subscription.go
package lobby

import (
	"context"
	"fmt"
	"sync"
)

// Event is one delivery from a lobby subscription: the full current snapshot
// on every remote mutation, the subscriber's own echoed writes included.
// Deleted is set (and Lobby nil) once the document is gone, e.g. after the
// last member left.
type Event struct {
	Code    string
	Deleted bool
	Lobby   *Snapshot
}

// Subscription is a live registration on one lobby document. A Manager holds
// at most one per code: re-subscribing while already subscribed returns the
// existing handle, so repeated view appearances never stack listeners.
type Subscription struct {
	code    string
	manager *Manager
	events  chan Event
	stop    func()

	closeOnce sync.Once
}

// Events delivers decoded lobby snapshots until Close.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close stops delivery immediately and releases the underlying store
// listener. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.manager.mu.Lock()
		if s.manager.subs[s.code] == s {
			delete(s.manager.subs, s.code)
		}
		s.manager.mu.Unlock()
		s.stop()
	})
}

// Subscribe opens (or returns the already-open) live subscription for the
// given lobby code.
func (m *Manager) Subscribe(ctx context.Context, code string) (*Subscription, error) {
	m.mu.Lock()
	if existing, ok := m.subs[code]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	storeSub, err := m.store.Subscribe(ctx, docPath(code))
	if err != nil {
		return nil, fmt.Errorf("subscribing to lobby %s: %w", code, err)
	}

	sub := &Subscription{
		code:    code,
		manager: m,
		events:  make(chan Event, 16),
		stop:    storeSub.Close,
	}

	m.mu.Lock()
	if existing, ok := m.subs[code]; ok {
		// Lost a subscribe race; keep the first handle.
		m.mu.Unlock()
		storeSub.Close()
		return existing, nil
	}
	m.subs[code] = sub
	m.mu.Unlock()

	go func() {
		defer close(sub.events)
		for snap := range storeSub.Snapshots() {
			ev := Event{Code: code}
			if !snap.Exists {
				ev.Deleted = true
			} else {
				decoded, err := decodeLobby(snap.Data)
				if err != nil {
					m.logger.Warnf("lobby %s: dropping undecodable snapshot: %v", code, err)
					continue
				}
				ev.Lobby = decoded
			}
			select {
			case sub.events <- ev:
			default:
				// Slow consumer: favor the latest state over the backlog.
				select {
				case <-sub.events:
				default:
				}
				sub.events <- ev
			}
		}
	}()

	return sub, nil
}
