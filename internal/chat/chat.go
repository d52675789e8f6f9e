// internal/chat/chat.go

// Package chat is the append-only messaging channel scoped to one lobby
// document. Sends go through a set-union update so concurrent senders never
// overwrite each other; reads are a projection of the lobby subscription.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// Channel sends chat into lobby documents and resolves sender ids to display
// names, caching each name after its first profile lookup.
type Channel struct {
	store store.Store

	mu    sync.Mutex
	names map[string]string // userID -> username
}

// NewChannel returns a Channel backed by the given store.
func NewChannel(s store.Store) *Channel {
	return &Channel{
		store: s,
		names: make(map[string]string),
	}
}

// Send appends {senderID, text, now} to the lobby's chat sequence. Empty or
// whitespace-only text is silently dropped; the chat array is never mutated
// otherwise.
func (c *Channel) Send(ctx context.Context, code, senderID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	entry := map[string]interface{}{
		"user":      senderID,
		"message":   text,
		"timestamp": time.Now().UTC(),
	}
	err := c.store.Update(ctx, lobby.Collection+"/"+code, store.Update{
		"lobbyChat": store.ArrayUnion(entry),
	})
	if err != nil {
		return fmt.Errorf("sending chat to lobby %s: %w", code, err)
	}
	return nil
}

// Messages projects the chat sequence out of a lobby subscription. The
// returned channel closes when the subscription does; a deleted lobby yields
// a final empty sequence.
func (c *Channel) Messages(sub *lobby.Subscription) <-chan []lobby.ChatMessage {
	out := make(chan []lobby.ChatMessage, 16)
	go func() {
		defer close(out)
		for ev := range sub.Events() {
			var msgs []lobby.ChatMessage
			if !ev.Deleted {
				msgs = ev.Lobby.Chat
			}
			select {
			case out <- msgs:
			default:
				// Slow consumer: each delivery is the full sequence, so keep
				// the latest and drop the backlog.
				select {
				case <-out:
				default:
				}
				out <- msgs
			}
		}
	}()
	return out
}

// ResolveName returns the display name for a user id, consulting the user
// profile document only on the first sighting of each id.
func (c *Channel) ResolveName(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	if name, ok := c.names[userID]; ok {
		c.mu.Unlock()
		return name, nil
	}
	c.mu.Unlock()

	data, err := c.store.Get(ctx, "users/"+userID)
	if err != nil {
		return "", fmt.Errorf("resolving username for %s: %w", userID, err)
	}
	name, _ := data["username"].(string)
	if name == "" {
		name = "Guest"
	}

	c.mu.Lock()
	c.names[userID] = name
	c.mu.Unlock()
	return name, nil
}
