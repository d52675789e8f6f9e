// internal/cache/redis_test.go
package cache

import (
	"context"
	"testing"
)

func TestPublishLobbyEventWithoutClient(t *testing.T) {
	// The journal is optional: every lifecycle event must be publishable as a
	// no-op when no Redis is configured.
	Rdb = nil
	events := []string{
		EventLobbyCreated,
		EventLobbyJoined,
		EventLobbyLeft,
		EventGameStarted,
		EventLobbyDeleted,
	}
	for _, event := range events {
		err := PublishLobbyEvent(context.Background(), LobbyEventRecord{
			Code: "123456", Event: event, UserID: "user-a",
		})
		if err != nil {
			t.Errorf("expected nil-safe publish for %s, got %v", event, err)
		}
	}
}
