// internal/chat/chat_test.go
package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/store"
	"github.com/zonehunt/zonehunt-service/internal/store/memstore"
)

func newTestLobby(t *testing.T) (*memstore.Store, *lobby.Manager, string) {
	t.Helper()
	s := memstore.New()
	m := lobby.NewManager(s, lobby.Config{}, nil)
	snap, err := m.Create(context.Background(), "host-a", geo.Coordinate{Latitude: 37.7749, Longitude: -122.4194}, 500)
	require.NoError(t, err)
	return s, m, snap.Code
}

func TestSendAppends(t *testing.T) {
	ctx := context.Background()
	s, _, code := newTestLobby(t)
	c := NewChannel(s)

	require.NoError(t, c.Send(ctx, code, "host-a", "anyone near the fountain?"))
	require.NoError(t, c.Send(ctx, code, "host-a", "heading north"))

	doc, err := s.Get(ctx, lobby.Collection+"/"+code)
	require.NoError(t, err)
	entries := doc["lobbyChat"].([]interface{})
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "host-a", first["user"])
	assert.Equal(t, "anyone near the fountain?", first["message"])
}

func TestSendDropsWhitespace(t *testing.T) {
	ctx := context.Background()
	s, _, code := newTestLobby(t)
	c := NewChannel(s)

	require.NoError(t, c.Send(ctx, code, "host-a", ""))
	require.NoError(t, c.Send(ctx, code, "host-a", "   \n\t"))

	doc, err := s.Get(ctx, lobby.Collection+"/"+code)
	require.NoError(t, err)
	assert.Empty(t, doc["lobbyChat"])
}

func TestSendUnknownLobby(t *testing.T) {
	c := NewChannel(memstore.New())
	err := c.Send(context.Background(), "999999", "host-a", "hello?")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentSendsAllSurvive(t *testing.T) {
	ctx := context.Background()
	s, _, code := newTestLobby(t)
	c := NewChannel(s)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Send(ctx, code, fmt.Sprintf("user-%d", i), fmt.Sprintf("msg %d", i)))
		}(i)
	}
	wg.Wait()

	doc, err := s.Get(ctx, lobby.Collection+"/"+code)
	require.NoError(t, err)
	assert.Len(t, doc["lobbyChat"], 10)
}

func TestMessagesProjection(t *testing.T) {
	ctx := context.Background()
	s, m, code := newTestLobby(t)
	c := NewChannel(s)

	sub, err := m.Subscribe(ctx, code)
	require.NoError(t, err)
	defer sub.Close()
	msgs := c.Messages(sub)

	// Initial snapshot: no chat yet.
	assert.Empty(t, recvMessages(t, msgs))

	require.NoError(t, c.Send(ctx, code, "host-a", "ready?"))
	got := recvMessages(t, msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "host-a", got[0].User)
	assert.Equal(t, "ready?", got[0].Message)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestMessagesReleasesSlowConsumer(t *testing.T) {
	ctx := context.Background()
	s, m, code := newTestLobby(t)
	c := NewChannel(s)

	sub, err := m.Subscribe(ctx, code)
	require.NoError(t, err)
	msgs := c.Messages(sub)

	// Push well past the buffer without the consumer draining, then close.
	// The projection goroutine must not wedge on a full channel.
	for i := 0; i < 40; i++ {
		require.NoError(t, c.Send(ctx, code, "host-a", fmt.Sprintf("msg %d", i)))
	}
	sub.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return // channel closed, goroutine exited
			}
		case <-deadline:
			t.Fatal("messages channel never closed after subscription close")
		}
	}
}

func TestResolveNameCaches(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Set(ctx, "users/u1", store.Doc{"username": "maya"}))
	c := NewChannel(s)

	name, err := c.ResolveName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "maya", name)

	// Later profile edits do not invalidate the cached name.
	require.NoError(t, s.Update(ctx, "users/u1", store.Update{"username": "renamed"}))
	name, err = c.ResolveName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "maya", name)
}

func TestResolveNameFallsBackToGuest(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Set(ctx, "users/u2", store.Doc{"uid": "u2"}))
	c := NewChannel(s)

	name, err := c.ResolveName(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Guest", name)

	_, err = c.ResolveName(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func recvMessages(t *testing.T, ch <-chan []lobby.ChatMessage) []lobby.ChatMessage {
	t.Helper()
	select {
	case msgs, ok := <-ch:
		require.True(t, ok, "message channel closed unexpectedly")
		return msgs
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chat messages")
		return nil
	}
}
