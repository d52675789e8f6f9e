// internal/cache/redis.go

// Package cache feeds lobby lifecycle events to an out-of-process consumer
// through a Redis queue. The journal is strictly observational: nothing in
// the lobby flow depends on it, and when Redis is not configured the
// publish calls are no-ops.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rdb is the shared Redis client, nil until ConnectRedis succeeds.
var Rdb *redis.Client

// DefaultQueueName is the Redis list receiving lobby event records.
var DefaultQueueName = "zonehunt_lobby_events"

// Lobby lifecycle event types journaled to the queue.
const (
	EventLobbyCreated = "lobby_created"
	EventLobbyJoined  = "lobby_joined"
	EventLobbyLeft    = "lobby_left"
	EventGameStarted  = "game_started"
	EventLobbyDeleted = "lobby_deleted"
)

// LobbyEventRecord is one journal entry.
type LobbyEventRecord struct {
	Code      string `json:"code"`
	Event     string `json:"event"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ConnectRedis initializes the shared client from REDIS_ADDR and REDIS_DB.
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishLobbyEvent serializes the record and pushes it onto the queue.
// Without a connected client this is a no-op.
func PublishLobbyEvent(ctx context.Context, record LobbyEventRecord) error {
	if Rdb == nil {
		return nil
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal LobbyEventRecord: %w", err)
	}

	queueName := getEnv("LOBBY_EVENT_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
