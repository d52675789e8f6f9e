// internal/lobby/model.go
package lobby

import (
	"fmt"
	"time"

	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// Lobby game states. The only in-core transition is waiting -> active,
// triggered by StartGame; no transition out of active is defined here.
const (
	StateWaiting = "waiting"
	StateActive  = "active"
)

// Zone radius bounds in meters, matching the host's settings slider.
const (
	MinZoneRadius     = 100.0
	MaxZoneRadius     = 2000.0
	DefaultZoneRadius = 500.0
)

// Collection is the document collection holding lobby documents, keyed by
// their game code.
const Collection = "lobbies"

// ChatMessage is one append-only chat entry. Identity for display/dedup
// purposes is the (User, Timestamp) pair.
type ChatMessage struct {
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the decoded state of one lobby document as delivered by the
// store subscription.
type Snapshot struct {
	Code         string         `json:"gameCode"`
	CreatedAt    time.Time      `json:"createdAt"`
	HostID       string         `json:"hostId"`
	Members      []string       `json:"users"`
	HostLocation geo.Coordinate `json:"hostLocation"`
	ZoneRadius   float64        `json:"zoneRadius"`
	State        string         `json:"gameState"`
	Chat         []ChatMessage  `json:"lobbyChat"`
}

// HasMember reports whether uid is currently in the lobby.
func (s *Snapshot) HasMember(uid string) bool {
	for _, m := range s.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// encodeLobby builds the persisted document for a freshly created lobby.
func encodeLobby(code string, hostID string, hostLoc geo.Coordinate, radius float64, createdAt time.Time) store.Doc {
	return store.Doc{
		"gameCode":     code,
		"createdAt":    createdAt,
		"users":        []interface{}{hostID},
		"hostLocation": []interface{}{hostLoc.Latitude, hostLoc.Longitude},
		"zoneRadius":   radius,
		"gameState":    StateWaiting,
		"hostId":       hostID,
		"lobbyChat":    []interface{}{},
	}
}

// decodeLobby turns a raw store document into a Snapshot. Required fields
// missing or mistyped fail the decode; an absent chat array decodes empty.
func decodeLobby(data store.Doc) (*Snapshot, error) {
	snap := &Snapshot{}

	code, ok := stringField(data, "gameCode")
	if !ok {
		return nil, fmt.Errorf("lobby document missing gameCode")
	}
	snap.Code = code

	host, ok := data["hostId"].(string)
	if !ok {
		return nil, fmt.Errorf("lobby document missing hostId")
	}
	snap.HostID = host

	state, ok := data["gameState"].(string)
	if !ok {
		return nil, fmt.Errorf("lobby document missing gameState")
	}
	snap.State = state

	if ts, ok := data["createdAt"].(time.Time); ok {
		snap.CreatedAt = ts
	}

	members, ok := stringSlice(data["users"])
	if !ok {
		return nil, fmt.Errorf("lobby document missing users")
	}
	snap.Members = members

	loc, ok := floatSlice(data["hostLocation"])
	if !ok || len(loc) != 2 {
		return nil, fmt.Errorf("lobby document missing hostLocation")
	}
	snap.HostLocation = geo.Coordinate{Latitude: loc[0], Longitude: loc[1]}

	radius, ok := floatField(data, "zoneRadius")
	if !ok {
		return nil, fmt.Errorf("lobby document missing zoneRadius")
	}
	snap.ZoneRadius = radius

	snap.Chat = decodeChat(data["lobbyChat"])
	return snap, nil
}

func decodeChat(v interface{}) []ChatMessage {
	entries, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]ChatMessage, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			if d, isDoc := e.(store.Doc); isDoc {
				m = map[string]interface{}(d)
			} else {
				continue
			}
		}
		msg := ChatMessage{}
		msg.User, _ = m["user"].(string)
		msg.Message, _ = m["message"].(string)
		if ts, ok := m["timestamp"].(time.Time); ok {
			msg.Timestamp = ts
		}
		out = append(out, msg)
	}
	return out
}

// stringField reads a field that may be stored as a string or a number
// (the original clients wrote gameCode as an integer).
func stringField(data store.Doc, key string) (string, bool) {
	switch v := data[key].(type) {
	case string:
		return v, true
	case int:
		return fmt.Sprintf("%06d", v), true
	case int32:
		return fmt.Sprintf("%06d", v), true
	case int64:
		return fmt.Sprintf("%06d", v), true
	case float64:
		return fmt.Sprintf("%06d", int64(v)), true
	}
	return "", false
}

func floatField(data store.Doc, key string) (float64, bool) {
	return toFloat(data[key])
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringSlice(v interface{}) ([]string, bool) {
	switch arr := v.(type) {
	case []string:
		out := make([]string, len(arr))
		copy(out, arr)
		return out, true
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func floatSlice(v interface{}) ([]float64, bool) {
	switch arr := v.(type) {
	case []float64:
		out := make([]float64, len(arr))
		copy(out, arr)
		return out, true
	case []interface{}:
		out := make([]float64, 0, len(arr))
		for _, e := range arr {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}
