// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/middleware"
	"github.com/zonehunt/zonehunt-service/internal/presence"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// LobbyWSHandler relays the lobby's live state to one connected member and
// accepts chat and location frames back. Each connection owns its own lobby
// manager instance, so the one-subscription-per-lobby-per-client guarantee
// holds per websocket.
func LobbyWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/lobby/ws/"), "/")
		if code == "" {
			http.Error(w, "missing game code", http.StatusBadRequest)
			return
		}

		userID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // tighten in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		if _, err := s.Store.Get(r.Context(), lobby.Collection+"/"+code); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.Close(InvalidLobbyIDError, "lobby does not exist")
			} else {
				c.Close(websocket.StatusInternalError, "lobby lookup failed")
			}
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Per-connection manager: this client's single live subscription.
		lm := lobby.NewManager(s.Store, s.Config, logger)
		sub, err := lm.Subscribe(ctx, code)
		if err != nil {
			logger.Warnf("lobby %s: subscribe failed for %s: %v", code, userID, err)
			c.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer sub.Close()

		tracker := presence.NewTracker(s.Store, logger)
		defer tracker.Close()

		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		go lobbyWritePump(ctx, cancel, c, sub, tracker, logger, code)
		err = lobbyReadPump(ctx, c, s, lm, userID, code, logger)

		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, err)
	}
}

// wsFrame is one JSON message in either direction.
type wsFrame struct {
	Type       string  `json:"type"`
	Msg        string  `json:"msg,omitempty"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
	ZoneRadius float64 `json:"zoneRadius,omitempty"`
}

// lobbyWritePump fans lobby snapshots and presence maps out to the client.
// It also drives the presence tracker: every membership change re-scopes
// the tracked id set.
func lobbyWritePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, sub *lobby.Subscription, tracker *presence.Tracker, logger *logrus.Logger, code string) {
	defer cancel()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var members []string
	var zoneCenter geo.Coordinate
	var zoneRadius float64

	writeJSON := func(v interface{}) bool {
		data, err := json.Marshal(v)
		if err != nil {
			logger.Warnf("lobby %s: marshal outgoing frame: %v", code, err)
			return true
		}
		writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
		err = c.Write(writeCtx, websocket.MessageText, data)
		cancelWrite()
		if err != nil {
			logger.Warnf("lobby %s: websocket write failed: %v", code, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Deleted {
				writeJSON(map[string]interface{}{"type": "lobby_deleted"})
				c.Close(LobbyDeletedClose, "lobby deleted")
				return
			}
			snap := ev.Lobby
			if !sameMembers(members, snap.Members) {
				members = append([]string(nil), snap.Members...)
				if err := tracker.SetMembers(ctx, members); err != nil {
					logger.Warnf("lobby %s: presence re-scope failed: %v", code, err)
				}
			}
			zoneCenter = snap.HostLocation
			zoneRadius = snap.ZoneRadius
			if !writeJSON(map[string]interface{}{"type": "lobby_state", "lobby": snap}) {
				return
			}

		case locations, ok := <-tracker.Updates():
			if !ok {
				return
			}
			inZone := make(map[string]bool, len(locations))
			for uid, coord := range locations {
				inZone[uid] = geo.InZone(coord, zoneCenter, zoneRadius)
			}
			frame := map[string]interface{}{
				"type":      "presence",
				"locations": locations,
				"inZone":    inZone,
			}
			if !writeJSON(frame) {
				return
			}

		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancelPing()
			if err != nil {
				logger.Warnf("lobby %s: ping failed, assuming disconnect: %v", code, err)
				return
			}
		}
	}
}

// lobbyReadPump handles incoming frames until the connection drops. The
// returned error is nil for a clean close.
func lobbyReadPump(ctx context.Context, c *websocket.Conn, s *Server, lm *lobby.Manager, userID, code string, logger *logrus.Logger) error {
	reporter := presence.NewReporter(s.Store, userID)

	writeError := func(msg string) {
		data, _ := json.Marshal(map[string]interface{}{"type": "error", "message": msg})
		writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
		_ = c.Write(writeCtx, websocket.MessageText, data)
		cancelWrite()
	}

	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			writeError("Invalid JSON format")
			continue
		}

		switch frame.Type {
		case "chat":
			if err := s.Chat.Send(ctx, code, userID, frame.Msg); err != nil {
				logger.Warnf("lobby %s: chat send failed for %s: %v", code, userID, err)
				writeError("message not sent, try again")
			}

		case "location":
			coord := geo.Coordinate{Latitude: frame.Latitude, Longitude: frame.Longitude}
			if err := reporter.Report(ctx, coord); err != nil {
				logger.Warnf("lobby %s: location report failed for %s: %v", code, userID, err)
			}

		case "start_game":
			if err := lm.StartGame(ctx, code, userID); err != nil {
				writeError("could not start the game")
			}

		case "update_radius":
			if err := lm.UpdateZoneRadius(ctx, code, frame.ZoneRadius); err != nil {
				writeError(err.Error())
			}

		case "leave_lobby":
			if err := lm.Leave(ctx, code, userID); err != nil {
				logger.Warnf("lobby %s: leave failed for %s: %v", code, userID, err)
			} else {
				journalLeave(ctx, s, code, userID)
			}
			c.Close(websocket.StatusNormalClosure, "left lobby")
			return nil

		default:
			writeError("unknown action type: " + frame.Type)
		}
	}
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
