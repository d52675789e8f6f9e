// internal/handlers/lobby.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zonehunt/zonehunt-service/internal/cache"
	"github.com/zonehunt/zonehunt-service/internal/geo"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// CreateLobbyHandler reserves a game code and writes the new lobby document
// with the caller as host and sole member.
func CreateLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			writeLobbyError(w, err)
			return
		}

		var req struct {
			Latitude   float64 `json:"latitude"`
			Longitude  float64 `json:"longitude"`
			ZoneRadius float64 `json:"zoneRadius"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad lobby request payload", http.StatusBadRequest)
			return
		}

		hostLoc := geo.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}
		snap, err := s.Lobbies.Create(r.Context(), userID, hostLoc, req.ZoneRadius)
		if err != nil {
			writeLobbyError(w, err)
			return
		}

		if err := cache.PublishLobbyEvent(r.Context(), cache.LobbyEventRecord{
			Code: snap.Code, Event: cache.EventLobbyCreated, UserID: userID,
		}); err != nil {
			s.Logger.Warnf("lobby %s: journal publish failed: %v", snap.Code, err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

type lobbyActionRequest struct {
	Code string `json:"code"`
}

// JoinLobbyHandler adds the caller to the lobby's member set.
func JoinLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		var req lobbyActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "missing game code", http.StatusBadRequest)
			return
		}

		if err := s.Lobbies.Join(r.Context(), req.Code, userID); err != nil {
			writeLobbyError(w, err)
			return
		}

		if err := cache.PublishLobbyEvent(r.Context(), cache.LobbyEventRecord{
			Code: req.Code, Event: cache.EventLobbyJoined, UserID: userID,
		}); err != nil {
			s.Logger.Warnf("lobby %s: journal publish failed: %v", req.Code, err)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// LeaveLobbyHandler removes the caller from the member set; the last member
// out deletes the lobby document.
func LeaveLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		var req lobbyActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "missing game code", http.StatusBadRequest)
			return
		}

		if err := s.Lobbies.Leave(r.Context(), req.Code, userID); err != nil {
			writeLobbyError(w, err)
			return
		}

		journalLeave(r.Context(), s, req.Code, userID)
		w.WriteHeader(http.StatusOK)
	}
}

// journalLeave records a departure, plus the lobby deletion when the leaver
// was the last member out.
func journalLeave(ctx context.Context, s *Server, code, userID string) {
	if err := cache.PublishLobbyEvent(ctx, cache.LobbyEventRecord{
		Code: code, Event: cache.EventLobbyLeft, UserID: userID,
	}); err != nil {
		s.Logger.Warnf("lobby %s: journal publish failed: %v", code, err)
	}
	if _, err := s.Store.Get(ctx, lobby.Collection+"/"+code); errors.Is(err, store.ErrNotFound) {
		if err := cache.PublishLobbyEvent(ctx, cache.LobbyEventRecord{
			Code: code, Event: cache.EventLobbyDeleted,
		}); err != nil {
			s.Logger.Warnf("lobby %s: journal publish failed: %v", code, err)
		}
	}
}

// StartGameHandler flips the lobby to active.
func StartGameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		var req lobbyActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "missing game code", http.StatusBadRequest)
			return
		}

		if err := s.Lobbies.StartGame(r.Context(), req.Code, userID); err != nil {
			writeLobbyError(w, err)
			return
		}

		if err := cache.PublishLobbyEvent(r.Context(), cache.LobbyEventRecord{
			Code: req.Code, Event: cache.EventGameStarted, UserID: userID,
		}); err != nil {
			s.Logger.Warnf("lobby %s: journal publish failed: %v", req.Code, err)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// UpdateRadiusHandler overwrites the geofence radius.
func UpdateRadiusHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(r); err != nil {
			writeLobbyError(w, err)
			return
		}
		var req struct {
			Code       string  `json:"code"`
			ZoneRadius float64 `json:"zoneRadius"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "missing game code", http.StatusBadRequest)
			return
		}

		if err := s.Lobbies.UpdateZoneRadius(r.Context(), req.Code, req.ZoneRadius); err != nil {
			writeLobbyError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
