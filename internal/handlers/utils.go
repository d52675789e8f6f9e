// internal/handlers/utils.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zonehunt/zonehunt-service/internal/auth"
	"github.com/zonehunt/zonehunt-service/internal/gamecode"
	"github.com/zonehunt/zonehunt-service/internal/identity"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// extractCookieToken extracts a named cookie value from the Cookie header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authenticateRequest resolves the current user id from the auth_token
// cookie through the session identity provider.
func authenticateRequest(r *http.Request) (string, error) {
	cookieHeader := r.Header.Get("Cookie")
	if !strings.Contains(cookieHeader, "auth_token=") {
		return "", identity.ErrUnauthenticated
	}
	var who identity.Provider = auth.Session(extractCookieToken(cookieHeader, "auth_token"))
	return who.CurrentUserID(r.Context())
}

// writeLobbyError translates lobby-layer failures into user-facing HTTP
// responses. Messages mirror the client copy users already see.
func writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Lobby not found.", http.StatusNotFound)
	case errors.Is(err, identity.ErrUnauthenticated):
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	case errors.Is(err, lobby.ErrNotHost):
		http.Error(w, "only the host can do that", http.StatusForbidden)
	case errors.Is(err, lobby.ErrGameActive):
		http.Error(w, "game already started", http.StatusConflict)
	case errors.Is(err, lobby.ErrRadiusOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, gamecode.ErrExhausted):
		http.Error(w, "no free game code, try again", http.StatusServiceUnavailable)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "conflicting update, try again", http.StatusConflict)
	default:
		http.Error(w, "something went wrong, try again", http.StatusInternalServerError)
	}
}
