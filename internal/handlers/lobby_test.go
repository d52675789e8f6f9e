// internal/handlers/lobby_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/zonehunt/zonehunt-service/internal/auth"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/store"
	"github.com/zonehunt/zonehunt-service/internal/store/memstore"
)

func TestMain(m *testing.M) {
	auth.Init()
	os.Exit(m.Run())
}

func newTestServer(cfg lobby.Config) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(memstore.New(), cfg, logger)
}

func authCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	token, err := auth.CreateJWT(userID)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return &http.Cookie{Name: "auth_token", Value: token}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func createLobby(t *testing.T, s *Server, hostID string) lobby.Snapshot {
	t.Helper()
	rr := doJSON(t, CreateLobbyHandler(s), http.MethodPost, "/lobby/create", map[string]interface{}{
		"latitude":   37.7749,
		"longitude":  -122.4194,
		"zoneRadius": 500,
	}, authCookie(t, hostID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 creating lobby, got %d: %s", rr.Code, rr.Body.String())
	}
	var snap lobby.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode lobby response: %v", err)
	}
	return snap
}

func TestCreateLobbyHandler(t *testing.T) {
	s := newTestServer(lobby.Config{})
	snap := createLobby(t, s, "host-a")

	if len(snap.Code) != 6 {
		t.Errorf("expected 6-digit code, got %q", snap.Code)
	}
	if snap.State != lobby.StateWaiting {
		t.Errorf("expected waiting state, got %q", snap.State)
	}
	if len(snap.Members) != 1 || snap.Members[0] != "host-a" {
		t.Errorf("expected host as sole member, got %v", snap.Members)
	}
	if snap.ZoneRadius != 500 {
		t.Errorf("expected radius 500, got %v", snap.ZoneRadius)
	}
}

func TestCreateLobbyHandlerUnauthenticated(t *testing.T) {
	s := newTestServer(lobby.Config{})

	rr := doJSON(t, CreateLobbyHandler(s), http.MethodPost, "/lobby/create", map[string]interface{}{
		"latitude": 37.7749, "longitude": -122.4194,
	}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without cookie, got %d", rr.Code)
	}

	rr = doJSON(t, CreateLobbyHandler(s), http.MethodPost, "/lobby/create", nil,
		&http.Cookie{Name: "auth_token", Value: "garbage"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", rr.Code)
	}
}

func TestCreateLobbyHandlerBadRadius(t *testing.T) {
	s := newTestServer(lobby.Config{})
	rr := doJSON(t, CreateLobbyHandler(s), http.MethodPost, "/lobby/create", map[string]interface{}{
		"latitude": 37.7749, "longitude": -122.4194, "zoneRadius": 50,
	}, authCookie(t, "host-a"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range radius, got %d", rr.Code)
	}
}

func TestJoinLobbyHandler(t *testing.T) {
	s := newTestServer(lobby.Config{})
	snap := createLobby(t, s, "host-a")

	rr := doJSON(t, JoinLobbyHandler(s), http.MethodPost, "/lobby/join",
		lobbyActionRequest{Code: snap.Code}, authCookie(t, "user-b"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 joining, got %d: %s", rr.Code, rr.Body.String())
	}

	doc, err := s.Store.Get(context.Background(), lobby.Collection+"/"+snap.Code)
	if err != nil {
		t.Fatalf("lobby doc missing after join: %v", err)
	}
	members := doc["users"].([]interface{})
	if len(members) != 2 {
		t.Errorf("expected two members after join, got %v", members)
	}
}

func TestJoinLobbyHandlerNotFound(t *testing.T) {
	s := newTestServer(lobby.Config{})
	rr := doJSON(t, JoinLobbyHandler(s), http.MethodPost, "/lobby/join",
		lobbyActionRequest{Code: "999999"}, authCookie(t, "user-b"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Lobby not found.") {
		t.Errorf("expected lobby-not-found copy, got %q", rr.Body.String())
	}
}

func TestJoinLobbyHandlerMissingCode(t *testing.T) {
	s := newTestServer(lobby.Config{})
	rr := doJSON(t, JoinLobbyHandler(s), http.MethodPost, "/lobby/join",
		lobbyActionRequest{}, authCookie(t, "user-b"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing code, got %d", rr.Code)
	}
}

func TestLeaveLobbyHandlerDeletesWhenEmpty(t *testing.T) {
	s := newTestServer(lobby.Config{})
	snap := createLobby(t, s, "host-a")

	rr := doJSON(t, LeaveLobbyHandler(s), http.MethodPost, "/lobby/leave",
		lobbyActionRequest{Code: snap.Code}, authCookie(t, "host-a"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 leaving, got %d: %s", rr.Code, rr.Body.String())
	}

	if _, err := s.Store.Get(context.Background(), lobby.Collection+"/"+snap.Code); err != store.ErrNotFound {
		t.Errorf("expected lobby doc deleted after last leave, got err=%v", err)
	}
}

func TestStartGameHandler(t *testing.T) {
	s := newTestServer(lobby.Config{})
	snap := createLobby(t, s, "host-a")

	// Any member may start under the default policy; repeating is harmless.
	for i := 0; i < 2; i++ {
		rr := doJSON(t, StartGameHandler(s), http.MethodPost, "/lobby/start",
			lobbyActionRequest{Code: snap.Code}, authCookie(t, "user-b"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 starting (attempt %d), got %d", i+1, rr.Code)
		}
	}

	doc, err := s.Store.Get(context.Background(), lobby.Collection+"/"+snap.Code)
	if err != nil {
		t.Fatalf("lobby doc missing: %v", err)
	}
	if doc["gameState"] != lobby.StateActive {
		t.Errorf("expected active state, got %v", doc["gameState"])
	}
}

func TestStartGameHandlerHostOnly(t *testing.T) {
	s := newTestServer(lobby.Config{HostOnlyStart: true})
	snap := createLobby(t, s, "host-a")

	rr := doJSON(t, StartGameHandler(s), http.MethodPost, "/lobby/start",
		lobbyActionRequest{Code: snap.Code}, authCookie(t, "user-b"))
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-host start, got %d", rr.Code)
	}

	rr = doJSON(t, StartGameHandler(s), http.MethodPost, "/lobby/start",
		lobbyActionRequest{Code: snap.Code}, authCookie(t, "host-a"))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for host start, got %d", rr.Code)
	}
}

func TestUpdateRadiusHandler(t *testing.T) {
	s := newTestServer(lobby.Config{})
	snap := createLobby(t, s, "host-a")

	body := map[string]interface{}{"code": snap.Code, "zoneRadius": 1500}
	rr := doJSON(t, UpdateRadiusHandler(s), http.MethodPost, "/lobby/radius", body, authCookie(t, "host-a"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 updating radius, got %d: %s", rr.Code, rr.Body.String())
	}

	doc, err := s.Store.Get(context.Background(), lobby.Collection+"/"+snap.Code)
	if err != nil {
		t.Fatalf("lobby doc missing: %v", err)
	}
	if doc["zoneRadius"] != 1500.0 {
		t.Errorf("expected radius 1500, got %v", doc["zoneRadius"])
	}

	body["zoneRadius"] = 50
	rr = doJSON(t, UpdateRadiusHandler(s), http.MethodPost, "/lobby/radius", body, authCookie(t, "host-a"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range radius, got %d", rr.Code)
	}
}

func TestExtractCookieToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"auth_token=abc123", "abc123"},
		{"other=x; auth_token=abc123; more=y", "abc123"},
		{"other=x", ""},
		{"", ""},
	}
	for i, c := range cases {
		if got := extractCookieToken(c.header, "auth_token"); got != c.want {
			t.Errorf("case %d: got %q, want %q", i, got, c.want)
		}
	}
}

func TestAuthenticateRequestRoundTrip(t *testing.T) {
	token, err := auth.CreateJWT("user-42")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", fmt.Sprintf("auth_token=%s", token))

	userID, err := authenticateRequest(req)
	if err != nil {
		t.Fatalf("expected authenticated request, got %v", err)
	}
	if userID != "user-42" {
		t.Errorf("expected user-42, got %q", userID)
	}
}
