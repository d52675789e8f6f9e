// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby handler. These give clients
// more specific reasons for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // client connected with an unsupported subprotocol
	InvalidLobbyIDError = 3003 // lobby code in the WS URL does not resolve to a lobby
	LobbyDeletedClose   = 3004 // lobby document was deleted while connected
)
