// internal/handlers/server.go
package handlers

import (
	"github.com/sirupsen/logrus"
	"github.com/zonehunt/zonehunt-service/internal/chat"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// Server bundles the capabilities the HTTP and websocket handlers need:
// the document store, the shared lobby manager for REST operations, and
// the chat channel. Websocket connections get their own per-client lobby
// manager so each connection owns exactly one live subscription.
type Server struct {
	Store   store.Store
	Lobbies *lobby.Manager
	Chat    *chat.Channel
	Config  lobby.Config
	Logger  *logrus.Logger
}

// NewServer wires a Server on the given store.
func NewServer(s store.Store, cfg lobby.Config, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		Store:   s,
		Lobbies: lobby.NewManager(s, cfg, logger),
		Chat:    chat.NewChannel(s),
		Config:  cfg,
		Logger:  logger,
	}
}
