// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/zonehunt/zonehunt-service/internal/auth"
	"github.com/zonehunt/zonehunt-service/internal/cache"
	"github.com/zonehunt/zonehunt-service/internal/database"
	"github.com/zonehunt/zonehunt-service/internal/handlers"
	"github.com/zonehunt/zonehunt-service/internal/lobby"
	"github.com/zonehunt/zonehunt-service/internal/middleware"
	"github.com/zonehunt/zonehunt-service/internal/store"
	"github.com/zonehunt/zonehunt-service/internal/store/memstore"
	"github.com/zonehunt/zonehunt-service/internal/store/mongostore"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	auth.Init()
	database.ConnectDB()
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, lobby event journal disabled: %v", err)
	}

	st := openStore(logger)

	cfg := lobby.Config{
		HostOnlyStart:        os.Getenv("HOST_ONLY_START") == "true",
		RejectJoinWhenActive: os.Getenv("REJECT_JOIN_WHEN_ACTIVE") == "true",
	}

	srv := handlers.NewServer(st, cfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/user/create", handlers.CreateUserHandler(srv))
	mux.HandleFunc("/user/login", handlers.LoginHandler(srv))
	mux.HandleFunc("/lobby/create", handlers.CreateLobbyHandler(srv))
	mux.HandleFunc("/lobby/join", handlers.JoinLobbyHandler(srv))
	mux.HandleFunc("/lobby/leave", handlers.LeaveLobbyHandler(srv))
	mux.HandleFunc("/lobby/start", handlers.StartGameHandler(srv))
	mux.HandleFunc("/lobby/radius", handlers.UpdateRadiusHandler(srv))
	mux.HandleFunc("/lobby/ws/", handlers.LobbyWSHandler(logger, srv))

	handler := middleware.LogMiddleware(logger)(mux)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Infof("listening on :%s", port)
	if err := server.ListenAndServe(); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

// openStore picks the lobby document store. With MONGO_URI set the service
// runs against MongoDB change streams; otherwise everything lives in memory,
// which is what local development and the test suite use.
func openStore(logger *logrus.Logger) store.Store {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		logger.Warn("MONGO_URI not set, using in-memory document store")
		return memstore.New()
	}

	dbName := os.Getenv("MONGO_DATABASE")
	if dbName == "" {
		dbName = "zonehunt"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	st, err := mongostore.Connect(ctx, uri, dbName)
	if err != nil {
		logger.Fatalf("mongo connect failed: %v", err)
	}
	logger.Infof("connected to mongo database %s", dbName)
	return st
}
