// internal/handlers/user.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zonehunt/zonehunt-service/internal/auth"
	"github.com/zonehunt/zonehunt-service/internal/database"
	"github.com/zonehunt/zonehunt-service/internal/models"
	"github.com/zonehunt/zonehunt-service/internal/presence"
	"github.com/zonehunt/zonehunt-service/internal/store"
)

// CreateUserHandler registers an account and seeds the user's live profile
// document, which the presence tracker and chat name lookups read.
func CreateUserHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		user := models.User{
			Email:    req.Email,
			Password: req.Password,
			Username: req.Username,
		}

		ctx := r.Context()
		if err := database.CreateUser(ctx, &user); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		if err := ensureProfile(ctx, s.Store, &user); err != nil {
			// The account exists; a missing profile document only degrades
			// name resolution, so log and carry on.
			s.Logger.Warnf("failed to seed profile for %s: %v", user.ID, err)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(user)
	}
}

// ensureProfile writes the users/{uid} document consumed by the core.
func ensureProfile(ctx context.Context, s store.Store, user *models.User) error {
	return s.Set(ctx, presence.Collection+"/"+user.ID.String(), store.Doc{
		"uid":      user.ID.String(),
		"username": user.Username,
		"email":    user.Email,
		"inLobby":  false,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler checks credentials and hands the session token back both as
// JSON and as an auth_token cookie.
func LoginHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			s.Logger.Warnf("failed to authenticate user: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TokenExpireSec,
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
			return
		}
	}
}
