// internal/identity/identity.go

// Package identity abstracts "who is the current user" so core components can
// be handed the capability explicitly instead of reaching for global session
// state.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated indicates no current user id is available for an
// operation that requires one.
var ErrUnauthenticated = errors.New("no authenticated user")

// Provider supplies the stable id of the current authenticated user.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Static is a fixed-identity Provider, used by tests and by per-connection
// contexts where the user was already authenticated upstream.
type Static string

func (s Static) CurrentUserID(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrUnauthenticated
	}
	return string(s), nil
}

// FuncProvider adapts a closure to Provider.
type FuncProvider func(ctx context.Context) (string, error)

func (f FuncProvider) CurrentUserID(ctx context.Context) (string, error) {
	return f(ctx)
}
