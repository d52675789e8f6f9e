// internal/gamecode/gamecode.go

// Package gamecode produces the short numeric codes that key lobby documents
// and double as human-shareable invite tokens.
package gamecode

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/zonehunt/zonehunt-service/internal/store"
)

// ErrExhausted indicates no free compliant code was found within the attempt cap.
var ErrExhausted = errors.New("game code generation exhausted")

// maxAttempts caps the uniqueness probes. Only probes count: candidates
// rejected by the readability rule are regenerated without touching the
// budget.
const maxAttempts = 5

const (
	codeMin = 100000
	codeMax = 999999
)

// LobbyCollection is the collection probed for code uniqueness.
const LobbyCollection = "lobbies"

// Generator produces 6-digit codes that are readable (no adjacent repeated
// digits) and unused among currently-live lobby documents.
type Generator struct {
	store store.Store
}

// New returns a Generator probing the given store for uniqueness.
func New(s store.Store) *Generator {
	return &Generator{store: s}
}

// Generate returns a compliant, currently-unused code, or ErrExhausted after
// the attempt cap. The uniqueness check is a probe, not a reservation: the
// caller's create must still tolerate losing the race to a concurrent
// creator and retry once.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code := randomCode()
		for hasAdjacentEqualDigits(code) {
			code = randomCode()
		}
		_, err := g.store.Get(ctx, LobbyCollection+"/"+code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("probing code %s: %w", code, err)
		}
		// Live lobby already holds this code; try again.
	}
	return "", ErrExhausted
}

func randomCode() string {
	return fmt.Sprintf("%06d", codeMin+rand.Intn(codeMax-codeMin))
}

// hasAdjacentEqualDigits rejects codes like "112345" that are easy to
// mistype when read aloud.
func hasAdjacentEqualDigits(code string) bool {
	for i := 0; i+1 < len(code); i++ {
		if code[i] == code[i+1] {
			return true
		}
	}
	return false
}
