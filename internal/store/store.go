// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors surfaced by Store implementations. Callers match with errors.Is.
var (
	// ErrNotFound indicates the path does not resolve to a document.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates a create-style write found a document already
	// at the target path (e.g. a lost code-reservation race).
	ErrAlreadyExists = errors.New("document already exists")

	// ErrConflict indicates a transaction lost its retry budget to concurrent
	// writers. The store retries internally before surfacing this.
	ErrConflict = errors.New("transaction conflict")

	// ErrUnavailable indicates a transport/network failure talking to the store.
	ErrUnavailable = errors.New("store unavailable")
)

// Doc is the decoded form of one document.
type Doc map[string]interface{}

// Update is a partial-document write. Values may be plain replacements or
// ArrayUnion values for set-union fields.
type Update map[string]interface{}

// UnionValue marks an Update field as a set-union append: elements are added
// to the array field if not already present, never overwriting concurrent
// additions. Obtain one via ArrayUnion.
type UnionValue struct {
	Elems []interface{}
}

// ArrayUnion wraps elements for a set-union field update.
func ArrayUnion(elems ...interface{}) UnionValue {
	return UnionValue{Elems: elems}
}

// Snapshot is one delivery from a document subscription. Exists is false when
// the document was deleted (Data is nil in that case).
type Snapshot struct {
	Path   string
	Exists bool
	Data   Doc
}

// Subscription is a standing registration on a single document. The channel
// delivers the current state immediately on open, then again on every remote
// mutation, including the subscriber's own writes echoed back. Close stops
// delivery and is safe to call more than once.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close()
}

// QuerySubscription is a standing registration over a set of document IDs in
// one collection. Every delivery replaces the previous mapping wholesale.
type QuerySubscription interface {
	Results() <-chan map[string]Doc
	Close()
}

// Tx exposes the operations available inside RunTransaction. Reads observe a
// consistent view; writes apply atomically on commit.
type Tx interface {
	Get(path string) (Doc, error)
	Set(path string, data Doc) error
	Update(path string, fields Update) error
	Delete(path string) error
}

// Store is the document database capability the core is written against:
// get/set/update/delete on single documents, multi-document transactions,
// and change subscriptions. Paths are "collection/id".
type Store interface {
	Get(ctx context.Context, path string) (Doc, error)
	Set(ctx context.Context, path string, data Doc) error

	// Create writes a new document, failing with ErrAlreadyExists if one is
	// already present at the path.
	Create(ctx context.Context, path string, data Doc) error

	// Update applies a partial write to an existing document. ErrNotFound if
	// the document is absent.
	Update(ctx context.Context, path string, fields Update) error

	Delete(ctx context.Context, path string) error

	// RunTransaction runs fn against a transactional view, retrying a bounded
	// number of times on contention before surfacing ErrConflict.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	Subscribe(ctx context.Context, path string) (Subscription, error)

	// QueryIDsIn opens a live query over the given document IDs within a
	// collection. The id list must be non-empty.
	QueryIDsIn(ctx context.Context, collection string, ids []string) (QuerySubscription, error)
}

// SplitPath breaks a "collection/id" path into its parts.
func SplitPath(path string) (collection, id string, err error) {
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	return parts[0], parts[1], nil
}
