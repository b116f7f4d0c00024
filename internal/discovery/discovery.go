// Package discovery finds the accounts that make up a pool.
//
// A discoverer yields account sources: a stable name plus an opaque reference
// (a session file path or an account URI) that the storage factory knows how
// to open. Discovery never fails as a whole because one entry is bad; broken
// entries are skipped and reported in a joined error next to the sources that
// were found.
package discovery

import (
	"context"

	"github.com/zzenonn/zpool/internal/domain"
)

// Discoverer lists account sources and resolves a single reference.
type Discoverer interface {
	// Discover returns every source it can find in a stable order. The error,
	// if any, joins the per-entry failures; the returned sources are still valid.
	Discover(ctx context.Context) ([]domain.AccountSource, error)

	// Resolve locates one source. Unknown references fail with
	// *errors.SessionNotFoundError.
	Resolve(ctx context.Context, ref string) (domain.AccountSource, error)
}
