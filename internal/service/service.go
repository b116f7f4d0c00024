// Package service holds the pool core: the capacity tracker, the rotation
// controller and the Manager facade that owns a pool of storage accounts.
//
// The core depends on its collaborators only through the small interfaces
// below, so storage backends, discovery sources and the placement ledger can
// be swapped for fakes in tests.
package service

import (
	"context"
	"time"

	"github.com/zzenonn/zpool/internal/domain"
)

// StorageClient is the capability the pool needs from one account's backend.
// Transfer errors must be classifiable by errors.Classify: wrap
// errors.ErrAccountFull when the remote rejects a write for lack of space and
// errors.ErrTransient for retryable failures.
type StorageClient interface {
	Capacity(ctx context.Context) (domain.Capacity, error)
	Transfer(ctx context.Context, file domain.File, dest string) (domain.TransferResult, error)
	Close() error
}

// Locator is implemented by storage clients that can check for an object
type Locator interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Lister is implemented by storage clients that can list a directory's
// direct children
type Lister interface {
	List(ctx context.Context, dir string) ([]domain.ObjectEntry, error)
}

// Dialer opens a storage client for a discovered account source
type Dialer interface {
	Dial(ctx context.Context, src domain.AccountSource) (StorageClient, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, src domain.AccountSource) (StorageClient, error)

func (f DialerFunc) Dial(ctx context.Context, src domain.AccountSource) (StorageClient, error) {
	return f(ctx, src)
}

// Discoverer yields the account sources that make up the pool
type Discoverer interface {
	Discover(ctx context.Context) ([]domain.AccountSource, error)
	Resolve(ctx context.Context, ref string) (domain.AccountSource, error)
}

// PlacementRecorder persists which account received a file
type PlacementRecorder interface {
	RecordPlacement(ctx context.Context, record domain.PlacementRecord) error
	GetPlacement(ctx context.Context, prefix, fileName string) (domain.PlacementRecord, error)
}

// Options configures a Manager
type Options struct {
	// Buffer is reserved on every account and never offered to selection.
	Buffer int64
	// StaleAfter forces a refresh of accounts older than this before
	// selection, planning or rotation. Zero trusts the cache.
	StaleAfter time.Duration
	// RefreshOnMiss refreshes the pool once and retries when no account fits.
	RefreshOnMiss bool
	// RefreshConcurrency bounds parallel capacity queries. Zero means one per account.
	RefreshConcurrency int
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

const DefaultBuffer int64 = 100 << 20

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Buffer:             DefaultBuffer,
		RefreshOnMiss:      true,
		RefreshConcurrency: 8,
	}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
