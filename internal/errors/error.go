package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	ErrNoAccounts        = errors.New("no accounts configured")
	ErrNoSpace           = errors.New("no account has enough space")
	ErrAllAccountsFull   = errors.New("all accounts are full")
	ErrPoolUnavailable   = errors.New("no account in the pool could be refreshed")
	ErrPoolClosed        = errors.New("account pool is closed")
	ErrAccountNotFound   = errors.New("account not found")
	ErrPlanInfeasible    = errors.New("upload plan cannot be completed")
	ErrInvalidAccountRef = errors.New("invalid account reference")
	ErrInvalidSize       = errors.New("size must not be negative")
	ErrPlacementNotFound = errors.New("placement not found")

	// ErrAccountFull marks a transfer the remote rejected for lack of space.
	// Storage clients wrap their errors with it so rotation can detect them.
	ErrAccountFull = errors.New("account storage is full")

	// ErrTransient marks a retryable network or service failure.
	ErrTransient = errors.New("transient storage failure")
)

// NoSpaceError is returned when no single active account can hold a file.
type NoSpaceError struct {
	Required  int64
	Available int64 // best usable space after the buffer
}

func (e *NoSpaceError) Error() string {
	return fmt.Sprintf("no account has enough space: need %s, best available %s",
		humanize.IBytes(uint64(e.Required)), humanize.IBytes(uint64(max(e.Available, 0))))
}

func (e *NoSpaceError) Is(target error) bool {
	return target == ErrNoSpace
}

// AllAccountsFullError is returned when rotation ran out of accounts.
type AllAccountsFullError struct {
	Required int64
	Tried    []string
	Err      error
}

func (e *AllAccountsFullError) Error() string {
	msg := fmt.Sprintf("all accounts are full: need %s", humanize.IBytes(uint64(e.Required)))
	if len(e.Tried) > 0 {
		msg += fmt.Sprintf(", tried %s", strings.Join(e.Tried, ", "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllAccountsFullError) Is(target error) bool {
	return target == ErrAllAccountsFull
}

func (e *AllAccountsFullError) Unwrap() error {
	return e.Err
}

// SessionNotFoundError reports an account source discovery could not locate.
type SessionNotFoundError struct {
	Path string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.Path)
}

// DiscoveryEntryError marks one discovered entry that could not become an
// account source. Discovery of the other entries is unaffected.
type DiscoveryEntryError struct {
	Entry string
	Err   error
}

func (e *DiscoveryEntryError) Error() string {
	return e.Err.Error()
}

func (e *DiscoveryEntryError) Unwrap() error {
	return e.Err
}

// RefreshError records a failed capacity query for one account.
type RefreshError struct {
	Account string
	Err     error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("failed to refresh %s: %v", e.Account, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// InsufficientSpaceError is returned alongside an infeasible plan.
type InsufficientSpaceError struct {
	Missing    int64
	Unassigned int
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("upload plan cannot be completed: %d file(s) unassigned, missing %s",
		e.Unassigned, humanize.IBytes(uint64(e.Missing)))
}

func (e *InsufficientSpaceError) Is(target error) bool {
	return target == ErrPlanInfeasible
}

// TransferKind is the three-way classification of a failed transfer.
type TransferKind int

const (
	Fatal TransferKind = iota
	Transient
	CapacityExhausted
)

func (k TransferKind) String() string {
	switch k {
	case CapacityExhausted:
		return "capacity-exhausted"
	case Transient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify maps a transfer error to its kind. Anything not explicitly marked
// as full or transient is fatal.
func Classify(err error) TransferKind {
	switch {
	case err == nil:
		return Fatal
	case errors.Is(err, ErrAccountFull):
		return CapacityExhausted
	case errors.Is(err, ErrTransient):
		return Transient
	default:
		return Fatal
	}
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("the %s configuration value must be set", config)
}
