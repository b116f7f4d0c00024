package domain

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// AccountSource is what discovery yields for one account: a stable name and
// an opaque reference the storage dialer knows how to authenticate with.
type AccountSource struct {
	Name string
	Ref  string
}

// Account - last known state of one storage account in the pool
type Account struct {
	Name          string    `json:"name"`
	Source        string    `json:"source"`
	SpaceTotal    int64     `json:"space_total"`
	SpaceFree     int64     `json:"space_free"`
	SpaceUsed     int64     `json:"space_used"`
	LastRefreshed time.Time `json:"last_refreshed"` // zero until the first successful refresh
	Active        bool      `json:"active"`
	Priority      int       `json:"priority"` // discovery order, lower wins ties
}

// NewAccount creates an account record for a discovered source.
func NewAccount(src AccountSource, priority int) Account {
	return Account{
		Name:     src.Name,
		Source:   src.Ref,
		Active:   true,
		Priority: priority,
	}
}

// Refreshed reports whether capacity has ever been read successfully.
func (a Account) Refreshed() bool {
	return !a.LastRefreshed.IsZero()
}

// Stale reports whether the cached capacity is older than maxAge.
// A zero maxAge means the cache is always trusted.
func (a Account) Stale(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return !a.Refreshed() || now.Sub(a.LastRefreshed) > maxAge
}

// Usable returns free space minus the reserved buffer, floored at zero.
func (a Account) Usable(buffer int64) int64 {
	if v := a.SpaceFree - buffer; v > 0 {
		return v
	}
	return 0
}

// HasSpaceFor reports whether size fits while keeping buffer bytes free.
func (a Account) HasSpaceFor(size, buffer int64) bool {
	return a.Active && a.SpaceFree-buffer >= size
}

// UsagePercent returns used space as a percentage of total.
func (a Account) UsagePercent() float64 {
	if a.SpaceTotal == 0 {
		return 0
	}
	return float64(a.SpaceTotal-a.SpaceFree) / float64(a.SpaceTotal) * 100
}

func (a Account) String() string {
	status := "✓"
	if !a.Active {
		status = "✗"
	}
	return fmt.Sprintf("[%s] %s: %s free / %s total (%.1f%% used)",
		status, a.Name,
		humanize.IBytes(uint64(a.SpaceFree)),
		humanize.IBytes(uint64(a.SpaceTotal)),
		a.UsagePercent())
}
