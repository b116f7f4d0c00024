package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// CapacityTracker reads remote capacity and folds it into account records.
type CapacityTracker struct {
	now func() time.Time
}

func NewCapacityTracker(now func() time.Time) *CapacityTracker {
	if now == nil {
		now = time.Now
	}
	return &CapacityTracker{now: now}
}

// Query reads capacity without touching any account record
func (t *CapacityTracker) Query(ctx context.Context, name string, client StorageClient) (domain.Capacity, error) {
	if client == nil {
		return domain.Capacity{}, &zerrors.RefreshError{Account: name, Err: zerrors.ErrAccountNotFound}
	}
	capacity, err := client.Capacity(ctx)
	if err != nil {
		return domain.Capacity{}, &zerrors.RefreshError{Account: name, Err: err}
	}
	return capacity, nil
}

// Apply records a successful capacity reading and reactivates the account.
// consumed is the bytes confirmed written since the reading was started; the
// reading may predate them, so they are taken off the reported free space.
func (t *CapacityTracker) Apply(account *domain.Account, capacity domain.Capacity, consumed int64) {
	total := max(capacity.Total, 0)
	free := max(min(max(capacity.Free, 0), total)-max(consumed, 0), 0)

	account.SpaceTotal = total
	account.SpaceFree = free
	account.SpaceUsed = total - free
	account.LastRefreshed = t.now()
	account.Active = true

	log.WithField("account", account.Name).Debugf("Refreshed: %s", account)
}

// Fail marks the account unusable until its next successful refresh
func (t *CapacityTracker) Fail(account *domain.Account) {
	account.Active = false
}
