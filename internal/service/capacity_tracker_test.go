package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

func TestCapacityTracker_Apply(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewCapacityTracker(func() time.Time { return now })

	tests := []struct {
		name      string
		capacity  domain.Capacity
		consumed  int64
		wantFree  int64
		wantTotal int64
	}{
		{"normal", domain.Capacity{Total: 20 * GB, Free: 15 * GB}, 0, 15 * GB, 20 * GB},
		{"free clamped to total", domain.Capacity{Total: 10 * GB, Free: 12 * GB}, 0, 10 * GB, 10 * GB},
		{"negative free", domain.Capacity{Total: 10 * GB, Free: -1}, 0, 0, 10 * GB},
		{"transfers during the query", domain.Capacity{Total: 10 * GB, Free: 8 * GB}, 3 * GB, 5 * GB, 10 * GB},
		{"transfers exceed the reading", domain.Capacity{Total: 10 * GB, Free: 2 * GB}, 3 * GB, 0, 10 * GB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{capacity: tt.capacity}
			account := domain.NewAccount(domain.AccountSource{Name: "a"}, 0)
			account.Active = false

			capacity, err := tracker.Query(context.Background(), account.Name, client)
			require.NoError(t, err)
			tracker.Apply(&account, capacity, tt.consumed)

			assert.Equal(t, tt.wantFree, account.SpaceFree)
			assert.Equal(t, tt.wantTotal, account.SpaceTotal)
			assert.Equal(t, tt.wantTotal-tt.wantFree, account.SpaceUsed)
			assert.Equal(t, now, account.LastRefreshed)
			assert.True(t, account.Active, "successful refresh reactivates")
		})
	}
}

func TestCapacityTracker_QueryFailure(t *testing.T) {
	tracker := NewCapacityTracker(nil)
	cause := errors.New("auth expired")
	account := domain.NewAccount(domain.AccountSource{Name: "a"}, 0)
	account.SpaceFree = 5 * GB

	_, err := tracker.Query(context.Background(), account.Name, &fakeClient{capErr: cause})

	var refreshErr *zerrors.RefreshError
	require.True(t, errors.As(err, &refreshErr))
	assert.Equal(t, "a", refreshErr.Account)
	assert.ErrorIs(t, err, cause)

	tracker.Fail(&account)
	assert.False(t, account.Active)
	assert.Equal(t, 5*GB, account.SpaceFree, "cached capacity is kept for status")
}

func TestCapacityTracker_QueryWithoutClient(t *testing.T) {
	_, err := NewCapacityTracker(nil).Query(context.Background(), "a", nil)
	assert.ErrorIs(t, err, zerrors.ErrAccountNotFound)
}
