package objectstore

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// quotaLedger enforces an account quota on top of a bucket that has none.
// listed is what the last listing saw plus uploads committed since; reserved
// is held by uploads still in flight, which a listing cannot see.
type quotaLedger struct {
	mu       sync.Mutex
	quota    int64
	listed   int64
	reserved int64
	counted  bool
}

// set records a fresh listing. In-flight reservations survive it.
func (q *quotaLedger) set(listed int64) domain.Capacity {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listed = listed
	q.counted = true
	return q.capacityLocked()
}

func (q *quotaLedger) isCounted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counted
}

// reserve claims size bytes or fails with ErrAccountFull.
func (q *quotaLedger) reserve(bucket string, size int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if used := q.usedLocked(); used+size > q.quota {
		return fmt.Errorf("%w: %s has %s left, need %s", zerrors.ErrAccountFull, bucket,
			humanize.IBytes(uint64(max(q.quota-used, 0))), humanize.IBytes(uint64(size)))
	}
	q.reserved += size
	return nil
}

// commit moves a finished upload from reserved to listed
func (q *quotaLedger) commit(size int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reserved = max(q.reserved-size, 0)
	q.listed += size
}

// release gives back the reservation of a failed upload
func (q *quotaLedger) release(size int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reserved = max(q.reserved-size, 0)
}

func (q *quotaLedger) usedLocked() int64 {
	return q.listed + q.reserved
}

func (q *quotaLedger) capacityLocked() domain.Capacity {
	return domain.Capacity{Total: q.quota, Free: max(q.quota-q.usedLocked(), 0)}
}
