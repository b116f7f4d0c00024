package objectstore

import (
	"testing"

	zerrors "github.com/zzenonn/zpool/internal/errors"
)

func TestQuotaLedger(t *testing.T) {
	q := &quotaLedger{quota: 100}
	q.set(10)

	if err := q.reserve("b", 50); err != nil {
		t.Fatalf("reserve(50) error = %v", err)
	}
	if c := q.set(10); c.Free != 40 {
		t.Errorf("Free = %d after listing with 50 in flight, want 40", c.Free)
	}

	err := q.reserve("b", 41)
	if zerrors.Classify(err) != zerrors.CapacityExhausted {
		t.Errorf("reserve(41) error = %v, want capacity exhausted", err)
	}

	q.commit(50)
	if c := q.set(60); c.Free != 40 {
		t.Errorf("Free = %d once the upload is listed, want 40", c.Free)
	}

	if err := q.reserve("b", 30); err != nil {
		t.Fatalf("reserve(30) error = %v", err)
	}
	q.release(30)
	if c := q.set(60); c.Free != 40 {
		t.Errorf("Free = %d after release, want 40", c.Free)
	}
}
