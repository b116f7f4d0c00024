package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

const GB int64 = 1 << 30

type fakeClient struct {
	mu          sync.Mutex
	capacity    domain.Capacity
	capErr      error
	transferErr error
	onCapacity  func()
	onTransfer  func()
	transfers   []string
	objects     map[string]bool
	listing     map[string][]domain.ObjectEntry
	listErr     error
	closed      int
}

func (c *fakeClient) Capacity(ctx context.Context) (domain.Capacity, error) {
	c.mu.Lock()
	capacity, err, hook := c.capacity, c.capErr, c.onCapacity
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return domain.Capacity{}, err
	}
	return capacity, nil
}

func (c *fakeClient) Transfer(ctx context.Context, file domain.File, dest string) (domain.TransferResult, error) {
	c.mu.Lock()
	c.transfers = append(c.transfers, file.ID)
	err, hook := c.transferErr, c.onTransfer
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	if ctx.Err() != nil {
		return domain.TransferResult{}, ctx.Err()
	}
	if err != nil {
		return domain.TransferResult{}, err
	}
	return domain.TransferResult{Location: "fake://" + dest + "/" + file.ID, Size: file.Size}, nil
}

func (c *fakeClient) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[key], nil
}

func (c *fakeClient) List(ctx context.Context, dir string) ([]domain.ObjectEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.listing[dir], nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeClient) setCapacity(total, free int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = domain.Capacity{Total: total, Free: free}
}

func (c *fakeClient) transferCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transfers)
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDiscoverer struct {
	sources []domain.AccountSource
	err     error
}

func (d *fakeDiscoverer) Discover(ctx context.Context) ([]domain.AccountSource, error) {
	return d.sources, d.err
}

func (d *fakeDiscoverer) Resolve(ctx context.Context, ref string) (domain.AccountSource, error) {
	for _, src := range d.sources {
		if src.Ref == ref || src.Name == ref {
			return src, nil
		}
	}
	return domain.AccountSource{}, &zerrors.SessionNotFoundError{Path: ref}
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []domain.PlacementRecord
	err     error
}

func (r *fakeRecorder) RecordPlacement(ctx context.Context, record domain.PlacementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRecorder) GetPlacement(ctx context.Context, prefix, fileName string) (domain.PlacementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Prefix == prefix && rec.FileName == fileName {
			return rec, nil
		}
	}
	return domain.PlacementRecord{}, zerrors.ErrPlacementNotFound
}

// acct describes a fake account as (name, total, free)
type acct struct {
	name        string
	total, free int64
}

type fixture struct {
	clients    map[string]*fakeClient
	discoverer *fakeDiscoverer
	dialer     DialerFunc
	dials      map[string]int
	mu         sync.Mutex
}

func newFixture(accounts ...acct) *fixture {
	f := &fixture{
		clients:    make(map[string]*fakeClient),
		discoverer: &fakeDiscoverer{},
		dials:      make(map[string]int),
	}
	for _, a := range accounts {
		f.clients[a.name] = &fakeClient{capacity: domain.Capacity{Total: a.total, Free: a.free}}
		f.discoverer.sources = append(f.discoverer.sources, domain.AccountSource{Name: a.name, Ref: "ref://" + a.name})
	}
	f.dialer = func(ctx context.Context, src domain.AccountSource) (StorageClient, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.dials[src.Name]++
		c, ok := f.clients[src.Name]
		if !ok {
			return nil, fmt.Errorf("cannot dial %s", src.Ref)
		}
		return c, nil
	}
	return f
}

func testOptions() Options {
	return Options{Buffer: 0}
}

func (f *fixture) open(t *testing.T, opts Options, recorder PlacementRecorder) *Manager {
	t.Helper()
	m, err := Open(context.Background(), f.discoverer, f.dialer, recorder, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func accountNamed(t *testing.T, m *Manager, name string) domain.Account {
	t.Helper()
	for _, a := range m.Accounts() {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("account %s not in pool", name)
	return domain.Account{}
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
