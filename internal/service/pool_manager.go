package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
	"github.com/zzenonn/zpool/internal/placement"
)

// poolEntry is one account in the pool and the client that reaches it.
// mu guards account, client and consumed; refreshMu serialises capacity
// queries; inflight counts operations still using client.
type poolEntry struct {
	source domain.AccountSource

	mu      sync.Mutex
	account domain.Account
	client  StorageClient
	// consumed only grows: total bytes of transfers confirmed on this entry
	consumed int64

	refreshMu sync.Mutex
	inflight  sync.WaitGroup
}

func (e *poolEntry) snapshot() domain.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account
}

func (e *poolEntry) storageClient() StorageClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// Manager owns a pool of storage accounts for the lifetime of a scope.
// It is safe for concurrent use.
type Manager struct {
	discoverer Discoverer
	dialer     Dialer
	recorder   PlacementRecorder
	opts       Options

	tracker  *CapacityTracker
	selector *placement.BestFit
	planner  *placement.Planner

	mu      sync.RWMutex
	entries []*poolEntry
	byName  map[string]*poolEntry
	closed  bool
}

// NewManager creates an empty pool. recorder may be nil to disable the
// placement ledger.
func NewManager(discoverer Discoverer, dialer Dialer, recorder PlacementRecorder, opts Options) *Manager {
	return &Manager{
		discoverer: discoverer,
		dialer:     dialer,
		recorder:   recorder,
		opts:       opts,
		tracker:    NewCapacityTracker(opts.now),
		selector:   placement.NewBestFit(opts.Buffer),
		planner:    placement.NewPlanner(opts.Buffer),
		byName:     make(map[string]*poolEntry),
	}
}

// Open creates a pool, loads every discovered account and refreshes them.
// The caller must Close the returned manager.
func Open(ctx context.Context, discoverer Discoverer, dialer Dialer, recorder PlacementRecorder, opts Options) (*Manager, error) {
	m := NewManager(discoverer, dialer, recorder, opts)
	if err := m.Load(ctx); err != nil {
		return nil, errors.Join(err, m.Close())
	}
	return m, nil
}

// WithPool opens a pool, runs fn and closes the pool on every exit path,
// including when fn fails or panics.
func WithPool(ctx context.Context, discoverer Discoverer, dialer Dialer, recorder PlacementRecorder, opts Options, fn func(*Manager) error) (err error) {
	m, err := Open(ctx, discoverer, dialer, recorder, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close pool: %w", cerr))
		}
	}()
	return fn(m)
}

// Load discovers accounts, adds them in discovery order and performs an
// initial refresh. Broken discovery entries and accounts that fail to dial or
// refresh are logged and left out of selection; they do not fail the load.
func (m *Manager) Load(ctx context.Context) error {
	sources, err := m.discoverer.Discover(ctx)
	if err != nil {
		if len(sources) == 0 && !isEntryFailure(err) {
			return fmt.Errorf("account discovery failed: %w", err)
		}
		log.WithError(err).Warn("Some accounts could not be discovered")
	}

	for _, src := range sources {
		e, err := m.register(ctx, src)
		if err != nil {
			return err
		}
		e.inflight.Done()
	}

	m.mu.RLock()
	loaded := len(m.entries)
	m.mu.RUnlock()
	log.Infof("Loaded %d account(s)", loaded)

	if loaded == 0 {
		return nil
	}
	if _, err := m.RefreshAll(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, zerrors.ErrPoolUnavailable) {
			return err
		}
		log.WithError(err).Warn("No account could be refreshed")
	}
	return nil
}

// isEntryFailure reports whether a discovery error consists only of
// per-entry failures. Any other error means the discovery source itself failed.
func isEntryFailure(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		for _, e := range errs {
			if !isEntryFailure(e) {
				return false
			}
		}
		return len(errs) > 0
	}
	var entryErr *zerrors.DiscoveryEntryError
	return errors.As(err, &entryErr)
}

// Add resolves ref through discovery, dials it and refreshes it. A non-empty
// name overrides the discovered one. An account with the same name replaces
// the existing entry in place once that entry's in-flight transfers finish.
// A failed refresh still adds the account, inactive, and returns the
// *RefreshError alongside it.
func (m *Manager) Add(ctx context.Context, ref, name string) (domain.Account, error) {
	src, err := m.discoverer.Resolve(ctx, ref)
	if err != nil {
		return domain.Account{}, err
	}
	if name != "" {
		src.Name = name
	}

	e, err := m.register(ctx, src)
	if err != nil {
		return domain.Account{}, err
	}
	defer e.inflight.Done()

	err = m.refreshEntry(ctx, e)
	return e.snapshot(), err
}

// register dials src and inserts it into the pool. The returned entry is
// already marked in flight; the caller must call inflight.Done.
func (m *Manager) register(ctx context.Context, src domain.AccountSource) (*poolEntry, error) {
	logger := log.WithField("account", src.Name)

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, zerrors.ErrPoolClosed
	}

	client, dialErr := m.dialer.Dial(ctx, src)
	if dialErr != nil {
		logger.WithError(dialErr).Warn("Failed to connect account")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if client != nil {
			_ = client.Close()
		}
		return nil, zerrors.ErrPoolClosed
	}

	old := m.byName[src.Name]
	priority := len(m.entries)
	if old != nil {
		priority = old.snapshot().Priority
	}

	e := &poolEntry{
		source:  src,
		account: domain.NewAccount(src, priority),
		client:  client,
	}
	if dialErr != nil {
		e.account.Active = false
	}

	if old != nil {
		m.entries[priority] = e
	} else {
		m.entries = append(m.entries, e)
	}
	m.byName[src.Name] = e
	e.inflight.Add(1)
	m.mu.Unlock()

	if old != nil {
		logger.Info("Replacing existing account")
		old.inflight.Wait()
		if c := old.storageClient(); c != nil {
			if err := c.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close replaced client")
			}
		}
	}
	return e, nil
}

// acquireAll returns every entry, each marked in flight. Call release when done.
func (m *Manager) acquireAll() ([]*poolEntry, func(), error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, nil, zerrors.ErrPoolClosed
	}
	if len(m.entries) == 0 {
		return nil, nil, zerrors.ErrNoAccounts
	}

	entries := make([]*poolEntry, len(m.entries))
	copy(entries, m.entries)
	for _, e := range entries {
		e.inflight.Add(1)
	}
	release := func() {
		for _, e := range entries {
			e.inflight.Done()
		}
	}
	return entries, release, nil
}

// acquire returns the named entry marked in flight
func (m *Manager) acquire(name string) (*poolEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, zerrors.ErrPoolClosed
	}
	if len(m.entries) == 0 {
		return nil, zerrors.ErrNoAccounts
	}
	e, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", zerrors.ErrAccountNotFound, name)
	}
	e.inflight.Add(1)
	return e, nil
}

// RefreshAll refreshes every account concurrently. The report lists one
// outcome per account in pool order. When every account fails the report is
// returned with ErrPoolUnavailable.
func (m *Manager) RefreshAll(ctx context.Context) (domain.RefreshReport, error) {
	entries, release, err := m.acquireAll()
	if err != nil {
		return domain.RefreshReport{}, err
	}
	defer release()

	return m.refreshEntries(ctx, entries)
}

func (m *Manager) refreshEntries(ctx context.Context, entries []*poolEntry) (domain.RefreshReport, error) {
	outcomes := make([]domain.RefreshOutcome, len(entries))

	var g errgroup.Group
	if m.opts.RefreshConcurrency > 0 {
		g.SetLimit(m.opts.RefreshConcurrency)
	}
	for i, e := range entries {
		g.Go(func() error {
			outcomes[i] = domain.RefreshOutcome{Account: e.source.Name, Err: m.refreshEntry(ctx, e)}
			return nil
		})
	}
	_ = g.Wait()

	report := domain.RefreshReport{Outcomes: outcomes}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	failed := report.Failed()
	if len(failed) > 0 && len(failed) == len(outcomes) {
		errs := make([]error, len(failed))
		for i, o := range failed {
			errs[i] = o.Err
		}
		return report, fmt.Errorf("%w: %w", zerrors.ErrPoolUnavailable, errors.Join(errs...))
	}
	return report, nil
}

// Refresh refreshes a single account by name
func (m *Manager) Refresh(ctx context.Context, name string) (domain.Account, error) {
	e, err := m.acquire(name)
	if err != nil {
		return domain.Account{}, err
	}
	defer e.inflight.Done()

	err = m.refreshEntry(ctx, e)
	return e.snapshot(), err
}

// refreshEntry queries capacity outside the record lock and applies it under
// it. Transfers confirmed while the query was running are subtracted from the
// reading, so a slow refresh never hands back space a transfer already took.
// An account whose dial failed earlier is redialled first.
func (m *Manager) refreshEntry(ctx context.Context, e *poolEntry) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	logger := log.WithField("account", e.source.Name)

	client := e.storageClient()
	if client == nil {
		c, err := m.dialer.Dial(ctx, e.source)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect account")
			return &zerrors.RefreshError{Account: e.source.Name, Err: err}
		}
		e.mu.Lock()
		e.client = c
		e.mu.Unlock()
		client = c
	}

	e.mu.Lock()
	baseline := e.consumed
	e.mu.Unlock()

	capacity, err := m.tracker.Query(ctx, e.source.Name, client)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			m.tracker.Fail(&e.account)
			logger.WithError(err).Warn("Failed to refresh account")
		}
		return err
	}
	m.tracker.Apply(&e.account, capacity, e.consumed-baseline)
	return nil
}

// ensureFresh refreshes accounts whose cached capacity is older than
// StaleAfter. Failures only deactivate the affected accounts.
func (m *Manager) ensureFresh(ctx context.Context, entries []*poolEntry) {
	if m.opts.StaleAfter <= 0 {
		return
	}

	now := m.opts.now()
	var stale []*poolEntry
	for _, e := range entries {
		if e.snapshot().Stale(m.opts.StaleAfter, now) {
			stale = append(stale, e)
		}
	}
	if len(stale) == 0 {
		return
	}

	log.Debugf("Refreshing %d stale account(s)", len(stale))
	_, _ = m.refreshEntries(ctx, stale)
}

func snapshots(entries []*poolEntry) []domain.Account {
	accounts := make([]domain.Account, len(entries))
	for i, e := range entries {
		accounts[i] = e.snapshot()
	}
	return accounts
}

// BestAccount returns the active account with the smallest sufficient
// surplus for size. With RefreshOnMiss it refreshes the pool once and retries
// before giving up with *NoSpaceError.
func (m *Manager) BestAccount(ctx context.Context, size int64) (domain.Account, error) {
	entries, release, err := m.acquireAll()
	if err != nil {
		return domain.Account{}, err
	}
	defer release()

	m.ensureFresh(ctx, entries)

	account, err := m.selector.Select(snapshots(entries), size)
	if err == nil || !m.opts.RefreshOnMiss || !errors.Is(err, zerrors.ErrNoSpace) {
		return account, err
	}

	log.Debugf("No account fits %d bytes, refreshing pool", size)
	if _, rerr := m.refreshEntries(ctx, entries); rerr != nil && ctx.Err() != nil {
		return domain.Account{}, ctx.Err()
	}
	return m.selector.Select(snapshots(entries), size)
}

// Plan computes a first-fit-decreasing assignment of files to accounts
// against the current cached capacities. An infeasible plan is returned
// together with an *InsufficientSpaceError naming the shortfall.
func (m *Manager) Plan(ctx context.Context, files []domain.File) (domain.Plan, error) {
	entries, release, err := m.acquireAll()
	if err != nil {
		return domain.Plan{}, err
	}
	defer release()

	for _, f := range files {
		if f.Size < 0 {
			return domain.Plan{}, fmt.Errorf("%w: %s", zerrors.ErrInvalidSize, f.ID)
		}
	}

	m.ensureFresh(ctx, entries)

	plan := m.planner.Plan(snapshots(entries), files)
	if !plan.Feasible {
		return plan, &zerrors.InsufficientSpaceError{
			Missing:    plan.MissingSpace,
			Unassigned: len(plan.Unassigned()),
		}
	}
	return plan, nil
}

// Accounts returns a snapshot of every account in pool order
func (m *Manager) Accounts() []domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshots(m.entries)
}

// Status returns per-account state and pool-wide aggregates. Free space
// totals only count active accounts.
func (m *Manager) Status() (domain.PoolStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return domain.PoolStatus{}, zerrors.ErrPoolClosed
	}
	if len(m.entries) == 0 {
		return domain.PoolStatus{}, zerrors.ErrNoAccounts
	}

	status := domain.PoolStatus{AccountCount: len(m.entries)}
	for _, a := range snapshots(m.entries) {
		status.Accounts = append(status.Accounts, domain.AccountStatus{
			Name:          a.Name,
			SpaceFree:     a.SpaceFree,
			SpaceTotal:    a.SpaceTotal,
			UsagePercent:  a.UsagePercent(),
			Active:        a.Active,
			LastRefreshed: a.LastRefreshed,
		})
		status.TotalSpace += a.SpaceTotal
		if a.Active {
			status.ActiveCount++
			status.TotalFree += a.SpaceFree
		}
	}
	return status, nil
}

// Locate finds the account holding name under dest. The placement ledger is
// consulted first; without a ledger hit every active account that can check
// its backend is asked in pool order.
func (m *Manager) Locate(ctx context.Context, dest, name string) (domain.PlacementRecord, error) {
	entries, release, err := m.acquireAll()
	if err != nil {
		return domain.PlacementRecord{}, err
	}
	defer release()

	prefix, fileName := placementKey(dest, name)

	if m.recorder != nil {
		record, err := m.recorder.GetPlacement(ctx, prefix, fileName)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, zerrors.ErrPlacementNotFound) {
			log.WithError(err).Warn("Placement ledger lookup failed, checking accounts")
		}
	}

	key := path.Join(strings.Trim(dest, "/"), fileName)
	for _, e := range entries {
		if !e.snapshot().Active {
			continue
		}
		locator, ok := e.storageClient().(Locator)
		if !ok {
			continue
		}
		found, err := locator.Exists(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return domain.PlacementRecord{}, ctx.Err()
			}
			log.WithField("account", e.source.Name).WithError(err).Warn("Failed to check account")
			continue
		}
		if found {
			return domain.PlacementRecord{Prefix: prefix, FileName: fileName, Account: e.source.Name}, nil
		}
	}
	return domain.PlacementRecord{}, fmt.Errorf("%w: %s", zerrors.ErrPlacementNotFound, key)
}

// ListAll lists the direct children of dir on every active account that can
// list its backend, in pool order. Accounts that fail to list are logged and
// skipped.
func (m *Manager) ListAll(ctx context.Context, dir string) ([]domain.ObjectEntry, error) {
	entries, release, err := m.acquireAll()
	if err != nil {
		return nil, err
	}
	defer release()

	var listed []domain.ObjectEntry
	for _, e := range entries {
		if !e.snapshot().Active {
			continue
		}
		lister, ok := e.storageClient().(Lister)
		if !ok {
			continue
		}
		children, err := lister.List(ctx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithField("account", e.source.Name).WithError(err).Warn("Failed to list account")
			continue
		}
		for _, c := range children {
			c.Account = e.source.Name
			listed = append(listed, c)
		}
	}
	return listed, nil
}

// placementKey splits a destination into the ledger's partition and sort keys
func placementKey(dest, name string) (string, string) {
	prefix := strings.Trim(dest, "/")
	if prefix == "" {
		prefix = "root"
	}
	return prefix, filepath.Base(name)
}

// Close waits for in-flight operations and releases every storage client.
// Further operations fail with ErrPoolClosed. Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := m.entries
	m.mu.Unlock()

	var errs []error
	for _, e := range entries {
		e.inflight.Wait()
		if c := e.storageClient(); c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.source.Name, err))
			}
		}
	}
	log.Debugf("Closed pool of %d account(s)", len(entries))
	return errors.Join(errs...)
}
