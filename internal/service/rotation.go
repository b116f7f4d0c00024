package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// rotation is the state of one transfer-with-rotation session
type rotation struct {
	file     domain.File
	tried    map[string]bool
	order    []string
	attempts int
	limit    int
	lastErr  error
}

func (r *rotation) candidates(accounts []domain.Account) []domain.Account {
	out := make([]domain.Account, 0, len(accounts))
	for _, a := range accounts {
		if !r.tried[a.Name] {
			out = append(out, a)
		}
	}
	return out
}

func (r *rotation) exhausted(err error) error {
	if err == nil {
		err = r.lastErr
	}
	return &zerrors.AllAccountsFullError{Required: r.file.Size, Tried: r.order, Err: err}
}

func activeCount(accounts []domain.Account) int {
	n := 0
	for _, a := range accounts {
		if a.Active {
			n++
		}
	}
	return n
}

// UploadWithRotation transfers file to dest on the best-fitting account.
// When the remote rejects the write for lack of space the account is marked
// inactive and the next best account is tried, at most once per account
// active when the session started. Any other failure, including
// cancellation, is returned unchanged and leaves account state untouched.
func (m *Manager) UploadWithRotation(ctx context.Context, file domain.File, dest string) (domain.TransferResult, error) {
	entries, release, err := m.acquireAll()
	if err != nil {
		return domain.TransferResult{}, err
	}
	defer release()

	if file.Size < 0 {
		return domain.TransferResult{}, fmt.Errorf("%w: %s", zerrors.ErrInvalidSize, file.ID)
	}

	m.ensureFresh(ctx, entries)

	byName := make(map[string]*poolEntry, len(entries))
	for _, e := range entries {
		byName[e.source.Name] = e
	}

	r := &rotation{
		file:  file,
		tried: make(map[string]bool),
		limit: activeCount(snapshots(entries)),
	}
	logger := log.WithFields(log.Fields{"file": file.ID, "session": uuid.NewString()})
	refreshed := false

	for {
		if err := ctx.Err(); err != nil {
			return domain.TransferResult{}, err
		}

		account, err := m.selector.Select(r.candidates(snapshots(entries)), file.Size)
		if err != nil {
			if !errors.Is(err, zerrors.ErrNoSpace) {
				return domain.TransferResult{}, err
			}
			if r.attempts == 0 && !refreshed && m.opts.RefreshOnMiss {
				refreshed = true
				logger.Debug("No account fits, refreshing pool")
				if _, rerr := m.refreshEntries(ctx, entries); rerr != nil && ctx.Err() != nil {
					return domain.TransferResult{}, ctx.Err()
				}
				r.limit = activeCount(snapshots(entries))
				continue
			}
			return domain.TransferResult{}, r.exhausted(err)
		}

		e := byName[account.Name]
		r.attempts++
		logger.WithField("account", account.Name).Debugf("Transfer attempt %d/%d", r.attempts, r.limit)

		result, err := m.transfer(ctx, e, file, dest)
		if err == nil {
			result.Account = account.Name
			result.Attempts = r.attempts
			result.Tried = r.order
			m.record(ctx, result, file, dest)
			return result, nil
		}

		if zerrors.Classify(err) != zerrors.CapacityExhausted {
			return domain.TransferResult{}, err
		}

		logger.WithField("account", account.Name).WithError(err).Warn("Account full, rotating")
		r.tried[account.Name] = true
		r.order = append(r.order, account.Name)
		r.lastErr = err
		e.mu.Lock()
		e.account.Active = false
		e.mu.Unlock()

		if r.attempts >= r.limit {
			return domain.TransferResult{}, r.exhausted(nil)
		}
	}
}

// transfer delegates to the entry's client and applies the optimistic
// decrement only after the client confirms success.
func (m *Manager) transfer(ctx context.Context, e *poolEntry, file domain.File, dest string) (domain.TransferResult, error) {
	client := e.storageClient()
	if client == nil {
		return domain.TransferResult{}, fmt.Errorf("%w: %s has no client", zerrors.ErrAccountNotFound, e.source.Name)
	}

	result, err := client.Transfer(ctx, file, dest)
	if err != nil {
		return domain.TransferResult{}, err
	}

	e.mu.Lock()
	e.account.SpaceFree = max(e.account.SpaceFree-file.Size, 0)
	e.account.SpaceUsed += file.Size
	e.consumed += file.Size
	e.mu.Unlock()

	if result.Size == 0 {
		result.Size = file.Size
	}
	return result, nil
}

// record writes the placement to the ledger. The transfer already succeeded,
// so ledger failures are only logged.
func (m *Manager) record(ctx context.Context, result domain.TransferResult, file domain.File, dest string) {
	if m.recorder == nil {
		return
	}

	name := file.Path
	if name == "" {
		name = file.ID
	}
	prefix, fileName := placementKey(dest, name)

	err := m.recorder.RecordPlacement(ctx, domain.PlacementRecord{
		Prefix:     prefix,
		FileName:   fileName,
		Account:    result.Account,
		Location:   result.Location,
		Size:       result.Size,
		UploadedAt: m.opts.now(),
	})
	if err != nil {
		log.WithField("account", result.Account).WithError(err).Warn("Failed to record placement")
	}
}
