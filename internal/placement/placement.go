// Package placement decides which storage account receives which file.
//
// This package holds the pure, in-memory part of the allocator. Nothing here
// performs I/O or blocks: callers hand in a snapshot of the pool and get a
// decision back.
//
// Key Concepts:
//   - Buffer: bytes always reserved per account and never offered to a file
//   - Best-Fit: choose the account left with the least headroom after the file lands
//   - First-Fit-Decreasing: plan many files by placing the largest first
//   - Simulation: planning decrements a private copy of each account's free
//     space, so real account state is never touched
//
// Architecture Role:
// The placement package sits between the service layer (pool manager, rotation)
// and the domain records. The service layer owns locking and refreshes; it
// passes ordered snapshots here. Order matters: ties go to the account that
// appears first, which is the order accounts were discovered in.
//
// Example:
//
//	selector := NewBestFit(100 << 20)
//	acct, err := selector.Select(accounts, fileSize)
//
//	planner := NewPlanner(100 << 20)
//	plan := planner.Plan(accounts, files)
//	if !plan.Feasible {
//		fmt.Println("short by", plan.MissingSpace)
//	}
package placement

import (
	"github.com/zzenonn/zpool/internal/domain"
)

// Selector picks a single account for a file of the given size.
//
// Implementations must be deterministic: the same candidates in the same
// order with the same size always produce the same account. Inactive
// candidates are never chosen. When nothing fits, the error is a
// *errors.NoSpaceError.
type Selector interface {
	Select(candidates []domain.Account, size int64) (domain.Account, error)
}
