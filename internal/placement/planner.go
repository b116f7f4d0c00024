package placement

import (
	"sort"

	"github.com/zzenonn/zpool/internal/domain"
)

// Planner assigns many files across the pool using first-fit-decreasing
// order with a best-fit choice per file.
type Planner struct {
	buffer   int64
	selector Selector
}

// NewPlanner creates a planner backed by a best-fit selector
func NewPlanner(buffer int64) *Planner {
	s := NewBestFit(buffer)
	return &Planner{buffer: s.Buffer(), selector: s}
}

// NewPlannerWithSelector creates a planner using a custom selector. buffer
// must match the selector's so shortfalls are reported consistently.
func NewPlannerWithSelector(buffer int64, selector Selector) *Planner {
	return &Planner{buffer: buffer, selector: selector}
}

// Plan simulates placing files onto accounts and returns the assignment.
//
// Files are visited largest first (stable on equal sizes). Every placement
// decrements a private copy of the account's free space. A file that fits
// nowhere is left unassigned and the plan becomes infeasible, but the
// remaining files are still simulated so MissingSpace reflects the whole set.
// The accounts slice is never modified.
func (p *Planner) Plan(accounts []domain.Account, files []domain.File) domain.Plan {
	sim := make([]domain.Account, len(accounts))
	copy(sim, accounts)
	index := make(map[string]int, len(sim))
	for i, a := range sim {
		index[a.Name] = i
	}

	order := make([]int, len(files))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return files[order[i]].Size > files[order[j]].Size
	})

	plan := domain.Plan{
		Assignments: make([]domain.Assignment, 0, len(files)),
		Feasible:    true,
	}

	var attemptDeficit int64
	for _, idx := range order {
		f := files[idx]
		plan.TotalSize += f.Size

		acct, err := p.selector.Select(sim, f.Size)
		if err != nil {
			plan.Feasible = false
			plan.Assignments = append(plan.Assignments, domain.Assignment{File: f})
			if d := f.Size - p.maxUsable(sim); d > 0 {
				attemptDeficit += d
			}
			continue
		}

		sim[index[acct.Name]].SpaceFree -= f.Size
		plan.Assignments = append(plan.Assignments, domain.Assignment{File: f, Account: acct.Name})
	}

	if !plan.Feasible {
		plan.MissingSpace = max(attemptDeficit, p.aggregateDeficit(accounts, plan.TotalSize))
	}
	return plan
}

func (p *Planner) maxUsable(accounts []domain.Account) int64 {
	var best int64
	for _, a := range accounts {
		if a.Active {
			best = max(best, a.Usable(p.buffer))
		}
	}
	return best
}

// aggregateDeficit is total required minus total usable across active accounts.
func (p *Planner) aggregateDeficit(accounts []domain.Account, required int64) int64 {
	var usable int64
	for _, a := range accounts {
		if a.Active {
			usable += a.Usable(p.buffer)
		}
	}
	return max(required-usable, 0)
}
