package placement

import (
	"fmt"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// BestFit selects the account whose free space exceeds the file by the
// smallest margin.
type BestFit struct {
	buffer int64
}

// NewBestFit creates a best-fit selector that keeps buffer bytes free on every account
func NewBestFit(buffer int64) *BestFit {
	if buffer < 0 {
		buffer = 0
	}
	return &BestFit{buffer: buffer}
}

// Buffer returns the reserved bytes per account
func (s *BestFit) Buffer() int64 {
	return s.buffer
}

// Select returns the active candidate with the smallest surplus that still
// satisfies free - buffer >= size. Ties keep the earliest candidate.
func (s *BestFit) Select(candidates []domain.Account, size int64) (domain.Account, error) {
	if size < 0 {
		return domain.Account{}, fmt.Errorf("select %d bytes: %w", size, zerrors.ErrInvalidSize)
	}

	best := -1
	var bestSurplus, bestUsable int64
	for i, a := range candidates {
		if !a.Active {
			continue
		}
		if usable := a.Usable(s.buffer); usable > bestUsable {
			bestUsable = usable
		}
		if !a.HasSpaceFor(size, s.buffer) {
			continue
		}
		surplus := a.SpaceFree - size
		if best == -1 || surplus < bestSurplus {
			best = i
			bestSurplus = surplus
		}
	}

	if best == -1 {
		return domain.Account{}, &zerrors.NoSpaceError{Required: size, Available: bestUsable}
	}
	return candidates[best], nil
}
