package domain

import "time"

// RefreshOutcome is the result of refreshing one account.
type RefreshOutcome struct {
	Account string
	Err     error
}

// RefreshReport aggregates per-account refresh outcomes in pool order.
type RefreshReport struct {
	Outcomes []RefreshOutcome
}

// Succeeded returns the names of accounts refreshed successfully.
func (r RefreshReport) Succeeded() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Err == nil {
			names = append(names, o.Account)
		}
	}
	return names
}

// Failed returns the outcomes that carry an error.
func (r RefreshReport) Failed() []RefreshOutcome {
	var failed []RefreshOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// AccountStatus is the per-account view handed to presentation code.
type AccountStatus struct {
	Name          string    `json:"name"`
	SpaceFree     int64     `json:"space_free"`
	SpaceTotal    int64     `json:"space_total"`
	UsagePercent  float64   `json:"usage_percent"`
	Active        bool      `json:"active"`
	LastRefreshed time.Time `json:"last_refreshed"`
}

// PoolStatus is the pool-wide view handed to presentation code.
type PoolStatus struct {
	Accounts     []AccountStatus `json:"accounts"`
	AccountCount int             `json:"account_count"`
	ActiveCount  int             `json:"active_count"`
	TotalFree    int64           `json:"total_free"` // active accounts only
	TotalSpace   int64           `json:"total_space"`
}

// Capacity is a point-in-time capacity reading from a storage backend.
type Capacity struct {
	Total int64
	Free  int64
}
