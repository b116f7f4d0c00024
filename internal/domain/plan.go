package domain

// Assignment pairs a file with the account chosen for it. Account is empty
// when no account could take the file.
type Assignment struct {
	File    File   `json:"file"`
	Account string `json:"account"`
}

// Assigned reports whether the file received an account.
func (a Assignment) Assigned() bool {
	return a.Account != ""
}

// Plan is an immutable file → account assignment. Assignments are in
// placement order (largest first) and cover every input file exactly once.
type Plan struct {
	Assignments  []Assignment `json:"assignments"`
	TotalSize    int64        `json:"total_size"`
	Feasible     bool         `json:"feasible"`
	MissingSpace int64        `json:"missing_space"`
}

// FileCount returns the number of files covered by the plan.
func (p Plan) FileCount() int {
	return len(p.Assignments)
}

// AccountsUsed returns the distinct accounts in first-use order.
func (p Plan) AccountsUsed() []string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range p.Assignments {
		if a.Assigned() && !seen[a.Account] {
			seen[a.Account] = true
			names = append(names, a.Account)
		}
	}
	return names
}

// FilesFor returns the files assigned to the named account.
func (p Plan) FilesFor(account string) []File {
	var files []File
	for _, a := range p.Assignments {
		if a.Account == account {
			files = append(files, a.File)
		}
	}
	return files
}

// Unassigned returns the files no account could take.
func (p Plan) Unassigned() []File {
	var files []File
	for _, a := range p.Assignments {
		if !a.Assigned() {
			files = append(files, a.File)
		}
	}
	return files
}
