package domain

// File is one unit of data to be placed on a single account.
type File struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Account  string   `json:"account"`
	Location string   `json:"location"`
	Size     int64    `json:"size"`
	Attempts int      `json:"attempts"`
	Tried    []string `json:"tried,omitempty"` // accounts rejected for lack of space, in order
}

// ObjectEntry - one child of a listed directory on an account
type ObjectEntry struct {
	Account string `json:"account"`
	Key     string `json:"key"` // relative to the account root, no trailing slash
	Size    int64  `json:"size"`
	IsDir   bool   `json:"is_dir"`
}
