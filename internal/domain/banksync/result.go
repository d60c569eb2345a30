package banksync

// SyncResult contains the outcome of one sync pass.
type SyncResult struct {
	ItemID string `json:"itemId"`

	// Skipped is true when another pass for the same item was already in
	// flight; all counts are zero in that case.
	Skipped bool `json:"skipped"`

	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
	Merged   int `json:"merged"`

	// Diagnostics.
	RawAdded          int  `json:"rawAdded"`
	RawModified       int  `json:"rawModified"`
	RawRemoved        int  `json:"rawRemoved"`
	DroppedUnmapped   int  `json:"droppedUnmapped"`
	DroppedTombstoned int  `json:"droppedTombstoned"`
	HadCursor         bool `json:"hadCursor"` // false means this was an initial full pull
	RefreshRequested  bool `json:"refreshRequested"`
	Categorized       int  `json:"categorized"`
}

// ApplyResult is the reconciliation engine's view of one applied pass.
type ApplyResult struct {
	Added             int
	Modified          int
	Removed           int
	Merged            int
	DroppedUnmapped   int
	DroppedTombstoned int

	// InsertedIDs are the ids of freshly inserted records (not merged, not
	// modified), handed to the categorization engine afterwards.
	InsertedIDs []string
}
