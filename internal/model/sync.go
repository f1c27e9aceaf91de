package model

import "time"

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncRunning SyncStatus = "running"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncError
}

// MaxRunErrorLength bounds the error text stored on a failed run.
const MaxRunErrorLength = 500

// SyncCounts holds the number of rows written per entity kind during a run.
type SyncCounts struct {
	Accounts   int `json:"accounts"`
	Positions  int `json:"positions"`
	Snapshots  int `json:"snapshots"`
	Activities int `json:"activities"`
	Dividends  int `json:"dividends"`
}

// SyncRun is one row of the run log. It is created in the running state,
// updated exactly once when the run reaches a terminal state and never deleted.
// A row left in running means the process died mid-run.
type SyncRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"startedAt"`
	Status      SyncStatus `json:"status"`
	Counts      SyncCounts `json:"counts"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TruncateRunError shortens msg to MaxRunErrorLength runes.
func TruncateRunError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxRunErrorLength {
		return msg
	}
	return string(r[:MaxRunErrorLength])
}
