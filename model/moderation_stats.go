package model

// ModerationQueueStats is the operator-facing snapshot of the moderation
// pipeline: per-status depths plus the staleness signals that make a silent
// worker observable.
type ModerationQueueStats struct {
	PendingCount  int `json:"pendingCount"`
	CheckingCount int `json:"checkingCount"`
	FlaggedCount  int `json:"flaggedCount"`
	AppealedCount int `json:"appealedCount"`

	// StalePending counts rows that never left pending_check within the
	// stale threshold; a non-zero value usually means the worker is not
	// running.
	StalePending  int `json:"stalePending"`
	StaleChecking int `json:"staleChecking"`

	// Ages in seconds of the oldest unprogressed rows; zero when none.
	OldestPendingAgeSeconds  int64 `json:"oldestPendingAgeSeconds"`
	OldestCheckingAgeSeconds int64 `json:"oldestCheckingAgeSeconds"`
}
