package model

import (
	"errors"
	"time"
)

// ModerationStatus describes where a track is in the review lifecycle.
type ModerationStatus string

const (
	// StatusPendingCheck is the initial status of every uploaded track,
	// waiting for the moderation worker to pick it up.
	StatusPendingCheck ModerationStatus = "pending_check"
	// StatusChecking means a worker run has claimed the track and the
	// automated analysis is in flight.
	StatusChecking ModerationStatus = "checking"
	// StatusClean is the automated all-clear verdict.
	StatusClean ModerationStatus = "clean"
	// StatusFlagged means the automated analysis found issues; the track
	// waits for human review.
	StatusFlagged ModerationStatus = "flagged"
	// StatusApproved is a human reviewer clearing a flagged track or
	// upholding an appeal.
	StatusApproved ModerationStatus = "approved"
	// StatusRejected is a human reviewer confirming a flag or denying an
	// appeal. The owner may appeal a rejected track.
	StatusRejected ModerationStatus = "rejected"
	// StatusAppealed means the owner contested a rejection and the track
	// waits for human adjudication.
	StatusAppealed ModerationStatus = "appealed"
)

// Sentinel errors for the moderation lifecycle. Handlers translate these to
// HTTP status codes; everything else is an internal error.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("invalid state for requested transition")
	ErrInvariantViolation = errors.New("moderation invariant violation")
)

// moderationTransitions is the legal edge set of the lifecycle. Worker and
// reviewer writes are both checked against it before touching the store.
var moderationTransitions = map[ModerationStatus][]ModerationStatus{
	StatusPendingCheck: {StatusChecking},
	StatusChecking:     {StatusClean, StatusFlagged},
	StatusFlagged:      {StatusApproved, StatusRejected},
	StatusRejected:     {StatusAppealed},
	StatusAppealed:     {StatusApproved, StatusRejected},
}

// Valid reports whether s is a known moderation status.
func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusPendingCheck, StatusChecking, StatusClean, StatusFlagged,
		StatusApproved, StatusRejected, StatusAppealed:
		return true
	}
	return false
}

// Flagged reports whether s is one of the negative/uncertain outcomes. The
// moderation_flagged column must always equal this.
func (s ModerationStatus) Flagged() bool {
	return s == StatusFlagged || s == StatusRejected || s == StatusAppealed
}

// Visible reports whether a track in status s may appear in public listings
// and be played. This is the single source of truth consulted by the
// visibility policy and by every public-feed SQL filter.
func (s ModerationStatus) Visible() bool {
	switch s {
	case StatusPendingCheck, StatusChecking, StatusClean, StatusApproved:
		return true
	}
	return false
}

// VisibleStatuses returns the canonical status set for public listing
// queries, in a stable order suitable for IN (...) clauses.
func VisibleStatuses() []ModerationStatus {
	return []ModerationStatus{StatusPendingCheck, StatusChecking, StatusClean, StatusApproved}
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to ModerationStatus) bool {
	for _, next := range moderationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ModerationUpdate is the write applied by a transition. Fields not relevant
// to the transition stay nil/empty and are written as NULL.
type ModerationUpdate struct {
	Status      ModerationStatus
	Confidence  *float64
	FlagReasons []string
	CheckedAt   *time.Time
	ReviewedBy  *int64
	ReviewedAt  *time.Time
	AppealText  string
}

// Validate checks the update against the lifecycle invariants:
// flag reasons appear exactly when the status is a negative outcome,
// confidence is absent before any check has run, and a flagged verdict
// always carries at least one reason.
func (u ModerationUpdate) Validate() error {
	if !u.Status.Valid() {
		return ErrInvariantViolation
	}
	if u.Status == StatusPendingCheck && u.Confidence != nil {
		return ErrInvariantViolation
	}
	if u.Status == StatusFlagged {
		if len(u.FlagReasons) == 0 {
			return ErrInvariantViolation
		}
		if u.Confidence == nil {
			return ErrInvariantViolation
		}
	}
	if !u.Status.Flagged() && len(u.FlagReasons) > 0 {
		return ErrInvariantViolation
	}
	if u.Confidence != nil && (*u.Confidence < 0 || *u.Confidence > 1) {
		return ErrInvariantViolation
	}
	if u.AppealText != "" && u.Status != StatusAppealed {
		return ErrInvariantViolation
	}
	return nil
}
