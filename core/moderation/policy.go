package moderation

import "soundbridge/model"

// The visibility policy is the one decision path shared by the feed, the
// profile, the track detail view and the playback gate. Every SQL feed filter
// must agree with it via model.VisibleStatuses().

// IsPubliclyVisible reports whether a track may appear in public listings:
// the owner chose to publish it and moderation has not hidden it.
func IsPubliclyVisible(t *model.Track) bool {
	return t.IsPublic && t.ModerationStatus.Visible()
}

// IsPlayable reports whether playback may start. Ownership does NOT override
// the status gate: an owner sees their flagged track but cannot play it.
func IsPlayable(t *model.Track, viewerIsOwner bool) bool {
	_ = viewerIsOwner // status, not ownership, gates playback
	return t.ModerationStatus.Visible()
}

// ShouldShowBadge reports whether the moderation badge is rendered. Badges
// are owner-only. For an all-clear verdict the badge is suppressed unless
// the confidence reached badgeThreshold, so borderline automated calls stay
// transparent to the owner.
func ShouldShowBadge(t *model.Track, viewerIsOwner bool, badgeThreshold float64) bool {
	if !viewerIsOwner {
		return false
	}
	switch t.ModerationStatus {
	case model.StatusClean, model.StatusApproved:
		return t.ModerationConfidence != nil && *t.ModerationConfidence >= badgeThreshold
	default:
		return true
	}
}

// BlockedReason maps a non-playable status to the short message surfaced to
// the user when playback is refused.
func BlockedReason(s model.ModerationStatus) string {
	switch s {
	case model.StatusFlagged:
		return "under review"
	case model.StatusRejected:
		return "not approved, appeal available"
	case model.StatusAppealed:
		return "appeal pending"
	default:
		return ""
	}
}
