package moderation

import (
	"testing"

	"soundbridge/model"

	"github.com/stretchr/testify/assert"
)

func floatPtr(f float64) *float64 { return &f }

func trackIn(status model.ModerationStatus, isPublic bool) *model.Track {
	t := model.NewTrack(1, "demo", "audio/1/demo.mp3", "", "", isPublic)
	t.ID = 42
	t.ModerationStatus = status
	t.ModerationFlagged = status.Flagged()
	if status.Flagged() {
		t.FlagReasons = []string{"explicit_lyrics"}
	}
	return t
}

func TestIsPubliclyVisible(t *testing.T) {
	tests := []struct {
		status   model.ModerationStatus
		isPublic bool
		want     bool
	}{
		{model.StatusPendingCheck, true, true},
		{model.StatusChecking, true, true},
		{model.StatusClean, true, true},
		{model.StatusApproved, true, true},
		{model.StatusFlagged, true, false},
		{model.StatusRejected, true, false},
		{model.StatusAppealed, true, false},
		// A private track is never publicly visible regardless of status.
		{model.StatusClean, false, false},
		{model.StatusApproved, false, false},
	}
	for _, tc := range tests {
		got := IsPubliclyVisible(trackIn(tc.status, tc.isPublic))
		assert.Equal(t, tc.want, got, "status=%s isPublic=%v", tc.status, tc.isPublic)
	}
}

func TestIsPlayableIgnoresOwnership(t *testing.T) {
	for _, status := range []model.ModerationStatus{
		model.StatusFlagged, model.StatusRejected, model.StatusAppealed,
	} {
		track := trackIn(status, true)
		assert.False(t, IsPlayable(track, true), "owner must not play %s track", status)
		assert.False(t, IsPlayable(track, false), "non-owner must not play %s track", status)
	}

	for _, status := range []model.ModerationStatus{
		model.StatusPendingCheck, model.StatusChecking, model.StatusClean, model.StatusApproved,
	} {
		track := trackIn(status, true)
		assert.True(t, IsPlayable(track, true), "%s track should be playable", status)
		assert.True(t, IsPlayable(track, false), "%s track should be playable", status)
	}
}

func TestShouldShowBadge(t *testing.T) {
	const threshold = 0.5

	// Badges are owner-only in every status.
	for _, status := range []model.ModerationStatus{
		model.StatusPendingCheck, model.StatusFlagged, model.StatusRejected, model.StatusAppealed,
	} {
		assert.False(t, ShouldShowBadge(trackIn(status, true), false, threshold))
	}

	// Owner sees a badge on everything except a confident all-clear.
	assert.True(t, ShouldShowBadge(trackIn(model.StatusPendingCheck, true), true, threshold))
	assert.True(t, ShouldShowBadge(trackIn(model.StatusChecking, true), true, threshold))
	assert.True(t, ShouldShowBadge(trackIn(model.StatusFlagged, true), true, threshold))
	assert.True(t, ShouldShowBadge(trackIn(model.StatusRejected, true), true, threshold))
	assert.True(t, ShouldShowBadge(trackIn(model.StatusAppealed, true), true, threshold))

	// Clean/approved: badge only when confidence reached the threshold.
	clean := trackIn(model.StatusClean, true)
	clean.ModerationConfidence = floatPtr(0.1)
	assert.False(t, ShouldShowBadge(clean, true, threshold))

	clean.ModerationConfidence = floatPtr(0.5)
	assert.True(t, ShouldShowBadge(clean, true, threshold))

	approved := trackIn(model.StatusApproved, true)
	approved.ModerationConfidence = nil
	assert.False(t, ShouldShowBadge(approved, true, threshold))

	approved.ModerationConfidence = floatPtr(0.9)
	assert.True(t, ShouldShowBadge(approved, true, threshold))
}

func TestBlockedReason(t *testing.T) {
	assert.Equal(t, "under review", BlockedReason(model.StatusFlagged))
	assert.Equal(t, "not approved, appeal available", BlockedReason(model.StatusRejected))
	assert.Equal(t, "appeal pending", BlockedReason(model.StatusAppealed))
	assert.Equal(t, "", BlockedReason(model.StatusClean))
}
