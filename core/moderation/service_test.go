package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"soundbridge/config"
	"soundbridge/core/notify"
	"soundbridge/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory TrackStore applying the same status guards the
// SQL repository enforces.
type fakeStore struct {
	tracks map[int64]*model.Track

	reclaimErr   error
	reclaimCount int64
	claimErr     error
	updateErr    error
}

func newFakeStore(tracks ...*model.Track) *fakeStore {
	s := &fakeStore{tracks: make(map[int64]*model.Track)}
	for _, t := range tracks {
		s.tracks[t.ID] = t
	}
	return s
}

func (s *fakeStore) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	t, ok := s.tracks[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (s *fakeStore) ClaimPendingTracks(ctx context.Context, limit int) ([]*model.Track, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	var claimed []*model.Track
	for _, t := range s.tracks {
		if len(claimed) >= limit {
			break
		}
		if t.ModerationStatus == model.StatusPendingCheck {
			t.ModerationStatus = model.StatusChecking
			copied := *t
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (s *fakeStore) ReclaimStuckChecking(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.reclaimCount, s.reclaimErr
}

func (s *fakeStore) UpdateModeration(ctx context.Context, id int64, from model.ModerationStatus, upd model.ModerationUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if err := upd.Validate(); err != nil {
		return err
	}
	if !model.CanTransition(from, upd.Status) {
		return model.ErrInvalidState
	}
	t, ok := s.tracks[id]
	if !ok || t.ModerationStatus != from {
		return model.ErrInvalidState
	}
	t.ModerationStatus = upd.Status
	t.ModerationFlagged = upd.Status.Flagged()
	t.FlagReasons = upd.FlagReasons
	t.ModerationConfidence = upd.Confidence
	t.ModerationCheckedAt = upd.CheckedAt
	t.ReviewedBy = upd.ReviewedBy
	t.ReviewedAt = upd.ReviewedAt
	t.AppealText = upd.AppealText
	t.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) QueueStats(ctx context.Context, staleAfter time.Duration) (*model.ModerationQueueStats, error) {
	stats := &model.ModerationQueueStats{}
	for _, t := range s.tracks {
		switch t.ModerationStatus {
		case model.StatusPendingCheck:
			stats.PendingCount++
		case model.StatusChecking:
			stats.CheckingCount++
		case model.StatusFlagged:
			stats.FlaggedCount++
		case model.StatusAppealed:
			stats.AppealedCount++
		}
	}
	return stats, nil
}

type fakeAudit struct {
	entries []*model.ModerationLog
}

func (a *fakeAudit) Record(ctx context.Context, entry *model.ModerationLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type fakePublisher struct {
	events []notify.Event
}

func (p *fakePublisher) Publish(ctx context.Context, event notify.Event) error {
	p.events = append(p.events, event)
	return nil
}

type fakeFeed struct {
	invalidations int
}

func (f *fakeFeed) Invalidate(ctx context.Context) error {
	f.invalidations++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		FlagThreshold:   0.5,
		BadgeThreshold:  0.5,
		WorkerInterval:  time.Minute,
		WorkerBatchSize: 10,
		AnalysisTimeout: 5 * time.Second,
		ReclaimAfter:    15 * time.Minute,
		StaleThreshold:  24 * time.Hour,
		AppealMinLen:    20,
		AppealMaxLen:    500,
	}
}

func checkingTrack(id, ownerID int64) *model.Track {
	t := model.NewTrack(ownerID, "demo", "audio/demo.mp3", "", "", true)
	t.ID = id
	t.ModerationStatus = model.StatusChecking
	return t
}

func rejectedTrack(id, ownerID int64) *model.Track {
	reviewer := int64(99)
	now := time.Now()
	conf := 0.8
	t := model.NewTrack(ownerID, "demo", "audio/demo.mp3", "", "", true)
	t.ID = id
	t.ModerationStatus = model.StatusRejected
	t.ModerationFlagged = true
	t.FlagReasons = []string{"explicit_lyrics"}
	t.ModerationConfidence = &conf
	t.ModerationCheckedAt = &now
	t.ReviewedBy = &reviewer
	t.ReviewedAt = &now
	return t
}

func TestApplyVerdictClean(t *testing.T) {
	store := newFakeStore(checkingTrack(1, 10))
	pub := &fakePublisher{}
	audit := &fakeAudit{}
	svc := NewService(store, audit, pub, &fakeFeed{}, testConfig())

	status, err := svc.ApplyVerdict(context.Background(), store.tracks[1],
		&AnalysisResult{Confidence: 0.1})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClean, status)

	track := store.tracks[1]
	assert.Equal(t, model.StatusClean, track.ModerationStatus)
	assert.False(t, track.ModerationFlagged)
	assert.Empty(t, track.FlagReasons)
	require.NotNil(t, track.ModerationConfidence)
	assert.Equal(t, 0.1, *track.ModerationConfidence)
	assert.NotNil(t, track.ModerationCheckedAt)

	// A clean verdict is not a user-meaningful transition: no event.
	assert.Empty(t, pub.events)
	// The audit trail records every transition including clean.
	assert.Len(t, audit.entries, 1)
}

func TestApplyVerdictFlagged(t *testing.T) {
	store := newFakeStore(checkingTrack(1, 10))
	pub := &fakePublisher{}
	feed := &fakeFeed{}
	svc := NewService(store, &fakeAudit{}, pub, feed, testConfig())

	status, err := svc.ApplyVerdict(context.Background(), store.tracks[1],
		&AnalysisResult{Confidence: 0.92, Reasons: []string{"explicit_lyrics", "hate_speech"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, status)

	track := store.tracks[1]
	assert.Equal(t, model.StatusFlagged, track.ModerationStatus)
	assert.True(t, track.ModerationFlagged)
	assert.Equal(t, []string{"explicit_lyrics", "hate_speech"}, track.FlagReasons)

	require.Len(t, pub.events, 1)
	assert.Equal(t, notify.ActionFlagged, pub.events[0].Action)
	assert.Equal(t, int64(1), pub.events[0].TrackID)
	assert.Equal(t, int64(10), pub.events[0].OwnerID)
	assert.NotEmpty(t, pub.events[0].EventID)

	// checking was visible, flagged is not: cached feed pages must go.
	assert.Equal(t, 1, feed.invalidations)
}

func TestApplyVerdictThresholdBoundary(t *testing.T) {
	// Exactly at the threshold flags.
	store := newFakeStore(checkingTrack(1, 10))
	svc := NewService(store, nil, nil, nil, testConfig())

	status, err := svc.ApplyVerdict(context.Background(), store.tracks[1],
		&AnalysisResult{Confidence: 0.5, Reasons: []string{"explicit_lyrics"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, status)
}

func TestApplyVerdictFlaggedWithoutReasons(t *testing.T) {
	store := newFakeStore(checkingTrack(1, 10))
	svc := NewService(store, nil, nil, nil, testConfig())

	_, err := svc.ApplyVerdict(context.Background(), store.tracks[1],
		&AnalysisResult{Confidence: 0.9})
	assert.ErrorIs(t, err, model.ErrInvariantViolation)
	// Nothing was written.
	assert.Equal(t, model.StatusChecking, store.tracks[1].ModerationStatus)
}

func TestSubmitAppeal(t *testing.T) {
	appealText := strings.Repeat("this was a mistake ", 3) // 57 runes

	store := newFakeStore(rejectedTrack(1, 10))
	pub := &fakePublisher{}
	svc := NewService(store, &fakeAudit{}, pub, &fakeFeed{}, testConfig())

	track, err := svc.SubmitAppeal(context.Background(), 1, 10, appealText)
	require.NoError(t, err)

	assert.Equal(t, model.StatusAppealed, track.ModerationStatus)
	assert.True(t, track.ModerationFlagged)
	assert.Equal(t, appealText, track.AppealText)
	// The flag data from the rejection is carried through the appeal.
	assert.Equal(t, []string{"explicit_lyrics"}, track.FlagReasons)
	assert.NotNil(t, track.ModerationConfidence)

	require.Len(t, pub.events, 1)
	assert.Equal(t, notify.ActionAppealReceived, pub.events[0].Action)
}

func TestSubmitAppealTextBounds(t *testing.T) {
	store := newFakeStore(rejectedTrack(1, 10))
	svc := NewService(store, nil, nil, nil, testConfig())

	_, err := svc.SubmitAppeal(context.Background(), 1, 10, "too short")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.SubmitAppeal(context.Background(), 1, 10, strings.Repeat("x", 501))
	assert.ErrorIs(t, err, model.ErrValidation)

	// Bounds count runes, not bytes: 20 CJK characters are 60 bytes but valid.
	_, err = svc.SubmitAppeal(context.Background(), 1, 10, strings.Repeat("审", 20))
	assert.NoError(t, err)
}

func TestSubmitAppealGuards(t *testing.T) {
	appealText := strings.Repeat("this was a mistake ", 3)

	t.Run("not owner", func(t *testing.T) {
		store := newFakeStore(rejectedTrack(1, 10))
		svc := NewService(store, nil, nil, nil, testConfig())
		_, err := svc.SubmitAppeal(context.Background(), 1, 11, appealText)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("not rejected", func(t *testing.T) {
		store := newFakeStore(checkingTrack(1, 10))
		svc := NewService(store, nil, nil, nil, testConfig())
		_, err := svc.SubmitAppeal(context.Background(), 1, 10, appealText)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})

	t.Run("unknown track", func(t *testing.T) {
		store := newFakeStore()
		svc := NewService(store, nil, nil, nil, testConfig())
		_, err := svc.SubmitAppeal(context.Background(), 404, 10, appealText)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("second appeal while one is open", func(t *testing.T) {
		store := newFakeStore(rejectedTrack(1, 10))
		svc := NewService(store, nil, nil, nil, testConfig())

		_, err := svc.SubmitAppeal(context.Background(), 1, 10, appealText)
		require.NoError(t, err)

		_, err = svc.SubmitAppeal(context.Background(), 1, 10, appealText)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})
}

func TestReviewFlagged(t *testing.T) {
	flagged := func() *model.Track {
		conf := 0.8
		now := time.Now()
		t := model.NewTrack(10, "demo", "audio/demo.mp3", "", "", true)
		t.ID = 1
		t.ModerationStatus = model.StatusFlagged
		t.ModerationFlagged = true
		t.FlagReasons = []string{"explicit_lyrics"}
		t.ModerationConfidence = &conf
		t.ModerationCheckedAt = &now
		return t
	}

	t.Run("approve clears the flag", func(t *testing.T) {
		store := newFakeStore(flagged())
		pub := &fakePublisher{}
		feed := &fakeFeed{}
		svc := NewService(store, &fakeAudit{}, pub, feed, testConfig())

		track, err := svc.ReviewFlagged(context.Background(), 1, 99, true)
		require.NoError(t, err)

		assert.Equal(t, model.StatusApproved, track.ModerationStatus)
		assert.False(t, track.ModerationFlagged)
		assert.Empty(t, track.FlagReasons)
		require.NotNil(t, track.ReviewedBy)
		assert.Equal(t, int64(99), *track.ReviewedBy)
		assert.NotNil(t, track.ReviewedAt)

		require.Len(t, pub.events, 1)
		assert.Equal(t, notify.ActionApproved, pub.events[0].Action)
		// flagged -> approved makes the track visible again.
		assert.Equal(t, 1, feed.invalidations)
	})

	t.Run("reject confirms the flag", func(t *testing.T) {
		store := newFakeStore(flagged())
		pub := &fakePublisher{}
		feed := &fakeFeed{}
		svc := NewService(store, &fakeAudit{}, pub, feed, testConfig())

		track, err := svc.ReviewFlagged(context.Background(), 1, 99, false)
		require.NoError(t, err)

		assert.Equal(t, model.StatusRejected, track.ModerationStatus)
		assert.True(t, track.ModerationFlagged)
		assert.Equal(t, []string{"explicit_lyrics"}, track.FlagReasons)

		require.Len(t, pub.events, 1)
		assert.Equal(t, notify.ActionRejected, pub.events[0].Action)
		// flagged and rejected are both hidden: no feed change.
		assert.Equal(t, 0, feed.invalidations)
	})

	t.Run("wrong state", func(t *testing.T) {
		store := newFakeStore(checkingTrack(1, 10))
		svc := NewService(store, nil, nil, nil, testConfig())
		_, err := svc.ReviewFlagged(context.Background(), 1, 99, true)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})
}

func TestResolveAppeal(t *testing.T) {
	appealed := func() *model.Track {
		t := rejectedTrack(1, 10)
		t.ModerationStatus = model.StatusAppealed
		t.AppealText = "please reconsider, the lyrics quote a public poem"
		return t
	}

	t.Run("uphold", func(t *testing.T) {
		store := newFakeStore(appealed())
		pub := &fakePublisher{}
		svc := NewService(store, &fakeAudit{}, pub, &fakeFeed{}, testConfig())

		track, err := svc.ResolveAppeal(context.Background(), 1, 99, true)
		require.NoError(t, err)

		assert.Equal(t, model.StatusApproved, track.ModerationStatus)
		assert.Empty(t, track.AppealText)
		assert.Empty(t, track.FlagReasons)

		require.Len(t, pub.events, 1)
		assert.Equal(t, notify.ActionAppealApproved, pub.events[0].Action)
	})

	t.Run("deny re-opens eligibility for a fresh appeal", func(t *testing.T) {
		store := newFakeStore(appealed())
		pub := &fakePublisher{}
		svc := NewService(store, &fakeAudit{}, pub, &fakeFeed{}, testConfig())

		track, err := svc.ResolveAppeal(context.Background(), 1, 99, false)
		require.NoError(t, err)

		assert.Equal(t, model.StatusRejected, track.ModerationStatus)
		assert.Empty(t, track.AppealText)

		require.Len(t, pub.events, 1)
		assert.Equal(t, notify.ActionAppealRejected, pub.events[0].Action)

		// The denial puts the track back in rejected, so a new appeal is legal.
		_, err = svc.SubmitAppeal(context.Background(), 1, 10,
			strings.Repeat("new evidence attached ", 2))
		assert.NoError(t, err)
	})
}

func TestSideEffectFailuresDoNotRollBack(t *testing.T) {
	store := newFakeStore(checkingTrack(1, 10))
	svc := NewService(store, failingAudit{}, failingPublisher{}, failingFeed{}, testConfig())

	status, err := svc.ApplyVerdict(context.Background(), store.tracks[1],
		&AnalysisResult{Confidence: 0.9, Reasons: []string{"explicit_lyrics"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, status)
	assert.Equal(t, model.StatusFlagged, store.tracks[1].ModerationStatus)
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, entry *model.ModerationLog) error {
	return errors.New("audit store down")
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event notify.Event) error {
	return errors.New("redis down")
}

type failingFeed struct{}

func (failingFeed) Invalidate(ctx context.Context) error {
	return errors.New("redis down")
}
