package moderation

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"soundbridge/config"
	"soundbridge/core/notify"
	"soundbridge/logger"
	"soundbridge/model"
)

// TrackStore is the subset of the track repository the moderation core
// needs. repository.TrackRepository satisfies it.
type TrackStore interface {
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	ClaimPendingTracks(ctx context.Context, limit int) ([]*model.Track, error)
	ReclaimStuckChecking(ctx context.Context, olderThan time.Duration) (int64, error)
	UpdateModeration(ctx context.Context, id int64, from model.ModerationStatus, upd model.ModerationUpdate) error
	QueueStats(ctx context.Context, staleAfter time.Duration) (*model.ModerationQueueStats, error)
}

// AuditLog records one entry per transition.
type AuditLog interface {
	Record(ctx context.Context, entry *model.ModerationLog) error
}

// FeedInvalidator drops cached public-feed pages after a transition that
// changes what the feed may show.
type FeedInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service orchestrates every moderation transition: the guarded store write,
// the audit entry, the owner notification and the feed cache invalidation.
type Service struct {
	store    TrackStore
	audit    AuditLog
	notifier notify.Publisher
	feed     FeedInvalidator
	cfg      *config.Config
}

// NewService 创建审核服务，audit/notifier/feed 可为 nil（测试或精简部署）
func NewService(store TrackStore, audit AuditLog, notifier notify.Publisher, feed FeedInvalidator, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		audit:    audit,
		notifier: notifier,
		feed:     feed,
		cfg:      cfg,
	}
}

// ApplyVerdict writes the automated analysis result for a claimed track:
// clean below the flag threshold, flagged at or above it. Returns the status
// that was written.
func (s *Service) ApplyVerdict(ctx context.Context, track *model.Track, result *AnalysisResult) (model.ModerationStatus, error) {
	now := time.Now()
	confidence := result.Confidence

	to := model.StatusClean
	var reasons []string
	if confidence >= s.cfg.FlagThreshold {
		to = model.StatusFlagged
		reasons = result.Reasons
		if len(reasons) == 0 {
			// A flagging verdict without reasons is a defect in the
			// analysis service, never silently coerced to clean.
			logger.Error("analysis verdict flagged without reasons",
				logger.Int64("trackId", track.ID),
				logger.Float64("confidence", confidence))
			return "", model.ErrInvariantViolation
		}
	}

	upd := model.ModerationUpdate{
		Status:      to,
		Confidence:  &confidence,
		FlagReasons: reasons,
		CheckedAt:   &now,
	}
	if err := s.store.UpdateModeration(ctx, track.ID, model.StatusChecking, upd); err != nil {
		return "", err
	}

	var action notify.Action
	if to == model.StatusFlagged {
		action = notify.ActionFlagged
	}
	s.afterTransition(ctx, track, nil, model.StatusChecking, upd, action)
	return to, nil
}

// SubmitAppeal lets the owner contest a rejection. Only the owner, only from
// rejected, only with text inside the configured bounds, and only while no
// appeal is already open (the status guard enforces single-flight).
func (s *Service) SubmitAppeal(ctx context.Context, trackID, ownerID int64, text string) (*model.Track, error) {
	length := utf8.RuneCountInString(text)
	if length < s.cfg.AppealMinLen || length > s.cfg.AppealMaxLen {
		return nil, model.ErrValidation
	}

	track, err := s.store.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, model.ErrNotFound
	}
	if track.UserID != ownerID {
		return nil, model.ErrUnauthorized
	}
	if track.ModerationStatus != model.StatusRejected {
		return nil, model.ErrInvalidState
	}

	upd := model.ModerationUpdate{
		Status:      model.StatusAppealed,
		Confidence:  track.ModerationConfidence,
		FlagReasons: track.FlagReasons,
		CheckedAt:   track.ModerationCheckedAt,
		ReviewedBy:  track.ReviewedBy,
		ReviewedAt:  track.ReviewedAt,
		AppealText:  text,
	}
	if err := s.store.UpdateModeration(ctx, trackID, model.StatusRejected, upd); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, track, &ownerID, model.StatusRejected, upd, notify.ActionAppealReceived)
	return s.store.GetTrackByID(ctx, trackID)
}

// ReviewFlagged resolves a flagged track by human review: approve clears it,
// reject confirms the flag.
func (s *Service) ReviewFlagged(ctx context.Context, trackID, reviewerID int64, approve bool) (*model.Track, error) {
	return s.resolve(ctx, trackID, reviewerID, approve, model.StatusFlagged,
		notify.ActionApproved, notify.ActionRejected)
}

// ResolveAppeal closes an open appeal: approve upholds it, reject denies it.
// Either way the appeal text is cleared and the track becomes eligible for a
// fresh appeal only if it is rejected again.
func (s *Service) ResolveAppeal(ctx context.Context, trackID, reviewerID int64, approve bool) (*model.Track, error) {
	return s.resolve(ctx, trackID, reviewerID, approve, model.StatusAppealed,
		notify.ActionAppealApproved, notify.ActionAppealRejected)
}

func (s *Service) resolve(ctx context.Context, trackID, reviewerID int64, approve bool, from model.ModerationStatus, approveAction, rejectAction notify.Action) (*model.Track, error) {
	track, err := s.store.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, model.ErrNotFound
	}
	if track.ModerationStatus != from {
		return nil, model.ErrInvalidState
	}

	now := time.Now()
	to := model.StatusRejected
	action := rejectAction
	reasons := track.FlagReasons
	if approve {
		to = model.StatusApproved
		action = approveAction
		reasons = nil // reasons accompany negative outcomes only
	}

	upd := model.ModerationUpdate{
		Status:      to,
		Confidence:  track.ModerationConfidence,
		FlagReasons: reasons,
		CheckedAt:   track.ModerationCheckedAt,
		ReviewedBy:  &reviewerID,
		ReviewedAt:  &now,
	}
	if err := s.store.UpdateModeration(ctx, trackID, from, upd); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, track, &reviewerID, from, upd, action)
	return s.store.GetTrackByID(ctx, trackID)
}

// afterTransition runs the side effects of a committed transition. They are
// best-effort: a failed audit write or notification must not roll back a
// moderation decision that is already durable.
func (s *Service) afterTransition(ctx context.Context, track *model.Track, actorID *int64, from model.ModerationStatus, upd model.ModerationUpdate, action notify.Action) {
	if s.audit != nil {
		reasonsJSON, err := json.Marshal(upd.FlagReasons)
		if err != nil {
			reasonsJSON = []byte("[]")
		}
		entry := model.NewModerationLog(track.ID, actorID, from, upd.Status, string(reasonsJSON), upd.Confidence)
		if err := s.audit.Record(ctx, entry); err != nil {
			logger.Warn("审核日志写入失败",
				logger.Int64("trackId", track.ID),
				logger.ErrorField(err))
		}
	}

	if s.notifier != nil && action != "" {
		event := notify.NewEvent(track.ID, track.UserID, action)
		if err := s.notifier.Publish(ctx, event); err != nil {
			logger.Warn("通知事件发布失败",
				logger.Int64("trackId", track.ID),
				logger.String("action", string(action)),
				logger.ErrorField(err))
		}
	}

	if s.feed != nil && from.Visible() != upd.Status.Visible() {
		if err := s.feed.Invalidate(ctx); err != nil {
			logger.Warn("动态流缓存失效失败", logger.ErrorField(err))
		}
	}
}
