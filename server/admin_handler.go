package server

import (
	"context"
	"encoding/json"
	"net/http"

	"soundbridge/core/moderation"
	"soundbridge/db"
	"soundbridge/logger"
	"soundbridge/model"
)

const reviewQueueLimit = 50

// ReviewDecisionRequest is the body of a reviewer decision.
type ReviewDecisionRequest struct {
	Decision string `json:"decision"` // approve | reject
}

// GetReviewQueueHandler lists tracks awaiting human action: flagged tracks
// and open appeals, oldest first.
func (h *APIHandler) GetReviewQueueHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetTracksByStatus(r.Context(),
		[]model.ModerationStatus{model.StatusFlagged, model.StatusAppealed}, reviewQueueLimit)
	if err != nil {
		logger.Error("查询待审核队列失败", logger.ErrorField(err))
		http.Error(w, "Failed to get review queue", http.StatusInternalServerError)
		return
	}

	type reviewItem struct {
		model.TrackResponse
		AppealText string `json:"appealText,omitempty"`
	}
	items := make([]reviewItem, 0, len(tracks))
	for _, track := range tracks {
		items = append(items, reviewItem{
			TrackResponse: track.ToResponse(false),
			AppealText:    track.AppealText,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": items})
}

// ReviewTrackHandler resolves a flagged track by human review.
func (h *APIHandler) ReviewTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.handleReviewDecision(w, r, h.modService.ReviewFlagged)
}

// ResolveAppealHandler closes an open appeal.
func (h *APIHandler) ResolveAppealHandler(w http.ResponseWriter, r *http.Request) {
	h.handleReviewDecision(w, r, h.modService.ResolveAppeal)
}

type reviewFunc func(ctx context.Context, trackID, reviewerID int64, approve bool) (*model.Track, error)

func (h *APIHandler) handleReviewDecision(w http.ResponseWriter, r *http.Request, resolve reviewFunc) {
	reviewerID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID, err := parseTrackID(r)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	var req ReviewDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var approve bool
	switch req.Decision {
	case "approve":
		approve = true
	case "reject":
		approve = false
	default:
		http.Error(w, "Decision must be 'approve' or 'reject'", http.StatusBadRequest)
		return
	}

	track, err := resolve(r.Context(), trackID, reviewerID, approve)
	if err != nil {
		respondModerationError(w, err)
		return
	}

	logger.Info("审核决定已写入",
		logger.Int64("trackId", trackID),
		logger.Int64("reviewerId", reviewerID),
		logger.String("decision", req.Decision),
		logger.String("status", string(track.ModerationStatus)))

	respondJSON(w, http.StatusOK, track.ToResponse(false))
}

// ModerationStatusHandler is the operator surface: queue depths, staleness
// counters and the worker heartbeat age. A stale row is reported here, never
// auto-resolved.
func (h *APIHandler) ModerationStatusHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trackRepo.QueueStats(r.Context(), h.cfg.StaleThreshold)
	if err != nil {
		logger.Error("查询审核队列状态失败", logger.ErrorField(err))
		http.Error(w, "Failed to get moderation status", http.StatusInternalServerError)
		return
	}

	payload := map[string]interface{}{
		"queue":          stats,
		"staleThreshold": h.cfg.StaleThreshold.String(),
	}

	if age, ok := moderation.HeartbeatAge(r.Context(), db.RedisClient); ok {
		payload["workerHeartbeatAgeSeconds"] = int64(age.Seconds())
		payload["workerAlive"] = age < 3*h.cfg.WorkerInterval
	} else {
		payload["workerAlive"] = false
	}

	respondJSON(w, http.StatusOK, payload)
}
