package server

import (
	"net/http"

	"soundbridge/core/moderation"
	"soundbridge/logger"
	"soundbridge/storage"
)

// StreamTrackHandler is the playability gate: the last check before audio
// playback begins. The row is re-read at play time because moderation status
// can change between list render and the play tap, and the check does not
// special-case the owner.
func (h *APIHandler) StreamTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID, err := parseTrackID(r)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	track, err := h.trackRepo.GetTrackByID(r.Context(), trackID)
	if err != nil {
		logger.Error("查询曲目失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to get track", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	viewerIsOwner := userID == track.UserID
	if !viewerIsOwner && !moderation.IsPubliclyVisible(track) {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	if !moderation.IsPlayable(track, viewerIsOwner) {
		logger.Info("播放被拦截",
			logger.Int64("trackId", trackID),
			logger.Int64("userId", userID),
			logger.String("status", string(track.ModerationStatus)))
		respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  "playback blocked",
			"reason": moderation.BlockedReason(track.ModerationStatus),
		})
		return
	}

	url, err := storage.PresignedGetURL(r.Context(), track.AudioPath)
	if err != nil {
		logger.Error("生成播放地址失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to prepare stream", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"url": url})
}
