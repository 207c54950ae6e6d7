package server

import (
	"encoding/json"
	"net/http"

	"soundbridge/logger"
)

// AppealRequest is the appeal submission body.
type AppealRequest struct {
	AppealText string `json:"appealText"`
}

// SubmitAppealHandler lets the owner of a rejected track request human
// re-review. Validation, ownership and state checks live in the service; the
// handler only translates errors for the client.
func (h *APIHandler) SubmitAppealHandler(w http.ResponseWriter, r *http.Request) {
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

	var req AppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	track, err := h.modService.SubmitAppeal(r.Context(), trackID, userID, req.AppealText)
	if err != nil {
		respondModerationError(w, err)
		return
	}

	logger.Info("申诉已提交",
		logger.Int64("trackId", trackID),
		logger.Int64("userId", userID))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trackId":    track.ID,
		"status":     track.ModerationStatus,
		"appealText": track.AppealText,
	})
}
