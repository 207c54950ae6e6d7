package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"soundbridge/core/moderation"
	"soundbridge/logger"
	"soundbridge/model"
	"soundbridge/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// UploadTrackHandler handles audio file uploads and metadata.
// Expected multipart form fields:
// - audioFile: the audio file (WAV, MP3, etc.)
// - title: track title
// - artworkFile: cover image (optional)
// - lyrics: lyrics text (optional)
// - isPublic: "true"/"false", defaults to true
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil { // 64MB max memory
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	audioFile, audioHeader, err := r.FormFile("audioFile")
	if err != nil {
		http.Error(w, "Missing 'audioFile' in form", http.StatusBadRequest)
		return
	}
	defer audioFile.Close()

	title := r.FormValue("title")
	if title == "" {
		http.Error(w, "Missing 'title' in form", http.StatusBadRequest)
		return
	}
	lyrics := r.FormValue("lyrics")

	isPublic := true
	if v := r.FormValue("isPublic"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid 'isPublic' value", http.StatusBadRequest)
			return
		}
		isPublic = parsed
	}

	audioExt := filepath.Ext(audioHeader.Filename)
	if audioExt == "" {
		audioExt = ".dat" // Fallback extension
	}
	audioKey := fmt.Sprintf("audio/%d/%s%s", userID, uuid.New().String(), audioExt)

	contentType := audioHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := storage.UploadObject(r.Context(), audioKey, audioFile, audioHeader.Size, contentType); err != nil {
		logger.Error("音频上传失败", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to store audio file", http.StatusInternalServerError)
		return
	}

	artworkKey := ""
	if artworkFile, artworkHeader, err := r.FormFile("artworkFile"); err == nil {
		defer artworkFile.Close()
		artworkExt := filepath.Ext(artworkHeader.Filename)
		if artworkExt == "" {
			artworkExt = ".jpg"
		}
		artworkKey = fmt.Sprintf("artwork/%d/%s%s", userID, uuid.New().String(), artworkExt)
		artworkType := artworkHeader.Header.Get("Content-Type")
		if artworkType == "" {
			artworkType = "image/jpeg"
		}
		if err := storage.UploadObject(r.Context(), artworkKey, artworkFile, artworkHeader.Size, artworkType); err != nil {
			logger.Warn("封面上传失败，继续创建曲目",
				logger.Int64("userId", userID), logger.ErrorField(err))
			artworkKey = ""
		}
	}

	track := model.NewTrack(userID, title, audioKey, artworkKey, lyrics, isPublic)
	trackID, err := h.trackRepo.CreateTrack(r.Context(), track)
	if err != nil {
		respondModerationError(w, err)
		return
	}
	track.ID = trackID

	logger.Info("曲目已创建，等待审核",
		logger.Int64("trackId", trackID),
		logger.Int64("userId", userID),
		logger.String("title", title))

	showBadge := moderation.ShouldShowBadge(track, true, h.cfg.BadgeThreshold)
	respondJSON(w, http.StatusCreated, track.ToResponse(showBadge))
}

// GetFeedHandler serves the public feed. The moderation filter is applied in
// SQL and must match the visibility policy exactly; results are cached.
func (h *APIHandler) GetFeedHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	if h.feedCache != nil {
		cached, err := h.feedCache.Get(r.Context(), limit, offset)
		if err != nil {
			logger.Warn("读取动态流缓存失败", logger.ErrorField(err))
		} else if cached != nil {
			respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": cached})
			return
		}
	}

	tracks, err := h.trackRepo.GetPublicTracks(r.Context(), limit, offset)
	if err != nil {
		logger.Error("查询公共动态流失败", logger.ErrorField(err))
		http.Error(w, "Failed to get feed", http.StatusInternalServerError)
		return
	}

	responses := make([]model.TrackResponse, 0, len(tracks))
	for _, track := range tracks {
		// Badges are never shown to non-owners.
		responses = append(responses, track.ToResponse(false))
	}

	if h.feedCache != nil {
		if err := h.feedCache.Set(r.Context(), limit, offset, responses); err != nil {
			logger.Warn("写入动态流缓存失败", logger.ErrorField(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": responses})
}

// GetMyTracksHandler lists everything the owner has uploaded, with no
// moderation filter and with badges computed for the owner.
func (h *APIHandler) GetMyTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tracks, err := h.trackRepo.GetTracksByUserID(r.Context(), userID)
	if err != nil {
		logger.Error("查询用户曲目失败", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to get tracks", http.StatusInternalServerError)
		return
	}

	responses := make([]model.TrackResponse, 0, len(tracks))
	for _, track := range tracks {
		showBadge := moderation.ShouldShowBadge(track, true, h.cfg.BadgeThreshold)
		responses = append(responses, track.ToResponse(showBadge))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": responses})
}

// GetTrackHandler serves a single track. Non-visible tracks are reported as
// not found to everyone but their owner, so moderation state never leaks.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
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

	viewerID, _ := GetUserIDFromContext(r.Context())
	viewerIsOwner := viewerID != 0 && viewerID == track.UserID

	if !viewerIsOwner && !moderation.IsPubliclyVisible(track) {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	showBadge := moderation.ShouldShowBadge(track, viewerIsOwner, h.cfg.BadgeThreshold)
	respondJSON(w, http.StatusOK, track.ToResponse(showBadge))
}

func parseTrackID(r *http.Request) (int64, error) {
	vars := mux.Vars(r)
	return strconv.ParseInt(vars["id"], 10, 64)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultFeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
