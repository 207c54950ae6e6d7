package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"soundbridge/cache"
	"soundbridge/config"
	"soundbridge/core/auth"
	"soundbridge/core/moderation"
	"soundbridge/core/notify"
	"soundbridge/logger"
	"soundbridge/model"
	"soundbridge/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo  repository.TrackRepository
	userRepo   repository.UserRepository
	modService *moderation.Service
	feedCache  *cache.FeedCache
	hub        *notify.Hub
	cfg        *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	modService *moderation.Service,
	feedCache *cache.FeedCache,
	hub *notify.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:  trackRepo,
		userRepo:   userRepo,
		modService: modService,
		feedCache:  feedCache,
		hub:        hub,
		cfg:        cfg,
	}
}

// respondJSON writes a JSON response body with the given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("写入响应失败", logger.ErrorField(err))
		}
	}
}

// respondModerationError translates the moderation sentinel errors into the
// short, non-technical messages the client boundary surfaces. Invariant
// violations are operator-facing defects and leak nothing to the user.
func respondModerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		http.Error(w, "Invalid input", http.StatusBadRequest)
	case errors.Is(err, model.ErrUnauthorized):
		http.Error(w, "Not allowed", http.StatusForbidden)
	case errors.Is(err, model.ErrInvalidState):
		http.Error(w, "Not eligible for this action", http.StatusConflict)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, model.ErrInvariantViolation):
		logger.Error("moderation invariant violation", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		logger.Error("unexpected error", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// AuthMiddleware is a middleware function that checks for a valid JWT token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		ctx = context.WithValue(ctx, "isReviewer", claims.IsReviewer)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OptionalAuthMiddleware parses a Bearer token when one is present but never
// rejects the request. Public endpoints use it so owners still see their own
// non-visible tracks.
func (h *APIHandler) OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := auth.ParseToken(parts[1]); err == nil {
					ctx := context.WithValue(r.Context(), "userID", claims.UserID)
					ctx = context.WithValue(ctx, "username", claims.Username)
					ctx = context.WithValue(ctx, "isReviewer", claims.IsReviewer)
					r = r.WithContext(ctx)
				}
			}
		}
		next.ServeHTTP(w, r)
	}
}

// ReviewerMiddleware restricts an endpoint to reviewer accounts. It must be
// stacked inside AuthMiddleware.
func (h *APIHandler) ReviewerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		isReviewer, ok := r.Context().Value("isReviewer").(bool)
		if !ok || !isReviewer {
			http.Error(w, "Reviewer access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
