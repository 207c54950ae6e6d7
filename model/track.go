package model

import "time"

// Track represents an uploaded audio work and its moderation metadata.
type Track struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userId"`
	Title       string `json:"title"`
	AudioPath   string `json:"-"` // Object key of the original audio file, never exposed directly
	ArtworkPath string `json:"artworkPath,omitempty"`
	Lyrics      string `json:"lyrics,omitempty"`
	// IsPublic is the owner's own choice, independent of moderation outcome.
	IsPublic bool `json:"isPublic"`

	ModerationStatus     ModerationStatus `json:"moderationStatus"`
	ModerationFlagged    bool             `json:"moderationFlagged"`
	FlagReasons          []string         `json:"flagReasons"`
	ModerationConfidence *float64         `json:"moderationConfidence,omitempty"`
	ModerationCheckedAt  *time.Time       `json:"moderationCheckedAt,omitempty"`
	ReviewedBy           *int64           `json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time       `json:"reviewedAt,omitempty"`
	// AppealText is present only while the track sits in the appealed status.
	AppealText string `json:"appealText,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"` // Soft delete, owned by content lifecycle management
}

// NewTrack builds a freshly uploaded track in its initial moderation state.
func NewTrack(userID int64, title, audioPath, artworkPath, lyrics string, isPublic bool) *Track {
	now := time.Now()
	return &Track{
		UserID:            userID,
		Title:             title,
		AudioPath:         audioPath,
		ArtworkPath:       artworkPath,
		Lyrics:            lyrics,
		IsPublic:          isPublic,
		ModerationStatus:  StatusPendingCheck,
		ModerationFlagged: false,
		FlagReasons:       []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ValidateForCreate checks the required content fields before insert.
func (t *Track) ValidateForCreate() error {
	if t.UserID == 0 || t.Title == "" || t.AudioPath == "" {
		return ErrValidation
	}
	return nil
}

// ValidateInvariants checks the row-level consistency rules that must hold
// after every transition.
func (t *Track) ValidateInvariants() error {
	if !t.ModerationStatus.Valid() {
		return ErrInvariantViolation
	}
	if t.ModerationFlagged != t.ModerationStatus.Flagged() {
		return ErrInvariantViolation
	}
	if len(t.FlagReasons) > 0 && !t.ModerationFlagged {
		return ErrInvariantViolation
	}
	if t.ModerationStatus == StatusPendingCheck && t.ModerationConfidence != nil {
		return ErrInvariantViolation
	}
	if t.AppealText != "" && t.ModerationStatus != StatusAppealed {
		return ErrInvariantViolation
	}
	return nil
}

// TrackResponse is the API shape of a track. Every listing carries the
// moderation fields so clients can evaluate the visibility policy without an
// extra round-trip.
type TrackResponse struct {
	ID                   int64            `json:"id"`
	UserID               int64            `json:"userId"`
	Title                string           `json:"title"`
	ArtworkPath          string           `json:"artworkPath,omitempty"`
	Lyrics               string           `json:"lyrics,omitempty"`
	IsPublic             bool             `json:"isPublic"`
	ModerationStatus     ModerationStatus `json:"moderationStatus"`
	ModerationFlagged    bool             `json:"moderationFlagged"`
	FlagReasons          []string         `json:"flagReasons"`
	ModerationConfidence *float64         `json:"moderationConfidence,omitempty"`
	ShowBadge            bool             `json:"showBadge"`
	CreatedAt            time.Time        `json:"createdAt"`
}

// ToResponse converts a track for API output. showBadge is computed by the
// visibility policy and passed through; non-owner listings always pass false.
func (t *Track) ToResponse(showBadge bool) TrackResponse {
	reasons := t.FlagReasons
	if reasons == nil {
		reasons = []string{}
	}
	return TrackResponse{
		ID:                   t.ID,
		UserID:               t.UserID,
		Title:                t.Title,
		ArtworkPath:          t.ArtworkPath,
		Lyrics:               t.Lyrics,
		IsPublic:             t.IsPublic,
		ModerationStatus:     t.ModerationStatus,
		ModerationFlagged:    t.ModerationFlagged,
		FlagReasons:          reasons,
		ModerationConfidence: t.ModerationConfidence,
		ShowBadge:            showBadge,
		CreatedAt:            t.CreatedAt,
	}
}
