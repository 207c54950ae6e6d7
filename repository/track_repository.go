package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"soundbridge/db"
	"soundbridge/model"
)

// trackColumns is the shared SELECT column list; every read goes through
// scanTrack so the moderation fields are never dropped from a query path.
const trackColumns = `id, user_id, title, audio_path, artwork_path, lyrics, is_public,
	moderation_status, moderation_flagged, flag_reasons, moderation_confidence,
	moderation_checked_at, reviewed_by, reviewed_at, appeal_text, created_at, updated_at`

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) (int64, error)
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetPublicTracks(ctx context.Context, limit, offset int) ([]*model.Track, error)
	GetTracksByUserID(ctx context.Context, userID int64) ([]*model.Track, error)
	ClaimTrack(ctx context.Context, id int64) error
	ClaimPendingTracks(ctx context.Context, limit int) ([]*model.Track, error)
	ReclaimStuckChecking(ctx context.Context, olderThan time.Duration) (int64, error)
	UpdateModeration(ctx context.Context, id int64, from model.ModerationStatus, upd model.ModerationUpdate) error
	GetTracksByStatus(ctx context.Context, statuses []model.ModerationStatus, limit int) ([]*model.Track, error)
	QueueStats(ctx context.Context, staleAfter time.Duration) (*model.ModerationQueueStats, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

// NewTrackRepositoryWithDB creates a repository bound to an explicit handle.
func NewTrackRepositoryWithDB(database *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: database}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*model.Track, error) {
	track := &model.Track{}
	var (
		artwork    sql.NullString
		lyrics     sql.NullString
		reasons    sql.NullString
		confidence sql.NullFloat64
		checkedAt  sql.NullTime
		reviewedBy sql.NullInt64
		reviewedAt sql.NullTime
		appealText sql.NullString
	)

	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.AudioPath, &artwork, &lyrics,
		&track.IsPublic, &track.ModerationStatus, &track.ModerationFlagged, &reasons, &confidence,
		&checkedAt, &reviewedBy, &reviewedAt, &appealText, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}

	track.ArtworkPath = artwork.String
	track.Lyrics = lyrics.String
	track.AppealText = appealText.String
	track.FlagReasons = []string{}
	if reasons.Valid && reasons.String != "" {
		if err := json.Unmarshal([]byte(reasons.String), &track.FlagReasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flag reasons for track %d: %w", track.ID, err)
		}
	}
	if confidence.Valid {
		track.ModerationConfidence = &confidence.Float64
	}
	if checkedAt.Valid {
		t := checkedAt.Time
		track.ModerationCheckedAt = &t
	}
	if reviewedBy.Valid {
		id := reviewedBy.Int64
		track.ReviewedBy = &id
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		track.ReviewedAt = &t
	}
	return track, nil
}

// CreateTrack adds a new track in the initial pending_check state.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	if err := track.ValidateForCreate(); err != nil {
		return 0, err
	}

	query := `INSERT INTO tracks (user_id, title, audio_path, artwork_path, lyrics, is_public,
		moderation_status, moderation_flagged, flag_reasons, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.ExecContext(ctx, track.UserID, track.Title, track.AudioPath,
		nullString(track.ArtworkPath), nullString(track.Lyrics), track.IsPublic,
		string(model.StatusPendingCheck), false, "[]", now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ? AND deleted_at IS NULL`
	row := r.DB.QueryRowContext(ctx, query, id)

	track, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetPublicTracks retrieves a page of the public feed. The filter must stay
// in lockstep with the visibility policy: is_public plus the canonical
// visible status set, nothing else.
func (r *mysqlTrackRepository) GetPublicTracks(ctx context.Context, limit, offset int) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks
		WHERE deleted_at IS NULL AND is_public = 1 AND moderation_status IN (?, ?, ?, ?)
		ORDER BY created_at DESC LIMIT ? OFFSET ?`

	visible := model.VisibleStatuses()
	rows, err := r.DB.QueryContext(ctx, query,
		string(visible[0]), string(visible[1]), string(visible[2]), string(visible[3]), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query public tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// GetTracksByUserID retrieves all tracks owned by a user, with no moderation
// filter: the owner sees everything they own.
func (r *mysqlTrackRepository) GetTracksByUserID(ctx context.Context, userID int64) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks
		WHERE deleted_at IS NULL AND user_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// ClaimTrack transitions one row from pending_check to checking. The status
// condition in the UPDATE is what makes concurrent claims safe: exactly one
// caller observes an affected row, every other caller gets ErrInvalidState.
func (r *mysqlTrackRepository) ClaimTrack(ctx context.Context, id int64) error {
	query := `UPDATE tracks SET moderation_status = ?, updated_at = ?
		WHERE id = ? AND moderation_status = ? AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query,
		string(model.StatusChecking), time.Now(), id, string(model.StatusPendingCheck))
	if err != nil {
		return fmt.Errorf("failed to claim track %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for claim of track %d: %w", id, err)
	}
	if affected == 0 {
		return model.ErrInvalidState
	}
	return nil
}

// ClaimPendingTracks claims up to limit pending rows for one worker run.
// Rows claimed by a concurrent run are silently skipped.
func (r *mysqlTrackRepository) ClaimPendingTracks(ctx context.Context, limit int) ([]*model.Track, error) {
	query := `SELECT id FROM tracks
		WHERE moderation_status = ? AND deleted_at IS NULL
		ORDER BY created_at ASC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, string(model.StatusPendingCheck), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tracks: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pending track id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error during pending track iteration: %w", err)
	}
	rows.Close()

	claimed := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		if err := r.ClaimTrack(ctx, id); err != nil {
			if err == model.ErrInvalidState {
				continue // lost the race to another worker run
			}
			return claimed, err
		}
		track, err := r.GetTrackByID(ctx, id)
		if err != nil {
			return claimed, err
		}
		if track != nil {
			claimed = append(claimed, track)
		}
	}
	return claimed, nil
}

// ReclaimStuckChecking returns rows to pending_check when a claim was never
// completed, so a crashed worker run does not strand them forever.
func (r *mysqlTrackRepository) ReclaimStuckChecking(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `UPDATE tracks SET moderation_status = ?, updated_at = ?
		WHERE moderation_status = ? AND moderation_checked_at IS NULL
		AND updated_at < ? AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query,
		string(model.StatusPendingCheck), time.Now(), string(model.StatusChecking), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stuck checking rows: %w", err)
	}
	return res.RowsAffected()
}

// UpdateModeration applies a validated transition write. The expected
// from-status in the WHERE clause rejects writes racing against another
// actor with ErrInvalidState instead of clobbering their transition.
func (r *mysqlTrackRepository) UpdateModeration(ctx context.Context, id int64, from model.ModerationStatus, upd model.ModerationUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}
	if !model.CanTransition(from, upd.Status) {
		return model.ErrInvalidState
	}

	reasons := upd.FlagReasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal flag reasons: %w", err)
	}

	query := `UPDATE tracks SET moderation_status = ?, moderation_flagged = ?, flag_reasons = ?,
		moderation_confidence = ?, moderation_checked_at = ?, reviewed_by = ?, reviewed_at = ?,
		appeal_text = ?, updated_at = ?
		WHERE id = ? AND moderation_status = ? AND deleted_at IS NULL`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateModeration: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		string(upd.Status), upd.Status.Flagged(), string(reasonsJSON),
		nullFloat(upd.Confidence), nullTime(upd.CheckedAt), nullInt(upd.ReviewedBy), nullTime(upd.ReviewedAt),
		nullString(upd.AppealText), time.Now(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to execute UpdateModeration for track ID %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for UpdateModeration of track %d: %w", id, err)
	}
	if affected == 0 {
		return model.ErrInvalidState
	}
	return nil
}

// GetTracksByStatus retrieves tracks awaiting action in the given statuses,
// oldest first. Used by the reviewer queue.
func (r *mysqlTrackRepository) GetTracksByStatus(ctx context.Context, statuses []model.ModerationStatus, limit int) ([]*model.Track, error) {
	if len(statuses) == 0 {
		return []*model.Track{}, nil
	}

	placeholders := "?"
	args := []interface{}{string(statuses[0])}
	for _, s := range statuses[1:] {
		placeholders += ", ?"
		args = append(args, string(s))
	}
	args = append(args, limit)

	query := `SELECT ` + trackColumns + ` FROM tracks
		WHERE deleted_at IS NULL AND moderation_status IN (` + placeholders + `)
		ORDER BY updated_at ASC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks by status: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// QueueStats computes the operator snapshot of the pipeline, including the
// staleness signals for rows the worker never progressed.
func (r *mysqlTrackRepository) QueueStats(ctx context.Context, staleAfter time.Duration) (*model.ModerationQueueStats, error) {
	stats := &model.ModerationQueueStats{}

	countQuery := `SELECT moderation_status, COUNT(*) FROM tracks
		WHERE deleted_at IS NULL GROUP BY moderation_status`
	rows, err := r.DB.QueryContext(ctx, countQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderation counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan moderation count: %w", err)
		}
		switch model.ModerationStatus(status) {
		case model.StatusPendingCheck:
			stats.PendingCount = count
		case model.StatusChecking:
			stats.CheckingCount = count
		case model.StatusFlagged:
			stats.FlaggedCount = count
		case model.StatusAppealed:
			stats.AppealedCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during moderation count iteration: %w", err)
	}

	cutoff := time.Now().Add(-staleAfter)
	staleQuery := `SELECT moderation_status, COUNT(*),
		COALESCE(MAX(TIMESTAMPDIFF(SECOND, created_at, NOW())), 0)
		FROM tracks
		WHERE deleted_at IS NULL AND moderation_status IN (?, ?) AND created_at < ?
		GROUP BY moderation_status`
	staleRows, err := r.DB.QueryContext(ctx, staleQuery,
		string(model.StatusPendingCheck), string(model.StatusChecking), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale moderation rows: %w", err)
	}
	defer staleRows.Close()

	for staleRows.Next() {
		var status string
		var count int
		var maxAge int64
		if err := staleRows.Scan(&status, &count, &maxAge); err != nil {
			return nil, fmt.Errorf("failed to scan stale moderation row: %w", err)
		}
		switch model.ModerationStatus(status) {
		case model.StatusPendingCheck:
			stats.StalePending = count
			stats.OldestPendingAgeSeconds = maxAge
		case model.StatusChecking:
			stats.StaleChecking = count
			stats.OldestCheckingAgeSeconds = maxAge
		}
	}
	if err := staleRows.Err(); err != nil {
		return nil, fmt.Errorf("error during stale row iteration: %w", err)
	}

	return stats, nil
}

func collectTracks(rows *sql.Rows) ([]*model.Track, error) {
	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during track iteration: %w", err)
	}
	return tracks, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
