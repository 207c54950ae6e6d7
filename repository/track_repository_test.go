package repository

import (
	"context"
	"testing"
	"time"

	"soundbridge/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trackRowColumns = []string{
	"id", "user_id", "title", "audio_path", "artwork_path", "lyrics", "is_public",
	"moderation_status", "moderation_flagged", "flag_reasons", "moderation_confidence",
	"moderation_checked_at", "reviewed_by", "reviewed_at", "appeal_text", "created_at", "updated_at",
}

func trackRow(id int64, status model.ModerationStatus, reasons string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(trackRowColumns).
		AddRow(id, int64(10), "demo", "audio/10/demo.mp3", nil, nil, true,
			string(status), status.Flagged(), reasons, nil, nil, nil, nil, nil, now, now)
}

func newMockRepo(t *testing.T) (TrackRepository, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewTrackRepositoryWithDB(database), mock
}

func TestGetTrackByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id = \\? AND deleted_at IS NULL").
		WithArgs(int64(1)).
		WillReturnRows(trackRow(1, model.StatusFlagged, `["explicit_lyrics"]`))

	track, err := repo.GetTrackByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, model.StatusFlagged, track.ModerationStatus)
	assert.True(t, track.ModerationFlagged)
	assert.Equal(t, []string{"explicit_lyrics"}, track.FlagReasons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrackByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id = \\?").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(trackRowColumns))

	track, err := repo.GetTrackByID(context.Background(), 404)
	assert.NoError(t, err)
	assert.Nil(t, track)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPublicTracksFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	// The SQL filter carries exactly the canonical visible status set.
	mock.ExpectQuery("SELECT (.+) FROM tracks\\s+WHERE deleted_at IS NULL AND is_public = 1 AND moderation_status IN").
		WithArgs("pending_check", "checking", "clean", "approved", 20, 0).
		WillReturnRows(trackRow(1, model.StatusClean, "[]"))

	tracks, err := repo.GetPublicTracks(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, model.StatusClean, tracks[0].ModerationStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTrack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE tracks SET moderation_status = \\?, updated_at = \\?").
		WithArgs("checking", sqlmock.AnyArg(), int64(1), "pending_check").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ClaimTrack(context.Background(), 1)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTrackLostRace(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Another worker claimed the row first: zero affected rows.
	mock.ExpectExec("UPDATE tracks SET moderation_status = \\?, updated_at = \\?").
		WithArgs("checking", sqlmock.AnyArg(), int64(1), "pending_check").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ClaimTrack(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPendingTracksSkipsLostRaces(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id FROM tracks").
		WithArgs("pending_check", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	// Track 1 is claimed; track 2 was taken by a concurrent run.
	mock.ExpectExec("UPDATE tracks SET moderation_status").
		WithArgs("checking", sqlmock.AnyArg(), int64(1), "pending_check").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id = \\?").
		WithArgs(int64(1)).
		WillReturnRows(trackRow(1, model.StatusChecking, "[]"))
	mock.ExpectExec("UPDATE tracks SET moderation_status").
		WithArgs("checking", sqlmock.AnyArg(), int64(2), "pending_check").
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimPendingTracks(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int64(1), claimed[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateModeration(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	conf := 0.92
	upd := model.ModerationUpdate{
		Status:      model.StatusFlagged,
		Confidence:  &conf,
		FlagReasons: []string{"explicit_lyrics"},
		CheckedAt:   &now,
	}

	mock.ExpectPrepare("UPDATE tracks SET moderation_status = \\?, moderation_flagged = \\?, flag_reasons = \\?").
		ExpectExec().
		WithArgs("flagged", true, `["explicit_lyrics"]`, conf, sqlmock.AnyArg(),
			nil, nil, nil, sqlmock.AnyArg(), int64(1), "checking").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateModeration(context.Background(), 1, model.StatusChecking, upd)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateModerationRejectsInvariantViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	conf := 0.9
	// Flagged without reasons never reaches the database.
	upd := model.ModerationUpdate{Status: model.StatusFlagged, Confidence: &conf}
	err := repo.UpdateModeration(context.Background(), 1, model.StatusChecking, upd)
	assert.ErrorIs(t, err, model.ErrInvariantViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateModerationRejectsIllegalTransition(t *testing.T) {
	repo, mock := newMockRepo(t)

	conf := 0.1
	upd := model.ModerationUpdate{Status: model.StatusClean, Confidence: &conf}
	// clean is only reachable from checking.
	err := repo.UpdateModeration(context.Background(), 1, model.StatusFlagged, upd)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateModerationLostRace(t *testing.T) {
	repo, mock := newMockRepo(t)

	conf := 0.1
	now := time.Now()
	upd := model.ModerationUpdate{Status: model.StatusClean, Confidence: &conf, CheckedAt: &now}

	// The row left checking between read and write: zero affected rows.
	mock.ExpectPrepare("UPDATE tracks SET moderation_status").
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateModeration(context.Background(), 1, model.StatusChecking, upd)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimStuckChecking(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE tracks SET moderation_status = \\?, updated_at = \\?\\s+WHERE moderation_status = \\? AND moderation_checked_at IS NULL").
		WithArgs("pending_check", sqlmock.AnyArg(), "checking", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	reclaimed, err := repo.ReclaimStuckChecking(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reclaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTrack(t *testing.T) {
	repo, mock := newMockRepo(t)

	track := model.NewTrack(10, "demo", "audio/10/demo.mp3", "", "", true)

	mock.ExpectPrepare("INSERT INTO tracks").
		ExpectExec().
		WithArgs(int64(10), "demo", "audio/10/demo.mp3", nil, nil, true,
			"pending_check", false, "[]", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.CreateTrack(context.Background(), track)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTrackValidation(t *testing.T) {
	repo, mock := newMockRepo(t)

	track := model.NewTrack(10, "", "audio/10/demo.mp3", "", "", true)
	_, err := repo.CreateTrack(context.Background(), track)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStats(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT moderation_status, COUNT\\(\\*\\) FROM tracks").
		WillReturnRows(sqlmock.NewRows([]string{"moderation_status", "count"}).
			AddRow("pending_check", 4).
			AddRow("checking", 2).
			AddRow("flagged", 1).
			AddRow("appealed", 3))

	mock.ExpectQuery("SELECT moderation_status, COUNT\\(\\*\\),").
		WithArgs("pending_check", "checking", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"moderation_status", "count", "max_age"}).
			AddRow("pending_check", 1, int64(90000)))

	stats, err := repo.QueueStats(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.PendingCount)
	assert.Equal(t, 2, stats.CheckingCount)
	assert.Equal(t, 1, stats.FlaggedCount)
	assert.Equal(t, 3, stats.AppealedCount)
	assert.Equal(t, 1, stats.StalePending)
	assert.Equal(t, int64(90000), stats.OldestPendingAgeSeconds)
	assert.Equal(t, 0, stats.StaleChecking)
	assert.NoError(t, mock.ExpectationsWereMet())
}
