package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"TrackForge/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*mysqlTrackRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &mysqlTrackRepository{DB: mockDB}, mock
}

func trackRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "owner_id", "original_path", "original_filename", "format", "bitrate",
		"duration_seconds", "bpm", "musical_key", "settings", "status", "created_at", "updated_at",
	}).AddRow(
		int64(1), int64(7), "audio/a.mp3", "a.mp3", "unknown", 0,
		0.0, 0, "unknown", `{"introLengthBars":16,"outroLengthBars":16,"preserveVocals":true,"beatDetection":"auto"}`,
		"uploaded", now, now,
	)
}

func TestCompareAndSetWinsTransition(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE tracks SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.CompareAndSetProcessing(context.Background(), 1, model.DefaultMixSettings())
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSetLosesToInFlightGeneration(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Zero rows but the track exists: a generation holds the row.
	mock.ExpectExec("UPDATE tracks SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id").
		WillReturnRows(trackRow())

	won, err := repo.CompareAndSetProcessing(context.Background(), 1, model.DefaultMixSettings())
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSetUnknownTrack(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Zero rows and no such track: NotFound, not a busy track.
	mock.ExpectExec("UPDATE tracks SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	won, err := repo.CompareAndSetProcessing(context.Background(), 42, model.DefaultMixSettings())
	require.ErrorIs(t, err, model.ErrTrackNotFound)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, model.ErrTrackNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateStoreUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO tracks").
		WillReturnError(fmt.Errorf("connection refused"))

	_, err := repo.Create(context.Background(), &model.AudioTrack{OwnerID: 7})
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStoreUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE tracks SET").
		WillReturnError(fmt.Errorf("connection refused"))

	status := model.StatusFailed
	err := repo.Update(context.Background(), 1, &model.TrackPatch{Status: &status})
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppliesStatusPatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE tracks SET status = \\?, updated_at = \\?").
		WithArgs(string(model.StatusCompleted), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status := model.StatusCompleted
	err := repo.Update(context.Background(), 1, &model.TrackPatch{Status: &status})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
