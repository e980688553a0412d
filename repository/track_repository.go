package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TrackForge/db"
	"TrackForge/logger"
	"TrackForge/model"
)

// TrackRepository defines the interface for track data operations. All
// methods are safe for concurrent callers; conflicting writes to the same id
// are serialized by the database at statement granularity.
type TrackRepository interface {
	Create(ctx context.Context, track *model.AudioTrack) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.AudioTrack, error)
	Update(ctx context.Context, id int64, patch *model.TrackPatch) error
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.AudioTrack, error)
	ClearAll(ctx context.Context) (int64, error)

	// CompareAndSetProcessing atomically flips the track to processing and
	// stores the settings snapshot, iff no generation is in flight. Returns
	// true when this caller won the transition.
	CompareAndSetProcessing(ctx context.Context, id int64, settings model.MixSettings) (bool, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, owner_id, original_path, original_filename, format, bitrate,
	duration_seconds, bpm, musical_key, settings, status, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.AudioTrack, error) {
	track := &model.AudioTrack{}
	err := row.Scan(&track.ID, &track.OwnerID, &track.OriginalPath, &track.OriginalFilename,
		&track.Format, &track.Bitrate, &track.DurationSeconds, &track.BPM, &track.MusicalKey,
		&track.Settings, &track.Status, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// Create adds a new track. The fresh id is unique and never reused.
func (r *mysqlTrackRepository) Create(ctx context.Context, track *model.AudioTrack) (int64, error) {
	query := `INSERT INTO tracks (owner_id, original_path, original_filename, format, bitrate,
		duration_seconds, bpm, musical_key, settings, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if track.Format == "" {
		track.Format = model.MetadataUnknown
	}
	if track.MusicalKey == "" {
		track.MusicalKey = model.MetadataUnknown
	}
	track.Status = model.StatusUploaded

	now := time.Now()
	res, err := r.DB.ExecContext(ctx, query,
		track.OwnerID, track.OriginalPath, track.OriginalFilename, track.Format, track.Bitrate,
		track.DurationSeconds, track.BPM, track.MusicalKey, track.Settings, track.Status, now, now)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to execute Create: %v", model.ErrStoreUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get last insert ID for Create: %v", model.ErrStoreUnavailable, err)
	}
	logger.Info("Track created",
		logger.Int64("trackId", id),
		logger.Int64("ownerId", track.OwnerID),
		logger.String("filename", track.OriginalFilename))
	track.ID = id
	track.CreatedAt = now
	track.UpdatedAt = now
	return id, nil
}

// GetByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetByID(ctx context.Context, id int64) (*model.AudioTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrTrackNotFound
		}
		return nil, fmt.Errorf("%w: failed to scan track by ID %d: %v", model.ErrStoreUnavailable, id, err)
	}
	return track, nil
}

// Update applies a partial patch in a single UPDATE statement. Fields absent
// from the patch are untouched; a failed update leaves the prior row intact.
func (r *mysqlTrackRepository) Update(ctx context.Context, id int64, patch *model.TrackPatch) error {
	if patch == nil || patch.Empty() {
		return nil
	}

	var sets []string
	var args []interface{}

	if patch.Format != nil {
		sets = append(sets, "format = ?")
		args = append(args, *patch.Format)
	}
	if patch.Bitrate != nil {
		sets = append(sets, "bitrate = ?")
		args = append(args, *patch.Bitrate)
	}
	if patch.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = ?")
		args = append(args, *patch.DurationSeconds)
	}
	if patch.BPM != nil {
		sets = append(sets, "bpm = ?")
		args = append(args, *patch.BPM)
	}
	if patch.MusicalKey != nil {
		sets = append(sets, "musical_key = ?")
		args = append(args, *patch.MusicalKey)
	}
	if patch.Settings != nil {
		sets = append(sets, "settings = ?")
		args = append(args, *patch.Settings)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now())
	args = append(args, id)

	query := `UPDATE tracks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to execute Update for track ID %d: %v", model.ErrStoreUnavailable, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to read rows affected for track ID %d: %v", model.ErrStoreUnavailable, id, err)
	}
	if affected == 0 {
		// Either the id is unknown or the patch matched the current values.
		// Distinguish with a lookup so NotFound surfaces correctly.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// ListByOwner retrieves all tracks uploaded by the given owner.
func (r *mysqlTrackRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.AudioTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query tracks for owner ID %d: %v", model.ErrStoreUnavailable, ownerID, err)
	}
	defer rows.Close()

	tracks := make([]*model.AudioTrack, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan track in ListByOwner: %v", model.ErrStoreUnavailable, err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error during rows iteration in ListByOwner: %v", model.ErrStoreUnavailable, err)
	}

	return tracks, nil
}

// ClearAll removes every track and returns the count of deleted rows.
func (r *mysqlTrackRepository) ClearAll(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tracks`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to execute ClearAll: %v", model.ErrStoreUnavailable, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read rows affected for ClearAll: %v", model.ErrStoreUnavailable, err)
	}
	logger.Info("All tracks cleared", logger.Int64("count", count))
	return count, nil
}

// CompareAndSetProcessing performs the submit guard as one statement: the
// status check and the flip to processing cannot interleave with a concurrent
// submit on the same row.
func (r *mysqlTrackRepository) CompareAndSetProcessing(ctx context.Context, id int64, settings model.MixSettings) (bool, error) {
	query := `UPDATE tracks SET status = ?, settings = ?, updated_at = ?
		WHERE id = ? AND status <> ?`
	res, err := r.DB.ExecContext(ctx, query,
		model.StatusProcessing, settings, time.Now(), id, model.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%w: failed to execute CompareAndSetProcessing for track ID %d: %v", model.ErrStoreUnavailable, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: failed to read rows affected for CompareAndSetProcessing: %v", model.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		// Zero rows means either a lost race or a vanished row. Distinguish
		// so an unknown id surfaces as NotFound, not as a busy track.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}
