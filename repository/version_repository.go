package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TrackForge/logger"
	"TrackForge/model"

	"gorm.io/gorm"
)

// VersionRepository owns the append-only, capacity-bounded mix version
// ledger. Indices are 0-based and dense because entries are only ever
// appended; removal happens solely through the whole-store clear.
type VersionRepository interface {
	// Append inserts a new version and returns its index. Fails with
	// model.ErrCapacityExceeded once the track holds model.MaxVersions.
	Append(ctx context.Context, trackID int64, version *model.MixVersion) (int, error)
	List(ctx context.Context, trackID int64) ([]*model.MixVersion, error)
	Get(ctx context.Context, trackID int64, idx int) (*model.MixVersion, error)
	CountByTrack(ctx context.Context, trackID int64) (int, error)
	ClearAll(ctx context.Context) (int64, error)
}

// gormVersionRepository implements VersionRepository with GORM.
type gormVersionRepository struct {
	db *gorm.DB
}

// NewGormVersionRepository creates a GORM-backed version ledger.
func NewGormVersionRepository(db *gorm.DB) VersionRepository {
	return &gormVersionRepository{db: db}
}

// Append counts and inserts inside one transaction so the capacity invariant
// holds even if a second writer ever appears.
func (r *gormVersionRepository) Append(ctx context.Context, trackID int64, version *model.MixVersion) (int, error) {
	var idx int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.MixVersion{}).
			Where("track_id = ?", trackID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("%w: failed to count versions for track %d: %v", model.ErrStoreUnavailable, trackID, err)
		}
		if count >= model.MaxVersions {
			return model.ErrCapacityExceeded
		}

		version.TrackID = trackID
		version.Idx = int(count)
		if version.CreatedAt.IsZero() {
			version.CreatedAt = time.Now()
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("%w: failed to append version for track %d: %v", model.ErrStoreUnavailable, trackID, err)
		}
		idx = version.Idx
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Mix version appended",
		logger.Int64("trackId", trackID),
		logger.Int("index", idx),
		logger.String("artifactPath", version.ArtifactPath))
	return idx, nil
}

// List returns all versions for a track in creation order, oldest first.
func (r *gormVersionRepository) List(ctx context.Context, trackID int64) ([]*model.MixVersion, error) {
	var versions []*model.MixVersion
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("idx ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list versions for track %d: %v", model.ErrStoreUnavailable, trackID, err)
	}
	return versions, nil
}

// Get returns the version at the given index.
func (r *gormVersionRepository) Get(ctx context.Context, trackID int64, idx int) (*model.MixVersion, error) {
	var version model.MixVersion
	err := r.db.WithContext(ctx).
		Where("track_id = ? AND idx = ?", trackID, idx).
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrVersionNotFound
		}
		return nil, fmt.Errorf("%w: failed to get version %d for track %d: %v", model.ErrStoreUnavailable, idx, trackID, err)
	}
	return &version, nil
}

// CountByTrack returns how many versions the track holds.
func (r *gormVersionRepository) CountByTrack(ctx context.Context, trackID int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MixVersion{}).
		Where("track_id = ?", trackID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count versions for track %d: %v", model.ErrStoreUnavailable, trackID, err)
	}
	return int(count), nil
}

// ClearAll removes every ledger entry and returns the count of deleted rows.
func (r *gormVersionRepository) ClearAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.MixVersion{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: failed to clear version ledger: %v", model.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}
