package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TrackForge/db"
	"TrackForge/model"

	"github.com/go-redis/redis/v8"
)

// StatusEntry is the cached poll response for one track.
type StatusEntry struct {
	Status       model.TrackStatus `json:"status"`
	VersionCount int               `json:"versionCount"`
}

// statusTTL bounds staleness if an invalidation is ever lost.
const statusTTL = 30 * time.Second

// statusKey builds the Redis key for a track's poll response.
func statusKey(trackID int64) string {
	return fmt.Sprintf("trackstatus:%d", trackID)
}

// GetStatus returns the cached poll response, or (nil, nil) on a miss.
func GetStatus(ctx context.Context, trackID int64) (*StatusEntry, error) {
	if db.RedisClient == nil {
		return nil, nil
	}

	val, err := db.RedisClient.Get(ctx, statusKey(trackID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status cache for track %d: %w", trackID, err)
	}

	var entry StatusEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached status for track %d: %w", trackID, err)
	}
	return &entry, nil
}

// SetStatus writes the poll response for a track, replacing whatever is
// cached. Called by the transition owner, which knows the true state.
func SetStatus(ctx context.Context, trackID int64, entry StatusEntry) error {
	if db.RedisClient == nil {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal status for track %d: %w", trackID, err)
	}
	if err := db.RedisClient.Set(ctx, statusKey(trackID), payload, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to write status cache for track %d: %w", trackID, err)
	}
	return nil
}

// FillStatus caches the poll response only when no entry exists. Read-side
// fills use this so a poller that read the store just before a transition
// cannot overwrite the entry the transition wrote.
func FillStatus(ctx context.Context, trackID int64, entry StatusEntry) error {
	if db.RedisClient == nil {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal status for track %d: %w", trackID, err)
	}
	if err := db.RedisClient.SetNX(ctx, statusKey(trackID), payload, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to fill status cache for track %d: %w", trackID, err)
	}
	return nil
}

// InvalidateAll drops every cached status entry. Used by the bulk clear.
func InvalidateAll(ctx context.Context) error {
	if db.RedisClient == nil {
		return nil
	}

	iter := db.RedisClient.Scan(ctx, 0, "trackstatus:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := db.RedisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cached status %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan status cache keys: %w", err)
	}
	return nil
}
