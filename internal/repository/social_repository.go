package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// SocialRepository handles friend-graph and activity-feed operations.
type SocialRepository struct {
	db *DB
}

// NewSocialRepository creates a new social repository.
func NewSocialRepository(db *DB) *SocialRepository {
	return &SocialRepository{db: db}
}

// CreateFriendship inserts a friendship edge.
func (r *SocialRepository) CreateFriendship(friendship *models.Friendship) error {
	if err := r.db.Create(friendship).Error; err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

// CountAcceptedFriends counts a user's accepted friendships, optionally
// bounded to those created since the given time.
func (r *SocialRepository) CountAcceptedFriends(userID uint, since *time.Time) (int64, error) {
	q := r.db.Model(&models.Friendship{}).
		Where("user_id = ? AND status = ?", userID, models.FriendshipAccepted)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// CountActivities counts a user's activity-feed rows of the given type,
// optionally bounded to those created since the given time.
func (r *SocialRepository) CountActivities(userID uint, activityType string, since *time.Time) (int64, error) {
	q := r.db.Model(&models.Activity{}).
		Where("user_id = ? AND type = ?", userID, activityType)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// PostActivity appends an activity-feed entry.
func (r *SocialRepository) PostActivity(userID uint, targetUserID *uint, activityType string, payload map[string]interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal activity payload: %w", err)
		}
		raw = data
	}
	activity := &models.Activity{
		UserID:       userID,
		TargetUserID: targetUserID,
		Type:         activityType,
		Payload:      raw,
	}
	if err := r.db.Create(activity).Error; err != nil {
		return fmt.Errorf("failed to post activity: %w", err)
	}
	return nil
}

// GetFeed retrieves the most recent activity entries for a user.
func (r *SocialRepository) GetFeed(userID uint, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	var activities []models.Activity
	err := r.db.
		Where("user_id = ? OR target_user_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}
