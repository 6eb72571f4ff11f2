package repository

import (
	"fmt"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// NotificationRepository handles in-app notification records.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(notification *models.Notification) error {
	if err := r.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListUnread retrieves a user's unread notifications, newest first.
func (r *NotificationRepository) ListUnread(userID uint) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.
		Where("user_id = ? AND read = ?", userID, false).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

// MarkRead marks a notification as read.
func (r *NotificationRepository) MarkRead(id uint) error {
	return r.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read", true).Error
}
