package models

import (
	"time"
)

// User represents an application user with their gamification state.
// XP, Level and Streak are owned by the gamification service; the condition
// evaluator only reads them.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Username      string     `gorm:"uniqueIndex;not null;size:100" json:"username"`
	XP            int        `gorm:"column:xp;not null;default:0" json:"xp"`
	Level         int        `gorm:"not null;default:1" json:"level"`
	Streak        int        `gorm:"not null;default:0" json:"streak"`
	LongestStreak int        `gorm:"not null;default:0" json:"longest_streak"`
	IsPremium     bool       `gorm:"not null;default:false" json:"is_premium"`
	LastLogDate   *time.Time `json:"last_log_date"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// Notification represents an in-app notification record. The retroactive
// processor writes one per backfilled unlock instead of posting to the
// activity feed.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type      string    `gorm:"size:50;not null" json:"type"`
	Title     string    `gorm:"size:255" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Notification model.
func (Notification) TableName() string {
	return "notifications"
}

// Notification types.
const (
	NotificationAchievementUnlocked = "ACHIEVEMENT_UNLOCKED"
)
