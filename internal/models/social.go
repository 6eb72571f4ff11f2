package models

import (
	"encoding/json"
	"time"
)

// Friendship statuses.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
)

// Friendship represents one edge of the friend graph. Only accepted rows
// count toward the friends entity in conditions.
type Friendship struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_friend_pair" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	FriendID  uint      `gorm:"not null;uniqueIndex:idx_friend_pair" json:"friend_id"`
	Friend    User      `gorm:"foreignKey:FriendID" json:"friend,omitempty"`
	Status    string    `gorm:"size:50;not null;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Friendship model.
func (Friendship) TableName() string {
	return "friendships"
}

// Activity feed entry types.
const (
	ActivityUnlockAchievement = "UNLOCK_ACHIEVEMENT"
	ActivityShare             = "SHARE"
	ActivityEncouragement     = "ENCOURAGEMENT"
)

// Activity represents one activity-feed entry. Payload carries type-specific
// data, e.g. the unlocked achievement summary.
type Activity struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	User         User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TargetUserID *uint           `gorm:"index" json:"target_user_id"`
	Type         string          `gorm:"size:50;not null;index" json:"type"`
	Payload      json.RawMessage `gorm:"type:jsonb" json:"payload"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Activity model.
func (Activity) TableName() string {
	return "activities"
}
