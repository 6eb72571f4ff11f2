// Package models defines domain models for the GlucoQuest backend.
package models

import (
	"encoding/json"
	"time"
)

// AchievementCategory groups achievements for trigger dispatch.
type AchievementCategory string

// Achievement categories.
const (
	CategoryRegistros  AchievementCategory = "REGISTROS"
	CategoryRachas     AchievementCategory = "RACHAS"
	CategoryNiveles    AchievementCategory = "NIVELES"
	CategorySocial     AchievementCategory = "SOCIAL"
	CategoryContextos  AchievementCategory = "CONTEXTOS"
	CategoryControl    AchievementCategory = "CONTROL"
	CategoryEspeciales AchievementCategory = "ESPECIALES"
)

// Achievement tiers (display only, no evaluation effect).
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

// Achievement represents a catalog entry that users can unlock.
// Created and updated only through the seed upsert keyed on Code.
type Achievement struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	Code        string              `gorm:"uniqueIndex;not null;size:100" json:"code"`
	Name        string              `gorm:"not null;size:255" json:"name"`
	Description string              `gorm:"type:text" json:"description"`
	XPReward    int                 `gorm:"column:xp_reward;not null;default:0" json:"xp_reward"`
	Tier        string              `gorm:"size:50" json:"tier"`
	Category    AchievementCategory `gorm:"size:50;index" json:"category"`
	Condition   json.RawMessage     `gorm:"type:jsonb" json:"condition"` // tagged condition expression
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// Condition types.
const (
	ConditionCount         = "count"
	ConditionUserAttribute = "user_attribute"
	ConditionTimeWindow    = "time_window"
	ConditionInRange       = "in_range"
	ConditionPercentage    = "percentage"
	ConditionDate          = "date"
	ConditionEvent         = "event"
	ConditionConsecutive   = "consecutive"
)

// Countable entities for count / time_window conditions.
const (
	EntityGlucoseReadings = "glucose_readings"
	EntityFriends         = "friends"
	EntityShares          = "shares"
	EntityEncouragements  = "encouragements"
)

// Condition is the parsed form of Achievement.Condition, a tagged union
// discriminated by Type. Only the fields relevant to the given Type are set;
// Value keeps its raw JSON type (number, string or bool) because the date
// checks compare against strings while everything else is numeric.
type Condition struct {
	Type              string                 `json:"type"`
	Entity            string                 `json:"entity,omitempty"`
	Attribute         string                 `json:"attribute,omitempty"`
	Operator          string                 `json:"operator,omitempty"`
	Value             interface{}            `json:"value,omitempty"`
	Context           string                 `json:"context,omitempty"`
	InRange           *bool                  `json:"inRange,omitempty"`
	Window            string                 `json:"window,omitempty"`
	UniqueContexts    bool                   `json:"uniqueContexts,omitempty"`
	Consecutive       int                    `json:"consecutive,omitempty"`
	AllInDay          bool                   `json:"allInDay,omitempty"`
	PerfectDays       int                    `json:"perfectDays,omitempty"`
	MinReadingsPerDay int                    `json:"minReadingsPerDay,omitempty"`
	Metric            string                 `json:"metric,omitempty"`
	MinSamples        int                    `json:"minSamples,omitempty"`
	Check             string                 `json:"check,omitempty"`
	EventName         string                 `json:"eventName,omitempty"`
	RequiresData      map[string]interface{} `json:"requiresData,omitempty"`
	Days              int                    `json:"days,omitempty"`
	RequireContext    string                 `json:"requireContext,omitempty"`
}

// UserAchievement records one unlocked achievement for one user. The unique
// index on (user_id, achievement_id) is the correctness backstop against
// concurrent double-unlock; the orchestrator's existence check is only a
// fast path.
type UserAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	User          User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
	UnlockedAt    time.Time   `gorm:"not null" json:"unlocked_at"`
}

// TableName specifies the table name for UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}

// Retroactive processing run statuses.
const (
	ProcessingStatusPending    = "pending"
	ProcessingStatusProcessing = "processing"
	ProcessingStatusCompleted  = "completed"
	ProcessingStatusFailed     = "failed"
)

// ProcessingLog tracks one retroactive processing run for an achievement.
// At most one row per achievement is non-terminal (pending or processing) at
// a time; completed and failed rows mark closed runs.
type ProcessingLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	AchievementID  uint       `gorm:"not null;index" json:"achievement_id"`
	Status         string     `gorm:"size:50;not null;index" json:"status"`
	TotalUsers     int        `gorm:"default:0" json:"total_users"`
	ProcessedUsers int        `gorm:"default:0" json:"processed_users"`
	AwardedCount   int        `gorm:"default:0" json:"awarded_count"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
}

// TableName specifies the table name for ProcessingLog model.
func (ProcessingLog) TableName() string {
	return "achievement_processing_logs"
}

// IsTerminal reports whether the run is closed.
func (p *ProcessingLog) IsTerminal() bool {
	return p.Status == ProcessingStatusCompleted || p.Status == ProcessingStatusFailed
}
