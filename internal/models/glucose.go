package models

import (
	"time"
)

// Target glucose band in mg/dL. Shared by every in-range check: the in_range
// conditions, the time-in-range percentage and the retroactive queries all
// read these two constants.
const (
	GlucoseRangeMin = 70.0
	GlucoseRangeMax = 180.0
)

// Reading contexts as logged by the client app.
const (
	ContextFasting     = "FASTING"
	ContextPreMeal     = "PRE_MEAL"
	ContextPostMeal    = "POST_MEAL"
	ContextPreExercise = "PRE_EXERCISE"
	ContextBedtime     = "BEDTIME"
	ContextNight       = "NIGHT"
)

// GlucoseReading represents one logged glucose measurement.
type GlucoseReading struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_reading_user_time" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Value     float64   `gorm:"not null" json:"value"` // mg/dL
	Context   string    `gorm:"size:50;index" json:"context"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"index:idx_reading_user_time" json:"created_at"`
}

// TableName specifies the table name for GlucoseReading model.
func (GlucoseReading) TableName() string {
	return "glucose_readings"
}

// InTargetRange reports whether the reading falls inside [70, 180] mg/dL.
func (g *GlucoseReading) InTargetRange() bool {
	return g.Value >= GlucoseRangeMin && g.Value <= GlucoseRangeMax
}
