package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// ProcessingRepository handles retroactive processing log operations.
type ProcessingRepository struct {
	db *DB
}

// NewProcessingRepository creates a new processing log repository.
func NewProcessingRepository(db *DB) *ProcessingRepository {
	return &ProcessingRepository{db: db}
}

// Create inserts a new processing log row.
func (r *ProcessingRepository) Create(log *models.ProcessingLog) error {
	if err := r.db.Create(log).Error; err != nil {
		return fmt.Errorf("failed to create processing log: %w", err)
	}
	return nil
}

// Save persists counter and status changes to a log row.
func (r *ProcessingRepository) Save(log *models.ProcessingLog) error {
	if err := r.db.Save(log).Error; err != nil {
		return fmt.Errorf("failed to save processing log %d: %w", log.ID, err)
	}
	return nil
}

// GetActive returns the non-terminal (pending or processing) log row for an
// achievement, or nil when every run is closed. The non-terminal row acts as
// the resumable cursor for a restarted run.
func (r *ProcessingRepository) GetActive(achievementID uint) (*models.ProcessingLog, error) {
	var log models.ProcessingLog
	err := r.db.
		Where("achievement_id = ? AND status IN ?", achievementID,
			[]string{models.ProcessingStatusPending, models.ProcessingStatusProcessing}).
		Order("started_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// Latest returns the most recent log row for an achievement, or nil when the
// achievement has never been processed.
func (r *ProcessingRepository) Latest(achievementID uint) (*models.ProcessingLog, error) {
	var log models.ProcessingLog
	err := r.db.
		Where("achievement_id = ?", achievementID).
		Order("started_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// HasCompletedRun reports whether the achievement has at least one completed run.
func (r *ProcessingRepository) HasCompletedRun(achievementID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.ProcessingLog{}).
		Where("achievement_id = ? AND status = ?", achievementID, models.ProcessingStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PendingAchievements returns achievements that have no completed run yet.
// These are the candidates for the bulk retroactive sweep.
func (r *ProcessingRepository) PendingAchievements() ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.Model(&models.Achievement{}).
		Where("NOT EXISTS (?)",
			r.db.Model(&models.ProcessingLog{}).
				Select("1").
				Where("achievement_processing_logs.achievement_id = achievements.id").
				Where("achievement_processing_logs.status = ?", models.ProcessingStatusCompleted),
		).
		Order("id ASC").
		Find(&achievements).Error
	return achievements, err
}
