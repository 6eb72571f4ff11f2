package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// AchievementRepository handles achievement catalog and unlock operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// UpsertByCode creates the achievement or updates the existing row with the
// same code. Code is the stable catalog key; rows are never deleted during
// normal operation.
func (r *AchievementRepository) UpsertByCode(achievement *models.Achievement) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "xp_reward", "tier", "category", "condition", "updated_at",
		}),
	}).Create(achievement).Error
	if err != nil {
		return fmt.Errorf("failed to upsert achievement %s: %w", achievement.Code, err)
	}
	return nil
}

// GetByID retrieves an achievement by its ID.
func (r *AchievementRepository) GetByID(id uint) (*models.Achievement, error) {
	var achievement models.Achievement
	if err := r.db.First(&achievement, id).Error; err != nil {
		return nil, err
	}
	return &achievement, nil
}

// GetByCode retrieves an achievement by its code.
func (r *AchievementRepository) GetByCode(code string) (*models.Achievement, error) {
	var achievement models.Achievement
	if err := r.db.Where("code = ?", code).First(&achievement).Error; err != nil {
		return nil, err
	}
	return &achievement, nil
}

// GetAll retrieves the full achievement catalog.
func (r *AchievementRepository) GetAll() ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.Order("created_at ASC").Find(&achievements).Error
	return achievements, err
}

// GetByCategories retrieves achievements in any of the given categories.
func (r *AchievementRepository) GetByCategories(categories []models.AchievementCategory) ([]models.Achievement, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	var achievements []models.Achievement
	err := r.db.Where("category IN ?", categories).Order("id ASC").Find(&achievements).Error
	return achievements, err
}

// HasUnlocked checks if a user already has an unlock row for the achievement.
func (r *AchievementRepository) HasUnlocked(userID, achievementID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUnlock inserts the unlock row for (user, achievement). A duplicate-key
// violation means a concurrent caller won the race; that is reported as
// created=false with no error, so callers treat it as an idempotent no-op.
// The unique index is the actual correctness guarantee here.
func (r *AchievementRepository) CreateUnlock(userID, achievementID uint) (bool, error) {
	unlock := &models.UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    time.Now(),
	}
	err := r.db.Create(unlock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create unlock for user %d achievement %d: %w", userID, achievementID, err)
	}
	return true, nil
}

// GetUserUnlocks retrieves all unlock rows for a user with achievements preloaded.
func (r *AchievementRepository) GetUserUnlocks(userID uint) ([]models.UserAchievement, error) {
	var unlocks []models.UserAchievement
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Achievement").
		Order("unlocked_at DESC").
		Find(&unlocks).Error
	return unlocks, err
}

// CountUnlocks returns the number of users holding an achievement.
func (r *AchievementRepository) CountUnlocks(achievementID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserAchievement{}).
		Where("achievement_id = ?", achievementID).
		Count(&count).Error
	return count, err
}

// IsNotFound reports whether err is the record-not-found error. Callers use
// this to map unknown codes to a no-op instead of a hard failure.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
