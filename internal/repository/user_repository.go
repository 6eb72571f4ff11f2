package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// Save persists changes to a user.
func (r *UserRepository) Save(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %d: %w", user.ID, err)
	}
	return nil
}

// Count returns the total number of users.
func (r *UserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// ListPage returns users with id greater than afterID in ascending id order,
// limited to limit rows. The retroactive processor walks the full population
// with this cursor.
func (r *UserRepository) ListPage(afterID uint, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// CountCreatedBefore counts users created strictly before the given user.
// Ties on created_at break on id so creation order stays a total order.
func (r *UserRepository) CountCreatedBefore(createdAt time.Time, id uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, id).
		Count(&count).Error
	return count, err
}

// IncrementXP adds amount to the user's XP without going through the
// gamification service. Used only by the retroactive backfill path.
func (r *UserRepository) IncrementXP(userID uint, amount int) error {
	result := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("xp", gorm.Expr("xp + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to increment xp for user %d: %w", userID, result.Error)
	}
	return nil
}
