package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// setupUserTestDB creates an in-memory SQLite database for testing.
func setupUserTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	user := &models.User{Username: "alice", Email: "alice@example.com", Level: 1}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("Expected user ID to be set")
	}

	got, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("Expected username alice, got %s", got.Username)
	}

	_, err = repo.GetByID(999)
	if err == nil {
		t.Fatal("Expected error for missing user")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected record-not-found, got %v", err)
	}
}

func TestUserRepository_ListPageCursor(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	for i := 1; i <= 7; i++ {
		user := &models.User{
			Username: fmt.Sprintf("user%d", i),
			Email:    fmt.Sprintf("user%d@example.com", i),
			Level:    1,
		}
		if err := repo.Create(user); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	// First page
	page, err := repo.ListPage(0, 3)
	if err != nil {
		t.Fatalf("ListPage() failed: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("Expected 3 users, got %d", len(page))
	}
	if page[0].ID >= page[1].ID || page[1].ID >= page[2].ID {
		t.Error("Expected ascending id order")
	}

	// Walk the remaining pages from the cursor
	seen := len(page)
	cursor := page[len(page)-1].ID
	for {
		page, err = repo.ListPage(cursor, 3)
		if err != nil {
			t.Fatalf("ListPage() failed: %v", err)
		}
		if len(page) == 0 {
			break
		}
		seen += len(page)
		cursor = page[len(page)-1].ID
	}
	if seen != 7 {
		t.Errorf("Expected to walk 7 users, got %d", seen)
	}
}

func TestUserRepository_CountCreatedBefore(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(time.Hour),
		base.Add(time.Hour), // same instant as the previous one
		base.Add(2 * time.Hour),
	}
	users := make([]*models.User, 0, len(times))
	for i, at := range times {
		user := &models.User{
			Username:  fmt.Sprintf("user%d", i+1),
			Email:     fmt.Sprintf("user%d@example.com", i+1),
			Level:     1,
			CreatedAt: at,
		}
		if err := repo.Create(user); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		users = append(users, user)
	}

	tests := []struct {
		name string
		user *models.User
		want int64
	}{
		{"first user", users[0], 0},
		{"second user", users[1], 1},
		{"tied user breaks on id", users[2], 2},
		{"last user", users[3], 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := repo.CountCreatedBefore(tt.user.CreatedAt, tt.user.ID)
			if err != nil {
				t.Fatalf("CountCreatedBefore() failed: %v", err)
			}
			if count != tt.want {
				t.Errorf("Expected %d earlier users, got %d", tt.want, count)
			}
		})
	}
}

func TestUserRepository_IncrementXP(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	user := &models.User{Username: "alice", Email: "alice@example.com", Level: 1, XP: 50}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := repo.IncrementXP(user.ID, 75); err != nil {
		t.Fatalf("IncrementXP() failed: %v", err)
	}
	if err := repo.IncrementXP(user.ID, 25); err != nil {
		t.Fatalf("IncrementXP() failed: %v", err)
	}

	got, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.XP != 150 {
		t.Errorf("Expected 150 XP, got %d", got.XP)
	}
}

func TestUserRepository_Count(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 users, got %d", count)
	}

	for i := 1; i <= 3; i++ {
		user := &models.User{
			Username: fmt.Sprintf("user%d", i),
			Email:    fmt.Sprintf("user%d@example.com", i),
			Level:    1,
		}
		if err := repo.Create(user); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	count, err = repo.Count()
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 users, got %d", count)
	}
}
