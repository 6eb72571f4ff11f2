package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// setupProcessingTestDB creates an in-memory SQLite database for testing.
func setupProcessingTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Achievement{},
		&models.ProcessingLog{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

func createProcessingAchievement(t *testing.T, db *DB, code string) *models.Achievement {
	t.Helper()

	achievement := &models.Achievement{Code: code, Name: code, Category: models.CategoryRegistros}
	if err := db.Create(achievement).Error; err != nil {
		t.Fatalf("Failed to create achievement: %v", err)
	}
	return achievement
}

func TestProcessingRepository_Lifecycle(t *testing.T) {
	db := setupProcessingTestDB(t)
	repo := NewProcessingRepository(db)
	achievement := createProcessingAchievement(t, db, "FIRST_LOG")

	run := &models.ProcessingLog{
		AchievementID: achievement.ID,
		Status:        models.ProcessingStatusPending,
		TotalUsers:    100,
		StartedAt:     time.Now(),
	}
	if err := repo.Create(run); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("Expected log ID to be set")
	}

	// A pending run is active
	active, err := repo.GetActive(achievement.ID)
	if err != nil {
		t.Fatalf("GetActive() failed: %v", err)
	}
	if active == nil || active.ID != run.ID {
		t.Fatal("Expected the pending run to be active")
	}

	// Progress and terminal transition
	run.Status = models.ProcessingStatusProcessing
	run.ProcessedUsers = 50
	if err := repo.Save(run); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	active, err = repo.GetActive(achievement.ID)
	if err != nil {
		t.Fatalf("GetActive() failed: %v", err)
	}
	if active == nil || active.ProcessedUsers != 50 {
		t.Fatalf("Expected processing run with saved counters, got %+v", active)
	}

	now := time.Now()
	run.Status = models.ProcessingStatusCompleted
	run.ProcessedUsers = 100
	run.CompletedAt = &now
	if err := repo.Save(run); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// A completed run is no longer active
	active, err = repo.GetActive(achievement.ID)
	if err != nil {
		t.Fatalf("GetActive() failed: %v", err)
	}
	if active != nil {
		t.Errorf("Completed run must not be active, got %+v", active)
	}

	latest, err := repo.Latest(achievement.ID)
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if latest == nil || latest.Status != models.ProcessingStatusCompleted {
		t.Errorf("Expected latest to be the completed run, got %+v", latest)
	}

	done, err := repo.HasCompletedRun(achievement.ID)
	if err != nil {
		t.Fatalf("HasCompletedRun() failed: %v", err)
	}
	if !done {
		t.Error("Expected a completed run")
	}
}

func TestProcessingRepository_GetActiveNone(t *testing.T) {
	db := setupProcessingTestDB(t)
	repo := NewProcessingRepository(db)
	achievement := createProcessingAchievement(t, db, "FIRST_LOG")

	active, err := repo.GetActive(achievement.ID)
	if err != nil {
		t.Fatalf("GetActive() failed: %v", err)
	}
	if active != nil {
		t.Errorf("Expected no active run, got %+v", active)
	}

	latest, err := repo.Latest(achievement.ID)
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected no latest run, got %+v", latest)
	}
}

func TestProcessingRepository_FailedRunIsTerminal(t *testing.T) {
	db := setupProcessingTestDB(t)
	repo := NewProcessingRepository(db)
	achievement := createProcessingAchievement(t, db, "FIRST_LOG")

	now := time.Now()
	run := &models.ProcessingLog{
		AchievementID: achievement.ID,
		Status:        models.ProcessingStatusFailed,
		ErrorMessage:  "store unavailable",
		StartedAt:     now.Add(-time.Hour),
		CompletedAt:   &now,
	}
	if err := repo.Create(run); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// Failed runs are never resumed
	active, err := repo.GetActive(achievement.ID)
	if err != nil {
		t.Fatalf("GetActive() failed: %v", err)
	}
	if active != nil {
		t.Errorf("Failed run must not be active, got %+v", active)
	}
}

func TestProcessingRepository_PendingAchievements(t *testing.T) {
	db := setupProcessingTestDB(t)
	repo := NewProcessingRepository(db)

	done := createProcessingAchievement(t, db, "DONE")
	failed := createProcessingAchievement(t, db, "FAILED")
	fresh := createProcessingAchievement(t, db, "FRESH")

	now := time.Now()
	completedRun := &models.ProcessingLog{
		AchievementID: done.ID,
		Status:        models.ProcessingStatusCompleted,
		StartedAt:     now.Add(-time.Hour),
		CompletedAt:   &now,
	}
	if err := repo.Create(completedRun); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	failedRun := &models.ProcessingLog{
		AchievementID: failed.ID,
		Status:        models.ProcessingStatusFailed,
		StartedAt:     now.Add(-time.Hour),
		CompletedAt:   &now,
	}
	if err := repo.Create(failedRun); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	pending, err := repo.PendingAchievements()
	if err != nil {
		t.Fatalf("PendingAchievements() failed: %v", err)
	}

	codes := make(map[string]bool, len(pending))
	for _, a := range pending {
		codes[a.Code] = true
	}
	if codes["DONE"] {
		t.Error("Completed achievement must not be pending")
	}
	if !codes["FAILED"] {
		t.Error("Failed achievement stays pending for the next sweep")
	}
	if !codes[fresh.Code] {
		t.Error("Never-processed achievement must be pending")
	}
}
