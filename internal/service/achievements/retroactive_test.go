package achievements

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// GetByID completes the AchievementReader interface for the shared mock store.
func (m *mockAchievementStore) GetByID(id uint) (*models.Achievement, error) {
	if a, ok := m.achievements[id]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// Mock user walker
type mockUserWalker struct {
	users   []models.User
	xp      map[uint]int
	listErr error
}

func newMockUserWalker(count int) *mockUserWalker {
	w := &mockUserWalker{xp: make(map[uint]int)}
	for i := 1; i <= count; i++ {
		w.users = append(w.users, models.User{ID: uint(i)})
	}
	return w
}

func (m *mockUserWalker) Count() (int64, error) {
	return int64(len(m.users)), nil
}

func (m *mockUserWalker) ListPage(afterID uint, limit int) ([]models.User, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var page []models.User
	for _, u := range m.users {
		if u.ID > afterID {
			page = append(page, u)
			if len(page) == limit {
				break
			}
		}
	}
	return page, nil
}

func (m *mockUserWalker) IncrementXP(userID uint, amount int) error {
	m.xp[userID] += amount
	return nil
}

// Mock processing log store
type mockLogStore struct {
	logs    []*models.ProcessingLog
	pending []models.Achievement
	nextID  uint
	saves   int
}

func newMockLogStore() *mockLogStore {
	return &mockLogStore{nextID: 1}
}

func (m *mockLogStore) Create(log *models.ProcessingLog) error {
	log.ID = m.nextID
	m.nextID++
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockLogStore) Save(log *models.ProcessingLog) error {
	m.saves++
	return nil
}

func (m *mockLogStore) GetActive(achievementID uint) (*models.ProcessingLog, error) {
	for _, l := range m.logs {
		if l.AchievementID == achievementID && !l.IsTerminal() {
			return l, nil
		}
	}
	return nil, nil
}

func (m *mockLogStore) Latest(achievementID uint) (*models.ProcessingLog, error) {
	var latest *models.ProcessingLog
	for _, l := range m.logs {
		if l.AchievementID == achievementID {
			latest = l
		}
	}
	return latest, nil
}

func (m *mockLogStore) PendingAchievements() ([]models.Achievement, error) {
	return m.pending, nil
}

// Mock notification writer
type mockNotificationWriter struct {
	notifications []*models.Notification
}

func (m *mockNotificationWriter) Create(n *models.Notification) error {
	m.notifications = append(m.notifications, n)
	return nil
}

// Mock evaluator with a programmable verdict per user and an optional
// failure point.
type mockEvaluator struct {
	metUsers  map[uint]bool
	failUser  uint
	failOnce  bool
	evaluated int
}

func (m *mockEvaluator) Evaluate(ctx context.Context, userID uint, condition json.RawMessage, event *TriggerEvent) (EvaluationResult, error) {
	m.evaluated++
	if m.failUser != 0 && userID == m.failUser {
		if m.failOnce {
			m.failUser = 0
		}
		return notMet(), fmt.Errorf("store unavailable for user %d", userID)
	}
	return boolResult(m.metUsers[userID]), nil
}

func setupProcessor(userCount, batchSize int) (*Processor, *mockAchievementStore, *mockUserWalker, *mockLogStore, *mockNotificationWriter, *mockEvaluator) {
	store := newMockAchievementStore()
	users := newMockUserWalker(userCount)
	logs := newMockLogStore()
	notifications := &mockNotificationWriter{}
	evaluator := &mockEvaluator{metUsers: make(map[uint]bool)}
	log := logger.New("debug", "text", "stdout")

	processor := NewProcessor(store, users, logs, notifications, evaluator, log, batchSize)
	return processor, store, users, logs, notifications, evaluator
}

func TestProcessAchievement_WalksAllBatches(t *testing.T) {
	processor, store, users, logs, notifications, evaluator := setupProcessor(250, 100)
	a := store.add("LOGS_100", models.CategoryRegistros, 300, `{"type":"count","entity":"glucose_readings","operator":"gte","value":100}`)
	evaluator.metUsers[7] = true
	evaluator.metUsers[150] = true
	evaluator.metUsers[250] = true

	result, err := processor.ProcessAchievement(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ProcessAchievement() failed: %v", err)
	}

	if result.Status != models.ProcessingStatusCompleted {
		t.Errorf("Expected completed, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.ProcessedUsers != 250 {
		t.Errorf("Expected 250 processed users, got %d", result.ProcessedUsers)
	}
	if result.TotalUsers != 250 {
		t.Errorf("Expected total 250, got %d", result.TotalUsers)
	}
	if result.AwardedCount != 3 {
		t.Errorf("Expected 3 awards, got %d", result.AwardedCount)
	}
	if len(notifications.notifications) != 3 {
		t.Errorf("Expected 3 notifications, got %d", len(notifications.notifications))
	}
	for _, userID := range []uint{7, 150, 250} {
		if !store.unlocks[userID][a.ID] {
			t.Errorf("Expected unlock for user %d", userID)
		}
		if users.xp[userID] != 300 {
			t.Errorf("Expected 300 XP for user %d, got %d", userID, users.xp[userID])
		}
	}
	// Counters must be persisted per batch: 250 users at batch size 100 is 3
	// pages plus the transition and terminal saves.
	if logs.saves < 3 {
		t.Errorf("Expected at least one save per batch, got %d", logs.saves)
	}
}

func TestProcessAchievement_SkipsAlreadyUnlocked(t *testing.T) {
	processor, store, users, _, _, evaluator := setupProcessor(10, 100)
	a := store.add("FIRST_LOG", models.CategoryRegistros, 50, `{"type":"count","entity":"glucose_readings","operator":"gte","value":1}`)
	store.unlocks[3] = map[uint]bool{a.ID: true}
	evaluator.metUsers[3] = true
	evaluator.metUsers[4] = true

	result, err := processor.ProcessAchievement(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ProcessAchievement() failed: %v", err)
	}

	if result.ProcessedUsers != 10 {
		t.Errorf("Skipped users still count as processed, got %d", result.ProcessedUsers)
	}
	if result.AwardedCount != 1 {
		t.Errorf("Expected 1 new award, got %d", result.AwardedCount)
	}
	if users.xp[3] != 0 {
		t.Errorf("Already-unlocked user must not receive XP again, got %d", users.xp[3])
	}
}

func TestProcessAchievement_NotFound(t *testing.T) {
	processor, _, _, _, _, _ := setupProcessor(10, 100)

	result, err := processor.ProcessAchievement(context.Background(), 999)
	if err != nil {
		t.Fatalf("Missing achievement must not be an error: %v", err)
	}
	if result.Status != models.ProcessingStatusFailed {
		t.Errorf("Expected failed status, got %s", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Error("Expected a non-empty error message")
	}
}

func TestProcessAchievement_EvaluatorFailureMidBatch(t *testing.T) {
	processor, store, _, logs, _, evaluator := setupProcessor(250, 100)
	a := store.add("LOGS_100", models.CategoryRegistros, 300, `{"type":"count","entity":"glucose_readings","operator":"gte","value":100}`)
	evaluator.failUser = 130 // second page

	result, err := processor.ProcessAchievement(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("A failed run is reported in the result, not as an error: %v", err)
	}

	if result.Status != models.ProcessingStatusFailed {
		t.Errorf("Expected failed status, got %s", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Error("Expected the evaluator error to be captured in the run")
	}
	if result.ProcessedUsers >= 250 {
		t.Errorf("Run should stop mid-batch, processed %d", result.ProcessedUsers)
	}

	latest, _ := logs.Latest(a.ID)
	if latest == nil || latest.Status != models.ProcessingStatusFailed {
		t.Fatal("Expected the log row to be terminal failed")
	}
	if latest.CompletedAt == nil {
		t.Error("A terminal run must carry a completion timestamp")
	}
}

func TestProcessAchievement_ResumesActiveRun(t *testing.T) {
	processor, store, _, logs, _, _ := setupProcessor(0, 100)
	a := store.add("FIRST_LOG", models.CategoryRegistros, 50, `{"type":"count","entity":"glucose_readings","operator":"gte","value":1}`)

	// A crashed run left behind a non-terminal row with partial counters.
	stale := &models.ProcessingLog{
		AchievementID:  a.ID,
		Status:         models.ProcessingStatusProcessing,
		TotalUsers:     5,
		ProcessedUsers: 5,
		StartedAt:      time.Now().Add(-time.Hour),
	}
	if err := logs.Create(stale); err != nil {
		t.Fatalf("Failed to seed stale run: %v", err)
	}

	result, err := processor.ProcessAchievement(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ProcessAchievement() failed: %v", err)
	}

	if result.Status != models.ProcessingStatusCompleted {
		t.Errorf("Expected completed, got %s", result.Status)
	}
	if result.ProcessedUsers != 5 {
		t.Errorf("Resume must reuse the run's counters, got %d", result.ProcessedUsers)
	}
	if len(logs.logs) != 1 {
		t.Errorf("Resume must not create a second log row, got %d", len(logs.logs))
	}
}

func TestProcessAllPending_FailuresDoNotAbortSiblings(t *testing.T) {
	processor, store, _, logs, _, evaluator := setupProcessor(10, 100)
	broken := store.add("BROKEN", models.CategoryRegistros, 10, `{"type":"count","entity":"glucose_readings","operator":"gte","value":1}`)
	healthy := store.add("FIRST_LOG", models.CategoryRegistros, 50, `{"type":"count","entity":"glucose_readings","operator":"gte","value":1}`)
	logs.pending = []models.Achievement{*broken, *healthy}
	// Fail the first achievement's very first evaluation, then recover.
	evaluator.failUser = 1
	evaluator.failOnce = true

	results, err := processor.ProcessAllPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPending() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Status != models.ProcessingStatusFailed {
		t.Errorf("Expected first run to fail, got %s", results[0].Status)
	}
	if results[1].Status != models.ProcessingStatusCompleted {
		t.Errorf("Second run must still complete, got %s (%s)", results[1].Status, results[1].ErrorMessage)
	}
}

func TestGetAchievementStatus_SyntheticPending(t *testing.T) {
	processor, store, _, _, _, _ := setupProcessor(10, 100)
	a := store.add("FIRST_LOG", models.CategoryRegistros, 50, `{"type":"count","entity":"glucose_readings","operator":"gte","value":1}`)

	status, err := processor.GetAchievementStatus(a.ID)
	if err != nil {
		t.Fatalf("GetAchievementStatus() failed: %v", err)
	}
	if status.Status != models.ProcessingStatusPending {
		t.Errorf("Never-processed achievement should report pending, got %s", status.Status)
	}
	if status.ProcessedUsers != 0 || status.StartedAt != nil {
		t.Errorf("Synthetic pending should carry zero counters, got %+v", status)
	}
}

func TestGetStatus_CoversWholeCatalog(t *testing.T) {
	processor, store, _, _, _, evaluator := setupProcessor(10, 100)
	done := store.add("FIRST_LOG", models.CategoryRegistros, 50, `{"type":"count","entity":"glucose_readings","operator":"gte","value":1}`)
	store.add("LOGS_100", models.CategoryRegistros, 300, `{"type":"count","entity":"glucose_readings","operator":"gte","value":100}`)
	evaluator.metUsers[2] = true

	if _, err := processor.ProcessAchievement(context.Background(), done.ID); err != nil {
		t.Fatalf("ProcessAchievement() failed: %v", err)
	}

	statuses, err := processor.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected a status per catalog entry, got %d", len(statuses))
	}

	byCode := make(map[string]RunStatus, len(statuses))
	for _, s := range statuses {
		byCode[s.Code] = s
	}
	completed, ok := byCode["FIRST_LOG"]
	if !ok {
		t.Fatal("Completed achievement missing from status view")
	}
	if completed.Status != models.ProcessingStatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	if completed.ProcessedUsers != 10 || completed.AwardedCount != 1 {
		t.Errorf("Completed status must carry the run counters, got %+v", completed)
	}
	pending, ok := byCode["LOGS_100"]
	if !ok {
		t.Fatal("Never-processed achievement missing from status view")
	}
	if pending.Status != models.ProcessingStatusPending {
		t.Errorf("Expected synthetic pending, got %s", pending.Status)
	}
	if pending.StartedAt != nil || pending.ProcessedUsers != 0 {
		t.Errorf("Synthetic pending should carry zero counters, got %+v", pending)
	}
}

func TestDefaultBatchSize(t *testing.T) {
	processor, _, _, _, _, _ := setupProcessor(10, 0)
	if processor.batchSize != DefaultRetroactiveBatchSize {
		t.Errorf("Expected default batch size %d, got %d", DefaultRetroactiveBatchSize, processor.batchSize)
	}
}
