package achievements

import (
	"context"
	"fmt"
	"time"

	prommetrics "github.com/glucoquest/glucoquest-api/internal/metrics"
	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/internal/repository"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// DefaultRetroactiveBatchSize is the number of users processed per page.
const DefaultRetroactiveBatchSize = 100

// AchievementReader is the catalog access the processor needs.
type AchievementReader interface {
	GetAll() ([]models.Achievement, error)
	GetByID(id uint) (*models.Achievement, error)
	HasUnlocked(userID, achievementID uint) (bool, error)
	CreateUnlock(userID, achievementID uint) (bool, error)
}

// UserWalker paginates the user population and applies the direct XP
// increment used by the backfill path.
type UserWalker interface {
	Count() (int64, error)
	ListPage(afterID uint, limit int) ([]models.User, error)
	IncrementXP(userID uint, amount int) error
}

// ProcessingLogStore persists run progress and status.
type ProcessingLogStore interface {
	Create(log *models.ProcessingLog) error
	Save(log *models.ProcessingLog) error
	GetActive(achievementID uint) (*models.ProcessingLog, error)
	Latest(achievementID uint) (*models.ProcessingLog, error)
	PendingAchievements() ([]models.Achievement, error)
}

// NotificationWriter records backfill notifications. The retroactive path
// writes a notification instead of posting to the activity feed.
type NotificationWriter interface {
	Create(notification *models.Notification) error
}

// RunResult summarizes one retroactive run.
type RunResult struct {
	AchievementID  uint   `json:"achievement_id"`
	Code           string `json:"code,omitempty"`
	Status         string `json:"status"`
	TotalUsers     int    `json:"total_users"`
	ProcessedUsers int    `json:"processed_users"`
	AwardedCount   int    `json:"awarded_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// RunStatus reports the most recent run state for one achievement. When an
// achievement has never been processed, Status is a synthetic "pending" with
// zero counters.
type RunStatus struct {
	AchievementID  uint       `json:"achievement_id"`
	Code           string     `json:"code"`
	Status         string     `json:"status"`
	TotalUsers     int        `json:"total_users"`
	ProcessedUsers int        `json:"processed_users"`
	AwardedCount   int        `json:"awarded_count"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Processor backfills achievement unlocks across the whole user population.
// It walks users in ascending-id pages, evaluates the achievement's condition
// for each, and persists progress counters after every batch so a status
// query sees near-real-time progress.
//
// Resuming a crashed run reuses the non-terminal log row's counters but
// re-scans from the first user: the iteration cursor is not persisted, so
// counters can double-count across a restart. A failed run is terminal; the
// next attempt starts a fresh log row.
type Processor struct {
	achievements  AchievementReader
	users         UserWalker
	logs          ProcessingLogStore
	notifications NotificationWriter
	evaluator     ConditionEvaluator
	log           *logger.Logger
	batchSize     int
}

// NewProcessor creates a retroactive processor. batchSize <= 0 falls back to
// the default of 100.
func NewProcessor(
	achievements AchievementReader,
	users UserWalker,
	logs ProcessingLogStore,
	notifications NotificationWriter,
	evaluator ConditionEvaluator,
	log *logger.Logger,
	batchSize int,
) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultRetroactiveBatchSize
	}
	return &Processor{
		achievements:  achievements,
		users:         users,
		logs:          logs,
		notifications: notifications,
		evaluator:     evaluator,
		log:           log,
		batchSize:     batchSize,
	}
}

// ProcessAchievement runs one retroactive backfill for the achievement. It
// never returns an error for a failed run: failures are captured in the log
// row and in the returned result so sibling achievements keep processing.
func (p *Processor) ProcessAchievement(ctx context.Context, achievementID uint) (*RunResult, error) {
	achievement, err := p.achievements.GetByID(achievementID)
	if err != nil {
		if repository.IsNotFound(err) {
			return &RunResult{
				AchievementID: achievementID,
				Status:        models.ProcessingStatusFailed,
				ErrorMessage:  "Achievement not found",
			}, nil
		}
		return nil, fmt.Errorf("failed to load achievement %d: %w", achievementID, err)
	}

	run, err := p.logs.GetActive(achievementID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active run: %w", err)
	}
	if run == nil {
		total, err := p.users.Count()
		if err != nil {
			return nil, fmt.Errorf("failed to count users: %w", err)
		}
		run = &models.ProcessingLog{
			AchievementID: achievementID,
			Status:        models.ProcessingStatusPending,
			TotalUsers:    int(total),
			StartedAt:     time.Now(),
		}
		if err := p.logs.Create(run); err != nil {
			return nil, err
		}
	} else {
		p.log.Info().
			Uint("achievement_id", achievementID).
			Int("processed_users", run.ProcessedUsers).
			Msg("Resuming non-terminal retroactive run")
	}

	run.Status = models.ProcessingStatusProcessing
	if err := p.logs.Save(run); err != nil {
		return nil, err
	}

	start := time.Now()
	p.log.Info().
		Uint("achievement_id", achievementID).
		Str("code", achievement.Code).
		Int("total_users", run.TotalUsers).
		Msg("Starting retroactive processing")

	if err := p.walkUsers(ctx, achievement, run); err != nil {
		now := time.Now()
		run.Status = models.ProcessingStatusFailed
		run.ErrorMessage = err.Error()
		run.CompletedAt = &now
		if saveErr := p.logs.Save(run); saveErr != nil {
			p.log.Error().Err(saveErr).Msg("Failed to persist failed run status")
		}
		prommetrics.RecordRetroactiveRun(models.ProcessingStatusFailed)
		p.log.Error().
			Err(err).
			Str("code", achievement.Code).
			Int("processed_users", run.ProcessedUsers).
			Msg("Retroactive processing failed")
		return p.runResult(achievement, run), nil
	}

	now := time.Now()
	run.Status = models.ProcessingStatusCompleted
	run.CompletedAt = &now
	if err := p.logs.Save(run); err != nil {
		return nil, err
	}

	prommetrics.RecordRetroactiveRun(models.ProcessingStatusCompleted)
	prommetrics.ObserveRetroactiveRunDuration(time.Since(start).Seconds())
	p.log.Info().
		Str("code", achievement.Code).
		Int("processed_users", run.ProcessedUsers).
		Int("awarded_count", run.AwardedCount).
		Dur("duration", time.Since(start)).
		Msg("Retroactive processing complete")

	return p.runResult(achievement, run), nil
}

// walkUsers pages through the user population, evaluating and awarding. It
// stops at the first error; the caller turns that into a terminal failed run.
func (p *Processor) walkUsers(ctx context.Context, achievement *models.Achievement, run *models.ProcessingLog) error {
	var afterID uint
	for {
		batch, err := p.users.ListPage(afterID, p.batchSize)
		if err != nil {
			return fmt.Errorf("failed to list users after id %d: %w", afterID, err)
		}
		if len(batch) == 0 {
			return nil
		}

		for i := range batch {
			user := &batch[i]

			unlocked, err := p.achievements.HasUnlocked(user.ID, achievement.ID)
			if err != nil {
				return fmt.Errorf("failed to check unlock for user %d: %w", user.ID, err)
			}
			if unlocked {
				run.ProcessedUsers++
				continue
			}

			result, err := p.evaluator.Evaluate(ctx, user.ID, achievement.Condition, nil)
			if err != nil {
				return fmt.Errorf("evaluation failed for user %d: %w", user.ID, err)
			}
			run.ProcessedUsers++

			if !result.Met {
				continue
			}

			created, err := p.achievements.CreateUnlock(user.ID, achievement.ID)
			if err != nil {
				return fmt.Errorf("failed to create unlock for user %d: %w", user.ID, err)
			}
			if !created {
				continue
			}

			if achievement.XPReward > 0 {
				if err := p.users.IncrementXP(user.ID, achievement.XPReward); err != nil {
					return fmt.Errorf("failed to award XP to user %d: %w", user.ID, err)
				}
			}
			if err := p.notifications.Create(&models.Notification{
				UserID:  user.ID,
				Type:    models.NotificationAchievementUnlocked,
				Title:   achievement.Name,
				Message: fmt.Sprintf("You unlocked %s (+%d XP)", achievement.Name, achievement.XPReward),
			}); err != nil {
				return fmt.Errorf("failed to create notification for user %d: %w", user.ID, err)
			}

			prommetrics.RecordAchievementUnlocked(achievement.Code, string(achievement.Category), "retroactive")
			run.AwardedCount++
		}

		afterID = batch[len(batch)-1].ID

		// Persist counters so a concurrent status query sees progress.
		if err := p.logs.Save(run); err != nil {
			return fmt.Errorf("failed to persist run progress: %w", err)
		}
		prommetrics.SetRetroactiveUsersProcessed(achievement.Code, run.ProcessedUsers)
	}
}

// ProcessAllPending runs the backfill for every achievement with no completed
// run, sequentially. One achievement's failure does not abort the rest.
func (p *Processor) ProcessAllPending(ctx context.Context) ([]RunResult, error) {
	pending, err := p.logs.PendingAchievements()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending achievements: %w", err)
	}

	results := make([]RunResult, 0, len(pending))
	for i := range pending {
		result, err := p.ProcessAchievement(ctx, pending[i].ID)
		if err != nil {
			p.log.Error().
				Err(err).
				Str("code", pending[i].Code).
				Msg("Retroactive processing aborted for achievement")
			results = append(results, RunResult{
				AchievementID: pending[i].ID,
				Code:          pending[i].Code,
				Status:        models.ProcessingStatusFailed,
				ErrorMessage:  err.Error(),
			})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// GetAchievementStatus reports the most recent run state for one achievement.
func (p *Processor) GetAchievementStatus(achievementID uint) (*RunStatus, error) {
	achievement, err := p.achievements.GetByID(achievementID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load achievement %d: %w", achievementID, err)
	}

	latest, err := p.logs.Latest(achievementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}

	status := &RunStatus{
		AchievementID: achievementID,
		Code:          achievement.Code,
		Status:        models.ProcessingStatusPending,
	}
	if latest != nil {
		status.Status = latest.Status
		status.TotalUsers = latest.TotalUsers
		status.ProcessedUsers = latest.ProcessedUsers
		status.AwardedCount = latest.AwardedCount
		status.StartedAt = &latest.StartedAt
		status.CompletedAt = latest.CompletedAt
		status.ErrorMessage = latest.ErrorMessage
	}
	return status, nil
}

// GetStatus reports the most recent run state for every achievement in the
// catalog. Never-processed achievements show a synthetic pending status with
// zero counters.
func (p *Processor) GetStatus() ([]RunStatus, error) {
	catalog, err := p.achievements.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	statuses := make([]RunStatus, 0, len(catalog))
	for i := range catalog {
		achievement := &catalog[i]

		latest, err := p.logs.Latest(achievement.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest run for %s: %w", achievement.Code, err)
		}

		status := RunStatus{
			AchievementID: achievement.ID,
			Code:          achievement.Code,
			Status:        models.ProcessingStatusPending,
		}
		if latest != nil {
			status.Status = latest.Status
			status.TotalUsers = latest.TotalUsers
			status.ProcessedUsers = latest.ProcessedUsers
			status.AwardedCount = latest.AwardedCount
			status.StartedAt = &latest.StartedAt
			status.CompletedAt = latest.CompletedAt
			status.ErrorMessage = latest.ErrorMessage
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (p *Processor) runResult(achievement *models.Achievement, run *models.ProcessingLog) *RunResult {
	return &RunResult{
		AchievementID:  achievement.ID,
		Code:           achievement.Code,
		Status:         run.Status,
		TotalUsers:     run.TotalUsers,
		ProcessedUsers: run.ProcessedUsers,
		AwardedCount:   run.AwardedCount,
		ErrorMessage:   run.ErrorMessage,
	}
}
