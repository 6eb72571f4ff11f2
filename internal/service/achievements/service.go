// Package achievements implements the achievement engine: condition
// evaluation, trigger dispatch, unlock orchestration and retroactive
// backfill processing.
package achievements

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	prommetrics "github.com/glucoquest/glucoquest-api/internal/metrics"
	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/internal/repository"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// AchievementStore is the catalog and unlock persistence the orchestrator
// depends on.
type AchievementStore interface {
	GetAll() ([]models.Achievement, error)
	GetByCode(code string) (*models.Achievement, error)
	GetByCategories(categories []models.AchievementCategory) ([]models.Achievement, error)
	HasUnlocked(userID, achievementID uint) (bool, error)
	CreateUnlock(userID, achievementID uint) (bool, error)
	GetUserUnlocks(userID uint) ([]models.UserAchievement, error)
}

// XPAwarder awards XP for an unlock. The gamification service implements it
// and may raise a LEVEL_UP trigger back into this orchestrator through its
// own callback, so the dependency here stays one-directional.
type XPAwarder interface {
	AwardXP(ctx context.Context, userID uint, amount int, reason string) error
}

// ActivityPoster appends unlock announcements to the social activity feed.
type ActivityPoster interface {
	PostActivity(userID uint, targetUserID *uint, activityType string, payload map[string]interface{}) error
}

// Announcer pushes unlock announcements to an external webhook. Best-effort;
// failures are logged, never propagated.
type Announcer interface {
	AnnounceUnlock(ctx context.Context, userID uint, achievement *models.Achievement) error
}

// ConditionEvaluator scores one condition for one user.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, userID uint, condition json.RawMessage, event *TriggerEvent) (EvaluationResult, error)
}

// UnlockResult reports one newly unlocked achievement from a trigger batch.
type UnlockResult struct {
	Code     string `json:"code"`
	Unlocked bool   `json:"unlocked"`
	XPReward int    `json:"xp_reward"`
}

// UnlockOutcome reports the result of a single-achievement check.
type UnlockOutcome struct {
	AlreadyUnlocked bool                `json:"already_unlocked"`
	Achievement     *models.Achievement `json:"achievement"`
	XPReward        int                 `json:"xp_reward,omitempty"`
}

// AchievementStatus pairs a catalog entry with the user's unlock state and
// display progress.
type AchievementStatus struct {
	Achievement models.Achievement `json:"achievement"`
	Unlocked    bool               `json:"unlocked"`
	UnlockedAt  *time.Time         `json:"unlocked_at,omitempty"`
	Progress    *EvaluationResult  `json:"progress,omitempty"`
}

// Service orchestrates achievement unlocks: it resolves candidate
// achievements for a trigger, evaluates their conditions and runs the unlock
// sequence for those that qualify.
type Service struct {
	store     AchievementStore
	evaluator ConditionEvaluator
	xp        XPAwarder
	activity  ActivityPoster
	announcer Announcer
	log       *logger.Logger
}

// NewService creates a new achievement orchestrator. The announcer may be nil
// when no webhook is configured.
func NewService(
	store AchievementStore,
	evaluator ConditionEvaluator,
	xp XPAwarder,
	activity ActivityPoster,
	announcer Announcer,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     store,
		evaluator: evaluator,
		xp:        xp,
		activity:  activity,
		announcer: announcer,
		log:       log,
	}
}

// CheckAchievementsByTrigger re-evaluates every locked achievement in the
// categories mapped to the trigger and unlocks those that qualify. Failures
// are isolated per achievement: one bad unlock is logged and skipped, the
// rest of the batch still runs.
func (s *Service) CheckAchievementsByTrigger(ctx context.Context, userID uint, trigger Trigger, event *TriggerEvent) ([]UnlockResult, error) {
	prommetrics.RecordTriggerCheck(string(trigger))

	categories := CategoriesForTrigger(trigger)
	if len(categories) == 0 {
		return []UnlockResult{}, nil
	}

	candidates, err := s.store.GetByCategories(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements for trigger %s: %w", trigger, err)
	}

	results := []UnlockResult{}
	for i := range candidates {
		achievement := &candidates[i]

		unlocked, err := s.store.HasUnlocked(userID, achievement.ID)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("code", achievement.Code).
				Msg("Failed to check unlock state")
			continue
		}
		if unlocked {
			continue
		}

		result, err := s.evaluator.Evaluate(ctx, userID, achievement.Condition, event)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("code", achievement.Code).
				Msg("Failed to evaluate condition")
			continue
		}
		if !result.Met {
			continue
		}

		created, err := s.unlock(ctx, userID, achievement)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("code", achievement.Code).
				Msg("Failed to unlock achievement")
			continue
		}
		if !created {
			// A concurrent caller unlocked it first.
			continue
		}

		results = append(results, UnlockResult{
			Code:     achievement.Code,
			Unlocked: true,
			XPReward: achievement.XPReward,
		})
	}

	return results, nil
}

// CheckAndUnlockAchievement checks one achievement by code. It is idempotent:
// a pre-existing unlock row short-circuits before evaluation. An unknown code
// is a no-op, not an error.
func (s *Service) CheckAndUnlockAchievement(ctx context.Context, userID uint, code string, event *TriggerEvent) (*UnlockOutcome, error) {
	achievement, err := s.store.GetByCode(code)
	if err != nil {
		if repository.IsNotFound(err) {
			s.log.Warn().Str("code", code).Msg("Unknown achievement code")
			return &UnlockOutcome{}, nil
		}
		return nil, fmt.Errorf("failed to get achievement %s: %w", code, err)
	}

	unlocked, err := s.store.HasUnlocked(userID, achievement.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check unlock state: %w", err)
	}
	if unlocked {
		return &UnlockOutcome{AlreadyUnlocked: true}, nil
	}

	result, err := s.evaluator.Evaluate(ctx, userID, achievement.Condition, event)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate condition for %s: %w", code, err)
	}
	if !result.Met {
		return &UnlockOutcome{}, nil
	}

	created, err := s.unlock(ctx, userID, achievement)
	if err != nil {
		return nil, err
	}
	if !created {
		return &UnlockOutcome{AlreadyUnlocked: true}, nil
	}

	return &UnlockOutcome{
		Achievement: achievement,
		XPReward:    achievement.XPReward,
	}, nil
}

// unlock runs the unlock sequence: create the unlock row, award XP, post the
// activity announcement. The sequence is not transactional; a failure after
// the row exists is surfaced to the caller and logged, the unlock stands.
func (s *Service) unlock(ctx context.Context, userID uint, achievement *models.Achievement) (bool, error) {
	created, err := s.store.CreateUnlock(userID, achievement.ID)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	prommetrics.RecordAchievementUnlocked(achievement.Code, string(achievement.Category), "trigger")
	s.log.Info().
		Uint("user_id", userID).
		Str("code", achievement.Code).
		Int("xp_reward", achievement.XPReward).
		Msg("Achievement unlocked")

	if achievement.XPReward > 0 {
		if err := s.xp.AwardXP(ctx, userID, achievement.XPReward, achievement.Code); err != nil {
			return true, fmt.Errorf("unlock recorded but XP award failed for %s: %w", achievement.Code, err)
		}
	}

	payload := map[string]interface{}{
		"message": fmt.Sprintf("unlocked %s", achievement.Name),
		"achievement": map[string]interface{}{
			"code":     achievement.Code,
			"name":     achievement.Name,
			"tier":     achievement.Tier,
			"xpReward": achievement.XPReward,
		},
	}
	if err := s.activity.PostActivity(userID, nil, models.ActivityUnlockAchievement, payload); err != nil {
		return true, fmt.Errorf("unlock recorded but activity post failed for %s: %w", achievement.Code, err)
	}

	if s.announcer != nil {
		if err := s.announcer.AnnounceUnlock(ctx, userID, achievement); err != nil {
			s.log.Warn().
				Err(err).
				Str("code", achievement.Code).
				Msg("Unlock webhook announcement failed")
		}
	}

	return true, nil
}

// GetCatalog retrieves all achievement definitions.
func (s *Service) GetCatalog() ([]models.Achievement, error) {
	return s.store.GetAll()
}

// GetUserAchievements lists the full catalog with the user's unlock state and
// display progress. Progress is informational only: an evaluation failure
// leaves the progress fields null rather than failing the listing.
func (s *Service) GetUserAchievements(ctx context.Context, userID uint) ([]AchievementStatus, error) {
	catalog, err := s.store.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement catalog: %w", err)
	}

	unlocks, err := s.store.GetUserUnlocks(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user unlocks: %w", err)
	}
	unlockedAt := make(map[uint]time.Time, len(unlocks))
	for _, u := range unlocks {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	statuses := make([]AchievementStatus, 0, len(catalog))
	for i := range catalog {
		achievement := catalog[i]
		status := AchievementStatus{Achievement: achievement}

		if at, ok := unlockedAt[achievement.ID]; ok {
			status.Unlocked = true
			status.UnlockedAt = &at
			// Unlocked rows still evaluate the condition so the progress
			// fields carry its real target, e.g. 100/100 for a count of 100.
			if result, err := s.evaluator.Evaluate(ctx, userID, achievement.Condition, nil); err == nil && result.Target != nil {
				done := progressResult(true, *result.Target, *result.Target)
				status.Progress = &done
			} else if err != nil {
				s.log.Debug().
					Err(err).
					Str("code", achievement.Code).
					Msg("Progress calculation failed, reporting null progress")
			}
		} else if result, err := s.evaluator.Evaluate(ctx, userID, achievement.Condition, nil); err == nil {
			status.Progress = &result
		} else {
			s.log.Debug().
				Err(err).
				Str("code", achievement.Code).
				Msg("Progress calculation failed, reporting null progress")
		}

		statuses = append(statuses, status)
	}
	return statuses, nil
}
