// Package gamification owns XP totals, level derivation and daily streak
// bookkeeping. It raises achievement triggers through an injected callback
// instead of calling the orchestrator directly, keeping the dependency
// between the two services one-directional.
package gamification

import (
	"context"
	"fmt"
	"math"
	"time"

	prommetrics "github.com/glucoquest/glucoquest-api/internal/metrics"
	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/internal/service/achievements"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// UserStore is the user persistence the service depends on.
type UserStore interface {
	GetByID(id uint) (*models.User, error)
	Save(user *models.User) error
}

// Leaderboard mirrors XP totals into the ranking store. Optional; a nil
// leaderboard disables mirroring.
type Leaderboard interface {
	SetScore(ctx context.Context, userID uint, xp int) error
}

// TriggerFunc raises an achievement trigger. Wired after construction so the
// orchestrator can depend on this service without a cycle.
type TriggerFunc func(ctx context.Context, userID uint, trigger achievements.Trigger, event *achievements.TriggerEvent)

// A streak this long or longer counts as meaningful: breaking and re-starting
// it raises STREAK_RECOVERED instead of a plain STREAK_UPDATED.
const recoverableStreak = 3

// Service implements XP awarding and streak bookkeeping.
type Service struct {
	users        UserStore
	leaderboard  Leaderboard
	raiseTrigger TriggerFunc
	log          *logger.Logger
}

// NewService creates a gamification service. leaderboard may be nil.
func NewService(users UserStore, leaderboard Leaderboard, log *logger.Logger) *Service {
	return &Service{
		users:       users,
		leaderboard: leaderboard,
		log:         log,
	}
}

// SetTriggerHandler wires the achievement trigger callback. Must be called
// before the service handles traffic; a nil handler silently drops triggers.
func (s *Service) SetTriggerHandler(fn TriggerFunc) {
	s.raiseTrigger = fn
}

// LevelForXP derives the level for an XP total. The curve is quadratic:
// level n requires 100*(n-1)^2 XP, so levels come fast early and slow later.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	return 1 + int(math.Floor(math.Sqrt(float64(xp)/100)))
}

// XPForLevel returns the XP total required to reach the given level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return 100 * (level - 1) * (level - 1)
}

// AwardXP adds XP to the user, recomputes their level and raises a LEVEL_UP
// trigger on promotion.
func (s *Service) AwardXP(ctx context.Context, userID uint, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	previousLevel := user.Level
	user.XP += amount
	user.Level = LevelForXP(user.XP)
	if err := s.users.Save(user); err != nil {
		return fmt.Errorf("failed to save user %d: %w", userID, err)
	}

	prommetrics.RecordXPAwarded(reason, amount)
	s.log.Info().
		Uint("user_id", userID).
		Int("amount", amount).
		Int("xp", user.XP).
		Str("reason", reason).
		Msg("XP awarded")

	if s.leaderboard != nil {
		if err := s.leaderboard.SetScore(ctx, userID, user.XP); err != nil {
			s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to update leaderboard score")
		}
	}

	if user.Level > previousLevel {
		prommetrics.RecordLevelUp()
		s.log.Info().
			Uint("user_id", userID).
			Int("level", user.Level).
			Msg("Level up")
		if s.raiseTrigger != nil {
			s.raiseTrigger(ctx, userID, achievements.TriggerLevelUp, &achievements.TriggerEvent{
				Name: "level_up",
				Data: map[string]interface{}{"level": user.Level},
			})
		}
	}

	return nil
}

// RecordGlucoseLog updates the user's daily streak for a reading logged at
// the given time. Same-day repeats leave the streak untouched; a log on the
// day after the last one extends it; a gap resets it to 1 and, when the lost
// streak was meaningful, raises STREAK_RECOVERED instead of STREAK_UPDATED.
func (s *Service) RecordGlucoseLog(ctx context.Context, userID uint, at time.Time) error {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	day := startOfDay(at)
	trigger := achievements.TriggerStreakUpdated

	switch {
	case user.LastLogDate != nil && startOfDay(*user.LastLogDate).Equal(day):
		// Already logged today; streak unchanged, nothing to raise.
		return nil
	case user.LastLogDate != nil && startOfDay(*user.LastLogDate).Equal(day.AddDate(0, 0, -1)):
		user.Streak++
	default:
		if user.Streak >= recoverableStreak {
			trigger = achievements.TriggerStreakRecovered
		}
		user.Streak = 1
	}

	if user.Streak > user.LongestStreak {
		user.LongestStreak = user.Streak
	}
	user.LastLogDate = &day
	if err := s.users.Save(user); err != nil {
		return fmt.Errorf("failed to save user %d: %w", userID, err)
	}

	s.log.Debug().
		Uint("user_id", userID).
		Int("streak", user.Streak).
		Msg("Streak updated")

	if s.raiseTrigger != nil {
		s.raiseTrigger(ctx, userID, trigger, &achievements.TriggerEvent{
			Name: "streak_updated",
			Data: map[string]interface{}{"streak": user.Streak},
		})
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
