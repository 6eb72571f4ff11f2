package achievements

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"time"

	prommetrics "github.com/glucoquest/glucoquest-api/internal/metrics"
	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/internal/repository"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// EvaluationResult is the verdict of one condition evaluation. Progress
// fields are optional: conditions without a meaningful progression (event,
// date) report only Met. ProgressPercentage is always within [0,100] and a
// met result reports progress == target at 100%.
type EvaluationResult struct {
	Met                bool `json:"met"`
	Progress           *int `json:"progress,omitempty"`
	Target             *int `json:"target,omitempty"`
	ProgressPercentage *int `json:"progressPercentage,omitempty"`
}

// GlucoseQueries is the glucose-history query surface the evaluator consumes.
type GlucoseQueries interface {
	CountReadings(userID uint, filter repository.ReadingFilter) (int64, error)
	CountDistinctContextsToday(userID uint) (int64, error)
	HasReadingToday(userID uint) (bool, error)
	TimeInRange(userID uint, since time.Time) (total, inRange int64, err error)
	CurrentInRangeRun(userID uint) (int, error)
	AllInRangeToday(userID uint, minReadings int) (bool, error)
	CountPerfectDays(userID uint, since time.Time, minPerDay int) (int, error)
	CountConsecutiveContextDays(userID uint, context string) (int, error)
}

// UserQueries reads user attributes for user_attribute and date conditions.
type UserQueries interface {
	GetByID(id uint) (*models.User, error)
	CountCreatedBefore(createdAt time.Time, id uint) (int64, error)
}

// SocialQueries counts friend and activity entities for count and
// time_window conditions.
type SocialQueries interface {
	CountAcceptedFriends(userID uint, since *time.Time) (int64, error)
	CountActivities(userID uint, activityType string, since *time.Time) (int64, error)
}

// Evaluator decides whether a user satisfies an achievement condition. It is
// stateless: every call re-reads the store's current snapshot. Malformed or
// unknown conditions fail closed (not met, no error); only store failures
// return an error.
type Evaluator struct {
	glucose GlucoseQueries
	users   UserQueries
	social  SocialQueries
	log     *logger.Logger
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(glucose GlucoseQueries, users UserQueries, social SocialQueries, log *logger.Logger) *Evaluator {
	return &Evaluator{
		glucose: glucose,
		users:   users,
		social:  social,
		log:     log,
	}
}

// Evaluate interprets the raw condition for the given user. The event payload
// is only consulted by "event" conditions.
func (e *Evaluator) Evaluate(ctx context.Context, userID uint, raw json.RawMessage, event *TriggerEvent) (EvaluationResult, error) {
	var cond models.Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		e.log.Warn().Err(err).Uint("user_id", userID).Msg("Malformed achievement condition")
		return notMet(), nil
	}

	start := time.Now()
	defer func() {
		prommetrics.ObserveConditionEvaluation(cond.Type, time.Since(start).Seconds())
	}()

	switch cond.Type {
	case models.ConditionCount:
		return e.evaluateCount(userID, &cond)
	case models.ConditionUserAttribute:
		return e.evaluateUserAttribute(userID, &cond)
	case models.ConditionTimeWindow:
		return e.evaluateTimeWindow(userID, &cond)
	case models.ConditionInRange:
		return e.evaluateInRange(userID, &cond)
	case models.ConditionPercentage:
		return e.evaluatePercentage(userID, &cond)
	case models.ConditionDate:
		return e.evaluateDate(userID, &cond)
	case models.ConditionEvent:
		return e.evaluateEvent(&cond, event), nil
	case models.ConditionConsecutive:
		return e.evaluateConsecutive(userID, &cond)
	default:
		e.log.Warn().
			Str("type", cond.Type).
			Uint("user_id", userID).
			Msg("Unknown condition type")
		return notMet(), nil
	}
}

// evaluateCount compares a raw entity count against the threshold.
func (e *Evaluator) evaluateCount(userID uint, cond *models.Condition) (EvaluationResult, error) {
	target, ok := intValue(cond.Value)
	if !ok {
		return notMet(), nil
	}

	count, err := e.countEntity(userID, cond.Entity, cond, nil)
	if err != nil {
		return notMet(), err
	}
	if count < 0 {
		// Unknown entity.
		return notMet(), nil
	}

	met := compare(int(count), cond.Operator, target)
	return progressResult(met, int(count), target), nil
}

// evaluateUserAttribute compares a scalar or boolean user field against the
// threshold. Boolean attributes only support equality.
func (e *Evaluator) evaluateUserAttribute(userID uint, cond *models.Condition) (EvaluationResult, error) {
	user, err := e.users.GetByID(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return notMet(), nil
		}
		return notMet(), err
	}

	switch cond.Attribute {
	case "streak":
		return e.compareNumericAttribute(user.Streak, cond)
	case "level":
		return e.compareNumericAttribute(user.Level, cond)
	case "xp":
		return e.compareNumericAttribute(user.XP, cond)
	case "isPremium":
		want, ok := boolValue(cond.Value)
		if !ok || cond.Operator != "eq" {
			return notMet(), nil
		}
		return boolResult(user.IsPremium == want), nil
	default:
		return notMet(), nil
	}
}

func (e *Evaluator) compareNumericAttribute(value int, cond *models.Condition) (EvaluationResult, error) {
	target, ok := intValue(cond.Value)
	if !ok {
		return notMet(), nil
	}
	met := compare(value, cond.Operator, target)
	return progressResult(met, value, target), nil
}

// evaluateTimeWindow counts entity rows inside a bounded window, or distinct
// contexts within today when uniqueContexts is set.
func (e *Evaluator) evaluateTimeWindow(userID uint, cond *models.Condition) (EvaluationResult, error) {
	target, ok := intValue(cond.Value)
	if !ok {
		return notMet(), nil
	}

	if cond.UniqueContexts {
		count, err := e.glucose.CountDistinctContextsToday(userID)
		if err != nil {
			return notMet(), err
		}
		met := compare(int(count), cond.Operator, target)
		return progressResult(met, int(count), target), nil
	}

	since := windowStart(cond.Window)
	count, err := e.countEntity(userID, cond.Entity, cond, &since)
	if err != nil {
		return notMet(), err
	}
	if count < 0 {
		return notMet(), nil
	}

	met := compare(int(count), cond.Operator, target)
	return progressResult(met, int(count), target), nil
}

// evaluateInRange handles the three in-range sub-modes in priority order:
// consecutive, then allInDay, then perfectDays.
func (e *Evaluator) evaluateInRange(userID uint, cond *models.Condition) (EvaluationResult, error) {
	switch {
	case cond.Consecutive > 0:
		run, err := e.glucose.CurrentInRangeRun(userID)
		if err != nil {
			return notMet(), err
		}
		met := run >= cond.Consecutive
		return progressResult(met, run, cond.Consecutive), nil

	case cond.AllInDay:
		ok, err := e.glucose.AllInRangeToday(userID, cond.MinReadingsPerDay)
		if err != nil {
			return notMet(), err
		}
		return boolResult(ok), nil

	case cond.PerfectDays > 0:
		since := windowStart(cond.Window)
		days, err := e.glucose.CountPerfectDays(userID, since, cond.MinReadingsPerDay)
		if err != nil {
			return notMet(), err
		}
		met := days >= cond.PerfectDays
		return progressResult(met, days, cond.PerfectDays), nil

	default:
		return notMet(), nil
	}
}

// evaluatePercentage computes the time-in-range percentage over a window.
// Below minSamples the condition is not met with zero progress: insufficient
// data is never reported as partial success.
func (e *Evaluator) evaluatePercentage(userID uint, cond *models.Condition) (EvaluationResult, error) {
	if cond.Metric != "time_in_range" {
		return notMet(), nil
	}
	target, ok := intValue(cond.Value)
	if !ok {
		return notMet(), nil
	}

	since := windowStart(cond.Window)
	total, inRange, err := e.glucose.TimeInRange(userID, since)
	if err != nil {
		return notMet(), err
	}

	if total < int64(cond.MinSamples) {
		zero := 0
		return EvaluationResult{Met: false, Progress: &zero, Target: &target, ProgressPercentage: &zero}, nil
	}

	pct := int(math.Round(float64(inRange) / float64(total) * 100))
	met := compare(pct, cond.Operator, target)
	return progressResult(met, pct, target), nil
}

// evaluateDate handles calendar and cohort-position checks.
func (e *Evaluator) evaluateDate(userID uint, cond *models.Condition) (EvaluationResult, error) {
	switch cond.Check {
	case "month_day":
		want, ok := stringValue(cond.Value)
		if !ok {
			return notMet(), nil
		}
		if time.Now().Local().Format("01-02") != want {
			return notMet(), nil
		}
		// A date-only match is not enough; the user must have logged today.
		logged, err := e.glucose.HasReadingToday(userID)
		if err != nil {
			return notMet(), err
		}
		return boolResult(logged), nil

	case "before":
		want, ok := stringValue(cond.Value)
		if !ok {
			return notMet(), nil
		}
		cutoff, err := parseDate(want)
		if err != nil {
			return notMet(), nil
		}
		user, err := e.users.GetByID(userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return notMet(), nil
			}
			return notMet(), err
		}
		return boolResult(user.CreatedAt.Before(cutoff)), nil

	case "user_number":
		maxPosition, ok := intValue(cond.Value)
		if !ok {
			return notMet(), nil
		}
		user, err := e.users.GetByID(userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return notMet(), nil
			}
			return notMet(), err
		}
		earlier, err := e.users.CountCreatedBefore(user.CreatedAt, user.ID)
		if err != nil {
			return notMet(), err
		}
		position := int(earlier) + 1
		return boolResult(position <= maxPosition), nil

	default:
		return notMet(), nil
	}
}

// evaluateEvent matches the condition against the inbound event payload. A
// missing payload or any mismatched requiresData key yields not met with no
// partial credit.
func (e *Evaluator) evaluateEvent(cond *models.Condition, event *TriggerEvent) EvaluationResult {
	if event == nil || event.Name != cond.EventName {
		return notMet()
	}
	for key, want := range cond.RequiresData {
		got, ok := event.Data[key]
		if !ok || !equalValues(got, want) {
			return notMet()
		}
	}
	return boolResult(true)
}

// evaluateConsecutive compares either a context-scoped consecutive-day count
// or the user's stored streak against the day target.
func (e *Evaluator) evaluateConsecutive(userID uint, cond *models.Condition) (EvaluationResult, error) {
	if cond.Days <= 0 {
		return notMet(), nil
	}

	var days int
	if cond.RequireContext != "" {
		d, err := e.glucose.CountConsecutiveContextDays(userID, cond.RequireContext)
		if err != nil {
			return notMet(), err
		}
		days = d
	} else {
		user, err := e.users.GetByID(userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return notMet(), nil
			}
			return notMet(), err
		}
		days = user.Streak
	}

	met := days >= cond.Days
	return progressResult(met, days, cond.Days), nil
}

// countEntity resolves an entity count. Returns -1 for an unknown entity.
func (e *Evaluator) countEntity(userID uint, entity string, cond *models.Condition, since *time.Time) (int64, error) {
	switch entity {
	case models.EntityGlucoseReadings:
		return e.glucose.CountReadings(userID, repository.ReadingFilter{
			Context: cond.Context,
			InRange: cond.InRange,
			Since:   since,
		})
	case models.EntityFriends:
		return e.social.CountAcceptedFriends(userID, since)
	case models.EntityShares:
		return e.social.CountActivities(userID, models.ActivityShare, since)
	case models.EntityEncouragements:
		return e.social.CountActivities(userID, models.ActivityEncouragement, since)
	default:
		return -1, nil
	}
}

// compare applies the shared comparator. Unknown operators are false.
func compare(value int, operator string, target int) bool {
	switch operator {
	case "eq":
		return value == target
	case "gte":
		return value >= target
	case "gt":
		return value > target
	case "lte":
		return value <= target
	case "lt":
		return value < target
	default:
		return false
	}
}

// windowStart calculates the start time of a window relative to now. Windows
// are wall-clock relative rather than calendar-aligned: "week" is a rolling 7
// days, not Monday-start. "day" is local midnight today and "all" is the
// epoch.
func windowStart(window string) time.Time {
	now := time.Now()
	switch window {
	case "day":
		local := now.Local()
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	default: // "all" and anything unrecognized
		return time.Unix(0, 0)
	}
}

// progressResult builds a result with clamped percentage. A met result
// reports progress == target at exactly 100%.
func progressResult(met bool, progress, target int) EvaluationResult {
	pct := 0
	if target > 0 {
		pct = int(math.Round(float64(progress) / float64(target) * 100))
	}
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	if met {
		progress = target
		pct = 100
	}
	return EvaluationResult{
		Met:                met,
		Progress:           &progress,
		Target:             &target,
		ProgressPercentage: &pct,
	}
}

// boolResult reports an all-or-nothing condition as 0/1 progress.
func boolResult(met bool) EvaluationResult {
	return progressResult(met, boolToInt(met), 1)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notMet() EvaluationResult {
	return EvaluationResult{Met: false}
}

// intValue extracts a numeric threshold from a condition value. JSON numbers
// decode as float64.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func stringValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func boolValue(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// parseDate accepts a bare date or a full RFC3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// equalValues compares payload values loosely: JSON re-decoding turns all
// numbers into float64, so numeric values compare by magnitude.
func equalValues(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
