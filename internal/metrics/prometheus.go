// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the achievement engine.
var (
	// Counters.
	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_unlocked_total",
			Help: "Total number of achievements unlocked",
		},
		[]string{"code", "category", "source"},
	)

	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awarded_total",
			Help: "Total XP awarded to users",
		},
		[]string{"reason"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total number of level-up events",
		},
	)

	TriggerChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievement_trigger_checks_total",
			Help: "Total trigger-driven achievement check batches",
		},
		[]string{"trigger"},
	)

	// Retroactive processing metrics.
	RetroactiveRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retroactive_runs_total",
			Help: "Total retroactive processing runs by terminal status",
		},
		[]string{"status"},
	)

	RetroactiveUsersProcessed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retroactive_users_processed",
			Help: "Users processed in the most recent run per achievement",
		},
		[]string{"code"},
	)

	RetroactiveLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "retroactive_last_run_timestamp",
			Help: "Unix timestamp of the last retroactive sweep",
		},
	)

	// Histograms.
	ConditionEvaluationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "condition_evaluation_seconds",
			Help:    "Time taken to evaluate a single achievement condition",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"type"},
	)

	RetroactiveRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retroactive_run_duration_seconds",
			Help:    "Time taken to process one achievement retroactively",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~1024s
		},
	)
)

// RecordAchievementUnlocked records an unlocked achievement. Source is
// "trigger" for event-driven unlocks and "retroactive" for backfills.
func RecordAchievementUnlocked(code, category, source string) {
	AchievementsUnlockedTotal.WithLabelValues(code, category, source).Inc()
}

// RecordXPAwarded records awarded XP.
func RecordXPAwarded(reason string, amount int) {
	XPAwardedTotal.WithLabelValues(reason).Add(float64(amount))
}

// RecordLevelUp records a level-up event.
func RecordLevelUp() {
	LevelUpsTotal.Inc()
}

// RecordTriggerCheck records one trigger-driven check batch.
func RecordTriggerCheck(trigger string) {
	TriggerChecksTotal.WithLabelValues(trigger).Inc()
}

// RecordRetroactiveRun records a terminal retroactive run.
func RecordRetroactiveRun(status string) {
	RetroactiveRunsTotal.WithLabelValues(status).Inc()
}

// SetRetroactiveUsersProcessed sets the processed-user count for an achievement run.
func SetRetroactiveUsersProcessed(code string, count int) {
	RetroactiveUsersProcessed.WithLabelValues(code).Set(float64(count))
}

// ObserveConditionEvaluation records the duration of one condition evaluation.
func ObserveConditionEvaluation(conditionType string, seconds float64) {
	ConditionEvaluationSeconds.WithLabelValues(conditionType).Observe(seconds)
}

// ObserveRetroactiveRunDuration records the duration of one retroactive run.
func ObserveRetroactiveRunDuration(seconds float64) {
	RetroactiveRunDurationSeconds.Observe(seconds)
}
