package repository

import (
	"fmt"
	"time"

	"github.com/glucoquest/glucoquest-api/internal/models"
)

// DefaultHistoryScanLimit bounds how many recent readings the current
// in-range run scan loads.
const DefaultHistoryScanLimit = 1000

// ReadingFilter narrows glucose reading counts.
type ReadingFilter struct {
	Context string     // empty means any context
	InRange *bool      // nil means any value
	Since   *time.Time // nil means all time
}

// GlucoseRepository answers the glucose-history questions the condition
// evaluator asks: counts, time-in-range, current runs and perfect days. All
// in-range checks share the [70,180] mg/dL band from the models package.
type GlucoseRepository struct {
	db        *DB
	scanLimit int
}

// NewGlucoseRepository creates a new glucose repository.
func NewGlucoseRepository(db *DB) *GlucoseRepository {
	return &GlucoseRepository{db: db, scanLimit: DefaultHistoryScanLimit}
}

// NewGlucoseRepositoryWithScanLimit creates a repository with a custom bound
// on history scans.
func NewGlucoseRepositoryWithScanLimit(db *DB, scanLimit int) *GlucoseRepository {
	if scanLimit <= 0 {
		scanLimit = DefaultHistoryScanLimit
	}
	return &GlucoseRepository{db: db, scanLimit: scanLimit}
}

// Create inserts a glucose reading.
func (r *GlucoseRepository) Create(reading *models.GlucoseReading) error {
	if err := r.db.Create(reading).Error; err != nil {
		return fmt.Errorf("failed to create glucose reading: %w", err)
	}
	return nil
}

// CountReadings counts a user's readings matching the filter.
func (r *GlucoseRepository) CountReadings(userID uint, filter ReadingFilter) (int64, error) {
	q := r.db.Model(&models.GlucoseReading{}).Where("user_id = ?", userID)
	if filter.Context != "" {
		q = q.Where("context = ?", filter.Context)
	}
	if filter.InRange != nil {
		if *filter.InRange {
			q = q.Where("value >= ? AND value <= ?", models.GlucoseRangeMin, models.GlucoseRangeMax)
		} else {
			q = q.Where("value < ? OR value > ?", models.GlucoseRangeMin, models.GlucoseRangeMax)
		}
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// CountDistinctContextsToday counts distinct non-empty context values the
// user logged strictly within the current calendar day.
func (r *GlucoseRepository) CountDistinctContextsToday(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND context <> '' AND created_at >= ?", userID, startOfDay(time.Now())).
		Distinct("context").
		Count(&count).Error
	return count, err
}

// HasReadingToday reports whether the user logged at least one reading today.
func (r *GlucoseRepository) HasReadingToday(userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND created_at >= ?", userID, startOfDay(time.Now())).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TimeInRange returns the total and in-range reading counts since the given
// time. The caller decides whether the sample size is large enough to report
// a percentage.
func (r *GlucoseRepository) TimeInRange(userID uint, since time.Time) (total, inRange int64, err error) {
	err = r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&total).Error
	if err != nil {
		return 0, 0, err
	}
	err = r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND created_at >= ? AND value >= ? AND value <= ?",
			userID, since, models.GlucoseRangeMin, models.GlucoseRangeMax).
		Count(&inRange).Error
	if err != nil {
		return 0, 0, err
	}
	return total, inRange, nil
}

// CurrentInRangeRun returns the length of the contiguous in-range run ending
// at the user's most recent reading. If the most recent reading is out of
// range the run is 0. The scan is bounded to the scanLimit most recent
// readings.
func (r *GlucoseRepository) CurrentInRangeRun(userID uint) (int, error) {
	var values []float64
	err := r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(r.scanLimit).
		Pluck("value", &values).Error
	if err != nil {
		return 0, err
	}

	run := 0
	for _, v := range values {
		if v < models.GlucoseRangeMin || v > models.GlucoseRangeMax {
			break
		}
		run++
	}
	return run, nil
}

// AllInRangeToday reports whether today has at least minReadings readings and
// none of them out of range.
func (r *GlucoseRepository) AllInRangeToday(userID uint, minReadings int) (bool, error) {
	if minReadings < 1 {
		minReadings = 1
	}
	since := startOfDay(time.Now())

	var total int64
	err := r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&total).Error
	if err != nil {
		return false, err
	}
	if total < int64(minReadings) {
		return false, nil
	}

	var outOfRange int64
	err = r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND created_at >= ? AND (value < ? OR value > ?)",
			userID, since, models.GlucoseRangeMin, models.GlucoseRangeMax).
		Count(&outOfRange).Error
	if err != nil {
		return false, err
	}
	return outOfRange == 0, nil
}

// CountPerfectDays counts calendar days since the given time with at least
// minPerDay readings where every reading that day is in range. Days are
// grouped in local time in Go, which keeps the query portable across
// PostgreSQL and the SQLite test driver. The fetch is unbounded: the window
// itself limits the row count, and truncating it would drop whole days for
// heavy loggers.
func (r *GlucoseRepository) CountPerfectDays(userID uint, since time.Time, minPerDay int) (int, error) {
	if minPerDay < 1 {
		minPerDay = 1
	}

	var readings []models.GlucoseReading
	err := r.db.
		Select("value", "created_at").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Find(&readings).Error
	if err != nil {
		return 0, err
	}

	type dayStats struct {
		count      int
		allInRange bool
	}
	days := make(map[string]*dayStats)
	for i := range readings {
		key := readings[i].CreatedAt.Local().Format("2006-01-02")
		stats, ok := days[key]
		if !ok {
			stats = &dayStats{allInRange: true}
			days[key] = stats
		}
		stats.count++
		if !readings[i].InTargetRange() {
			stats.allInRange = false
		}
	}

	perfect := 0
	for _, stats := range days {
		if stats.count >= minPerDay && stats.allInRange {
			perfect++
		}
	}
	return perfect, nil
}

// CountConsecutiveContextDays counts the consecutive calendar days, ending
// today or yesterday, on which the user logged at least one reading in the
// given context. A day without such a reading breaks the chain; a chain that
// last ran two days ago counts as 0.
func (r *GlucoseRepository) CountConsecutiveContextDays(userID uint, context string) (int, error) {
	var timestamps []time.Time
	err := r.db.Model(&models.GlucoseReading{}).
		Where("user_id = ? AND context = ?", userID, context).
		Order("created_at DESC").
		Limit(r.scanLimit).
		Pluck("created_at", &timestamps).Error
	if err != nil {
		return 0, err
	}

	daysWithContext := make(map[string]bool, len(timestamps))
	for _, ts := range timestamps {
		daysWithContext[ts.Local().Format("2006-01-02")] = true
	}

	day := startOfDay(time.Now())
	if !daysWithContext[day.Format("2006-01-02")] {
		// Today has no entry yet; the chain may still be alive from yesterday.
		day = day.AddDate(0, 0, -1)
	}

	count := 0
	for daysWithContext[day.Format("2006-01-02")] {
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count, nil
}

// startOfDay returns local midnight of the given time.
func startOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
