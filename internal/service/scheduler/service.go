// Package scheduler runs the nightly retroactive achievement sweep.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/glucoquest/glucoquest-api/internal/config"
	prommetrics "github.com/glucoquest/glucoquest-api/internal/metrics"
	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/internal/service/achievements"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// Service schedules the retroactive processing sweep.
type Service struct {
	config    *config.SchedulerConfig
	processor *achievements.Processor
	log       *logger.Logger
	cron      *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, processor *achievements.Processor, log *logger.Logger) *Service {
	return &Service{
		config:    cfg,
		processor: processor,
		log:       log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	cronExpr, err := buildCronExpression(s.config.RetroactiveTime)
	if err != nil {
		return fmt.Errorf("failed to build cron expression: %w", err)
	}

	_, err = s.cron.AddFunc(cronExpr, func() {
		s.runRetroactiveSweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register retroactive sweep job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", cronExpr).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildCronExpression turns "HH:MM" into a daily cron expression.
func buildCronExpression(at string) (string, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", at)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// runRetroactiveSweep executes the nightly sweep over pending achievements.
func (s *Service) runRetroactiveSweep(ctx context.Context) {
	start := time.Now()
	s.log.Info().Msg("Running retroactive achievement sweep")

	results, err := s.processor.ProcessAllPending(ctx)
	prommetrics.RetroactiveLastRunTimestamp.Set(float64(time.Now().Unix()))

	if err != nil {
		s.log.Error().Err(err).Msg("Retroactive sweep failed")
		return
	}

	completed := 0
	failed := 0
	for _, result := range results {
		if result.Status == models.ProcessingStatusCompleted {
			completed++
		} else {
			failed++
		}
	}

	s.log.Info().
		Int("achievements", len(results)).
		Int("completed", completed).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Retroactive sweep finished")
}
