// GlucoQuest API server. Wires the achievement engine, gamification services
// and HTTP surface together and runs until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	apiachievements "github.com/glucoquest/glucoquest-api/internal/api/achievements"
	"github.com/glucoquest/glucoquest-api/internal/config"
	"github.com/glucoquest/glucoquest-api/internal/repository"
	"github.com/glucoquest/glucoquest-api/internal/seed"
	"github.com/glucoquest/glucoquest-api/internal/service/achievements"
	"github.com/glucoquest/glucoquest-api/internal/service/gamification"
	"github.com/glucoquest/glucoquest-api/internal/service/leaderboard"
	"github.com/glucoquest/glucoquest-api/internal/service/scheduler"
	"github.com/glucoquest/glucoquest-api/internal/webhook"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting GlucoQuest API")

	db, err := repository.NewDB(&cfg.Database.Postgres, log.Component("database"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	achievementRepo := repository.NewAchievementRepository(db)
	userRepo := repository.NewUserRepository(db)
	glucoseRepo := repository.NewGlucoseRepositoryWithScanLimit(db, cfg.Achievements.HistoryScanLimit)
	socialRepo := repository.NewSocialRepository(db)
	processingRepo := repository.NewProcessingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Seed the achievement catalog
	if cfg.Achievements.CatalogPath != "" {
		seeder := seed.NewSeeder(achievementRepo, log.Component("seed"))
		if err := seeder.SeedFromFile(cfg.Achievements.CatalogPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed achievement catalog")
		}
	}

	// Redis-backed leaderboard
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Database.Redis.Host, cfg.Database.Redis.Port),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
		PoolSize: cfg.Database.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis ping failed, leaderboard queries will error until it recovers")
	}
	cancel()
	defer redisClient.Close()
	lb := leaderboard.NewService(redisClient, log.Component("leaderboard"))

	// Services
	evaluator := achievements.NewEvaluator(glucoseRepo, userRepo, socialRepo, log.Component("evaluator"))
	announcer := webhook.NewClient(&cfg.Webhook, log.Component("webhook"))

	gamificationService := gamification.NewService(userRepo, lb, log.Component("gamification"))
	achievementService := achievements.NewService(
		achievementRepo,
		evaluator,
		gamificationService,
		socialRepo,
		announcer,
		log.Component("achievements"),
	)

	// Level-up and streak triggers flow back into the achievement checks.
	gamificationService.SetTriggerHandler(func(ctx context.Context, userID uint, trigger achievements.Trigger, event *achievements.TriggerEvent) {
		if _, err := achievementService.CheckAchievementsByTrigger(ctx, userID, trigger, event); err != nil {
			log.Error().Err(err).Uint("user_id", userID).Str("trigger", string(trigger)).Msg("Trigger check failed")
		}
	})

	processor := achievements.NewProcessor(
		achievementRepo,
		userRepo,
		processingRepo,
		notificationRepo,
		evaluator,
		log.Component("retroactive"),
		cfg.Achievements.RetroactiveBatch,
	)

	// Scheduler for the nightly retroactive sweep
	sched := scheduler.NewService(&cfg.Scheduler, processor, log.Component("scheduler"))
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	// HTTP server
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := apiachievements.NewHandler(
		achievementService,
		processor,
		gamificationService,
		lb,
		glucoseRepo,
		log.Component("api"),
	)
	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
