// Package achievements provides REST API handlers for the gamification API.
// It exposes endpoints for the achievement catalog, user progress, trigger
// events, glucose logging, and the retroactive processing admin surface.
package achievements

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glucoquest/glucoquest-api/internal/models"
	achsvc "github.com/glucoquest/glucoquest-api/internal/service/achievements"
	"github.com/glucoquest/glucoquest-api/internal/service/leaderboard"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// AchievementService interface for achievement operations.
type AchievementService interface {
	GetCatalog() ([]models.Achievement, error)
	GetUserAchievements(ctx context.Context, userID uint) ([]achsvc.AchievementStatus, error)
	CheckAchievementsByTrigger(ctx context.Context, userID uint, trigger achsvc.Trigger, event *achsvc.TriggerEvent) ([]achsvc.UnlockResult, error)
}

// RetroactiveService interface for retroactive processing operations.
type RetroactiveService interface {
	ProcessAchievement(ctx context.Context, achievementID uint) (*achsvc.RunResult, error)
	ProcessAllPending(ctx context.Context) ([]achsvc.RunResult, error)
	GetAchievementStatus(achievementID uint) (*achsvc.RunStatus, error)
	GetStatus() ([]achsvc.RunStatus, error)
}

// GamificationService interface for XP and streak operations.
type GamificationService interface {
	RecordGlucoseLog(ctx context.Context, userID uint, at time.Time) error
}

// LeaderboardService interface for ranking queries.
type LeaderboardService interface {
	Top(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	Rank(ctx context.Context, userID uint) (int, error)
}

// ReadingStore interface for persisting glucose readings.
type ReadingStore interface {
	Create(reading *models.GlucoseReading) error
}

// Handler handles achievement API requests.
type Handler struct {
	achievements AchievementService
	retroactive  RetroactiveService
	gamification GamificationService
	leaderboard  LeaderboardService
	readings     ReadingStore
	log          *logger.Logger
}

// NewHandler creates a new achievements handler.
func NewHandler(
	achievements *achsvc.Service,
	retroactive *achsvc.Processor,
	gamification GamificationService,
	leaderboard *leaderboard.Service,
	readings ReadingStore,
	log *logger.Logger,
) *Handler {
	return &Handler{
		achievements: achievements,
		retroactive:  retroactive,
		gamification: gamification,
		leaderboard:  leaderboard,
		readings:     readings,
		log:          log,
	}
}

// NewHandlerWithInterfaces creates a new achievements handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	achievements AchievementService,
	retroactive RetroactiveService,
	gamification GamificationService,
	leaderboard LeaderboardService,
	readings ReadingStore,
	log *logger.Logger,
) *Handler {
	return &Handler{
		achievements: achievements,
		retroactive:  retroactive,
		gamification: gamification,
		leaderboard:  leaderboard,
		readings:     readings,
		log:          log,
	}
}

// RegisterRoutes attaches all handler routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/achievements", h.GetCatalog)
	api.GET("/users/:id/achievements", h.GetUserAchievements)
	api.POST("/users/:id/events", h.PostEvent)
	api.POST("/users/:id/glucose", h.PostGlucoseReading)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/users/:id/rank", h.GetUserRank)

	admin := api.Group("/admin/retroactive")
	admin.POST("/achievements/:id/process", h.ProcessAchievement)
	admin.POST("/process-all", h.ProcessAllPending)
	admin.GET("/achievements/:id/status", h.GetAchievementStatus)
	admin.GET("/status", h.GetStatus)
}

// GetCatalog returns all achievements in the catalog.
// GET /api/v1/achievements.
func (h *Handler) GetCatalog(c *gin.Context) {
	catalog, err := h.achievements.GetCatalog()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get achievement catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve achievement catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements": catalog,
		"total":        len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GetUserAchievements returns all achievements with unlock state and progress
// for a specific user.
// GET /api/v1/users/:id/achievements.
func (h *Handler) GetUserAchievements(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	statuses, err := h.achievements.GetUserAchievements(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user achievements")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user achievements")
		return
	}

	unlocked := 0
	for _, status := range statuses {
		if status.Unlocked {
			unlocked++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"achievements": statuses,
		"total":        len(statuses),
		"unlocked":     unlocked,
		"generated_at": time.Now().UTC(),
	})
}

type eventRequest struct {
	Trigger string                 `json:"trigger" binding:"required"`
	Data    map[string]interface{} `json:"data"`
}

// PostEvent runs achievement checks for a trigger event.
// POST /api/v1/users/:id/events.
func (h *Handler) PostEvent(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "trigger is required")
		return
	}

	trigger := achsvc.Trigger(req.Trigger)
	event := &achsvc.TriggerEvent{Name: req.Trigger, Data: req.Data}

	results, err := h.achievements.CheckAchievementsByTrigger(c.Request.Context(), userID, trigger, event)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Str("trigger", req.Trigger).Msg("Failed to check achievements")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to check achievements")
		return
	}

	h.log.Info().
		Uint("user_id", userID).
		Str("trigger", req.Trigger).
		Int("unlocked", len(results)).
		Msg("Processed trigger event")

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"trigger":      req.Trigger,
		"unlocked":     results,
		"generated_at": time.Now().UTC(),
	})
}

type glucoseRequest struct {
	Value    float64    `json:"value" binding:"required"`
	Context  string     `json:"context"`
	Notes    string     `json:"notes"`
	LoggedAt *time.Time `json:"logged_at"`
}

// PostGlucoseReading stores a glucose reading, updates the user's streak, and
// runs the achievement checks raised by the log.
// POST /api/v1/users/:id/glucose.
func (h *Handler) PostGlucoseReading(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req glucoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "value is required")
		return
	}
	if req.Value <= 0 {
		h.errorResponse(c, http.StatusBadRequest, "value must be positive")
		return
	}

	loggedAt := time.Now()
	if req.LoggedAt != nil {
		loggedAt = *req.LoggedAt
	}

	reading := &models.GlucoseReading{
		UserID:    userID,
		Value:     req.Value,
		Context:   req.Context,
		Notes:     req.Notes,
		CreatedAt: loggedAt,
	}
	if err := h.readings.Create(reading); err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to store glucose reading")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to store glucose reading")
		return
	}

	ctx := c.Request.Context()

	// Streak bookkeeping raises its own trigger events on transitions.
	if err := h.gamification.RecordGlucoseLog(ctx, userID, loggedAt); err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to update streak")
	}

	event := &achsvc.TriggerEvent{
		Name: string(achsvc.TriggerGlucoseLogged),
		Data: map[string]interface{}{
			"value":   req.Value,
			"context": req.Context,
		},
	}
	results, err := h.achievements.CheckAchievementsByTrigger(ctx, userID, achsvc.TriggerGlucoseLogged, event)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to check achievements after glucose log")
		results = []achsvc.UnlockResult{}
	}

	c.JSON(http.StatusCreated, gin.H{
		"reading":      reading,
		"unlocked":     results,
		"generated_at": time.Now().UTC(),
	})
}

// GetLeaderboard returns the global XP leaderboard.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboard.Top(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserRank returns the leaderboard position for a specific user.
// GET /api/v1/users/:id/rank.
func (h *Handler) GetUserRank(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rank, err := h.leaderboard.Rank(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user rank")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user rank")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"rank":         rank,
		"generated_at": time.Now().UTC(),
	})
}

// ProcessAchievement runs retroactive processing for one achievement.
// POST /api/v1/admin/retroactive/achievements/:id/process.
func (h *Handler) ProcessAchievement(c *gin.Context) {
	achievementID, err := h.parseAchievementID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.retroactive.ProcessAchievement(c.Request.Context(), achievementID)
	if err != nil {
		h.log.Error().Err(err).Uint("achievement_id", achievementID).Msg("Retroactive processing failed")
		h.errorResponse(c, http.StatusInternalServerError, "Retroactive processing failed")
		return
	}

	h.log.Info().
		Uint("achievement_id", achievementID).
		Str("status", result.Status).
		Int("processed_users", result.ProcessedUsers).
		Msg("Retroactive processing finished")

	c.JSON(http.StatusOK, gin.H{
		"result":       result,
		"generated_at": time.Now().UTC(),
	})
}

// ProcessAllPending runs retroactive processing for every achievement without
// a completed run.
// POST /api/v1/admin/retroactive/process-all.
func (h *Handler) ProcessAllPending(c *gin.Context) {
	results, err := h.retroactive.ProcessAllPending(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Retroactive sweep failed")
		h.errorResponse(c, http.StatusInternalServerError, "Retroactive sweep failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":      results,
		"total":        len(results),
		"generated_at": time.Now().UTC(),
	})
}

// GetAchievementStatus returns the latest retroactive run state for one achievement.
// GET /api/v1/admin/retroactive/achievements/:id/status.
func (h *Handler) GetAchievementStatus(c *gin.Context) {
	achievementID, err := h.parseAchievementID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.retroactive.GetAchievementStatus(achievementID)
	if err != nil {
		h.log.Error().Err(err).Uint("achievement_id", achievementID).Msg("Failed to get retroactive status")
		h.errorResponse(c, http.StatusNotFound, "Achievement not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"generated_at": time.Now().UTC(),
	})
}

// GetStatus returns run state for every achievement still pending retroactive
// processing.
// GET /api/v1/admin/retroactive/status.
func (h *Handler) GetStatus(c *gin.Context) {
	statuses, err := h.retroactive.GetStatus()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get retroactive status")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve retroactive status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":     statuses,
		"total":        len(statuses),
		"generated_at": time.Now().UTC(),
	})
}

// Helper functions

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
	}
	return uint(id), nil
}

// parseAchievementID extracts and validates the achievement ID from the URL parameter.
func (h *Handler) parseAchievementID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid achievement ID: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
