// Package webhook provides the outbound client announcing achievement
// unlocks to a configured webhook (e.g. a community channel).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/glucoquest/glucoquest-api/internal/config"
	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// Client posts unlock announcements. Disabled clients are no-ops, so callers
// never need to check configuration themselves.
type Client struct {
	url        string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a webhook client.
func NewClient(cfg *config.WebhookConfig, log *logger.Logger) *Client {
	return &Client{
		url:     cfg.URL,
		enabled: cfg.Enabled,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// unlockMessage is the announcement payload.
type unlockMessage struct {
	UserID      uint   `json:"user_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	XPReward    int    `json:"xp_reward"`
	AnnouncedAt string `json:"announced_at"`
}

// AnnounceUnlock posts one unlock announcement. Returns an error on transport
// failure or a non-2xx response; the orchestrator treats both as best-effort.
func (c *Client) AnnounceUnlock(ctx context.Context, userID uint, achievement *models.Achievement) error {
	if !c.enabled {
		return nil
	}

	payload, err := json.Marshal(unlockMessage{
		UserID:      userID,
		Code:        achievement.Code,
		Name:        achievement.Name,
		Tier:        achievement.Tier,
		XPReward:    achievement.XPReward,
		AnnouncedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal unlock announcement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("code", achievement.Code).
		Uint("user_id", userID).
		Msg("Unlock announcement sent")
	return nil
}
