// Package leaderboard provides the XP ranking backed by a Redis sorted set.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

// xpKey is the sorted set holding every user's XP total.
const xpKey = "glucoquest:leaderboard:xp"

// Entry represents one leaderboard row.
type Entry struct {
	UserID uint `json:"user_id"`
	XP     int  `json:"xp"`
	Rank   int  `json:"rank"`
}

// Service maintains the XP leaderboard. Scores are mirrored in by the
// gamification service on every XP change; the database stays the source of
// truth, the sorted set only serves ranking reads.
type Service struct {
	client *redis.Client
	log    *logger.Logger
}

// NewService creates a leaderboard service.
func NewService(client *redis.Client, log *logger.Logger) *Service {
	return &Service{client: client, log: log}
}

// SetScore sets a user's XP total on the leaderboard.
func (s *Service) SetScore(ctx context.Context, userID uint, xp int) error {
	err := s.client.ZAdd(ctx, xpKey, redis.Z{
		Score:  float64(xp),
		Member: memberFor(userID),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to set leaderboard score for user %d: %w", userID, err)
	}
	return nil
}

// Top returns the highest-XP users, best first.
func (s *Service) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.client.ZRevRangeWithScores(ctx, xpKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		member, ok := row.Member.(string)
		if !ok {
			continue
		}
		userID, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			s.log.Warn().Str("member", member).Msg("Skipping malformed leaderboard member")
			continue
		}
		entries = append(entries, Entry{
			UserID: uint(userID),
			XP:     int(row.Score),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

// Rank returns a user's 1-indexed position, or 0 when the user has no score yet.
func (s *Service) Rank(ctx context.Context, userID uint) (int, error) {
	rank, err := s.client.ZRevRank(ctx, xpKey, memberFor(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read rank for user %d: %w", userID, err)
	}
	return int(rank) + 1, nil
}

func memberFor(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
