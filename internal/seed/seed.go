// Package seed loads the achievement catalog from a YAML file into the
// database. Seeding is idempotent: achievements are matched by code and
// updated in place, so the catalog file is the source of truth for
// definitions while unlock history is preserved.
package seed

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/glucoquest/glucoquest-api/internal/models"
	"github.com/glucoquest/glucoquest-api/internal/repository"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

type catalogFile struct {
	Achievements []catalogEntry `yaml:"achievements"`
}

type catalogEntry struct {
	Code        string                 `yaml:"code"`
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	XPReward    int                    `yaml:"xpReward"`
	Tier        string                 `yaml:"tier"`
	Category    string                 `yaml:"category"`
	Condition   map[string]interface{} `yaml:"condition"`
}

// Seeder upserts the achievement catalog.
type Seeder struct {
	achievements *repository.AchievementRepository
	log          *logger.Logger
}

// NewSeeder creates a new catalog seeder.
func NewSeeder(achievements *repository.AchievementRepository, log *logger.Logger) *Seeder {
	return &Seeder{
		achievements: achievements,
		log:          log,
	}
}

// SeedFromFile reads the catalog YAML at path and upserts every achievement.
func (s *Seeder) SeedFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return s.Seed(data)
}

// Seed upserts every achievement in the given catalog YAML document.
func (s *Seeder) Seed(data []byte) error {
	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}

	for i := range catalog.Achievements {
		entry := &catalog.Achievements[i]
		achievement, err := entry.toModel()
		if err != nil {
			return fmt.Errorf("invalid catalog entry %q: %w", entry.Code, err)
		}
		if err := s.achievements.UpsertByCode(achievement); err != nil {
			return fmt.Errorf("failed to upsert achievement %q: %w", entry.Code, err)
		}
	}

	s.log.Info().
		Int("achievements", len(catalog.Achievements)).
		Msg("Achievement catalog seeded")

	return nil
}

func (e *catalogEntry) toModel() (*models.Achievement, error) {
	if e.Code == "" {
		return nil, fmt.Errorf("code is required")
	}
	if e.Condition == nil {
		return nil, fmt.Errorf("condition is required")
	}
	if _, ok := e.Condition["type"]; !ok {
		return nil, fmt.Errorf("condition type is required")
	}

	condition, err := json.Marshal(e.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition: %w", err)
	}

	return &models.Achievement{
		Code:        e.Code,
		Name:        e.Name,
		Description: e.Description,
		XPReward:    e.XPReward,
		Tier:        e.Tier,
		Category:    models.AchievementCategory(e.Category),
		Condition:   condition,
	}, nil
}
