package achievements

import (
	"github.com/glucoquest/glucoquest-api/internal/models"
)

// Trigger identifies a domain event kind that prompts achievement re-evaluation.
type Trigger string

// Domain event triggers.
const (
	TriggerGlucoseLogged     Trigger = "GLUCOSE_LOGGED"
	TriggerStreakUpdated     Trigger = "STREAK_UPDATED"
	TriggerLevelUp           Trigger = "LEVEL_UP"
	TriggerFriendAdded       Trigger = "FRIEND_ADDED"
	TriggerStreakRecovered   Trigger = "STREAK_RECOVERED"
	TriggerPremiumActivated  Trigger = "PREMIUM_ACTIVATED"
	TriggerShareCompleted    Trigger = "SHARE_COMPLETED"
	TriggerEncouragementSent Trigger = "ENCOURAGEMENT_SENT"
)

// TriggerEvent carries the optional payload of a domain event. Name is the
// event identifier that "event" conditions match against; Data holds the
// fields checked by requiresData.
type TriggerEvent struct {
	Name string
	Data map[string]interface{}
}

// triggerCategories maps each trigger to the achievement categories worth
// re-checking when that event fires. Dispatch is a pure lookup; an
// unrecognized trigger resolves to no categories, which is not an error.
var triggerCategories = map[Trigger][]models.AchievementCategory{
	TriggerGlucoseLogged: {
		models.CategoryRegistros,
		models.CategoryContextos,
		models.CategoryControl,
		models.CategoryEspeciales,
	},
	TriggerStreakUpdated:     {models.CategoryRachas},
	TriggerLevelUp:           {models.CategoryNiveles},
	TriggerFriendAdded:       {models.CategorySocial},
	TriggerStreakRecovered:   {models.CategoryRachas, models.CategoryEspeciales},
	TriggerPremiumActivated:  {models.CategoryEspeciales},
	TriggerShareCompleted:    {models.CategorySocial},
	TriggerEncouragementSent: {models.CategorySocial},
}

// CategoriesForTrigger returns the categories eligible for re-evaluation when
// the given trigger fires. Unknown triggers return an empty set.
func CategoriesForTrigger(trigger Trigger) []models.AchievementCategory {
	return triggerCategories[trigger]
}
