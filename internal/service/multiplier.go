package service

import (
	"math"

	"reward-service/internal/models"
)

// multipliers is the fixed category-by-choice point multiplier table. A
// missing entry means the choice is invalid for the category; hazardous
// items accept special handling only, so discard on hazardous can never
// reach an approved state.
var multipliers = map[string]map[string]float64{
	models.CategoryClothing: {
		models.ChoiceDonate:  2.0,
		models.ChoiceTrade:   1.8,
		models.ChoiceRecycle: 1.2,
		models.ChoiceDiscard: 1.0,
	},
	models.CategoryElectronics: {
		models.ChoiceDonate:  1.8,
		models.ChoiceTrade:   2.0,
		models.ChoiceRecycle: 1.5,
		models.ChoiceDiscard: 0.5,
	},
	models.CategoryCompost: {
		models.ChoiceRecycle: 1.5,
		models.ChoiceDiscard: 0.8,
	},
	models.CategoryRecyclable: {
		models.ChoiceTrade:   1.2,
		models.ChoiceRecycle: 1.5,
		models.ChoiceDiscard: 0.8,
	},
	models.CategoryHazardous: {
		models.ChoiceSpecial: 2.0,
	},
}

// NeedsDisposalChoice reports whether items of the category require the user
// to pick an end-of-life action. Category "other" is rewarded as-is.
func NeedsDisposalChoice(category string) bool {
	_, ok := multipliers[category]
	return ok
}

// KnownCategory reports whether the category is one the multiplier table or
// the choice-free "other" bucket covers.
func KnownCategory(category string) bool {
	if category == models.CategoryOther {
		return true
	}
	_, ok := multipliers[category]
	return ok
}

// Multiplier returns the point multiplier for a category and disposal choice,
// and whether the combination is allowed.
func Multiplier(category, choice string) (float64, bool) {
	table, ok := multipliers[category]
	if !ok {
		return 0, false
	}
	m, ok := table[choice]
	return m, ok
}

// FinalPoints computes round(basePoints × multiplier). Pure function; returns
// ErrInvalidDisposalChoice for a combination the table does not allow.
func FinalPoints(basePoints int, category, choice string) (int, error) {
	m, ok := Multiplier(category, choice)
	if !ok {
		return 0, models.ErrInvalidDisposalChoice
	}
	return int(math.Round(float64(basePoints) * m)), nil
}
