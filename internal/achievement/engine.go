package achievement

import (
	"slices"

	"github.com/star-achiever/star/internal/domain"
)

// Engine evaluates a fixed rule table.
type Engine struct {
	rules []domain.Achievement
}

// NewEngine creates an engine over rules.
func NewEngine(rules []domain.Achievement) *Engine {
	return &Engine{rules: slices.Clone(rules)}
}

// Definitions returns the rule table.
func (e *Engine) Definitions() []domain.Achievement { return slices.Clone(e.rules) }

// TotalCount returns the number of rules.
func (e *Engine) TotalCount() int { return len(e.rules) }

// Evaluate returns rules satisfied by agg that are not in unlocked, in table
// order. It has no side effects.
func (e *Engine) Evaluate(agg Aggregates, unlocked []string) []domain.Achievement {
	var out []domain.Achievement
	for _, r := range e.rules {
		if slices.Contains(unlocked, r.ID) {
			continue
		}
		if Satisfied(r, agg) {
			out = append(out, r)
		}
	}
	return out
}

// Satisfied reports whether a single rule holds.
func Satisfied(r domain.Achievement, agg Aggregates) bool {
	var v int64
	switch r.ConditionType {
	case domain.ConditionLifetimeStars:
		v = agg.LifetimeStars
	case domain.ConditionStreak:
		v = agg.Streak
	case domain.ConditionBalanceLevel:
		v = agg.Balance
	case domain.ConditionCategoryCount:
		// A category rule without a filter never unlocks.
		if r.CategoryFilter == "" {
			return false
		}
		v = agg.CategoryCounts[r.CategoryFilter]
	case domain.ConditionRedemptionCount:
		v = agg.Redemptions
	case domain.ConditionMysteryBoxCount:
		v = agg.MysteryBoxes
	case domain.ConditionAvatarCount:
		v = agg.AvatarItems
	case domain.ConditionWishlistComplete:
		v = agg.WishlistCompleted
	default:
		return false
	}
	return v >= r.Threshold
}
