// Package achievement evaluates unlock rules against aggregates derived from
// a family's state and queues unlock presentations so they never overlap a
// running celebration.
package achievement

import (
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
)

// Aggregates are the figures rules compare against.
type Aggregates struct {
	LifetimeStars     int64
	Streak            int64
	Balance           int64
	CategoryCounts    map[domain.Category]int64
	Redemptions       int64
	MysteryBoxes      int64
	AvatarItems       int64
	WishlistCompleted int64
}

// Collect derives aggregates from state as of today.
func Collect(st domain.FamilyState, today time.Time, loc *time.Location) Aggregates {
	agg := Aggregates{
		LifetimeStars:  st.LifetimeEarnings,
		Balance:        st.Balance,
		Streak:         int64(Streak(st.Logs, today, loc)),
		CategoryCounts: CategoryCounts(st.Logs, st.Tasks),
		AvatarItems:    int64(len(st.Avatar.OwnedItems)),
	}
	for _, tx := range st.Transactions {
		if ledger.IsRedemption(tx) {
			agg.Redemptions++
		}
		if ledger.IsMysteryBox(tx) {
			agg.MysteryBoxes++
		}
	}
	for _, g := range st.Wishlist {
		if g.Completed() {
			agg.WishlistCompleted++
		}
	}
	return agg
}

// CategoryCounts counts logged completions per task category. Log entries
// for deleted tasks are skipped.
func CategoryCounts(logs domain.DailyLogs, tasks []domain.Task) map[domain.Category]int64 {
	byID := make(map[string]domain.Category, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t.Category
	}
	counts := make(map[domain.Category]int64)
	for _, ids := range logs {
		for _, id := range ids {
			if c, ok := byID[id]; ok {
				counts[c]++
			}
		}
	}
	return counts
}

// Streak counts consecutive days with at least one logged task. Today
// counts if it has entries; either way the walk continues from yesterday.
func Streak(logs domain.DailyLogs, today time.Time, loc *time.Location) int {
	day := today.In(loc)
	streak := 0
	if len(logs[ledger.DateKey(day, loc)]) > 0 {
		streak++
	}
	for {
		day = day.AddDate(0, 0, -1)
		if len(logs[ledger.DateKey(day, loc)]) == 0 {
			return streak
		}
		streak++
	}
}
