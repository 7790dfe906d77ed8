package syncproto

import (
	"slices"

	"github.com/star-achiever/star/internal/domain"
)

// Merge folds a partial snapshot into local state.
//
// Collections absent from the snapshot are left untouched. Present task,
// reward and wishlist lists replace the local list. Logs merge per day.
// Transactions merge by ID, incoming copies win, and the result is ordered
// newest write first. Scalars replace whenever present. Unlocked
// achievements only ever grow.
func Merge(st *domain.FamilyState, in *Snapshot) {
	if in == nil {
		return
	}
	if in.FamilyID != "" {
		st.FamilyID = in.FamilyID
	}
	if in.Tasks != nil {
		st.Tasks = slices.Clone(in.Tasks)
	}
	if in.Rewards != nil {
		st.Rewards = slices.Clone(in.Rewards)
	}
	if in.Wishlist != nil {
		st.Wishlist = slices.Clone(in.Wishlist)
	}
	if in.Logs != nil {
		if st.Logs == nil {
			st.Logs = make(domain.DailyLogs, len(in.Logs))
		}
		for day, ids := range in.Logs {
			st.Logs[day] = slices.Clone(ids)
		}
	}
	if in.Transactions != nil {
		st.Transactions = MergeTransactions(st.Transactions, in.Transactions)
	}

	if in.UserName != nil {
		st.UserName = *in.UserName
	}
	if in.ThemeKey != nil {
		st.ThemeKey = *in.ThemeKey
	}
	if in.Balance != nil {
		st.Balance = *in.Balance
	}
	if in.LifetimeEarnings != nil {
		st.LifetimeEarnings = *in.LifetimeEarnings
	}
	if in.Avatar != nil {
		st.Avatar = *in.Avatar
		st.Avatar.OwnedItems = slices.Clone(in.Avatar.OwnedItems)
	}
	for _, id := range in.UnlockedAchievements {
		if !slices.Contains(st.UnlockedAchievements, id) {
			st.UnlockedAchievements = append(st.UnlockedAchievements, id)
		}
	}
}

// MergeTransactions de-duplicates by ID, letting incoming records replace
// local ones, and sorts the result.
func MergeTransactions(local, incoming []domain.Transaction) []domain.Transaction {
	index := make(map[string]int, len(local)+len(incoming))
	out := make([]domain.Transaction, 0, len(local)+len(incoming))
	for _, tx := range local {
		if i, ok := index[tx.ID]; ok {
			out[i] = tx
			continue
		}
		index[tx.ID] = len(out)
		out = append(out, tx)
	}
	for _, tx := range incoming {
		if i, ok := index[tx.ID]; ok {
			out[i] = tx
			continue
		}
		index[tx.ID] = len(out)
		out = append(out, tx)
	}
	SortTransactions(out)
	return out
}

// SortTransactions orders records by write sequence, newest first, falling
// back to the logical date for records without one.
func SortTransactions(txs []domain.Transaction) {
	slices.SortStableFunc(txs, func(a, b domain.Transaction) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt > b.CreatedAt {
				return -1
			}
			return 1
		}
		return b.Date.Compare(a.Date)
	})
}
