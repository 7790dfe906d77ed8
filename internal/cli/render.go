package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/reconcile"
)

// ─── Renderers ──────────────────────────────────────────────────────────────
// Pure functions from state to terminal text. Commands do the I/O.

func renderCelebration(w io.Writer, c domain.Celebration) {
	icon := "🎉"
	if c.Kind == domain.CelebrationPenalty {
		icon = "😢"
	}
	fmt.Fprintf(w, "%s %+d ⭐ %s\n", icon, c.Points, c.Title)
}

func renderStatus(w io.Writer, st domain.FamilyState, dayKey string, totalAchievements int) {
	fmt.Fprintf(w, "👪 %s (%s)\n", st.UserName, st.FamilyID)
	fmt.Fprintf(w, "⭐ Balance: %d   Lifetime: %d\n", st.Balance, st.LifetimeEarnings)

	done := 0
	for _, t := range st.Tasks {
		if st.Logs.Contains(dayKey, t.ID) {
			done++
		}
	}
	fmt.Fprintf(w, "\n📅 %s: %d/%d done\n", dayKey, done, len(st.Tasks))
	for _, t := range st.Tasks {
		mark := "⬜"
		if st.Logs.Contains(dayKey, t.ID) {
			mark = "✅"
		}
		fmt.Fprintf(w, "  %s [%s] %s %s (%+d)\n", mark, t.ID, t.Icon, t.Title, t.Stars)
	}

	if len(st.Wishlist) > 0 {
		fmt.Fprintln(w, "\n🎯 Wishlist")
		for _, g := range st.Wishlist {
			renderGoal(w, g)
		}
	}
	fmt.Fprintf(w, "\n🏆 Achievements: %d/%d\n", len(st.UnlockedAchievements), totalAchievements)
}

func renderGoal(w io.Writer, g domain.WishlistGoal) {
	mark := ""
	if g.Completed() {
		mark = " 🎉"
	}
	fmt.Fprintf(w, "  [%s] %s %s %d/%d%s\n", g.ID, g.Icon, g.Title, g.CurrentSaved, g.TargetCost, mark)
}

func renderRewards(w io.Writer, rewards []domain.Reward, balance, boxCost int64) {
	fmt.Fprintf(w, "🛍️  Store (balance %d ⭐)\n", balance)
	for _, r := range rewards {
		afford := "  "
		if r.Cost > balance {
			afford = "🔒"
		}
		fmt.Fprintf(w, "  %s [%s] %s %s %d ⭐\n", afford, r.ID, r.Icon, r.Title, r.Cost)
	}
	fmt.Fprintf(w, "  🎁 Mystery box %d ⭐\n", boxCost)
}

func renderToggle(w io.Writer, task domain.Task, plan reconcile.Plan) {
	if plan.Completing {
		fmt.Fprintf(w, "✅ %s %s done on %s (balance %+d)\n", task.Icon, task.Title, plan.DateKey, plan.Delta.Balance)
		return
	}
	fmt.Fprintf(w, "↩️  %s %s undone on %s (balance %+d)\n", task.Icon, task.Title, plan.DateKey, plan.Delta.Balance)
}

func renderPrize(w io.Writer, prize domain.MysteryPrize, balance int64) {
	if prize.BonusStars > 0 {
		fmt.Fprintf(w, "🎁 %s %s (+%d ⭐)\n", prize.Icon, prize.Title, prize.BonusStars)
	} else {
		fmt.Fprintf(w, "🎁 %s %s\n", prize.Icon, prize.Title)
	}
	fmt.Fprintf(w, "⭐ Balance: %d\n", balance)
}

func renderStats(w io.Writer, label string, win ledger.Window, s ledger.Summary) {
	last := win.End.AddDate(0, 0, -1)
	fmt.Fprintf(w, "📊 %s %s → %s\n", label, win.Start.Format(time.DateOnly), last.Format(time.DateOnly))
	fmt.Fprintf(w, "  Earned:  %6d\n", s.Earned)
	fmt.Fprintf(w, "  Spent:   %6d\n", s.Spent)
	fmt.Fprintf(w, "  Penalty: %6d\n", s.Penalty)
	fmt.Fprintf(w, "  Net:     %6d\n", s.Net())
}

func renderAchievements(w io.Writer, defs []domain.Achievement, unlocked []string) {
	n := 0
	for _, a := range defs {
		mark := "🔒"
		if slices.Contains(unlocked, a.ID) {
			mark = "🏆"
			n++
		}
		fmt.Fprintf(w, "  %s %s %s: %s\n", mark, a.Icon, a.Title, a.Description)
	}
	fmt.Fprintf(w, "%d/%d unlocked\n", n, len(defs))
}

func renderTransactions(w io.Writer, txs []domain.Transaction, loc *time.Location) {
	for _, tx := range txs {
		if tx.IsRevoked {
			continue
		}
		fmt.Fprintf(w, "  %s %+5d  %s\n", tx.Date.In(loc).Format("2006-01-02 15:04"), tx.Amount, tx.Description)
	}
}
