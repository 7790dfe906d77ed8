package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/ledger"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rewardsCmd)
	rootCmd.AddCommand(achievementsCmd)
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Number of records to show")
}

// ─── status ─────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show balance, today's tasks and wishlist progress",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	day := ledger.DateKey(time.Now(), s.store.Location())
	renderStatus(os.Stdout, s.store.Snapshot(), day, s.store.Engine().TotalCount())
	return nil
}

// ─── rewards ────────────────────────────────────────────────────────────────

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "List store rewards",
	Args:  cobra.NoArgs,
	RunE:  runRewards,
}

func runRewards(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	snap := s.store.Snapshot()
	renderRewards(os.Stdout, snap.Rewards, snap.Balance, catalog.Default().MysteryBox.Cost)
	return nil
}

// ─── achievements ───────────────────────────────────────────────────────────

var achievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "List achievements and which are unlocked",
	Args:  cobra.NoArgs,
	RunE:  runAchievements,
}

func runAchievements(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	renderAchievements(os.Stdout, s.store.Engine().Definitions(), s.store.Snapshot().UnlockedAchievements)
	return nil
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transactions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	txs := s.store.Snapshot().Transactions
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	if len(txs) == 0 {
		fmt.Fprintln(os.Stdout, "No transactions yet.")
		return nil
	}
	renderTransactions(os.Stdout, txs, s.store.Location())
	return nil
}
