package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
)

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(redeemCmd)
	rootCmd.AddCommand(mysteryBoxCmd)
	rootCmd.AddCommand(wishCmd)
	rootCmd.AddCommand(avatarCmd)
	wishCmd.AddCommand(wishAddCmd)
	wishCmd.AddCommand(wishDepositCmd)
	wishCmd.AddCommand(wishDeleteCmd)
	avatarCmd.AddCommand(avatarBuyCmd)
	avatarCmd.AddCommand(avatarEquipCmd)

	toggleCmd.Flags().String("date", "", "Day to toggle (YYYY-MM-DD), default today")
	wishAddCmd.Flags().String("icon", "🎁", "Goal icon")
}

// ─── toggle ─────────────────────────────────────────────────────────────────

var toggleCmd = &cobra.Command{
	Use:   "toggle TASK_ID",
	Short: "Complete a task, or undo it if already done that day",
	Args:  cobra.ExactArgs(1),
	RunE:  runToggle,
}

func runToggle(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	day := time.Now()
	if d, _ := cmd.Flags().GetString("date"); d != "" {
		day, err = ledger.ParseDateKey(d, s.store.Location())
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}
	plan, err := s.store.ToggleTask(args[0], day)
	if err != nil {
		return err
	}
	task, _ := s.store.Snapshot().Task(args[0])
	renderToggle(os.Stdout, task, plan)
	return nil
}

// ─── redeem / mystery-box ───────────────────────────────────────────────────

var redeemCmd = &cobra.Command{
	Use:   "redeem REWARD_ID",
	Short: "Spend stars on a store reward",
	Args:  cobra.ExactArgs(1),
	RunE:  runRedeem,
}

func runRedeem(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	if _, err := s.store.RedeemReward(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "⭐ Balance: %d\n", s.store.Snapshot().Balance)
	return nil
}

var mysteryBoxCmd = &cobra.Command{
	Use:   "mystery-box",
	Short: "Open a mystery box",
	Args:  cobra.NoArgs,
	RunE:  runMysteryBox,
}

func runMysteryBox(cmd *cobra.Command, _ []string) (err error) {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	prize, err := s.store.OpenMysteryBox(nil)
	if err != nil {
		return err
	}
	renderPrize(os.Stdout, prize, s.store.Snapshot().Balance)
	return nil
}

// ─── wish ───────────────────────────────────────────────────────────────────

var wishCmd = &cobra.Command{
	Use:   "wish",
	Short: "Manage wishlist savings goals",
}

var wishAddCmd = &cobra.Command{
	Use:   "add TITLE TARGET",
	Short: "Add a savings goal",
	Args:  cobra.ExactArgs(2),
	RunE:  runWishAdd,
}

func runWishAdd(cmd *cobra.Command, args []string) (err error) {
	target, err := parseStars(args[1])
	if err != nil {
		return err
	}
	icon, _ := cmd.Flags().GetString("icon")

	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	goal, err := s.store.AddWishlistGoal(domain.WishlistGoal{Title: args[0], TargetCost: target, Icon: icon})
	if err != nil {
		return err
	}
	renderGoal(os.Stdout, goal)
	return nil
}

var wishDepositCmd = &cobra.Command{
	Use:   "deposit GOAL_ID AMOUNT",
	Short: "Move stars from the balance into a goal",
	Args:  cobra.ExactArgs(2),
	RunE:  runWishDeposit,
}

func runWishDeposit(cmd *cobra.Command, args []string) (err error) {
	amount, err := parseStars(args[1])
	if err != nil {
		return err
	}
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	if err := s.store.DepositToWishlist(args[0], amount); err != nil {
		return err
	}
	snap := s.store.Snapshot()
	if i := snap.Goal(args[0]); i >= 0 {
		renderGoal(os.Stdout, snap.Wishlist[i])
	}
	fmt.Fprintf(os.Stdout, "⭐ Balance: %d\n", snap.Balance)
	return nil
}

var wishDeleteCmd = &cobra.Command{
	Use:   "delete GOAL_ID",
	Short: "Delete a goal and refund what was saved",
	Args:  cobra.ExactArgs(1),
	RunE:  runWishDelete,
}

func runWishDelete(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	if err := s.store.DeleteWishlistGoal(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "🗑️  Deleted %s\n⭐ Balance: %d\n", args[0], s.store.Snapshot().Balance)
	return nil
}

// ─── avatar ─────────────────────────────────────────────────────────────────

var avatarCmd = &cobra.Command{
	Use:   "avatar",
	Short: "Buy and equip avatar items",
}

var avatarBuyCmd = &cobra.Command{
	Use:   "buy ITEM_ID",
	Short: "Buy an item, or toggle it if already owned",
	Args:  cobra.ExactArgs(1),
	RunE:  runAvatarBuy,
}

func runAvatarBuy(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	purchased, err := s.store.BuyAvatarItem(args[0])
	if err != nil {
		return err
	}
	if purchased {
		fmt.Fprintf(os.Stdout, "👕 Bought %s\n⭐ Balance: %d\n", args[0], s.store.Snapshot().Balance)
	}
	return nil
}

var avatarEquipCmd = &cobra.Command{
	Use:   "equip ITEM_ID",
	Short: "Equip or unequip an owned item",
	Args:  cobra.ExactArgs(1),
	RunE:  runAvatarEquip,
}

func runAvatarEquip(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer closeInto(s, &err)

	return s.store.EquipAvatarItem(args[0])
}

// closeInto closes s and reports a sync failure unless err is already set.
func closeInto(s *session, err *error) {
	if cerr := s.close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func parseStars(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q: %w", s, domain.ErrInvalidAmount)
	}
	return n, nil
}
