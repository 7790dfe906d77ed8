package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/syncproto"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringP("window", "w", "week", "day, week, month or custom")
	statsCmd.Flags().String("from", "", "First day for a custom window (YYYY-MM-DD)")
	statsCmd.Flags().String("to", "", "Last day for a custom window (YYYY-MM-DD)")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise earned, spent and penalty stars over a window",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("window")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	st, _, err := newStore(os.Stdout)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.FamilyID() == "" {
		return fmt.Errorf("pass --family or set sync.family_id in %s", configPath)
	}

	win, err := statsWindow(kind, from, to, time.Now(), st.Location())
	if err != nil {
		return err
	}
	q := syncproto.LoadQuery{
		Scope:     syncproto.ScopeCalendar,
		StartDate: win.Start,
		EndDate:   win.End.Add(-time.Millisecond),
	}
	snap, err := cfg.Remote().Load(cmd.Context(), st.FamilyID(), q)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	renderStats(os.Stdout, kind, win, ledger.SummarizeWindow(snap.Transactions, win))
	return nil
}

// statsWindow resolves the --window, --from and --to flags against now.
func statsWindow(kind, from, to string, now time.Time, loc *time.Location) (ledger.Window, error) {
	switch kind {
	case "day":
		return ledger.DayWindow(now, loc), nil
	case "week":
		return ledger.WeekWindow(now, loc), nil
	case "month":
		return ledger.MonthWindow(now, loc), nil
	case "custom":
		if from == "" || to == "" {
			return ledger.Window{}, fmt.Errorf("custom window needs --from and --to")
		}
		first, err := ledger.ParseDateKey(from, loc)
		if err != nil {
			return ledger.Window{}, fmt.Errorf("--from: %w", err)
		}
		last, err := ledger.ParseDateKey(to, loc)
		if err != nil {
			return ledger.Window{}, fmt.Errorf("--to: %w", err)
		}
		return ledger.CustomWindow(first, last, loc), nil
	}
	return ledger.Window{}, fmt.Errorf("unknown window %q: want day, week, month or custom", kind)
}
