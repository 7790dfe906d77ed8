package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star-achiever/star/internal/ledger"
)

func init() {
	rootCmd.AddCommand(familyCmd)
	familyCmd.AddCommand(familyCreateCmd)
	familyCmd.AddCommand(familyJoinCmd)

	familyCreateCmd.Flags().Bool("save", false, "Remember the new family ID in the config file")
	familyJoinCmd.Flags().Bool("save", false, "Remember the family ID in the config file")
}

var familyCmd = &cobra.Command{
	Use:   "family",
	Short: "Create or join a family",
}

// ─── family create ──────────────────────────────────────────────────────────

var familyCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Start a new family seeded with the default tasks and rewards",
	Args:  cobra.ExactArgs(1),
	RunE:  runFamilyCreate,
}

func runFamilyCreate(cmd *cobra.Command, args []string) error {
	st, _, err := newStore(os.Stdout)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.StartAdventure(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "🎉 Family created: %s\n", id)
	return rememberFamily(cmd, id)
}

// ─── family join ────────────────────────────────────────────────────────────

var familyJoinCmd = &cobra.Command{
	Use:   "join FAMILY_ID",
	Short: "Load an existing family",
	Args:  cobra.ExactArgs(1),
	RunE:  runFamilyJoin,
}

func runFamilyJoin(cmd *cobra.Command, args []string) error {
	st, _, err := newStore(os.Stdout)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.JoinFamily(cmd.Context(), args[0]); err != nil {
		return err
	}
	snap := st.Snapshot()
	day := ledger.DateKey(time.Now(), st.Location())
	renderStatus(os.Stdout, snap, day, st.Engine().TotalCount())
	return rememberFamily(cmd, args[0])
}

func rememberFamily(cmd *cobra.Command, id string) error {
	if save, _ := cmd.Flags().GetBool("save"); !save {
		fmt.Fprintf(os.Stdout, "💡 Use --family %s, or rerun with --save to remember it\n", id)
		return nil
	}
	c := cfg
	c.Sync.FamilyID = id
	if err := c.Save(configPath); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "💾 Saved family ID to %s\n", configPath)
	return nil
}
