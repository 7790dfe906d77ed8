// Package cli implements the star command line: the sync server and a
// terminal front end over the local store.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/star-achiever/star/internal/api"
	"github.com/star-achiever/star/internal/daemon"
)

var (
	configPath     string
	familyOverride string

	cfg    = daemon.DefaultConfig()
	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "star",
	Short: "Household star-reward tracker",
	Long: `star tracks a family's star economy: chores earn stars, rewards and
mystery boxes spend them, and achievements unlock along the way.

Run "star serve" to start the sync server, then "star family create" to
start a new family.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", daemon.ConfigPath(), "Path to config.toml")
	rootCmd.PersistentFlags().StringVar(&familyOverride, "family", "", "Family ID (overrides sync.family_id)")
	rootCmd.Version = api.Version
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return err
	}
	return nil
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}
	l, err := c.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	slog.SetDefault(l)
	return nil
}
