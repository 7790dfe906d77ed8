package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/star-achiever/star/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Listen port (overrides api.port)")
	serveCmd.Flags().String("data", "", "Storage directory (overrides storage.dir)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	Long: `Run the authoritative sync server. Families, tasks, logs and the
transaction ledger are kept in SQLite under the storage directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	c := cfg
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		c.API.Port = port
	}
	if dir, _ := cmd.Flags().GetString("data"); dir != "" {
		c.Storage.Dir = dir
	}
	if err := c.Validate(); err != nil {
		return err
	}

	d, err := daemon.New(c, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stdout, "⭐ star server on http://%s (data: %s)\n", c.Addr(), c.StorageDir())
	return d.Run(ctx)
}
