package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/daemon"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
)

var (
	statusJSON  bool
	statusLines int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor status",
	Long: `Display whether the monitor is running, its last check and the most
recent log lines. Exits with status 4 when no monitor is running.`,
	Example: `  # Show status
  citamon status

  # Show status in JSON format
  citamon status --json`,
	Run: func(_ *cobra.Command, _ []string) {
		err := daemon.ShowStatus(os.Stdout, loadPaths(), statusLines, statusJSON)
		if citerr.Is(err, citerr.ErrNotRunning) {
			exitQuietly(err)
		}
		exitOnError(err)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status in JSON format")
	statusCmd.Flags().IntVarP(&statusLines, "lines", "n", 5, "Number of recent log lines to show")
}
