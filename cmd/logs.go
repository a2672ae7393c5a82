package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/daemon"
	"github.com/citamon/citamon/internal/log"
)

var (
	logsLines  int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the monitor log",
	Long:  `Print the last lines of the monitor log. With --follow, keep streaming new lines (like tail -f).`,
	Example: `  # Last 20 lines
  citamon logs

  # Last 100 lines
  citamon logs -n 100

  # Follow the log
  citamon logs --follow`,
	Run: func(_ *cobra.Command, _ []string) {
		logFile := loadPaths().LogFile

		if logsFollow {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("Following cita monitor logs: %s", logFile)
			log.Info("Press Ctrl+C to stop following logs")
			log.Info("==========================================")
			exitOnError(daemon.FollowLogs(ctx, os.Stdout, logFile, logsLines))
			return
		}

		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			log.Info("No log yet at %s", logFile)
			return
		}
		exitOnError(daemon.ShowRecentLogs(os.Stdout, logFile, logsLines))
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", daemon.DefaultTailLines, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep streaming new log lines")
}
