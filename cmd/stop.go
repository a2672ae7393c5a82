package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/daemon"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/citamon/runstate"
	"github.com/citamon/citamon/internal/log"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running monitor",
	Long: `Stop the running appointment monitor.

Sends SIGTERM and waits for the monitor to finish its current step. If it is
still alive after --timeout it is killed. The run-state marker is removed in
every case, including when the recorded process is already gone.`,
	Example: `  # Stop the monitor
  citamon stop

  # Give a running check more time to finish
  citamon stop --timeout 1m`,
	Run: func(_ *cobra.Command, _ []string) {
		store := runstate.NewStore(loadPaths().StateFile)

		log.Info("Stopping cita monitor...")
		pid, err := daemon.StopMonitor(context.Background(), store, stopTimeout)
		if citerr.Is(err, citerr.ErrNotRunning) {
			log.Info("Cita monitor is not running")
			log.Debug("%v", err)
			exitQuietly(err)
		}
		exitOnError(err)

		log.Info("Cita monitor stopped (PID %d)", pid)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", daemon.DefaultStopGrace, "How long to wait before killing the monitor")
}
