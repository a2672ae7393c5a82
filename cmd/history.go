package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/history"
	"github.com/citamon/citamon/internal/log"
)

var (
	historyLimit         int
	historyNotifications bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent checks and alerts",
	Long:  `List recent checks (or notification attempts) recorded in the history database.`,
	Example: `  # Last 20 checks
  citamon history

  # Last 50 notification attempts
  citamon history --notifications -n 50`,
	Run: func(_ *cobra.Command, _ []string) {
		path := loadPaths().HistoryDB
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Info("No history yet at %s", path)
			return
		}

		db := history.New(path, true)
		exitOnError(db.Init())
		defer func() { _ = db.Close() }()

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if historyNotifications {
			rows, err := db.RecentNotifications(historyLimit)
			exitOnError(err)
			fmt.Fprintln(tw, "SENT\tKIND\tCHANNEL\tRESULT")
			for _, n := range rows {
				result := "ok"
				switch {
				case n.Skipped:
					result = "skipped"
				case !n.Success:
					result = "failed: " + n.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.SentAt.Local().Format(log.TimeLayout), n.Kind, n.Channel, result)
			}
		} else {
			rows, err := db.RecentChecks(historyLimit)
			exitOnError(err)
			fmt.Fprintln(tw, "CHECKED\tOUTCOME\tEXIT\tDURATION\tDETAIL")
			for _, c := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\n",
					c.CheckedAt.Local().Format(log.TimeLayout), c.Outcome, c.ExitCode,
					c.Duration.Round(time.Second), strings.ReplaceAll(c.Detail, "\n", " "))
			}
		}
		_ = tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historyNotifications, "notifications", false, "Show notification attempts instead of checks")
}
