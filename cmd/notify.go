package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/config"
	"github.com/citamon/citamon/internal/citamon/notify"
	"github.com/citamon/citamon/internal/log"
)

var notifyTest bool

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a test alert through every configured channel",
	Long: `Send a test alert through every configured channel (email, and SMS,
call and Discord when configured) and report which ones delivered.

Use it after 'citamon init' to confirm alerts will reach you. Exits non-zero
if the email could not be sent.`,
	Example: `  # Send a test alert
  citamon notify --test`,
	Run: func(cmd *cobra.Command, _ []string) {
		if !notifyTest {
			_ = cmd.Help()
			return
		}

		cfg, err := config.Resolve(settingsPath())
		exitOnError(err)
		for _, w := range cfg.Warnings() {
			log.Warn("%s", w)
		}

		fan, err := notify.FromConfig(cfg)
		exitOnError(err)

		log.Info("[NOTIFY] Sending test alert via %v", fan.Channels())
		report := fan.Notify(context.Background(), notify.NewAlert(notify.Test, cfg, time.Now()))
		for _, r := range report.Results {
			switch {
			case r.Skipped:
				log.InfoH2("%s: skipped", r.Channel)
			case r.Err != nil:
				log.ErrorH2("%s: failed: %v", r.Channel, r.Err)
			default:
				log.InfoH2("%s: sent in %v", r.Channel, r.Duration.Round(time.Millisecond))
			}
		}
		log.Info("[NOTIFY] %s", report.Summary())
		exitOnError(report.Err())
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	notifyCmd.Flags().BoolVar(&notifyTest, "test", false, "Send a test alert")
}
