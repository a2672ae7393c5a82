package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/checker"
	"github.com/citamon/citamon/internal/citamon/config"
	"github.com/citamon/citamon/internal/citamon/daemon"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/citamon/history"
	"github.com/citamon/citamon/internal/citamon/monitor"
	"github.com/citamon/citamon/internal/citamon/notify"
	"github.com/citamon/citamon/internal/citamon/runstate"
	"github.com/citamon/citamon/internal/log"
)

var (
	startForeground bool

	startLocation  string
	startOffice    string
	startProcedure string
	startNoClave   bool
	startInterval  int
	startChecker   string

	startEmailTo    string
	startSMTPServer string
	startSMTPPort   int
	startSMTPUser   string
	startSMTPPass   string

	startTwilioSID   string
	startTwilioToken string
	startTwilioFrom  string
	startTwilioTo    string
	startCall        bool

	startDiscordWebhook string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start monitoring for appointments",
	Long: `Start the appointment monitor.

Settings come from the settings file; any flag given here overrides the file
value for this run. Location, office, procedure and the email settings are
required. Nothing is started if one of them is missing.

The monitor runs as a daemon by default and refuses to start while another
one is running. Use --foreground to run in the current terminal.`,
	Example: `  # Start with the settings file
  citamon start

  # Start in foreground
  citamon start --foreground

  # Override the search for this run
  citamon start --location Barcelona --office "CNP Rambla Guipuscoa" \
    --procedure "POLICIA-TOMA DE HUELLAS" --interval 15

  # Everything from flags
  citamon start --location Madrid --office Any --procedure TIE \
    --email-to me@example.com --smtp-server smtp.gmail.com \
    --smtp-user bot@gmail.com --smtp-pass app-password`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, err := config.Resolve(settingsPath(), startOverrides(cmd)...)
		exitOnError(err)

		if daemon.IsChild() {
			os.Exit(runDetached(cfg))
		}

		for _, w := range cfg.Warnings() {
			log.Warn("%s", w)
		}

		store := runstate.NewStore(cfg.Paths.StateFile)
		insp, err := store.Guard()
		if citerr.Is(err, citerr.ErrAlreadyRunning) {
			log.Error("Cita monitor is already running (PID %d)", insp.State.PID)
			_ = daemon.ShowStatus(os.Stdout, cfg.Paths, 5, false)
			os.Exit(citerr.ExitAlreadyRunning)
		}
		exitOnError(err)
		if insp.Stale {
			log.Warn("Removed stale marker %s left by a previous run", store.Path())
		}

		if startForeground {
			log.Info("Starting cita monitor in foreground...")
			os.Exit(runForeground(cfg))
		}

		log.Info("Starting cita monitor as daemon...")
		pid, err := daemon.Start(cfg.Paths, daemon.DefaultStartWait)
		exitOnError(err)

		log.Info("Cita monitor started (PID %d)", pid)
		log.InfoH2("Watching: %s / %s / %s", cfg.Location, cfg.Office, cfg.Procedure)
		log.InfoH2("Interval: %v", cfg.Interval())
		log.InfoH2("Log: %s", cfg.Paths.LogFile)
		log.InfoH2("Stop with 'citamon stop', follow with 'citamon logs -f'")
	},
}

// startOverrides turns the flags that were actually given into overrides, so
// unset flags never clobber settings file values.
func startOverrides(cmd *cobra.Command) []config.Override {
	changed := cmd.Flags().Changed
	var overrides []config.Override
	set := func(flag string, o config.Override) {
		if changed(flag) {
			overrides = append(overrides, o)
		}
	}

	set("location", func(c *config.Config) { c.Location = startLocation })
	set("office", func(c *config.Config) { c.Office = startOffice })
	set("procedure", func(c *config.Config) { c.Procedure = startProcedure })
	set("no-clave", func(c *config.Config) { c.NoClave = startNoClave })
	set("interval", func(c *config.Config) { c.IntervalMinutes = startInterval })
	set("checker", func(c *config.Config) { c.CheckerCommand = startChecker })

	set("email-to", func(c *config.Config) { c.Email.To = startEmailTo })
	set("smtp-server", func(c *config.Config) { c.Email.SMTPServer = startSMTPServer })
	set("smtp-port", func(c *config.Config) { c.Email.SMTPPort = startSMTPPort })
	set("smtp-user", func(c *config.Config) { c.Email.SMTPUser = startSMTPUser })
	set("smtp-pass", func(c *config.Config) { c.Email.SMTPPassword = startSMTPPass })

	set("twilio-sid", func(c *config.Config) { c.Twilio.AccountSID = startTwilioSID })
	set("twilio-token", func(c *config.Config) { c.Twilio.AuthToken = startTwilioToken })
	set("twilio-from", func(c *config.Config) { c.Twilio.From = startTwilioFrom })
	set("twilio-to", func(c *config.Config) { c.Twilio.To = startTwilioTo })
	set("call", func(c *config.Config) { c.Twilio.Call = startCall })

	set("discord-webhook", func(c *config.Config) { c.DiscordWebhook = startDiscordWebhook })
	return overrides
}

// runDetached is the body of the daemon child. Its stdout and stderr are the
// log file.
func runDetached(cfg config.Config) int {
	release, err := daemon.Detach(cfg.Paths)
	if err != nil {
		log.Error("%v", err)
		return citerr.ExitFailure
	}
	defer release()

	log.SetTimestamps(true)
	return runMonitor(cfg)
}

// runForeground runs the monitor in this process, writing to both the
// terminal and the log file.
func runForeground(cfg config.Config) int {
	if err := daemon.EnsureDirectoriesExist(cfg.Paths.StateFile, cfg.Paths.LogFile, cfg.Paths.HistoryDB); err != nil {
		log.Error("%v", err)
		return citerr.ExitFailure
	}
	//nolint:gosec // G302: log file is shared with the daemon, same mode
	logFile, err := os.OpenFile(cfg.Paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		log.Error("Failed to open log file: %v", err)
		return citerr.ExitFailure
	}
	defer func() { _ = logFile.Close() }()

	color.NoColor = true
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	defer log.SetOutput(nil)
	log.SetTimestamps(true)

	return runMonitor(cfg)
}

func runMonitor(cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Info("Cita monitor started (PID %d)", os.Getpid())

	hist := history.New(cfg.Paths.HistoryDB, cfg.Paths.HistoryDB != "")
	if err := hist.Init(); err != nil {
		log.Warn("History disabled: %v", err)
		hist = nil
	}
	defer func() { _ = hist.Close() }()

	notifier, err := notify.FromConfig(cfg)
	if err != nil {
		log.Error("Failed to set up notifications: %v", err)
		return citerr.ExitConfig
	}
	log.InfoH2("Notification channels: %s", strings.Join(notifier.Channels(), ", "))

	m := monitor.New(monitor.Options{
		Config:   cfg,
		Checker:  checker.NewExecChecker(cfg.CheckerCommand, cfg.CheckerTimeout()),
		Notifier: notifier,
		Store:    runstate.NewStore(cfg.Paths.StateFile),
		History:  hist,
	})
	res, err := m.Run(ctx)
	if err != nil {
		log.Error("%v", err)
		return citerr.ExitCode(err)
	}
	log.Debug("monitor finished: %s", res)
	return citerr.ExitOK
}

func init() {
	rootCmd.AddCommand(startCmd)

	f := startCmd.Flags()
	f.BoolVar(&startForeground, "foreground", false, "Run in foreground (don't daemonize)")

	f.StringVar(&startLocation, "location", "", "Province to search, e.g. Barcelona")
	f.StringVar(&startOffice, "office", "", "Office to search, or Any")
	f.StringVar(&startProcedure, "procedure", "", "Procedure (tramite) to book")
	f.BoolVar(&startNoClave, "no-clave", false, "Pass --no-clave to the checker")
	f.IntVar(&startInterval, "interval", config.DefaultIntervalMinutes, "Minutes between checks")
	f.StringVar(&startChecker, "checker", config.DefaultCheckerCommand, "Checker command")

	f.StringVar(&startEmailTo, "email-to", "", "Alert email recipient")
	f.StringVar(&startSMTPServer, "smtp-server", "", "SMTP server host")
	f.IntVar(&startSMTPPort, "smtp-port", config.DefaultSMTPPort, "SMTP server port")
	f.StringVar(&startSMTPUser, "smtp-user", "", "SMTP username (also the sender address)")
	f.StringVar(&startSMTPPass, "smtp-pass", "", "SMTP password")

	f.StringVar(&startTwilioSID, "twilio-sid", "", "Twilio account SID (enables SMS)")
	f.StringVar(&startTwilioToken, "twilio-token", "", "Twilio auth token")
	f.StringVar(&startTwilioFrom, "twilio-from", "", "Twilio sender number")
	f.StringVar(&startTwilioTo, "twilio-to", "", "Phone number to alert")
	f.BoolVar(&startCall, "call", false, "Also place a voice call through Twilio")

	f.StringVar(&startDiscordWebhook, "discord-webhook", "", "Discord webhook URL for alerts")
}
