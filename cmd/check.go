package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/checker"
	"github.com/citamon/citamon/internal/citamon/config"
	"github.com/citamon/citamon/internal/log"
)

var (
	checkLocation  string
	checkOffice    string
	checkProcedure string
	checkNoClave   bool
	checkCommand   string
	checkTimeout   time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one availability check now",
	Long: `Run the checker once in the foreground and print the outcome.

Exits 0 when a slot is available, 1 when none is, and 2 when the check was
inconclusive. Nothing is notified and no run-state is written.`,
	Example: `  # Check with the settings file
  citamon check

  # Check a different office
  citamon check --office "CNP Malaga"`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, _, err := config.Load(settingsPath())
		exitOnError(err)
		for _, o := range checkOverrides(cmd) {
			o(&cfg)
		}
		exitOnError(checkQueryComplete(cfg))

		timeout := cfg.CheckerTimeout()
		if cmd.Flags().Changed("timeout") {
			timeout = checkTimeout
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info("[CHECK] %s / %s / %s", cfg.Location, cfg.Office, cfg.Procedure)
		res := checker.NewExecChecker(cfg.CheckerCommand, timeout).Check(ctx, checker.Query{
			Location:  cfg.Location,
			Office:    cfg.Office,
			Procedure: cfg.Procedure,
			NoClave:   cfg.NoClave,
		})
		if res.Output != "" {
			log.Debug("checker output:\n%s", res.Output)
		}

		switch res.Outcome {
		case checker.Found:
			log.Info("[FOUND] Appointment available (%v)", res.Duration.Round(time.Second))
		case checker.NotFound:
			log.Info("[NO-SLOT] No appointments available (%v)", res.Duration.Round(time.Second))
		default:
			log.Warn("[INCONCLUSIVE] %s", res.Detail())
		}
		stop()
		os.Exit(checkExitCode(res.Outcome))
	},
}

func checkOverrides(cmd *cobra.Command) []config.Override {
	changed := cmd.Flags().Changed
	var overrides []config.Override
	if changed("location") {
		overrides = append(overrides, func(c *config.Config) { c.Location = checkLocation })
	}
	if changed("office") {
		overrides = append(overrides, func(c *config.Config) { c.Office = checkOffice })
	}
	if changed("procedure") {
		overrides = append(overrides, func(c *config.Config) { c.Procedure = checkProcedure })
	}
	if changed("no-clave") {
		overrides = append(overrides, func(c *config.Config) { c.NoClave = checkNoClave })
	}
	if changed("checker") {
		overrides = append(overrides, func(c *config.Config) { c.CheckerCommand = checkCommand })
	}
	return overrides
}

// checkQueryComplete requires only the settings a single probe needs.
func checkQueryComplete(cfg config.Config) error {
	var missing []config.Field
	for _, f := range cfg.Missing() {
		switch f.Key {
		case "location", "office", "procedure":
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &config.MissingError{Fields: missing, File: settingsPath()}
	}
	return nil
}

// checkExitCode mirrors the checker's own exit convention.
func checkExitCode(o checker.Outcome) int {
	switch o {
	case checker.Found:
		return checker.ExitFound
	case checker.NotFound:
		return checker.ExitNotFound
	default:
		return 2
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)

	f := checkCmd.Flags()
	f.StringVar(&checkLocation, "location", "", "Province to search")
	f.StringVar(&checkOffice, "office", "", "Office to search, or Any")
	f.StringVar(&checkProcedure, "procedure", "", "Procedure (tramite) to book")
	f.BoolVar(&checkNoClave, "no-clave", false, "Pass --no-clave to the checker")
	f.StringVar(&checkCommand, "checker", config.DefaultCheckerCommand, "Checker command")
	f.DurationVar(&checkTimeout, "timeout", time.Duration(config.DefaultCheckerTimeoutMinutes)*time.Minute, "Checker timeout")
}
