// Package cmd provides command-line interface commands for citamon
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/log"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "citamon",
	Short: "Watch for Spanish cita previa appointments and alert when one opens",
	Long: `citamon - cita previa availability monitor

Runs an appointment checker on a fixed interval in the background. When a
slot opens it alerts you once by email (plus SMS, phone call and Discord when
configured), leaves an urgent marker file and stops.

Settings are read from citamon.yaml next to the executable (or --config) and
can be overridden with flags on 'citamon start'.`,
	Example: `  # Create a settings file interactively
  citamon init

  # Start monitoring in the background
  citamon start

  # Check what the monitor is doing
  citamon status

  # Follow the monitor log
  citamon logs --follow

  # Stop monitoring
  citamon stop`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		// Enable debug mode if flag is set
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			log.SetDebugMode(true)
			log.Debug("Debug mode enabled")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: citamon.yaml next to the executable)")
}
