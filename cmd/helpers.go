package cmd

import (
	"os"

	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/log"
)

// settingsPath is the settings file chosen with --config, or the default one.
func settingsPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// loadPaths returns the artifact paths without requiring a complete
// configuration, for commands that only inspect a run.
func loadPaths() config.Paths {
	cfg, _, err := config.Load(settingsPath())
	if err != nil {
		log.Warn("%v, using default paths", err)
		return config.Default().Paths
	}
	return cfg.Paths
}

// exitOnError prints err and exits with the status matching its kind.
func exitOnError(err error) {
	if err == nil {
		return
	}
	log.FatalCode(citerr.ExitCode(err), err)
}

// exitQuietly exits with the status matching err without printing it.
func exitQuietly(err error) {
	if err != nil {
		os.Exit(citerr.ExitCode(err))
	}
}
