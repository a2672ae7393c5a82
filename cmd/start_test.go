package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
)

var startFlagNames = []string{
	"foreground", "location", "office", "procedure", "no-clave", "interval", "checker",
	"email-to", "smtp-server", "smtp-port", "smtp-user", "smtp-pass",
	"twilio-sid", "twilio-token", "twilio-from", "twilio-to", "call", "discord-webhook",
}

func resetStartFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		for _, name := range startFlagNames {
			f := startCmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	reset()
	t.Cleanup(reset)
}

func TestStartCommand_Flags(t *testing.T) {
	for _, name := range startFlagNames {
		if startCmd.Flags().Lookup(name) == nil {
			t.Errorf("start command should have --%s flag", name)
		}
	}

	if f := startCmd.Flags().Lookup("interval"); f != nil && f.DefValue != "30" {
		t.Errorf("--interval default = %q, want 30", f.DefValue)
	}
	if f := startCmd.Flags().Lookup("smtp-port"); f != nil && f.DefValue != "587" {
		t.Errorf("--smtp-port default = %q, want 587", f.DefValue)
	}
}

//nolint:dupl // Test structure is similar but tests different commands
func TestStartCommand_Structure(t *testing.T) {
	tests := []struct {
		name      string
		checkFunc func(*testing.T)
	}{
		{
			name: "command has correct use",
			checkFunc: func(t *testing.T) {
				if startCmd.Use != "start" {
					t.Errorf("start command Use = %q, want %q", startCmd.Use, "start")
				}
			},
		},
		{
			name: "command has long description",
			checkFunc: func(t *testing.T) {
				if !strings.Contains(startCmd.Long, "--foreground") {
					t.Error("start command Long description should mention --foreground")
				}
			},
		},
		{
			name: "command has examples",
			checkFunc: func(t *testing.T) {
				if startCmd.Example == "" {
					t.Error("start command should have examples")
				}
			},
		},
		{
			name: "command has run function",
			checkFunc: func(t *testing.T) {
				if startCmd.Run == nil {
					t.Error("start command should have Run function")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.checkFunc)
	}
}

func writeSettings(t *testing.T, cfg config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func fileConfig() config.Config {
	cfg := config.Default()
	cfg.Location = "Barcelona"
	cfg.Office = "CNP Rambla Guipuscoa"
	cfg.Procedure = "POLICIA-TOMA DE HUELLAS"
	cfg.IntervalMinutes = 20
	cfg.Email = config.Email{
		To:           "file@example.com",
		SMTPServer:   "smtp.file.example",
		SMTPPort:     465,
		SMTPUser:     "bot@file.example",
		SMTPPassword: "file-secret",
	}
	return cfg
}

func TestStartOverrides_OnlyChangedFlags(t *testing.T) {
	resetStartFlags(t)
	path := writeSettings(t, fileConfig())

	// No flags: the file wins over every flag default.
	got, err := config.Resolve(path, startOverrides(startCmd)...)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if diff := cmp.Diff(fileConfig(), got); diff != "" {
		t.Errorf("unset flags changed the file values (-want +got):\n%s", diff)
	}

	if err := startCmd.Flags().Set("office", "CNP Malaga"); err != nil {
		t.Fatal(err)
	}
	if err := startCmd.Flags().Set("interval", "5"); err != nil {
		t.Fatal(err)
	}
	if err := startCmd.Flags().Set("call", "true"); err != nil {
		t.Fatal(err)
	}

	got, err = config.Resolve(path, startOverrides(startCmd)...)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := fileConfig()
	want.Office = "CNP Malaga"
	want.IntervalMinutes = 5
	want.Twilio.Call = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve() with flags mismatch (-want +got):\n%s", diff)
	}
}

func TestStartOverrides_FlagsCompleteMissingFile(t *testing.T) {
	resetStartFlags(t)
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := config.Resolve(path, startOverrides(startCmd)...)
	if citerr.ExitCode(err) != citerr.ExitConfig {
		t.Fatalf("Resolve() without file or flags = %v, want exit code %d", err, citerr.ExitConfig)
	}
	if !strings.Contains(err.Error(), "citamon init") {
		t.Errorf("missing-file error should suggest 'citamon init': %v", err)
	}

	for flag, value := range map[string]string{
		"location":    "Madrid",
		"office":      "Any",
		"procedure":   "TIE",
		"email-to":    "me@example.com",
		"smtp-server": "smtp.example.com",
		"smtp-user":   "bot@example.com",
		"smtp-pass":   "secret",
	} {
		if err := startCmd.Flags().Set(flag, value); err != nil {
			t.Fatal(err)
		}
	}

	cfg, err := config.Resolve(path, startOverrides(startCmd)...)
	if err != nil {
		t.Fatalf("Resolve() with all required flags = %v", err)
	}
	if cfg.Location != "Madrid" || cfg.Email.SMTPPassword != "secret" || cfg.IntervalMinutes != config.DefaultIntervalMinutes {
		t.Errorf("Resolve() = %+v", cfg)
	}
}

func TestSettingsPath(t *testing.T) {
	old := configPath
	t.Cleanup(func() { configPath = old })

	configPath = ""
	if got := settingsPath(); filepath.Base(got) != config.FileName {
		t.Errorf("settingsPath() = %q, want a %s", got, config.FileName)
	}

	configPath = filepath.Join(os.TempDir(), "custom.yaml")
	if got := settingsPath(); got != configPath {
		t.Errorf("settingsPath() = %q, want %q", got, configPath)
	}
}
