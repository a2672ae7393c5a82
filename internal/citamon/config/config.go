//nolint:revive // Config struct field names match YAML structure
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	citerr "github.com/citamon/citamon/internal/citamon/errors"
)

const (
	// FileName is the settings file looked up next to the executable.
	FileName = "citamon.yaml"

	DefaultIntervalMinutes       = 30
	DefaultSMTPPort              = 587
	DefaultCheckerCommand        = "python3 check-cita.py"
	DefaultCheckerTimeoutMinutes = 10
	DefaultInconclusiveThreshold = 6

	DefaultStateFile  = "/tmp/citamon/monitor.json"
	DefaultLogFile    = "/tmp/citamon/monitor.log"
	DefaultHistoryDB  = "/tmp/citamon/history.db"
	DefaultUrgentFile = "/tmp/CITA_AVAILABLE_NOW.txt"

	DefaultVNCURL     = "http://localhost:8080/vnc.html"
	DefaultBookingURL = "https://icp.administracionelectronica.gob.es/icpplus/index.html"
)

// Email holds the required SMTP notification settings.
type Email struct {
	To           string `yaml:"to"`
	SMTPServer   string `yaml:"smtp_server"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
}

// Twilio holds the optional SMS and voice call settings.
type Twilio struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	Call       bool   `yaml:"call"`
}

// Paths are the persisted artifacts of a run.
type Paths struct {
	StateFile  string `yaml:"state_file"`
	LogFile    string `yaml:"log_file"`
	HistoryDB  string `yaml:"history_db"`
	UrgentFile string `yaml:"urgent_file"`
}

// Config is the resolved snapshot of one monitor run. It is built once by
// Resolve and passed by value afterwards.
type Config struct {
	Location  string `yaml:"location"`
	Office    string `yaml:"office"`
	Procedure string `yaml:"procedure"`
	NoClave   bool   `yaml:"no_clave"`

	IntervalMinutes       int    `yaml:"interval_minutes"`
	CheckerCommand        string `yaml:"checker_command"`
	CheckerTimeoutMinutes int    `yaml:"checker_timeout_minutes"`
	InconclusiveThreshold int    `yaml:"inconclusive_threshold"`

	Email          Email  `yaml:"email"`
	Twilio         Twilio `yaml:"twilio"`
	DiscordWebhook string `yaml:"discord_webhook"`

	VNCURL     string `yaml:"vnc_url"`
	BookingURL string `yaml:"booking_url"`

	Paths Paths `yaml:"paths"`
}

// Default returns the configuration used when neither the settings file nor
// the flags set a value.
func Default() Config {
	return Config{
		IntervalMinutes:       DefaultIntervalMinutes,
		CheckerCommand:        DefaultCheckerCommand,
		CheckerTimeoutMinutes: DefaultCheckerTimeoutMinutes,
		InconclusiveThreshold: DefaultInconclusiveThreshold,
		Email: Email{
			SMTPPort: DefaultSMTPPort,
		},
		VNCURL:     DefaultVNCURL,
		BookingURL: DefaultBookingURL,
		Paths: Paths{
			StateFile:  DefaultStateFile,
			LogFile:    DefaultLogFile,
			HistoryDB:  DefaultHistoryDB,
			UrgentFile: DefaultUrgentFile,
		},
	}
}

// DefaultPath returns the settings file path next to the running executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return FileName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), FileName)
}

// Interval is the wait between two probes.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// CheckerTimeout bounds a single probe.
func (c Config) CheckerTimeout() time.Duration {
	return time.Duration(c.CheckerTimeoutMinutes) * time.Minute
}

// SMSEnabled reports whether all Twilio settings are present.
func (c Config) SMSEnabled() bool {
	t := c.Twilio
	return t.AccountSID != "" && t.AuthToken != "" && t.From != "" && t.To != ""
}

// CallEnabled reports whether a voice call should be placed on a found slot.
func (c Config) CallEnabled() bool {
	return c.SMSEnabled() && c.Twilio.Call
}

// Load reads the settings file at path over the defaults. A missing file is
// not an error; found reports whether it existed.
func Load(path string) (cfg Config, found bool, err error) {
	cfg = Default()
	if path == "" {
		return cfg, false, nil
	}

	//nolint:gosec // G304: settings path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("file open error: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, citerr.Wrapf(citerr.ErrInvalidConfig, "error unmarshal yaml %s: %v", path, err)
	}
	return cfg, true, nil
}

// Save writes cfg as YAML. The file holds SMTP and Twilio secrets so it is
// created owner-readable only.
func Save(path string, cfg Config) error {
	var buf bytes.Buffer
	buf.WriteString("# citamon settings. Flags passed to 'citamon start' override these values.\n")
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshal yaml: %w", err)
	}
	buf.Write(out)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Override mutates a loaded configuration. Command line flags are turned
// into overrides so they win over the settings file.
type Override func(*Config)

// Resolve loads the settings file, applies the overrides in order and
// validates the result.
func Resolve(path string, overrides ...Override) (Config, error) {
	cfg, found, err := Load(path)
	if err != nil {
		return cfg, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		var missing *MissingError
		if citerr.As(err, &missing) {
			missing.File = path
			missing.FileFound = found
		}
		return cfg, err
	}
	return cfg, nil
}

// Field describes one required setting and where it can be provided.
type Field struct {
	Key  string
	Flag string
}

func (f Field) String() string {
	return fmt.Sprintf("%s (--%s)", f.Key, f.Flag)
}

type requiredField struct {
	Field
	value func(Config) string
}

var requiredFields = []requiredField{
	{Field{"location", "location"}, func(c Config) string { return c.Location }},
	{Field{"office", "office"}, func(c Config) string { return c.Office }},
	{Field{"procedure", "procedure"}, func(c Config) string { return c.Procedure }},
	{Field{"email.to", "email-to"}, func(c Config) string { return c.Email.To }},
	{Field{"email.smtp_server", "smtp-server"}, func(c Config) string { return c.Email.SMTPServer }},
	{Field{"email.smtp_user", "smtp-user"}, func(c Config) string { return c.Email.SMTPUser }},
	{Field{"email.smtp_password", "smtp-pass"}, func(c Config) string { return c.Email.SMTPPassword }},
}

// MissingError lists every required setting that is empty after merging the
// settings file and the flags.
type MissingError struct {
	Fields    []Field
	File      string
	FileFound bool
}

func (e *MissingError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing required settings: %s", strings.Join(names, ", "))
	switch {
	case e.File == "":
		b.WriteString("\npass the flags to 'citamon start'")
	case e.FileFound:
		fmt.Fprintf(&b, "\nset the keys in %s or pass the flags to 'citamon start'", e.File)
	default:
		fmt.Fprintf(&b, "\nsettings file %s not found: create it with 'citamon init' or pass the flags to 'citamon start'", e.File)
	}
	return b.String()
}

func (e *MissingError) Unwrap() error {
	return citerr.ErrMissingConfig
}

// Missing returns the required fields that are empty.
func (c Config) Missing() []Field {
	var missing []Field
	for _, f := range requiredFields {
		if strings.TrimSpace(f.value(c)) == "" {
			missing = append(missing, f.Field)
		}
	}
	return missing
}

// Validate checks that the configuration can start a run.
func (c Config) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return &MissingError{Fields: missing}
	}
	if c.IntervalMinutes <= 0 {
		return citerr.Wrapf(citerr.ErrInvalidConfig, "interval_minutes must be > 0, got %d", c.IntervalMinutes)
	}
	if c.CheckerTimeoutMinutes <= 0 {
		return citerr.Wrapf(citerr.ErrInvalidConfig, "checker_timeout_minutes must be > 0, got %d", c.CheckerTimeoutMinutes)
	}
	if c.InconclusiveThreshold < 0 {
		return citerr.Wrapf(citerr.ErrInvalidConfig, "inconclusive_threshold must be >= 0, got %d", c.InconclusiveThreshold)
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		return citerr.Wrapf(citerr.ErrInvalidConfig, "email.smtp_port out of range: %d", c.Email.SMTPPort)
	}
	if strings.TrimSpace(c.CheckerCommand) == "" {
		return citerr.Wrap(citerr.ErrInvalidConfig, "checker_command is empty")
	}
	return nil
}

// Warnings returns settings that are accepted but probably not what the
// operator meant.
func (c Config) Warnings() []string {
	var warnings []string
	t := c.Twilio
	anyTwilio := t.AccountSID != "" || t.AuthToken != "" || t.From != "" || t.To != ""
	if anyTwilio && !c.SMSEnabled() {
		warnings = append(warnings, "twilio settings are incomplete: SMS and call channels disabled")
	}
	if t.Call && !c.SMSEnabled() {
		warnings = append(warnings, "twilio.call is set but twilio credentials are missing: no call will be placed")
	}
	return warnings
}
