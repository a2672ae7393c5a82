package cmd

import (
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/citamon/citamon/internal/citamon/config"
	"github.com/citamon/citamon/internal/log"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Create the settings file interactively",
	Long: `Create or update the settings file by answering a few questions.

The file holds the search (location, office, procedure), the SMTP account used
for alert emails and the optional Twilio and Discord settings. Existing values
are offered as defaults. The file is written with mode 0600 because it
contains passwords.`,
	Example: `  # Create citamon.yaml next to the executable
  citamon init

  # Write to a specific file
  citamon init --config ~/citamon.yaml`,
	Run: func(_ *cobra.Command, _ []string) {
		path := settingsPath()
		cfg, found, err := config.Load(path)
		if err != nil {
			log.Warn("%v, starting from defaults", err)
			cfg = config.Default()
		}

		if found && !initForce {
			overwrite := false
			if err := survey.AskOne(&survey.Confirm{
				Message: fmt.Sprintf("%s exists. Update it?", path),
				Default: true,
			}, &overwrite); err != nil || !overwrite {
				log.Info("Settings file left unchanged")
				return
			}
		}

		if err := askSettings(&cfg); err != nil {
			log.Fatal("Setup canceled: ", err)
		}

		if err := cfg.Validate(); err != nil {
			log.Warn("%v", err)
		}
		exitOnError(config.Save(path, cfg))
		log.Info("Settings written to %s", path)
		log.InfoH2("Send a test alert with 'citamon notify --test'")
		log.InfoH2("Then start monitoring with 'citamon start'")
	},
}

func askSettings(cfg *config.Config) error {
	search := []*survey.Question{
		{
			Name:     "location",
			Prompt:   &survey.Input{Message: "Province (location):", Default: cfg.Location},
			Validate: survey.Required,
		},
		{
			Name:     "office",
			Prompt:   &survey.Input{Message: "Office (or Any):", Default: cfg.Office},
			Validate: survey.Required,
		},
		{
			Name:     "procedure",
			Prompt:   &survey.Input{Message: "Procedure (tramite):", Default: cfg.Procedure},
			Validate: survey.Required,
		},
		{
			Name:     "interval",
			Prompt:   &survey.Input{Message: "Minutes between checks:", Default: strconv.Itoa(cfg.IntervalMinutes)},
			Validate: positiveInt,
		},
	}
	searchAnswers := struct {
		Location  string `survey:"location"`
		Office    string `survey:"office"`
		Procedure string `survey:"procedure"`
		Interval  string `survey:"interval"`
	}{}
	if err := survey.Ask(search, &searchAnswers); err != nil {
		return err
	}
	cfg.Location = searchAnswers.Location
	cfg.Office = searchAnswers.Office
	cfg.Procedure = searchAnswers.Procedure
	cfg.IntervalMinutes, _ = strconv.Atoi(searchAnswers.Interval)

	email := []*survey.Question{
		{
			Name:     "to",
			Prompt:   &survey.Input{Message: "Send alerts to (email):", Default: cfg.Email.To},
			Validate: survey.Required,
		},
		{
			Name:     "server",
			Prompt:   &survey.Input{Message: "SMTP server:", Default: cfg.Email.SMTPServer},
			Validate: survey.Required,
		},
		{
			Name:     "port",
			Prompt:   &survey.Input{Message: "SMTP port:", Default: strconv.Itoa(cfg.Email.SMTPPort)},
			Validate: positiveInt,
		},
		{
			Name:     "user",
			Prompt:   &survey.Input{Message: "SMTP user:", Default: cfg.Email.SMTPUser},
			Validate: survey.Required,
		},
		{
			Name:   "password",
			Prompt: &survey.Password{Message: "SMTP password (empty keeps the current one):"},
		},
	}
	emailAnswers := struct {
		To       string `survey:"to"`
		Server   string `survey:"server"`
		Port     string `survey:"port"`
		User     string `survey:"user"`
		Password string `survey:"password"`
	}{}
	if err := survey.Ask(email, &emailAnswers); err != nil {
		return err
	}
	cfg.Email.To = emailAnswers.To
	cfg.Email.SMTPServer = emailAnswers.Server
	cfg.Email.SMTPPort, _ = strconv.Atoi(emailAnswers.Port)
	cfg.Email.SMTPUser = emailAnswers.User
	if emailAnswers.Password != "" {
		cfg.Email.SMTPPassword = emailAnswers.Password
	}

	useTwilio := cfg.SMSEnabled()
	if err := survey.AskOne(&survey.Confirm{Message: "Also alert by SMS through Twilio?", Default: useTwilio}, &useTwilio); err != nil {
		return err
	}
	if useTwilio {
		twilio := []*survey.Question{
			{Name: "sid", Prompt: &survey.Input{Message: "Twilio account SID:", Default: cfg.Twilio.AccountSID}, Validate: survey.Required},
			{Name: "token", Prompt: &survey.Password{Message: "Twilio auth token (empty keeps the current one):"}},
			{Name: "from", Prompt: &survey.Input{Message: "Twilio sender number:", Default: cfg.Twilio.From}, Validate: survey.Required},
			{Name: "to", Prompt: &survey.Input{Message: "Your phone number:", Default: cfg.Twilio.To}, Validate: survey.Required},
			{Name: "call", Prompt: &survey.Confirm{Message: "Also call you?", Default: cfg.Twilio.Call}},
		}
		twilioAnswers := struct {
			SID   string `survey:"sid"`
			Token string `survey:"token"`
			From  string `survey:"from"`
			To    string `survey:"to"`
			Call  bool   `survey:"call"`
		}{}
		if err := survey.Ask(twilio, &twilioAnswers); err != nil {
			return err
		}
		cfg.Twilio.AccountSID = twilioAnswers.SID
		if twilioAnswers.Token != "" {
			cfg.Twilio.AuthToken = twilioAnswers.Token
		}
		cfg.Twilio.From = twilioAnswers.From
		cfg.Twilio.To = twilioAnswers.To
		cfg.Twilio.Call = twilioAnswers.Call
	} else {
		cfg.Twilio = config.Twilio{}
	}

	return survey.AskOne(&survey.Input{
		Message: "Discord webhook URL (optional):",
		Default: cfg.DiscordWebhook,
	}, &cfg.DiscordWebhook)
}

func positiveInt(ans interface{}) error {
	s, _ := ans.(string)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a whole number greater than zero")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Update an existing settings file without asking")
}

