package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/citamon/citamon/internal/citamon/config"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends an HTML email over SMTP. It is the required channel and
// handles every alert kind.
type EmailChannel struct {
	cfg    config.Email
	dialer mailSender
}

// NewEmailChannel creates the SMTP channel. Port 587 upgrades with STARTTLS.
func NewEmailChannel(cfg config.Email) *EmailChannel {
	return &EmailChannel{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
	}
}

func (c *EmailChannel) Name() string   { return "email" }
func (c *EmailChannel) Required() bool { return true }

// Message builds the email without sending it.
func (c *EmailChannel) Message(a Alert) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.SMTPUser)
	m.SetHeader("To", c.cfg.To)
	m.SetHeader("Subject", Subject(a))
	if a.Kind == SlotFound {
		m.SetHeader("X-Priority", "1")
	}
	m.SetBody("text/plain", ShortText(a))
	m.AddAlternative("text/html", HTMLBody(a))
	return m
}

// Send delivers a. gomail has no context support, so ctx is only checked
// before dialing.
func (c *EmailChannel) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dialer.DialAndSend(c.Message(a)); err != nil {
		return fmt.Errorf("failed to send email to %s via %s:%d: %w", c.cfg.To, c.cfg.SMTPServer, c.cfg.SMTPPort, err)
	}
	return nil
}
