// Package notify fans an alert out to every configured channel. Email is the
// required channel; SMS, voice call and Discord are best-effort extras.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
)

// Kind tells channels what the alert is about.
type Kind int

const (
	// SlotFound is the urgent alert: a slot is bookable right now.
	SlotFound Kind = iota
	// CheckerBroken reports a long streak of inconclusive probes.
	CheckerBroken
	// Test is sent by 'citamon notify --test'.
	Test
)

func (k Kind) String() string {
	switch k {
	case SlotFound:
		return "slot_found"
	case CheckerBroken:
		return "checker_broken"
	default:
		return "test"
	}
}

// Alert is the data every channel renders.
type Alert struct {
	Kind       Kind
	Location   string
	Office     string
	Procedure  string
	DetectedAt time.Time
	VNCURL     string
	BookingURL string

	// CheckerBroken only
	Streak    int
	LastError string
}

// NewAlert fills the common fields of an alert from cfg.
func NewAlert(kind Kind, cfg config.Config, at time.Time) Alert {
	return Alert{
		Kind:       kind,
		Location:   cfg.Location,
		Office:     cfg.Office,
		Procedure:  cfg.Procedure,
		DetectedAt: at,
		VNCURL:     cfg.VNCURL,
		BookingURL: cfg.BookingURL,
	}
}

// Channel delivers an alert one way. Send returns ErrChannelDisabled when the
// channel deliberately ignores this kind of alert.
type Channel interface {
	Name() string
	Required() bool
	Send(ctx context.Context, a Alert) error
}

// Notifier is what the monitor loop calls when it has something to say.
type Notifier interface {
	Notify(ctx context.Context, a Alert) Report
}

// ChannelResult is the delivery status of one channel.
type ChannelResult struct {
	Channel  string
	Required bool
	Skipped  bool
	Err      error
	Duration time.Duration
}

// OK reports whether the channel delivered the alert.
func (r ChannelResult) OK() bool {
	return !r.Skipped && r.Err == nil
}

// Report aggregates the results of one fan-out, in channel order.
type Report struct {
	Results []ChannelResult
}

// Attempted counts channels that tried to deliver.
func (r Report) Attempted() int {
	n := 0
	for _, res := range r.Results {
		if !res.Skipped {
			n++
		}
	}
	return n
}

// Succeeded counts channels that delivered.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Err is non-nil when a required channel failed or nothing was delivered.
func (r Report) Err() error {
	var failed []string
	requiredFailed := false
	for _, res := range r.Results {
		if res.Skipped || res.Err == nil {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %v", res.Channel, res.Err))
		if res.Required {
			requiredFailed = true
		}
	}

	switch {
	case requiredFailed:
		return citerr.Wrap(citerr.ErrEmailFailed, strings.Join(failed, "; "))
	case r.Attempted() > 0 && r.Succeeded() == 0:
		return citerr.Wrap(citerr.ErrAllChannelsFailed, strings.Join(failed, "; "))
	default:
		return nil
	}
}

// Summary is a one-line human description, e.g. "2/3 delivered (email ok, sms failed: ...)".
func (r Report) Summary() string {
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			parts = append(parts, res.Channel+" skipped")
		case res.Err != nil:
			parts = append(parts, fmt.Sprintf("%s failed: %v", res.Channel, res.Err))
		default:
			parts = append(parts, res.Channel+" ok")
		}
	}
	return fmt.Sprintf("%d/%d delivered (%s)", r.Succeeded(), r.Attempted(), strings.Join(parts, ", "))
}

// DefaultChannelTimeout bounds a single channel's delivery.
const DefaultChannelTimeout = 60 * time.Second

// FanOut sends an alert through all its channels. It keeps no state between
// calls and never retries; the caller decides whether to call again.
type FanOut struct {
	channels []Channel
	timeout  time.Duration
}

// New creates a fan-out over channels. Channels are attempted concurrently
// and reported in the order given.
func New(channels ...Channel) *FanOut {
	return &FanOut{channels: channels, timeout: DefaultChannelTimeout}
}

// FromConfig builds the fan-out for cfg: email always, SMS and call when the
// Twilio settings allow it, Discord when a webhook is set.
func FromConfig(cfg config.Config) (*FanOut, error) {
	channels := []Channel{NewEmailChannel(cfg.Email)}

	if cfg.SMSEnabled() {
		tw := NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
		channels = append(channels, NewSMSChannel(tw, cfg.Twilio.From, cfg.Twilio.To))
		if cfg.CallEnabled() {
			channels = append(channels, NewCallChannel(tw, cfg.Twilio.From, cfg.Twilio.To))
		}
	}

	if cfg.DiscordWebhook != "" {
		dc, err := NewDiscordChannel(cfg.DiscordWebhook)
		if err != nil {
			return nil, err
		}
		channels = append(channels, dc)
	}

	return New(channels...), nil
}

// Channels lists the channel names in fan-out order.
func (f *FanOut) Channels() []string {
	names := make([]string, 0, len(f.channels))
	for _, c := range f.channels {
		names = append(names, c.Name())
	}
	return names
}

// Notify attempts every channel independently and waits for all of them.
func (f *FanOut) Notify(ctx context.Context, a Alert) Report {
	results := make([]ChannelResult, len(f.channels))

	var wg sync.WaitGroup
	for i, ch := range f.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			results[i] = f.send(ctx, ch, a)
		}(i, ch)
	}
	wg.Wait()

	return Report{Results: results}
}

func (f *FanOut) send(ctx context.Context, ch Channel, a Alert) (res ChannelResult) {
	res = ChannelResult{Channel: ch.Name(), Required: ch.Required()}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("channel panicked: %v", p)
		}
		res.Duration = time.Since(start)
	}()

	sendCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	err := ch.Send(sendCtx, a)
	if citerr.Is(err, citerr.ErrChannelDisabled) {
		res.Skipped = true
		return res
	}
	res.Err = err
	return res
}
