package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/log"
)

// TwilioBaseURL is the Twilio REST API root.
const TwilioBaseURL = "https://api.twilio.com/2010-04-01"

type twilioResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// TwilioClient posts messages and calls to the Twilio REST API.
type TwilioClient struct {
	accountSID string
	client     *req.Client
}

// NewTwilioClient creates a client authenticated with the account SID and token.
func NewTwilioClient(accountSID, authToken string) *TwilioClient {
	return &TwilioClient{
		accountSID: accountSID,
		client: req.C().
			SetBaseURL(TwilioBaseURL).
			SetUserAgent("citamon").
			SetCommonBasicAuth(accountSID, authToken).
			SetTimeout(30 * time.Second),
	}
}

// SetBaseURL points the client at another API root; tests use an httptest server.
func (t *TwilioClient) SetBaseURL(u string) *TwilioClient {
	t.client.SetBaseURL(strings.TrimRight(u, "/"))
	return t
}

func (t *TwilioClient) create(ctx context.Context, resource string, form map[string]string) (string, error) {
	var ok twilioResource
	var apiErr twilioError

	path := fmt.Sprintf("/Accounts/%s/%s.json", t.accountSID, resource)
	log.DebugH2("Making POST request to Twilio: %s", path)

	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetSuccessResult(&ok).
		SetErrorResult(&apiErr).
		Post(path)
	if err != nil {
		return "", fmt.Errorf("twilio %s request failed: %w", resource, err)
	}

	if !resp.IsSuccessState() {
		if apiErr.Message != "" {
			return "", fmt.Errorf("twilio %s rejected (status %d, code %d): %s", resource, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("twilio %s request end with %d status, %s", resource, resp.StatusCode, resp.String())
	}
	return ok.SID, nil
}

// SendSMS sends body to to and returns the message SID.
func (t *TwilioClient) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	return t.create(ctx, "Messages", map[string]string{
		"From": from,
		"To":   to,
		"Body": body,
	})
}

// Call places a voice call that plays twiml and returns the call SID.
func (t *TwilioClient) Call(ctx context.Context, from, to, twiml string) (string, error) {
	return t.create(ctx, "Calls", map[string]string{
		"From":  from,
		"To":    to,
		"Twiml": twiml,
	})
}

// SMSChannel texts the operator. It handles SlotFound and Test alerts only.
type SMSChannel struct {
	client   *TwilioClient
	from, to string
}

// NewSMSChannel creates the SMS channel.
func NewSMSChannel(client *TwilioClient, from, to string) *SMSChannel {
	return &SMSChannel{client: client, from: from, to: to}
}

func (c *SMSChannel) Name() string   { return "sms" }
func (c *SMSChannel) Required() bool { return false }

func (c *SMSChannel) Send(ctx context.Context, a Alert) error {
	if a.Kind == CheckerBroken {
		return citerr.ErrChannelDisabled
	}
	sid, err := c.client.SendSMS(ctx, c.from, c.to, ShortText(a))
	if err != nil {
		return err
	}
	log.InfoH3("SMS sent to %s (SID: %s)", c.to, sid)
	return nil
}

// CallChannel phones the operator. A ringing phone is the point of this
// channel, so it only fires for SlotFound and Test alerts.
type CallChannel struct {
	client   *TwilioClient
	from, to string
}

// NewCallChannel creates the voice call channel.
func NewCallChannel(client *TwilioClient, from, to string) *CallChannel {
	return &CallChannel{client: client, from: from, to: to}
}

func (c *CallChannel) Name() string   { return "call" }
func (c *CallChannel) Required() bool { return false }

func (c *CallChannel) Send(ctx context.Context, a Alert) error {
	if a.Kind == CheckerBroken {
		return citerr.ErrChannelDisabled
	}
	sid, err := c.client.Call(ctx, c.from, c.to, TwiML(a))
	if err != nil {
		return err
	}
	log.InfoH3("Call initiated to %s (SID: %s)", c.to, sid)
	return nil
}
