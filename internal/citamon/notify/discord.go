package notify

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/webhook"
)

// DiscordChannel posts an embed to a Discord webhook.
type DiscordChannel struct {
	send func(embeds []discord.Embed) error
}

// NewDiscordChannel creates a channel for the webhook URL.
func NewDiscordChannel(webhookURL string) (*DiscordChannel, error) {
	client, err := webhook.NewWithURL(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook client: %w", err)
	}
	return &DiscordChannel{
		send: func(embeds []discord.Embed) error {
			_, err := client.CreateEmbeds(embeds)
			return err
		},
	}, nil
}

func (c *DiscordChannel) Name() string   { return "discord" }
func (c *DiscordChannel) Required() bool { return false }

// Embed renders a as a Discord embed.
func Embed(a Alert) discord.Embed {
	color := 0x4CAF50
	title := "🎉 CITA AVAILABLE!"
	switch a.Kind {
	case CheckerBroken:
		color = 0xFFC107
		title = "⚠️ Checker failing"
	case Test:
		color = 0x1976D2
		title = "citamon test notification"
	}

	b := discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(ShortText(a)).
		SetColor(color).
		SetTimestamp(a.DetectedAt).
		AddField("Location", a.Location, true).
		AddField("Office", a.Office, true).
		AddField("Procedure", a.Procedure, false).
		SetFooter("citamon", "")
	if a.Kind == SlotFound {
		b = b.SetURL(a.BookingURL)
	}
	return b.Build()
}

func (c *DiscordChannel) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.send([]discord.Embed{Embed(a)}); err != nil {
		return fmt.Errorf("failed to post discord webhook: %w", err)
	}
	return nil
}
