// Package relay holds the collaborators on either side of the gateway:
// the sink for Discord chat headed into the game and the webhook poster
// for traffic headed the other way.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberwake/relaygate/src/gateway"
	"github.com/emberwake/relaygate/src/rest"
	"github.com/emberwake/relaygate/src/structs"
	"github.com/emberwake/relaygate/src/utils"
)

// ChatLog is the game-facing bridge. The actual game server hook
// subscribes through this; on its own it records each surviving message
// with its resolved display name and color.
type ChatLog struct {
	log zerolog.Logger
}

func NewChatLog(logger zerolog.Logger) *ChatLog {
	return &ChatLog{log: logger}
}

func (c *ChatLog) RelayChat(_ context.Context, msg gateway.RelayedMessage) {
	event := c.log.Info().Str("author", msg.AuthorName).Str("content", msg.Content)
	if msg.HasColor {
		event = event.Int("color", msg.Color)
	}
	event.Msg("chat relayed from discord")
}

// Poster is the outbound path: game chat and lifecycle announcements
// posted through a channel webhook, reusing the rate limited request
// client. A failed post never disturbs gateway connectivity.
type Poster struct {
	rest         *rest.Client
	webhookID    string
	webhookToken string
	log          zerolog.Logger
}

func NewPoster(cfg utils.AppConfig, client *rest.Client, logger zerolog.Logger) *Poster {
	return &Poster{
		rest:         client,
		webhookID:    cfg.WebhookID,
		webhookToken: cfg.WebhookToken,
		log:          logger,
	}
}

// Configured reports whether a webhook identity is present; without one
// every post is silently skipped.
func (p *Poster) Configured() bool {
	return p.webhookID != "" && p.webhookToken != ""
}

// PostChat relays one game chat line to Discord, impersonating the
// player's name and avatar. Mentions are always suppressed.
func (p *Poster) PostChat(ctx context.Context, name string, avatarURL string, content string) error {
	if !p.Configured() {
		return nil
	}
	return p.rest.ExecuteWebhook(ctx, p.webhookID, p.webhookToken, false, structs.WebhookMessage{
		Content:         content,
		Username:        name,
		AvatarURL:       avatarURL,
		AllowedMentions: structs.NoMentions(),
	})
}

// PostEmbed posts a standalone event embed (start/stop, join/leave style
// announcements).
func (p *Poster) PostEmbed(ctx context.Context, embed structs.Embed) error {
	if !p.Configured() {
		return nil
	}
	return p.rest.ExecuteWebhook(ctx, p.webhookID, p.webhookToken, false, structs.WebhookMessage{
		Embeds:          []structs.Embed{embed},
		AllowedMentions: structs.NoMentions(),
	})
}

const (
	colorGreen = 0x00FF00
	colorRed   = 0xFF0000
)

// AnnounceStarted posts the bridge-online embed.
func (p *Poster) AnnounceStarted(ctx context.Context, publicAddress string) {
	embed := structs.Embed{
		Description: "The server is now open!",
		Color:       colorGreen,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if publicAddress != "" {
		embed.Fields = []structs.EmbedField{{Name: "Address", Value: publicAddress, Inline: true}}
	}
	if err := p.PostEmbed(ctx, embed); err != nil {
		p.log.Error().Err(err).Msg("failed to post start announcement")
	}
}

// AnnounceStopped posts the bridge-offline embed.
func (p *Poster) AnnounceStopped(ctx context.Context) {
	embed := structs.Embed{
		Description: "The server has closed.",
		Color:       colorRed,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.PostEmbed(ctx, embed); err != nil {
		p.log.Error().Err(err).Msg("failed to post stop announcement")
	}
}
