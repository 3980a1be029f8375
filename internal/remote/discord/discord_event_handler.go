package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hectorgimenez/koolaunch/internal/event"
)

const (
	colorInfo  = 0x3498db
	colorError = 0xe74c3c
	colorFatal = 0x992d22
)

func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	if !b.shouldPublish(e) {
		return nil
	}

	switch evt := e.(type) {
	case event.NotificationEvent:
		return b.sendEmbed(ctx, buildNotificationEmbed(evt))
	case event.StageChangedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** %s", evt.Account(), evt.Stage))
	case event.GameExitedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** game exited with code %d", evt.Account(), evt.ExitCode))
	case event.PatchProgressEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** %s", evt.Account(), evt.Message()))
	}

	return nil
}

func buildNotificationEmbed(evt event.NotificationEvent) *discordgo.MessageEmbed {
	color := colorInfo
	switch evt.Severity {
	case event.SeverityError:
		color = colorError
	case event.SeverityFatal:
		color = colorFatal
	}

	return &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Message(),
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: evt.Account()},
		Timestamp:   evt.OccurredAt().Format(time.RFC3339),
	}
}

func (b *Bot) sendEventMessage(ctx context.Context, message string) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message)
	}

	_, err := b.discordSession.ChannelMessageSend(b.channelID, message)
	return err
}

func (b *Bot) sendEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	if b.useWebhook {
		return b.webhookClient.SendEmbed(ctx, embed)
	}

	_, err := b.discordSession.ChannelMessageSendEmbed(b.channelID, embed)
	return err
}

// shouldPublish filters events per the configured toggles. OTP ticks are never
// published.
func (b *Bot) shouldPublish(e event.Event) bool {
	switch evt := e.(type) {
	case event.NotificationEvent:
		if evt.Severity == event.SeverityInfo {
			return b.opts.EnableStageMessages
		}
		return b.opts.EnableErrorMessages
	case event.StageChangedEvent:
		return b.opts.EnableStageMessages
	case event.GameExitedEvent:
		return b.opts.EnableGameExit
	case event.PatchProgressEvent:
		// only the start and the end of a patch run, not every poll
		return b.opts.EnablePatchMessages && ((evt.Index == 0 && evt.Ratio == 0) || evt.Ratio >= 1)
	default:
		return false
	}
}
