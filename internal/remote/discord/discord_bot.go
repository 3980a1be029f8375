package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hectorgimenez/koolaunch/internal/notify"
)

type Options struct {
	Token               string
	ChannelID           string
	UseWebhook          bool
	WebhookURL          string
	BotAdmins           []string
	EnableStageMessages bool
	EnableErrorMessages bool
	EnableGameExit      bool
	EnablePatchMessages bool
}

type Bot struct {
	discordSession *discordgo.Session
	channelID      string
	useWebhook     bool
	webhookClient  *webhookClient
	status         *notify.StatusBoard
	opts           Options
}

func NewBot(opts Options, status *notify.StatusBoard) (*Bot, error) {
	botInstance := &Bot{
		channelID:  opts.ChannelID,
		useWebhook: opts.UseWebhook,
		status:     status,
		opts:       opts,
	}

	if opts.UseWebhook {
		if opts.WebhookURL == "" {
			return nil, fmt.Errorf("webhook URL is required when using webhook mode")
		}
		botInstance.webhookClient = newWebhookClient(opts.WebhookURL)
		return botInstance, nil
	}

	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	botInstance.discordSession = dg

	return botInstance, nil
}

func (b *Bot) Start(ctx context.Context) error {
	if b.useWebhook {
		<-ctx.Done()
		return nil
	}

	b.discordSession.AddHandler(b.onMessageCreated)
	b.discordSession.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	err := b.discordSession.Open()
	if err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	<-ctx.Done()

	return b.discordSession.Close()
}

func (b *Bot) onMessageCreated(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if !slices.Contains(b.opts.BotAdmins, m.Author.ID) {
		return
	}
	if !strings.HasPrefix(m.Content, "!") {
		return
	}

	prefix := strings.Split(m.Content, " ")[0]
	switch prefix {
	case "!status":
		b.handleStatusRequest(s, m)
	case "!help":
		b.handleHelpRequest(s, m)
	default:
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Unknown command: `%s`. Type `!help` for available commands.", prefix))
	}
}
