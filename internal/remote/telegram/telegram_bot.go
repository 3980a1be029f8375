package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/notify"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	bot    *tgbotapi.BotAPI
	send   sender
	chatID int64
	logger *slog.Logger
	status *notify.StatusBoard
}

func (b *Bot) Start(ctx context.Context) error {
	offset, err := b.getLatestOffset()
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 5
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			for range updates {
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil && update.Message.Chat != nil && update.Message.Chat.ID == b.chatID {
				b.handleCommand(update.Message.Text)
			}
		}
	}
}

func (b *Bot) handleCommand(text string) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "status", "/status":
		b.sendText(b.status.Summary())
	case "help", "/help":
		b.sendText("status - last known login stage of every account")
	}
}

// Handle forwards notifications and game exits. OTP ticks are never sent.
func (b *Bot) Handle(_ context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.NotificationEvent:
		return b.sendText(fmt.Sprintf("[%s] %s\n%s", evt.Account(), evt.Title, evt.Message()))
	case event.GameExitedEvent:
		return b.sendText(fmt.Sprintf("[%s] game exited with code %d", evt.Account(), evt.ExitCode))
	}

	return nil
}

func (b *Bot) sendText(text string) error {
	_, err := b.send.Send(tgbotapi.NewMessage(b.chatID, text))
	if err != nil {
		b.logger.Warn("Error sending telegram message", slog.Any("error", err))
	}
	return err
}

func (b *Bot) getLatestOffset() (int, error) {
	upds, err := b.bot.GetUpdates(tgbotapi.NewUpdate(-1))
	if err != nil {
		return 0, err
	}
	offset := 0
	if len(upds) > 0 {
		offset = upds[0].UpdateID + 1
	}
	return offset, nil
}
