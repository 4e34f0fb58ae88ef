// Package telegram sends offline direct-message notifications through the
// Telegram Bot API to users who linked a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"marketchat/backend/internal/localization"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const previewRunes = 200

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier implements chathub.OfflineNotifier.
type Notifier struct {
	Sender    Sender
	Storage   storage.Storage
	Localizer *localization.Localizer
	log       *slog.Logger
}

// NewNotifier authorizes the bot token and builds a Notifier.
func NewNotifier(token string, s storage.Storage, l *localization.Localizer, log *slog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	bot.Debug = false
	if log == nil {
		log = slog.Default()
	}
	log.Info("telegram.authorized", "bot", bot.Self.UserName)
	return &Notifier{Sender: bot, Storage: s, Localizer: l, log: log}, nil
}

// NotifyOffline tells the receiver of msg about it in Telegram. Receivers
// without a linked chat are skipped silently.
func (n *Notifier) NotifyOffline(ctx context.Context, msg models.Message) error {
	receiver, err := n.Storage.GetUser(ctx, msg.ReceiverID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("telegram: load receiver %s: %w", msg.ReceiverID, err)
	}
	if receiver.TelegramChatID == nil {
		return nil
	}

	from := msg.SenderID
	if sender, err := n.Storage.GetUser(ctx, msg.SenderID); err == nil && sender.DisplayName != "" {
		from = sender.DisplayName
	}

	text := n.render(receiver.Language, from, msg)
	if _, err := n.Sender.Send(tgbotapi.NewMessage(*receiver.TelegramChatID, text)); err != nil {
		return fmt.Errorf("telegram: send to %s: %w", msg.ReceiverID, err)
	}
	n.log.Debug("telegram.notified", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
	return nil
}

func (n *Notifier) render(lang, from string, msg models.Message) string {
	var b strings.Builder
	if msg.Content != "" {
		b.WriteString(n.Localizer.Format(lang, "new_message", from, preview(msg.Content)))
	} else {
		b.WriteString(n.Localizer.Format(lang, "new_attachment", from))
	}
	b.WriteString("\n\n")
	b.WriteString(n.Localizer.GetString(lang, "open_chat"))
	return b.String()
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "…"
}
