// Package bot runs the Telegram side of the system: the long-poll update
// loop, the command dispatch, and the inline button callbacks.
package bot

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/ntolkachev-gh/ai-community-bot/internal/registration"
	"github.com/ntolkachev-gh/ai-community-bot/internal/service"
)

// Bot dispatches inbound chat updates to the registration dialog, the
// booking workflow, and the informational commands. Updates are handled
// one at a time, in arrival order.
type Bot struct {
	api     *tgbotapi.BotAPI
	users   *service.UserService
	booking *service.BookingService
	events  *service.EventService
	flow    *registration.Flow
}

// New constructs a Bot over an authorized API client.
func New(api *tgbotapi.BotAPI, users *service.UserService, booking *service.BookingService, events *service.EventService, flow *registration.Flow) *Bot {
	return &Bot{api: api, users: users, booking: booking, events: events, flow: flow}
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}
	log.Printf("bot: authorized on account %s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("bot: send to chat %d failed: %v", chatID, err)
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("bot: send to chat %d failed: %v", chatID, err)
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("bot: edit in chat %d failed: %v", chatID, err)
	}
}

// Messenger adapts the API client to the scheduler's Notifier. The
// scheduler fires from its own timer goroutines, independent of the
// update loop.
type Messenger struct {
	api *tgbotapi.BotAPI
}

// NewMessenger constructs a Messenger.
func NewMessenger(api *tgbotapi.BotAPI) *Messenger {
	return &Messenger{api: api}
}

// Notify sends a plain text message to the chat.
func (m *Messenger) Notify(chatID int64, text string) error {
	_, err := m.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
