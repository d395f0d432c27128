package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/ntolkachev-gh/ai-community-bot/internal/registration"
	"github.com/ntolkachev-gh/ai-community-bot/internal/repository"
	"github.com/ntolkachev-gh/ai-community-bot/internal/service"
)

const dateFormat = "02.01.2006 15:04"

const genericErrorText = "Произошла ошибка. Попробуйте позже."

const restartText = "Произошла ошибка. Начните регистрацию заново с /start"

const hintText = "Используйте команды для взаимодействия с ботом:\n" +
	"/events - Просмотр мероприятий\n" +
	"/my_events - Мои регистрации\n" +
	"/help - Помощь"

const helpText = `🤖 AI Community Bot - Помощь

Доступные команды:
/start - Регистрация в системе
/events - Просмотр доступных мероприятий
/my_events - Мои регистрации
/profile - Мой профиль
/edit_profile - Изменить профиль
/timezone - Часовой пояс
/help - Эта справка

Как использовать:
1. Начните с команды /start для регистрации
2. Используйте /events для просмотра мероприятий
3. Нажмите на кнопку "Записаться" для регистрации
4. Проверьте свои регистрации через /my_events
5. Отмените регистрацию при необходимости

За день до мероприятия вы получите напоминание!`

// commonTimezones are the zone choices offered by /timezone without an
// argument. Any IANA name is accepted as a command argument.
var commonTimezones = []string{
	"Europe/Kaliningrad",
	"Europe/Moscow",
	"Asia/Yekaterinburg",
	"Asia/Novosibirsk",
	"Asia/Krasnoyarsk",
	"Asia/Irkutsk",
	"Asia/Vladivostok",
	"UTC",
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "events":
		b.handleEvents(ctx, msg)
	case "my_events":
		b.handleMyEvents(ctx, msg)
	case "profile":
		b.handleProfile(ctx, msg)
	case "edit_profile":
		b.handleEditProfile(ctx, msg)
	case "timezone":
		b.handleTimezone(ctx, msg)
	case "help":
		b.send(msg.Chat.ID, helpText)
	default:
		b.send(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := int64(msg.From.ID)
	user, _, err := b.users.Ensure(ctx, from, msg.From.UserName, msg.From.FirstName, msg.From.LastName)
	if err != nil {
		log.Printf("bot: ensure user %d: %v", from, err)
		b.send(msg.Chat.ID, "Произошла ошибка при регистрации. Попробуйте позже.")
		return
	}

	if user.IsProfileComplete {
		b.send(msg.Chat.ID, fmt.Sprintf("С возвращением, %s! 😊\n\n"+
			"Вы уже зарегистрированы в системе.\n\n"+
			"Используйте /events для просмотра мероприятий.", msg.From.FirstName))
		return
	}

	res, err := b.flow.Start(ctx, from)
	if err != nil {
		log.Printf("bot: start registration for %d: %v", from, err)
		b.send(msg.Chat.ID, genericErrorText)
		return
	}
	b.sendFlowResult(msg.Chat.ID, res)
}

func (b *Bot) handleEvents(ctx context.Context, msg *tgbotapi.Message) {
	events, err := b.events.Upcoming(ctx)
	if err != nil {
		log.Printf("bot: list events: %v", err)
		b.send(msg.Chat.ID, "Произошла ошибка при загрузке мероприятий.")
		return
	}
	if len(events) == 0 {
		b.send(msg.Chat.ID, "В данный момент нет доступных мероприятий.")
		return
	}

	loc := time.UTC
	if user, err := b.users.Get(ctx, int64(msg.From.ID)); err == nil {
		loc = user.Location()
	}

	var text strings.Builder
	text.WriteString("🗓 Доступные мероприятия:\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, event := range events {
		fmt.Fprintf(&text, "📅 %s\n", event.Title)
		if event.Description != "" {
			fmt.Fprintf(&text, "📝 %s\n", truncate(event.Description, 100))
		}
		fmt.Fprintf(&text, "🕐 %s\n", event.EventDatetime.In(loc).Format(dateFormat))
		fmt.Fprintf(&text, "👥 Свободных мест: %d\n\n", event.AvailableSpots())

		var btn tgbotapi.InlineKeyboardButton
		if event.IsFull() {
			btn = tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("'%s' - ЗАПОЛНЕНО", truncate(event.Title, 30)),
				Callback{Kind: CallbackFull, EventID: event.ID}.Encode(),
			)
		} else {
			btn = tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Записаться на '%s'", truncate(event.Title, 30)),
				Callback{Kind: CallbackRegister, EventID: event.ID}.Encode(),
			)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}

	b.sendWithKeyboard(msg.Chat.ID, text.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleMyEvents(ctx context.Context, msg *tgbotapi.Message) {
	from := int64(msg.From.ID)
	regs, err := b.booking.UserRegistrations(ctx, from)
	if err != nil {
		log.Printf("bot: list registrations for %d: %v", from, err)
		b.send(msg.Chat.ID, "Произошла ошибка при загрузке ваших регистраций.")
		return
	}
	if len(regs) == 0 {
		b.send(msg.Chat.ID, "У вас нет активных регистраций на мероприятия.")
		return
	}

	loc := time.UTC
	if user, err := b.users.Get(ctx, from); err == nil {
		loc = user.Location()
	}

	var text strings.Builder
	text.WriteString("📋 Ваши регистрации:\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, reg := range regs {
		fmt.Fprintf(&text, "📅 %s\n", reg.EventTitle)
		fmt.Fprintf(&text, "🕐 %s\n", reg.EventTime.In(loc).Format(dateFormat))
		fmt.Fprintf(&text, "✅ Зарегистрирован: %s\n\n", reg.RegistrationTime.In(loc).Format(dateFormat))

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Отменить '%s'", truncate(reg.EventTitle, 30)),
				Callback{Kind: CallbackCancel, RegistrationID: reg.ID}.Encode(),
			),
		))
	}

	b.sendWithKeyboard(msg.Chat.ID, text.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleProfile(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.users.Get(ctx, int64(msg.From.ID))
	if err != nil || !user.IsProfileComplete {
		b.send(msg.Chat.ID, "Ваш профиль ещё не заполнен. Используйте /start")
		return
	}

	text := fmt.Sprintf("👤 Ваш профиль:\n\n"+
		"Имя: %s\n"+
		"Компания: %s\n"+
		"Роль: %s\n"+
		"Опыт с ИИ: %s\n"+
		"Email: %s\n"+
		"Часовой пояс: %s\n\n"+
		"Изменить профиль: /edit_profile",
		user.FullName, user.Company, user.Role, user.AIExperience, user.Email, user.Timezone)
	b.send(msg.Chat.ID, text)
}

func (b *Bot) handleEditProfile(ctx context.Context, msg *tgbotapi.Message) {
	res, err := b.flow.Start(ctx, int64(msg.From.ID))
	if err != nil {
		log.Printf("bot: restart registration for %d: %v", msg.From.ID, err)
		b.send(msg.Chat.ID, genericErrorText)
		return
	}
	b.sendFlowResult(msg.Chat.ID, res)
}

func (b *Bot) handleTimezone(ctx context.Context, msg *tgbotapi.Message) {
	zone := strings.TrimSpace(msg.CommandArguments())
	if zone != "" {
		b.setTimezone(ctx, msg.Chat.ID, int64(msg.From.ID), zone)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, name := range commonTimezones {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, Callback{Kind: CallbackTimezone, Zone: name}.Encode()),
		))
	}
	b.sendWithKeyboard(msg.Chat.ID,
		"Выберите часовой пояс или отправьте /timezone <название> (например, /timezone Europe/Moscow):",
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) setTimezone(ctx context.Context, chatID, telegramID int64, zone string) {
	err := b.users.SetTimezone(ctx, telegramID, zone)
	switch {
	case errors.Is(err, service.ErrUnknownTimezone):
		b.send(chatID, "Неизвестный часовой пояс. Используйте название из базы IANA, например Europe/Moscow.")
	case errors.Is(err, repository.ErrUserNotFound):
		b.send(chatID, "Вы не зарегистрированы. Используйте /start")
	case err != nil:
		log.Printf("bot: set timezone for %d: %v", telegramID, err)
		b.send(chatID, genericErrorText)
	default:
		b.send(chatID, fmt.Sprintf("Часовой пояс обновлён: %s ✅", zone))
	}
}

// handleMessage feeds free text into the registration dialog when one is
// in progress, otherwise repeats the command hint.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	from := int64(msg.From.ID)

	inProgress, err := b.flow.InProgress(ctx, from)
	if err != nil {
		log.Printf("bot: session lookup for %d: %v", from, err)
		b.send(msg.Chat.ID, genericErrorText)
		return
	}
	if !inProgress {
		b.send(msg.Chat.ID, hintText)
		return
	}

	res, err := b.flow.Advance(ctx, from, msg.Text)
	if errors.Is(err, registration.ErrNoSession) {
		b.send(msg.Chat.ID, restartText)
		return
	}
	if err != nil {
		log.Printf("bot: advance registration for %d: %v", from, err)
		b.send(msg.Chat.ID, genericErrorText)
		return
	}

	if res.Completed {
		if err := b.users.CompleteProfile(ctx, from, res.Profile); err != nil {
			log.Printf("bot: complete profile for %d: %v", from, err)
			b.send(msg.Chat.ID, genericErrorText)
			return
		}
		if err := b.flow.Discard(ctx, from); err != nil {
			log.Printf("bot: discard session for %d: %v", from, err)
		}
	}
	b.sendFlowResult(msg.Chat.ID, res)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := b.api.AnswerCallbackQuery(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		log.Printf("bot: answer callback %s: %v", cq.ID, err)
	}

	cb, err := ParseCallback(cq.Data)
	if err != nil {
		log.Printf("bot: %v", err)
		b.send(cq.Message.Chat.ID, "Неизвестное действие.")
		return
	}

	from := int64(cq.From.ID)
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	switch cb.Kind {
	case CallbackRegister:
		b.handleBook(ctx, from, chatID, messageID, cb.EventID)
	case CallbackCancel:
		b.handleCancel(ctx, chatID, messageID, cb.RegistrationID)
	case CallbackFull:
		b.edit(chatID, messageID, "Это мероприятие уже заполнено!")
	case CallbackExperience:
		b.handleExperienceChoice(ctx, from, chatID, messageID, cb.Choice)
	case CallbackTimezone:
		b.setTimezone(ctx, chatID, from, cb.Zone)
	}
}

func (b *Bot) handleBook(ctx context.Context, from, chatID int64, messageID int, eventID int64) {
	_, event, err := b.booking.Book(ctx, from, eventID)
	if err != nil {
		b.edit(chatID, messageID, bookingErrorText(err))
		return
	}

	loc := time.UTC
	if user, err := b.users.Get(ctx, from); err == nil {
		loc = user.Location()
	}

	text := fmt.Sprintf("✅ Вы успешно зарегистрированы на мероприятие!\n\n"+
		"📅 %s\n"+
		"🕐 %s\n"+
		"👥 Осталось мест: %d\n\n"+
		"Вы получите напоминание за день до мероприятия.",
		event.Title, event.EventDatetime.In(loc).Format(dateFormat), event.AvailableSpots())
	b.edit(chatID, messageID, text)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64, messageID int, registrationID string) {
	detail, err := b.booking.Cancel(ctx, registrationID)
	if errors.Is(err, repository.ErrRegistrationNotFound) {
		b.edit(chatID, messageID, "Регистрация не найдена.")
		return
	}
	if err != nil {
		log.Printf("bot: cancel registration %s: %v", registrationID, err)
		b.edit(chatID, messageID, "Произошла ошибка при отмене регистрации.")
		return
	}

	b.edit(chatID, messageID, fmt.Sprintf("❌ Регистрация отменена!\n\n"+
		"Мероприятие: %s\n"+
		"Вы можете зарегистрироваться снова, если передумаете.", detail.EventTitle))
}

func (b *Bot) handleExperienceChoice(ctx context.Context, from, chatID int64, messageID int, token string) {
	res, err := b.flow.AdvanceChoice(ctx, from, token)
	if errors.Is(err, registration.ErrNoSession) {
		b.edit(chatID, messageID, restartText)
		return
	}
	if errors.Is(err, registration.ErrUnknownChoice) {
		b.edit(chatID, messageID, "Ошибка обработки выбора. Выберите один из вариантов.")
		return
	}
	if err != nil {
		log.Printf("bot: experience choice for %d: %v", from, err)
		b.edit(chatID, messageID, genericErrorText)
		return
	}
	b.edit(chatID, messageID, res.Text)
}

func (b *Bot) sendFlowResult(chatID int64, res registration.Result) {
	if len(res.Choices) == 0 {
		b.send(chatID, res.Text)
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range res.Choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt.Label, Callback{Kind: CallbackExperience, Choice: opt.Token}.Encode()),
		))
	}
	b.sendWithKeyboard(chatID, res.Text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func bookingErrorText(err error) string {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return "Сначала завершите регистрацию профиля: /start"
	case errors.Is(err, repository.ErrEventNotFound):
		return "Мероприятие не найдено."
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return "Вы уже зарегистрированы на это мероприятие!"
	case errors.Is(err, repository.ErrEventFull):
		return "К сожалению, мероприятие уже заполнено."
	default:
		return "Произошла ошибка при регистрации."
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
