// Package registration implements the multi-step profile dialog: a fixed
// sequence of questions asked one message at a time, with per-user session
// state kept behind a Store.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Step identifies the question a user is currently answering. Steps are
// walked strictly in order; there is no skipping and no going back.
type Step string

const (
	StepFullName     Step = "full_name"
	StepCompany      Step = "company"
	StepRole         Step = "role"
	StepAIExperience Step = "ai_experience"
	StepEmail        Step = "email"
	StepComplete     Step = "complete"
)

// ErrNoSession is returned when a step call arrives for a user with no
// active session. The bot turns it into a prompt to restart with /start.
var ErrNoSession = errors.New("no active registration session")

// ErrUnknownChoice is returned when a choice token does not match any of
// the experience options. The step does not advance.
var ErrUnknownChoice = errors.New("unknown experience option")

// Session is the transient per-user state of the dialog.
type Session struct {
	Step      Step
	Data      map[string]string
	UpdatedAt time.Time
}

// Store persists dialog sessions keyed by telegram id. Implementations
// must make expired sessions invisible to Get.
type Store interface {
	Get(ctx context.Context, telegramID int64) (*Session, error)
	Put(ctx context.Context, telegramID int64, s *Session) error
	Delete(ctx context.Context, telegramID int64) error
}

// Option is one of the fixed experience answers, chosen via an inline
// button rather than free text.
type Option struct {
	Token string
	Label string
}

// ExperienceOptions are the seven selectable answers for the experience
// step, in presentation order.
var ExperienceOptions = []Option{
	{Token: "NO_AI_NO_NEED", Label: "Не использую ИИ, нет потребности"},
	{Token: "NO_AI_WANT_TO", Label: "Не использую ИИ, но хотелось бы"},
	{Token: "BASIC_AI", Label: "Использую базовые нейросети (ChatGPT и другие)"},
	{Token: "AI_AGENTS", Label: "Создаю отдельных ИИ-агентов"},
	{Token: "AI_PRODUCT", Label: "Создаю ИИ-продукт"},
	{Token: "INDUSTRIAL_AI", Label: "Создаю промышленные ИИ-решения"},
	{Token: "OTHER", Label: "Иное"},
}

func experienceLabel(token string) (string, bool) {
	for _, opt := range ExperienceOptions {
		if opt.Token == token {
			return opt.Label, true
		}
	}
	return "", false
}

// Result is the flow's answer to a step call: the text to show the user,
// the button options when the next step is a choice, and the collected
// profile once the dialog is complete.
type Result struct {
	Text      string
	Choices   []Option
	Completed bool
	Profile   map[string]string
}

// Flow drives the registration dialog. It holds no persistence
// responsibility for the finished profile: once a Result comes back with
// Completed set, the caller stores Profile on the user and discards the
// session.
type Flow struct {
	store Store
}

// NewFlow constructs a Flow over the given session store.
func NewFlow(store Store) *Flow {
	return &Flow{store: store}
}

// Start begins the dialog at the first step, discarding any in-progress
// session for the same user.
func (f *Flow) Start(ctx context.Context, telegramID int64) (Result, error) {
	s := &Session{
		Step:      StepFullName,
		Data:      map[string]string{},
		UpdatedAt: time.Now().UTC(),
	}
	if err := f.store.Put(ctx, telegramID, s); err != nil {
		return Result{}, fmt.Errorf("start session: %w", err)
	}
	return Result{
		Text: "👋 Добро пожаловать в AI Community!\n\n" +
			"Для завершения регистрации нам нужно узнать немного о вас.\n\n" +
			"Как вас зовут? (полное имя)",
	}, nil
}

// Advance feeds one free-text answer into the dialog. Invalid input
// repeats the current prompt without advancing.
func (f *Flow) Advance(ctx context.Context, telegramID int64, input string) (Result, error) {
	s, err := f.store.Get(ctx, telegramID)
	if err != nil {
		return Result{}, err
	}

	input = strings.TrimSpace(input)

	var res Result
	switch s.Step {
	case StepFullName:
		if input == "" {
			return Result{Text: "Как вас зовут? (полное имя)"}, nil
		}
		s.Data["full_name"] = input
		s.Step = StepCompany
		res = Result{Text: fmt.Sprintf("Спасибо, %s! 👋\n\nВ какой компании вы работаете?", input)}

	case StepCompany:
		if input == "" {
			return Result{Text: "В какой компании вы работаете?"}, nil
		}
		s.Data["company"] = input
		s.Step = StepRole
		res = Result{Text: fmt.Sprintf("Компания: %s ✅\n\nВ какой роли вы там работаете?", input)}

	case StepRole:
		if input == "" {
			return Result{Text: "В какой роли вы там работаете?"}, nil
		}
		s.Data["role"] = input
		s.Step = StepAIExperience
		res = experiencePrompt(input)

	case StepAIExperience:
		// Free text is not accepted here; repeat the keyboard.
		return experiencePrompt(s.Data["role"]), nil

	case StepEmail:
		if !validEmail(input) {
			return Result{Text: "Пожалуйста, введите корректный email адрес:"}, nil
		}
		s.Data["email"] = input
		s.Step = StepComplete
		res = Result{
			Text:      completionSummary(s.Data),
			Completed: true,
			Profile:   copyData(s.Data),
		}

	default:
		return Result{}, ErrNoSession
	}

	s.UpdatedAt = time.Now().UTC()
	if err := f.store.Put(ctx, telegramID, s); err != nil {
		return Result{}, fmt.Errorf("save session: %w", err)
	}
	return res, nil
}

// AdvanceChoice feeds an experience option token into the dialog. It is
// valid only at the experience step; an unknown token fails the step
// without advancing.
func (f *Flow) AdvanceChoice(ctx context.Context, telegramID int64, token string) (Result, error) {
	s, err := f.store.Get(ctx, telegramID)
	if err != nil {
		return Result{}, err
	}
	if s.Step != StepAIExperience {
		return Result{}, ErrUnknownChoice
	}
	label, ok := experienceLabel(token)
	if !ok {
		return Result{}, ErrUnknownChoice
	}

	s.Data["ai_experience"] = label
	s.Step = StepEmail
	s.UpdatedAt = time.Now().UTC()
	if err := f.store.Put(ctx, telegramID, s); err != nil {
		return Result{}, fmt.Errorf("save session: %w", err)
	}
	return Result{
		Text: fmt.Sprintf("Опыт с ИИ: %s ✅\n\n"+
			"Для добавления в календарь события со ссылкой на Zoom укажите ваш e-mail:", label),
	}, nil
}

// InProgress reports whether the user has an active, unfinished session.
func (f *Flow) InProgress(ctx context.Context, telegramID int64) (bool, error) {
	s, err := f.store.Get(ctx, telegramID)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.Step != StepComplete, nil
}

// Completed reports whether the user's session has reached the final step.
func (f *Flow) Completed(ctx context.Context, telegramID int64) (bool, error) {
	s, err := f.store.Get(ctx, telegramID)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.Step == StepComplete, nil
}

// Discard drops the user's session, if any.
func (f *Flow) Discard(ctx context.Context, telegramID int64) error {
	return f.store.Delete(ctx, telegramID)
}

func experiencePrompt(role string) Result {
	text := "Что ближе вас описывает?\n\nВыберите один из вариантов:"
	if role != "" {
		text = fmt.Sprintf("Роль: %s ✅\n\n", role) + text
	}
	return Result{Text: text, Choices: ExperienceOptions}
}

// validEmail mirrors the registration form's check: presence of '@' and '.'.
func validEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

func completionSummary(data map[string]string) string {
	var b strings.Builder
	b.WriteString("🎉 Регистрация завершена!\n\nВаш профиль:\n")
	fmt.Fprintf(&b, "👤 Имя: %s\n", data["full_name"])
	fmt.Fprintf(&b, "🏢 Компания: %s\n", data["company"])
	fmt.Fprintf(&b, "💼 Роль: %s\n", data["role"])
	fmt.Fprintf(&b, "🤖 Опыт с ИИ: %s\n", data["ai_experience"])
	fmt.Fprintf(&b, "📧 Email: %s\n\n", data["email"])
	b.WriteString("Теперь вы можете:\n/events - Просмотр мероприятий\n/my_events - Мои регистрации\n/help - Помощь")
	return b.String()
}

func copyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
