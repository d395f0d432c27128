// Package scheduler delivers one-shot event reminders. It owns a keyed
// timer table: scheduling the same (user, event) key again replaces the
// pending reminder, cancelling removes it, firing is fire-and-forget.
package scheduler

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ntolkachev-gh/ai-community-bot/internal/model"
)

// Notifier dispatches a reminder text to a chat. Dispatch failures are
// logged by the scheduler and never retried.
type Notifier interface {
	Notify(chatID int64, text string) error
}

type reminderKey struct {
	chatID  int64
	eventID int64
}

// ReminderScheduler schedules one reminder per (user, event) pair, fired
// a fixed lead time before the event starts.
type ReminderScheduler struct {
	notifier Notifier
	lead     time.Duration

	mu     sync.Mutex
	timers map[reminderKey]*time.Timer
	now    func() time.Time
}

// New constructs a ReminderScheduler firing lead before each event.
func New(notifier Notifier, lead time.Duration) *ReminderScheduler {
	return &ReminderScheduler{
		notifier: notifier,
		lead:     lead,
		timers:   make(map[reminderKey]*time.Timer),
		now:      time.Now,
	}
}

// Schedule registers a reminder for the user and event, replacing any
// pending reminder for the same pair. When the reminder moment has
// already passed nothing is scheduled and false is returned: the user
// simply gets no reminder for near-term events.
func (s *ReminderScheduler) Schedule(chatID int64, event model.Event, loc *time.Location) bool {
	fireAt := event.EventDatetime.Add(-s.lead)
	delay := fireAt.Sub(s.now())
	if delay <= 0 {
		log.Printf("scheduler: reminder time %s for event %d already passed, skipping", fireAt.Format(time.RFC3339), event.ID)
		return false
	}

	key := reminderKey{chatID: chatID, eventID: event.ID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.fire(key, event, loc)
	})
	log.Printf("scheduler: reminder for user %d, event %d set for %s", chatID, event.ID, fireAt.Format(time.RFC3339))
	return true
}

// Cancel removes the pending reminder for the pair if one exists.
// Absence is not an error, only logged.
func (s *ReminderScheduler) Cancel(chatID, eventID int64) {
	key := reminderKey{chatID: chatID, eventID: eventID}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[key]
	if !ok {
		log.Printf("scheduler: no pending reminder for user %d, event %d", chatID, eventID)
		return
	}
	t.Stop()
	delete(s.timers, key)
	log.Printf("scheduler: reminder removed for user %d, event %d", chatID, eventID)
}

// Pending returns the number of registered reminders that have not fired.
func (s *ReminderScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending reminder. Used on shutdown.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

func (s *ReminderScheduler) fire(key reminderKey, event model.Event, loc *time.Location) {
	s.mu.Lock()
	delete(s.timers, key)
	s.mu.Unlock()

	if err := s.notifier.Notify(key.chatID, reminderText(event, loc)); err != nil {
		log.Printf("scheduler: sending reminder to user %d failed: %v", key.chatID, err)
		return
	}
	log.Printf("scheduler: reminder sent to user %d for event %d", key.chatID, event.ID)
}

func reminderText(event model.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("⏰ Напоминание о мероприятии!\n\n")
	fmt.Fprintf(&b, "📅 %s\n", event.Title)
	fmt.Fprintf(&b, "🕐 Завтра в %s\n", event.EventDatetime.In(loc).Format("15:04"))
	if event.Description != "" {
		fmt.Fprintf(&b, "📝 %s\n", event.Description)
	}
	if event.WebinarLink != "" {
		fmt.Fprintf(&b, "\n🔗 Ссылка на мероприятие: %s\n", event.WebinarLink)
	}
	b.WriteString("\nНе забудьте принять участие!")
	return b.String()
}
