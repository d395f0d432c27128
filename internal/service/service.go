// Package service implements business logic, validation, and orchestration
// between the chat/web boundaries and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ntolkachev-gh/ai-community-bot/internal/model"
	"github.com/ntolkachev-gh/ai-community-bot/internal/repository"
)

// ErrUnknownTimezone is returned for a zone name the tz database does not
// know. Reported back to the user with a retry prompt.
var ErrUnknownTimezone = errors.New("unknown time zone")

// UserStore is the persistence surface for users.
type UserStore interface {
	Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, bool, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	CompleteProfile(ctx context.Context, telegramID int64, profile map[string]string) error
	UpdateTimezone(ctx context.Context, telegramID int64, zone string) error
	List(ctx context.Context) ([]model.User, error)
}

// EventStore is the persistence surface for events.
type EventStore interface {
	Create(ctx context.Context, req model.EventRequest) (*model.Event, error)
	Update(ctx context.Context, id int64, req model.EventRequest) (*model.Event, error)
	Delete(ctx context.Context, id int64) ([]model.RegistrationDetail, error)
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	ListUpcoming(ctx context.Context, after time.Time) ([]model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	ListPage(ctx context.Context, limit, offset int) ([]model.Event, error)
}

// RegistrationStore is the persistence surface for registrations.
type RegistrationStore interface {
	Book(ctx context.Context, telegramID, eventID int64) (*model.Registration, *model.Event, error)
	Cancel(ctx context.Context, registrationID string) (*model.RegistrationDetail, error)
	ListByUser(ctx context.Context, telegramID int64) ([]model.RegistrationDetail, error)
	ListByEvent(ctx context.Context, eventID int64) ([]model.RegistrationDetail, error)
	List(ctx context.Context) ([]model.RegistrationDetail, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// ReminderScheduler is the slice of the scheduler the services drive:
// booking schedules a reminder, every cancellation path removes one.
type ReminderScheduler interface {
	Schedule(chatID int64, event model.Event, loc *time.Location) bool
	Cancel(chatID, eventID int64)
}

// UserService handles user identity and profile operations.
type UserService struct {
	users UserStore
}

// NewUserService constructs a UserService.
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Ensure creates the user on first contact or returns the existing row.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, bool, error) {
	return s.users.Ensure(ctx, telegramID, username, firstName, lastName)
}

// Get returns the user by their chat identity.
func (s *UserService) Get(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}

// CompleteProfile persists the fields collected by the registration
// dialog and marks the profile complete.
func (s *UserService) CompleteProfile(ctx context.Context, telegramID int64, profile map[string]string) error {
	return s.users.CompleteProfile(ctx, telegramID, profile)
}

// SetTimezone validates the IANA zone name and stores it.
func (s *UserService) SetTimezone(ctx context.Context, telegramID int64, zone string) error {
	zone = strings.TrimSpace(zone)
	if _, err := time.LoadLocation(zone); err != nil || zone == "" {
		return ErrUnknownTimezone
	}
	return s.users.UpdateTimezone(ctx, telegramID, zone)
}

// List returns all users for the admin dashboard.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

// BookingService runs the seat-booking workflow: the transactional
// registration itself lives in the store, the reminder side effects live
// here so every cancellation path also removes the pending reminder.
type BookingService struct {
	users     UserStore
	regs      RegistrationStore
	reminders ReminderScheduler
}

// NewBookingService constructs a BookingService.
func NewBookingService(users UserStore, regs RegistrationStore, reminders ReminderScheduler) *BookingService {
	return &BookingService{users: users, regs: regs, reminders: reminders}
}

// Book registers the user for the event and schedules their reminder.
// Domain errors (ErrUserNotFound, ErrEventNotFound, ErrAlreadyRegistered,
// ErrEventFull) surface unchanged so the boundary can phrase them.
func (s *BookingService) Book(ctx context.Context, telegramID, eventID int64) (*model.Registration, *model.Event, error) {
	reg, event, err := s.regs.Book(ctx, telegramID, eventID)
	if err != nil {
		if isDomainErr(err) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("book event: %w", err)
	}

	loc := time.UTC
	if user, err := s.users.GetByTelegramID(ctx, telegramID); err == nil {
		loc = user.Location()
	}
	s.reminders.Schedule(telegramID, *event, loc)

	return reg, event, nil
}

// Cancel removes the registration and its pending reminder.
func (s *BookingService) Cancel(ctx context.Context, registrationID string) (*model.RegistrationDetail, error) {
	detail, err := s.regs.Cancel(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrRegistrationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel registration: %w", err)
	}
	s.reminders.Cancel(detail.TelegramID, detail.EventID)
	return detail, nil
}

// UserRegistrations lists the user's bookings, soonest event first.
func (s *BookingService) UserRegistrations(ctx context.Context, telegramID int64) ([]model.RegistrationDetail, error) {
	return s.regs.ListByUser(ctx, telegramID)
}

func isDomainErr(err error) bool {
	return errors.Is(err, repository.ErrUserNotFound) ||
		errors.Is(err, repository.ErrEventNotFound) ||
		errors.Is(err, repository.ErrAlreadyRegistered) ||
		errors.Is(err, repository.ErrEventFull)
}

// EventService handles admin event management and the dashboard reads.
type EventService struct {
	events    EventStore
	regs      RegistrationStore
	reminders ReminderScheduler
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore, regs RegistrationStore, reminders ReminderScheduler) *EventService {
	return &EventService{events: events, regs: regs, reminders: reminders}
}

func validateEventRequest(req *model.EventRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if req.EventDatetime.IsZero() {
		return fmt.Errorf("event_datetime is required")
	}
	if req.MaxParticipants <= 0 {
		return fmt.Errorf("max_participants must be a positive integer")
	}
	if req.MaxParticipants > 100_000 {
		return fmt.Errorf("max_participants cannot exceed 100,000")
	}
	return nil
}

// Create validates the request and stores a new event.
func (s *EventService) Create(ctx context.Context, req model.EventRequest) (*model.Event, error) {
	if err := validateEventRequest(&req); err != nil {
		return nil, err
	}
	return s.events.Create(ctx, req)
}

// Update validates the request and rewrites the event.
func (s *EventService) Update(ctx context.Context, id int64, req model.EventRequest) (*model.Event, error) {
	if err := validateEventRequest(&req); err != nil {
		return nil, err
	}
	return s.events.Update(ctx, id, req)
}

// Delete removes the event, its registrations (cascade), and every
// pending reminder those registrations had.
func (s *EventService) Delete(ctx context.Context, id int64) error {
	regs, err := s.events.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return err
		}
		return fmt.Errorf("delete event: %w", err)
	}
	for _, reg := range regs {
		s.reminders.Cancel(reg.TelegramID, reg.EventID)
	}
	return nil
}

// Get returns a single event.
func (s *EventService) Get(ctx context.Context, id int64) (*model.Event, error) {
	return s.events.GetByID(ctx, id)
}

// List returns all events for the admin dashboard.
func (s *EventService) List(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// Upcoming returns events that have not started yet, soonest first.
func (s *EventService) Upcoming(ctx context.Context) ([]model.Event, error) {
	return s.events.ListUpcoming(ctx, time.Now().UTC())
}

// Registrations lists an event's registrations, verifying the event
// exists first.
func (s *EventService) Registrations(ctx context.Context, eventID int64) ([]model.RegistrationDetail, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.regs.ListByEvent(ctx, eventID)
}

// AllRegistrations returns every registration for the admin dashboard.
func (s *EventService) AllRegistrations(ctx context.Context) ([]model.RegistrationDetail, error) {
	return s.regs.List(ctx)
}

// Stats returns the dashboard counters.
func (s *EventService) Stats(ctx context.Context) (model.Stats, error) {
	return s.regs.Stats(ctx)
}

// Export page size limits.
const (
	DefaultExportPerPage = 50
	MaxExportPerPage     = 100
)

// ExportPage returns one page of events for the export API, normalising
// the page parameters and capping the page size.
func (s *EventService) ExportPage(ctx context.Context, page, perPage int) ([]model.Event, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultExportPerPage
	}
	if perPage > MaxExportPerPage {
		perPage = MaxExportPerPage
	}
	return s.events.ListPage(ctx, perPage, (page-1)*perPage)
}
