package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntolkachev-gh/ai-community-bot/internal/model"
	"github.com/ntolkachev-gh/ai-community-bot/internal/repository"
)

// memStore holds in-memory state shared by the three store fakes, with
// the same domain-error semantics as the Postgres repository. The List
// signatures differ per interface, so each store is a thin wrapper.
type memStore struct {
	users  map[int64]*model.User
	events map[int64]*model.Event
	regs   map[string]model.RegistrationDetail

	nextEventID int64
	lastLimit   int
	lastOffset  int
}

type memUsers struct{ *memStore }
type memEvents struct{ *memStore }
type memRegs struct{ *memStore }

var (
	_ UserStore         = memUsers{}
	_ EventStore        = memEvents{}
	_ RegistrationStore = memRegs{}
)

func newMemStore() *memStore {
	return &memStore{
		users:  map[int64]*model.User{},
		events: map[int64]*model.Event{},
		regs:   map[string]model.RegistrationDetail{},
	}
}

func (m *memStore) addUser(telegramID int64, complete bool) {
	m.users[telegramID] = &model.User{
		ID:                telegramID,
		TelegramID:        telegramID,
		FullName:          "Test User",
		Timezone:          "UTC",
		IsProfileComplete: complete,
	}
}

func (m *memStore) addEvent(id int64, capacity int, at time.Time) {
	m.events[id] = &model.Event{ID: id, Title: "AI Meetup", EventDatetime: at, MaxParticipants: capacity}
	if id >= m.nextEventID {
		m.nextEventID = id + 1
	}
}

func (m *memStore) countRegs(eventID int64) int {
	n := 0
	for _, d := range m.regs {
		if d.EventID == eventID {
			n++
		}
	}
	return n
}

func (m *memStore) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, bool, error) {
	if u, ok := m.users[telegramID]; ok {
		c := *u
		return &c, false, nil
	}
	m.users[telegramID] = &model.User{ID: telegramID, TelegramID: telegramID, Username: username, FirstName: firstName, LastName: lastName, Timezone: "UTC"}
	c := *m.users[telegramID]
	return &c, true, nil
}

func (m *memStore) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	u, ok := m.users[telegramID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *memStore) CompleteProfile(ctx context.Context, telegramID int64, profile map[string]string) error {
	u, ok := m.users[telegramID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.FullName = profile["full_name"]
	u.Company = profile["company"]
	u.Role = profile["role"]
	u.AIExperience = profile["ai_experience"]
	u.Email = profile["email"]
	u.IsProfileComplete = true
	return nil
}

func (m *memStore) UpdateTimezone(ctx context.Context, telegramID int64, zone string) error {
	u, ok := m.users[telegramID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Timezone = zone
	return nil
}

func (m memUsers) List(ctx context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) Create(ctx context.Context, req model.EventRequest) (*model.Event, error) {
	m.nextEventID++
	e := &model.Event{
		ID:              m.nextEventID,
		Title:           req.Title,
		Description:     req.Description,
		EventDatetime:   req.EventDatetime,
		WebinarLink:     req.WebinarLink,
		ImageURL:        req.ImageURL,
		MaxParticipants: req.MaxParticipants,
	}
	m.events[e.ID] = e
	c := *e
	return &c, nil
}

func (m *memStore) Update(ctx context.Context, id int64, req model.EventRequest) (*model.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	e.Title = req.Title
	e.Description = req.Description
	e.EventDatetime = req.EventDatetime
	e.WebinarLink = req.WebinarLink
	e.ImageURL = req.ImageURL
	e.MaxParticipants = req.MaxParticipants
	c := *e
	return &c, nil
}

func (m *memStore) Delete(ctx context.Context, id int64) ([]model.RegistrationDetail, error) {
	if _, ok := m.events[id]; !ok {
		return nil, repository.ErrEventNotFound
	}
	var removed []model.RegistrationDetail
	for regID, d := range m.regs {
		if d.EventID == id {
			removed = append(removed, d)
			delete(m.regs, regID)
		}
	}
	delete(m.events, id)
	return removed, nil
}

func (m *memStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	c := *e
	c.Registered = m.countRegs(id)
	return &c, nil
}

func (m *memStore) ListUpcoming(ctx context.Context, after time.Time) ([]model.Event, error) {
	var out []model.Event
	for id, e := range m.events {
		if e.EventDatetime.After(after) {
			c := *e
			c.Registered = m.countRegs(id)
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memEvents) List(ctx context.Context) ([]model.Event, error) {
	var out []model.Event
	for id, e := range m.events {
		c := *e
		c.Registered = m.countRegs(id)
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) ListPage(ctx context.Context, limit, offset int) ([]model.Event, error) {
	m.lastLimit = limit
	m.lastOffset = offset
	return nil, nil
}

func (m *memStore) Book(ctx context.Context, telegramID, eventID int64) (*model.Registration, *model.Event, error) {
	u, ok := m.users[telegramID]
	if !ok || !u.IsProfileComplete {
		return nil, nil, repository.ErrUserNotFound
	}
	e, ok := m.events[eventID]
	if !ok {
		return nil, nil, repository.ErrEventNotFound
	}
	for _, d := range m.regs {
		if d.UserID == u.ID && d.EventID == eventID {
			return nil, nil, repository.ErrAlreadyRegistered
		}
	}
	count := m.countRegs(eventID)
	if count >= e.MaxParticipants {
		return nil, nil, repository.ErrEventFull
	}

	reg := model.Registration{
		ID:               uuid.New().String(),
		UserID:           u.ID,
		EventID:          eventID,
		RegistrationTime: time.Now().UTC(),
	}
	m.regs[reg.ID] = model.RegistrationDetail{
		Registration: reg,
		TelegramID:   u.TelegramID,
		UserName:     u.FullName,
		EventTitle:   e.Title,
		EventTime:    e.EventDatetime,
	}
	c := *e
	c.Registered = count + 1
	return &reg, &c, nil
}

func (m *memStore) Cancel(ctx context.Context, registrationID string) (*model.RegistrationDetail, error) {
	d, ok := m.regs[registrationID]
	if !ok {
		return nil, repository.ErrRegistrationNotFound
	}
	delete(m.regs, registrationID)
	return &d, nil
}

func (m *memStore) ListByUser(ctx context.Context, telegramID int64) ([]model.RegistrationDetail, error) {
	var out []model.RegistrationDetail
	for _, d := range m.regs {
		if d.TelegramID == telegramID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) ListByEvent(ctx context.Context, eventID int64) ([]model.RegistrationDetail, error) {
	var out []model.RegistrationDetail
	for _, d := range m.regs {
		if d.EventID == eventID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m memRegs) List(ctx context.Context) ([]model.RegistrationDetail, error) {
	var out []model.RegistrationDetail
	for _, d := range m.regs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context) (model.Stats, error) {
	s := model.Stats{
		Users:  int64(len(m.users)),
		Events: int64(len(m.events)),
	}
	for _, u := range m.users {
		if u.IsProfileComplete {
			s.CompletedProfiles++
		}
	}
	s.Registrations = int64(len(m.regs))
	return s, nil
}

type schedulerCall struct {
	chatID  int64
	eventID int64
}

type fakeScheduler struct {
	scheduled []schedulerCall
	cancelled []schedulerCall
}

var _ ReminderScheduler = (*fakeScheduler)(nil)

func (f *fakeScheduler) Schedule(chatID int64, event model.Event, loc *time.Location) bool {
	f.scheduled = append(f.scheduled, schedulerCall{chatID: chatID, eventID: event.ID})
	return true
}

func (f *fakeScheduler) Cancel(chatID, eventID int64) {
	f.cancelled = append(f.cancelled, schedulerCall{chatID: chatID, eventID: eventID})
}

func futureTime() time.Time {
	return time.Now().UTC().Add(72 * time.Hour)
}

func TestBookSchedulesReminder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	store.addEvent(1, 10, futureTime())
	sched := &fakeScheduler{}
	svc := NewBookingService(memUsers{store}, memRegs{store},sched)

	reg, event, err := svc.Book(ctx, 42, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, 9, event.AvailableSpots())
	assert.Equal(t, []schedulerCall{{chatID: 42, eventID: 1}}, sched.scheduled)
}

func TestBookTwiceIsAlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	store.addEvent(1, 10, futureTime())
	svc := NewBookingService(memUsers{store}, memRegs{store},&fakeScheduler{})

	_, _, err := svc.Book(ctx, 42, 1)
	require.NoError(t, err)
	_, _, err = svc.Book(ctx, 42, 1)
	assert.ErrorIs(t, err, repository.ErrAlreadyRegistered)
	assert.Equal(t, 1, store.countRegs(1), "second attempt must not add a row")
}

func TestBookFullEvent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	store.addUser(43, true)
	store.addEvent(1, 1, futureTime())
	svc := NewBookingService(memUsers{store}, memRegs{store},&fakeScheduler{})

	_, event, err := svc.Book(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, event.AvailableSpots())

	_, _, err = svc.Book(ctx, 43, 1)
	assert.ErrorIs(t, err, repository.ErrEventFull)
	assert.Equal(t, 1, store.countRegs(1))
}

func TestBookRequiresCompletedProfile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, false)
	store.addEvent(1, 10, futureTime())
	svc := NewBookingService(memUsers{store}, memRegs{store},&fakeScheduler{})

	_, _, err := svc.Book(ctx, 42, 1)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestBookUnknownEvent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	svc := NewBookingService(memUsers{store}, memRegs{store},&fakeScheduler{})

	_, _, err := svc.Book(ctx, 42, 99)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}

func TestCancelFreesSeatAndRemovesReminder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	store.addUser(43, true)
	store.addEvent(1, 1, futureTime())
	sched := &fakeScheduler{}
	svc := NewBookingService(memUsers{store}, memRegs{store},sched)

	reg, _, err := svc.Book(ctx, 42, 1)
	require.NoError(t, err)

	detail, err := svc.Cancel(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), detail.TelegramID)
	assert.Equal(t, []schedulerCall{{chatID: 42, eventID: 1}}, sched.cancelled)
	assert.Equal(t, 0, store.countRegs(1))

	// The freed seat is bookable again.
	_, event, err := svc.Book(ctx, 43, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, event.AvailableSpots())
	assert.Equal(t, 1, store.countRegs(1))
}

func TestCancelLeavesOtherRegistrationsUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	store.addUser(43, true)
	store.addEvent(1, 10, futureTime())
	svc := NewBookingService(memUsers{store}, memRegs{store},&fakeScheduler{})

	regA, _, err := svc.Book(ctx, 42, 1)
	require.NoError(t, err)
	_, _, err = svc.Book(ctx, 43, 1)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, regA.ID)
	require.NoError(t, err)

	left, err := svc.UserRegistrations(ctx, 43)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Equal(t, 1, store.countRegs(1))
}

func TestCancelUnknownRegistration(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewBookingService(memUsers{store}, memRegs{store},&fakeScheduler{})

	_, err := svc.Cancel(ctx, uuid.New().String())
	assert.ErrorIs(t, err, repository.ErrRegistrationNotFound)
}

func TestSetTimezone(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	svc := NewUserService(memUsers{store})

	require.NoError(t, svc.SetTimezone(ctx, 42, "Europe/Moscow"))
	u, err := svc.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", u.Timezone)

	assert.ErrorIs(t, svc.SetTimezone(ctx, 42, "Mars/Olympus"), ErrUnknownTimezone)
	assert.ErrorIs(t, svc.SetTimezone(ctx, 42, ""), ErrUnknownTimezone)
}

func TestEventValidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewEventService(memEvents{store}, memRegs{store},&fakeScheduler{})

	valid := model.EventRequest{Title: "AI Meetup", EventDatetime: futureTime(), MaxParticipants: 50}

	tests := []struct {
		name   string
		mutate func(*model.EventRequest)
	}{
		{"empty title", func(r *model.EventRequest) { r.Title = "  " }},
		{"zero datetime", func(r *model.EventRequest) { r.EventDatetime = time.Time{} }},
		{"zero capacity", func(r *model.EventRequest) { r.MaxParticipants = 0 }},
		{"negative capacity", func(r *model.EventRequest) { r.MaxParticipants = -5 }},
		{"huge capacity", func(r *model.EventRequest) { r.MaxParticipants = 200_000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.Error(t, err)
		})
	}

	event, err := svc.Create(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "AI Meetup", event.Title)
}

func TestDeleteEventCancelsReminders(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(42, true)
	store.addUser(43, true)
	store.addEvent(1, 10, futureTime())
	sched := &fakeScheduler{}
	booking := NewBookingService(memUsers{store}, memRegs{store},sched)
	events := NewEventService(memEvents{store}, memRegs{store},sched)

	_, _, err := booking.Book(ctx, 42, 1)
	require.NoError(t, err)
	_, _, err = booking.Book(ctx, 43, 1)
	require.NoError(t, err)

	require.NoError(t, events.Delete(ctx, 1))
	assert.ElementsMatch(t, []schedulerCall{
		{chatID: 42, eventID: 1},
		{chatID: 43, eventID: 1},
	}, sched.cancelled)
	assert.Equal(t, 0, store.countRegs(1))

	assert.ErrorIs(t, events.Delete(ctx, 1), repository.ErrEventNotFound)
}

func TestExportPageNormalisesParameters(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewEventService(memEvents{store}, memRegs{store},&fakeScheduler{})

	_, err := svc.ExportPage(ctx, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxExportPerPage, store.lastLimit)
	assert.Equal(t, 0, store.lastOffset)

	_, err = svc.ExportPage(ctx, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultExportPerPage, store.lastLimit)
	assert.Equal(t, 2*DefaultExportPerPage, store.lastOffset)
}

func TestRegistrationsChecksEventExists(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewEventService(memEvents{store}, memRegs{store},&fakeScheduler{})

	_, err := svc.Registrations(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}
