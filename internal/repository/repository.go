// Package repository implements all database queries for the event
// management system. It uses pgx directly (no ORM) for transparency and
// performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ntolkachev-gh/ai-community-bot/internal/model"
)

// ErrUserNotFound is returned when no completed-profile user matches.
var ErrUserNotFound = errors.New("user not found")

// ErrEventNotFound is returned when the requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrRegistrationNotFound is returned when the registration does not exist.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrAlreadyRegistered is returned when the user registers twice for the
// same event.
var ErrAlreadyRegistered = errors.New("already registered for this event")

const eventColumns = `e.id, e.title, e.description, e.event_datetime, e.webinar_link,
	e.image_url, e.max_participants, e.created_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id) AS registered`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure creates the user row on first contact or returns the existing
// one. The boolean reports whether a new row was created.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, bool, error) {
	existing, err := r.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	var u model.User
	err = r.db.QueryRow(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username
		 RETURNING `+userColumns,
		telegramID, username, firstName, lastName,
	).Scan(userFields(&u)...)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	return &u, true, nil
}

const userColumns = `id, telegram_id, username, first_name, last_name, full_name,
	company, role, ai_experience, email, timezone, is_profile_complete, created_at`

func userFields(u *model.User) []any {
	return []any{
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.FullName,
		&u.Company, &u.Role, &u.AIExperience, &u.Email, &u.Timezone,
		&u.IsProfileComplete, &u.CreatedAt,
	}
}

// GetByTelegramID returns the user with the given chat identity or
// ErrUserNotFound.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`,
		telegramID,
	).Scan(userFields(&u)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CompleteProfile stores the collected registration fields and marks the
// profile complete.
func (r *UserRepository) CompleteProfile(ctx context.Context, telegramID int64, profile map[string]string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET full_name = $2, company = $3, role = $4, ai_experience = $5,
		     email = $6, is_profile_complete = TRUE
		 WHERE telegram_id = $1`,
		telegramID, profile["full_name"], profile["company"], profile["role"],
		profile["ai_experience"], profile["email"],
	)
	if err != nil {
		return fmt.Errorf("complete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateTimezone stores the user's preferred IANA zone name.
func (r *UserRepository) UpdateTimezone(ctx context.Context, telegramID int64, zone string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET timezone = $2 WHERE telegram_id = $1`,
		telegramID, zone,
	)
	if err != nil {
		return fmt.Errorf("update timezone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns all users, newest first.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(userFields(&u)...); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, req model.EventRequest) (*model.Event, error) {
	e := &model.Event{
		Title:           req.Title,
		Description:     req.Description,
		EventDatetime:   req.EventDatetime.UTC(),
		WebinarLink:     req.WebinarLink,
		ImageURL:        req.ImageURL,
		MaxParticipants: req.MaxParticipants,
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO events (title, description, event_datetime, webinar_link, image_url, max_participants)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.Title, e.Description, e.EventDatetime, e.WebinarLink, e.ImageURL, e.MaxParticipants,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// Update rewrites the mutable fields of an event.
func (r *EventRepository) Update(ctx context.Context, id int64, req model.EventRequest) (*model.Event, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, event_datetime = $4,
		     webinar_link = $5, image_url = $6, max_participants = $7
		 WHERE id = $1`,
		id, req.Title, req.Description, req.EventDatetime.UTC(),
		req.WebinarLink, req.ImageURL, req.MaxParticipants,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrEventNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes an event; its registrations go with it via the cascade.
// The removed registrations are returned so the caller can drop their
// pending reminders.
func (r *EventRepository) Delete(ctx context.Context, id int64) ([]model.RegistrationDetail, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT r.id, r.user_id, r.event_id, r.registration_time, u.telegram_id
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.event_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list event registrations: %w", err)
	}
	var regs []model.RegistrationDetail
	for rows.Next() {
		var d model.RegistrationDetail
		if err = rows.Scan(&d.ID, &d.UserID, &d.EventID, &d.RegistrationTime, &d.TelegramID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, d)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrEventNotFound
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return regs, nil
}

// GetByID returns a single event with its registration count or
// ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`,
		id,
	).Scan(eventFields(&e)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

func eventFields(e *model.Event) []any {
	return []any{
		&e.ID, &e.Title, &e.Description, &e.EventDatetime, &e.WebinarLink,
		&e.ImageURL, &e.MaxParticipants, &e.CreatedAt, &e.Registered,
	}
}

// ListUpcoming returns events scheduled after the given instant, soonest
// first.
func (r *EventRepository) ListUpcoming(ctx context.Context, after time.Time) ([]model.Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.event_datetime > $1 ORDER BY e.event_datetime ASC`,
		after.UTC(),
	)
}

// List returns all events, newest schedule first.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events e ORDER BY e.event_datetime DESC`,
	)
}

// ListPage returns one page of events ordered by id, for the export API.
func (r *EventRepository) ListPage(ctx context.Context, limit, offset int) ([]model.Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events e ORDER BY e.id ASC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(eventFields(&e)...); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Book registers a user for an event inside a single transaction.
//
// The event row is locked with SELECT ... FOR UPDATE before the duplicate
// and capacity checks, which serialises concurrent booking attempts for
// the same event: under contention for the last seat exactly one attempt
// commits and the rest see ErrEventFull. The unique constraint on
// (user_id, event_id) backs up the duplicate check.
//
// On success it returns the new registration and the event with its
// updated registration count.
func (r *RegistrationRepository) Book(ctx context.Context, telegramID, eventID int64) (*model.Registration, *model.Event, error) {
	var userID int64
	err := r.db.QueryRow(ctx,
		`SELECT id FROM users WHERE telegram_id = $1 AND is_profile_complete`,
		telegramID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the event row for the duration of the booking attempt.
	var e model.Event
	err = tx.QueryRow(ctx,
		`SELECT id, title, description, event_datetime, webinar_link, image_url,
		        max_participants, created_at
		 FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&e.ID, &e.Title, &e.Description, &e.EventDatetime, &e.WebinarLink,
		&e.ImageURL, &e.MaxParticipants, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrEventNotFound
		}
		return nil, nil, fmt.Errorf("lock event row: %w", err)
	}

	var dupCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&dupCount)
	if err != nil {
		return nil, nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dupCount > 0 {
		err = ErrAlreadyRegistered
		return nil, nil, err
	}

	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`,
		eventID,
	).Scan(&e.Registered)
	if err != nil {
		return nil, nil, fmt.Errorf("count registrations: %w", err)
	}
	if e.Registered >= e.MaxParticipants {
		err = ErrEventFull
		return nil, nil, err
	}

	reg := &model.Registration{
		ID:               uuid.New().String(),
		UserID:           userID,
		EventID:          eventID,
		RegistrationTime: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, user_id, event_id, registration_time)
		 VALUES ($1, $2, $3, $4)`,
		reg.ID, reg.UserID, reg.EventID, reg.RegistrationTime,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	e.Registered++
	return reg, &e, nil
}

// Cancel deletes the registration and returns the joined detail so the
// caller can drop the pending reminder. Returns ErrRegistrationNotFound
// when no such row exists.
func (r *RegistrationRepository) Cancel(ctx context.Context, registrationID string) (*model.RegistrationDetail, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var d model.RegistrationDetail
	err = tx.QueryRow(ctx,
		`SELECT r.id, r.user_id, r.event_id, r.registration_time,
		        u.telegram_id, u.full_name, e.title, e.event_datetime
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 JOIN events e ON e.id = r.event_id
		 WHERE r.id = $1
		 FOR UPDATE OF r`,
		registrationID,
	).Scan(&d.ID, &d.UserID, &d.EventID, &d.RegistrationTime,
		&d.TelegramID, &d.UserName, &d.EventTitle, &d.EventTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, registrationID); err != nil {
		return nil, fmt.Errorf("delete registration: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &d, nil
}

const detailColumns = `r.id, r.user_id, r.event_id, r.registration_time,
	u.telegram_id, u.full_name, e.title, e.event_datetime`

func detailFields(d *model.RegistrationDetail) []any {
	return []any{
		&d.ID, &d.UserID, &d.EventID, &d.RegistrationTime,
		&d.TelegramID, &d.UserName, &d.EventTitle, &d.EventTime,
	}
}

// ListByUser returns the user's registrations, soonest event first.
func (r *RegistrationRepository) ListByUser(ctx context.Context, telegramID int64) ([]model.RegistrationDetail, error) {
	return r.queryDetails(ctx,
		`SELECT `+detailColumns+`
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 JOIN events e ON e.id = r.event_id
		 WHERE u.telegram_id = $1
		 ORDER BY e.event_datetime ASC`,
		telegramID,
	)
}

// ListByEvent returns all registrations for an event in booking order.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID int64) ([]model.RegistrationDetail, error) {
	return r.queryDetails(ctx,
		`SELECT `+detailColumns+`
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 JOIN events e ON e.id = r.event_id
		 WHERE r.event_id = $1
		 ORDER BY r.registration_time ASC`,
		eventID,
	)
}

// List returns every registration, newest first.
func (r *RegistrationRepository) List(ctx context.Context) ([]model.RegistrationDetail, error) {
	return r.queryDetails(ctx,
		`SELECT `+detailColumns+`
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 JOIN events e ON e.id = r.event_id
		 ORDER BY r.registration_time DESC`,
	)
}

func (r *RegistrationRepository) queryDetails(ctx context.Context, query string, args ...any) ([]model.RegistrationDetail, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.RegistrationDetail
	for rows.Next() {
		var d model.RegistrationDetail
		if err := rows.Scan(detailFields(&d)...); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, d)
	}
	return regs, rows.Err()
}

// Stats returns the dashboard counters in one round trip.
func (r *RegistrationRepository) Stats(ctx context.Context) (model.Stats, error) {
	var s model.Stats
	err := r.db.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_profile_complete),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM registrations)`,
	).Scan(&s.Users, &s.CompletedProfiles, &s.Events, &s.Registrations)
	if err != nil {
		return model.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}
