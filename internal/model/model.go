// Package model defines the core domain types for the event management system.
package model

import "time"

// User represents a community member identified by their Telegram account.
// Profile fields (FullName, Company, Role, AIExperience, Email) are filled
// step by step during the registration dialog; IsProfileComplete flips to
// true once all of them are collected.
type User struct {
	ID                int64     `json:"id"`
	TelegramID        int64     `json:"telegram_id"`
	Username          string    `json:"username,omitempty"`
	FirstName         string    `json:"first_name,omitempty"`
	LastName          string    `json:"last_name,omitempty"`
	FullName          string    `json:"full_name,omitempty"`
	Company           string    `json:"company,omitempty"`
	Role              string    `json:"role,omitempty"`
	AIExperience      string    `json:"ai_experience,omitempty"`
	Email             string    `json:"email,omitempty"`
	Timezone          string    `json:"timezone"`
	IsProfileComplete bool      `json:"is_profile_complete"`
	CreatedAt         time.Time `json:"created_at"`
}

// Location resolves the user's preferred time zone, falling back to UTC
// when the stored name is empty or unknown.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Event represents a scheduled community event with finite capacity.
// EventDatetime is always stored in UTC.
type Event struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	EventDatetime   time.Time `json:"event_datetime"`
	WebinarLink     string    `json:"webinar_link,omitempty"`
	ImageURL        string    `json:"image_url,omitempty"`
	MaxParticipants int       `json:"max_participants"`
	Registered      int       `json:"registered"`
	CreatedAt       time.Time `json:"created_at"`
}

// AvailableSpots returns the number of free seats.
func (e *Event) AvailableSpots() int {
	return e.MaxParticipants - e.Registered
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.Registered >= e.MaxParticipants
}

// Registration links one user to one event. At most one registration may
// exist per (user, event) pair.
type Registration struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"user_id"`
	EventID          int64     `json:"event_id"`
	RegistrationTime time.Time `json:"registration_time"`
}

// RegistrationDetail is a registration joined with its user and event,
// used by the admin lists and by cancellation (which needs the telegram
// chat id and event id to drop the pending reminder).
type RegistrationDetail struct {
	Registration
	TelegramID int64     `json:"telegram_id"`
	UserName   string    `json:"user_name"`
	EventTitle string    `json:"event_title"`
	EventTime  time.Time `json:"event_time"`
}

// EventRequest is the payload for creating or updating an event.
type EventRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	EventDatetime   time.Time `json:"event_datetime"`
	WebinarLink     string    `json:"webinar_link"`
	ImageURL        string    `json:"image_url"`
	MaxParticipants int       `json:"max_participants"`
}

// Stats is the dashboard counters payload.
type Stats struct {
	Users             int64 `json:"users"`
	CompletedProfiles int64 `json:"completed_profiles"`
	Events            int64 `json:"events"`
	Registrations     int64 `json:"registrations"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
