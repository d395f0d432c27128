package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrBadCallback is returned for callback data that does not decode into
// a known action. Reported back to the user, never fatal.
var ErrBadCallback = errors.New("malformed callback data")

// CallbackKind tags the action behind an inline button press.
type CallbackKind int

const (
	// CallbackRegister books a seat on an event.
	CallbackRegister CallbackKind = iota + 1
	// CallbackCancel cancels an existing registration.
	CallbackCancel
	// CallbackFull is the inert button shown for an event at capacity.
	CallbackFull
	// CallbackExperience selects an answer on the experience step of the
	// registration dialog.
	CallbackExperience
	// CallbackTimezone selects a preferred time zone.
	CallbackTimezone
)

// Callback is the decoded form of inline button data: an action kind plus
// its typed parameter. Buttons carry the wire form produced by Encode;
// ParseCallback validates at the boundary so handlers never touch raw
// strings.
type Callback struct {
	Kind           CallbackKind
	EventID        int64  // Register, Full
	RegistrationID string // Cancel
	Choice         string // Experience option token
	Zone           string // Timezone name
}

const (
	prefixRegister   = "register_"
	prefixCancel     = "cancel_"
	prefixFull       = "full_"
	prefixExperience = "ai_exp_"
	prefixTimezone   = "tz_"
)

// ParseCallback decodes inline button data into a Callback or returns
// ErrBadCallback.
func ParseCallback(data string) (Callback, error) {
	switch {
	case strings.HasPrefix(data, prefixRegister):
		id, err := strconv.ParseInt(data[len(prefixRegister):], 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		return Callback{Kind: CallbackRegister, EventID: id}, nil

	case strings.HasPrefix(data, prefixCancel):
		raw := data[len(prefixCancel):]
		if _, err := uuid.Parse(raw); err != nil {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		return Callback{Kind: CallbackCancel, RegistrationID: raw}, nil

	case strings.HasPrefix(data, prefixFull):
		id, err := strconv.ParseInt(data[len(prefixFull):], 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		return Callback{Kind: CallbackFull, EventID: id}, nil

	case strings.HasPrefix(data, prefixExperience):
		token := data[len(prefixExperience):]
		if token == "" {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		return Callback{Kind: CallbackExperience, Choice: token}, nil

	case strings.HasPrefix(data, prefixTimezone):
		zone := data[len(prefixTimezone):]
		if zone == "" {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		return Callback{Kind: CallbackTimezone, Zone: zone}, nil
	}
	return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
}

// Encode renders the wire form carried in inline button data.
func (c Callback) Encode() string {
	switch c.Kind {
	case CallbackRegister:
		return prefixRegister + strconv.FormatInt(c.EventID, 10)
	case CallbackCancel:
		return prefixCancel + c.RegistrationID
	case CallbackFull:
		return prefixFull + strconv.FormatInt(c.EventID, 10)
	case CallbackExperience:
		return prefixExperience + c.Choice
	case CallbackTimezone:
		return prefixTimezone + c.Zone
	}
	return ""
}
