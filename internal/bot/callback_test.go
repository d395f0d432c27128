package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallbackRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cb   Callback
		wire string
	}{
		{
			name: "register",
			cb:   Callback{Kind: CallbackRegister, EventID: 42},
			wire: "register_42",
		},
		{
			name: "cancel",
			cb:   Callback{Kind: CallbackCancel, RegistrationID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
			wire: "cancel_6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		},
		{
			name: "full",
			cb:   Callback{Kind: CallbackFull, EventID: 7},
			wire: "full_7",
		},
		{
			name: "experience",
			cb:   Callback{Kind: CallbackExperience, Choice: "NO_AI_WANT_TO"},
			wire: "ai_exp_NO_AI_WANT_TO",
		},
		{
			name: "timezone",
			cb:   Callback{Kind: CallbackTimezone, Zone: "Europe/Moscow"},
			wire: "tz_Europe/Moscow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.cb.Encode())
			parsed, err := ParseCallback(tt.wire)
			require.NoError(t, err)
			assert.Equal(t, tt.cb, parsed)
		})
	}
}

func TestParseCallbackRejectsMalformedData(t *testing.T) {
	bad := []string{
		"",
		"bogus",
		"register_",
		"register_abc",
		"full_x",
		"cancel_42",
		"cancel_not-a-uuid",
		"ai_exp_",
		"tz_",
		"Register_42",
	}
	for _, data := range bad {
		t.Run(data, func(t *testing.T) {
			_, err := ParseCallback(data)
			assert.ErrorIs(t, err, ErrBadCallback)
		})
	}
}
