package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallType(t *testing.T) {
	got, err := ParseCallType("")
	require.NoError(t, err)
	assert.Equal(t, CallAudio, got)

	got, err = ParseCallType("video")
	require.NoError(t, err)
	assert.Equal(t, CallVideo, got)

	_, err = ParseCallType("fax")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestCallTransitions(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	const caller, receiver UserID = "a@example.com", "b@example.com"

	tests := []struct {
		name     string
		answer   bool
		endedBy  UserID
		want     CallStatus
		duration time.Duration
	}{
		{"answered then hung up", true, caller, CallCompleted, time.Minute},
		{"receiver declines", false, receiver, CallRejected, time.Minute},
		{"caller gives up", false, caller, CallMissed, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCall("room", caller, receiver, CallVideo, start)
			assert.True(t, c.Active())
			assert.True(t, c.Involves(receiver, caller))
			if tt.answer {
				assert.False(t, c.Answer(caller, start), "only the receiver answers")
				require.True(t, c.Answer(receiver, start.Add(time.Second)))
				assert.Equal(t, CallOngoing, c.Status)
			}
			require.True(t, c.End(tt.endedBy, start.Add(time.Minute)))
			assert.Equal(t, tt.want, c.Status)
			assert.Equal(t, tt.duration, c.Duration)
			assert.False(t, c.Active())
			assert.False(t, c.End(tt.endedBy, start.Add(time.Hour)))
		})
	}
}
