package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
		code string
	}{
		{fmt.Errorf("%w: room is inactive", ErrUnauthorized), KindUnauthorized, "unauthorized"},
		{fmt.Errorf("failed to get room: %w", ErrRoomNotFound), KindNotFound, "room_not_found"},
		{ErrRoomFull, KindConflict, "room_full"},
		{fmt.Errorf("%w: already accepted", ErrInvitationAlreadyDecided), KindConflict, "invitation_already_decided"},
		{ErrInvitationExpired, KindExpired, "invitation_expired"},
		{ErrEmptyContent, KindInvalid, "empty_content"},
		{fmt.Errorf("%w: %w", ErrTransient, errors.New("broker down")), KindTransient, "unavailable"},
		{errors.New("boom"), KindInternal, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}
