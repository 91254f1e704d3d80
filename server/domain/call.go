package domain

import (
	"fmt"
	"time"
)

type CallID string

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func ParseCallType(s string) (CallType, error) {
	switch t := CallType(s); t {
	case "":
		return CallAudio, nil
	case CallAudio, CallVideo:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown call type %q", ErrInvalidRequest, s)
	}
}

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallOngoing   CallStatus = "ongoing"
	CallCompleted CallStatus = "completed"
	CallMissed    CallStatus = "missed"
	CallRejected  CallStatus = "rejected"
)

// Call is one offer between two members of a room and how it ended.
type Call struct {
	ID         CallID        `json:"id"`
	RoomID     RoomID        `json:"room_id"`
	Caller     UserID        `json:"caller"`
	Receiver   UserID        `json:"receiver"`
	Type       CallType      `json:"call_type"`
	Status     CallStatus    `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	AnsweredAt *time.Time    `json:"answered_at,omitempty"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

func NewCall(room RoomID, caller, receiver UserID, callType CallType, now time.Time) Call {
	return Call{
		RoomID:    room,
		Caller:    caller,
		Receiver:  receiver,
		Type:      callType,
		Status:    CallInitiated,
		StartedAt: now,
	}
}

func (c Call) Active() bool {
	return c.Status == CallInitiated || c.Status == CallOngoing
}

// Involves reports whether the call is between a and b, in either direction.
func (c Call) Involves(a, b UserID) bool {
	return (c.Caller == a && c.Receiver == b) || (c.Caller == b && c.Receiver == a)
}

// Answer moves a ringing call to ongoing. Only the receiver answers.
func (c *Call) Answer(by UserID, now time.Time) bool {
	if c.Status != CallInitiated || by != c.Receiver {
		return false
	}
	c.Status = CallOngoing
	c.AnsweredAt = &now
	return true
}

// End closes an active call. A call that was never answered is rejected when
// the receiver hangs up and missed otherwise. Duration runs from the offer.
func (c *Call) End(by UserID, now time.Time) bool {
	switch {
	case c.Status == CallOngoing:
		c.Status = CallCompleted
	case c.Status == CallInitiated && by == c.Receiver:
		c.Status = CallRejected
	case c.Status == CallInitiated:
		c.Status = CallMissed
	default:
		return false
	}
	c.EndedAt = &now
	c.Duration = now.Sub(c.StartedAt)
	return true
}
