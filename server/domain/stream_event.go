package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventChatMessage   EventType = "chat_message"
	EventUserJoined    EventType = "user_joined"
	EventUserLeft      EventType = "user_left"
	EventTyping        EventType = "typing"
	EventReadReceipt   EventType = "read_receipt"
	EventCallOffer     EventType = "call_offer"
	EventCallAnswer    EventType = "call_answer"
	EventICECandidate  EventType = "ice_candidate"
	EventCallEnd       EventType = "call_end"
	EventHistory       EventType = "history"
	EventMessageEdited EventType = "message_edited"
	EventRoomClosed    EventType = "room_closed"
	EventSessionEnded  EventType = "session_ended"
	EventPong          EventType = "pong"
	EventError         EventType = "error"
)

// Event is a server to client frame. Fields not relevant to the type stay empty.
type Event struct {
	Type        EventType       `json:"type"`
	RoomID      RoomID          `json:"room_id,omitempty"`
	Sender      UserID          `json:"sender,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	OnlineCount *int            `json:"online_count,omitempty"`
	MessageID   MessageID       `json:"message_id,omitempty"`
	Message     string          `json:"message,omitempty"`
	Kind        MessageKind     `json:"kind,omitempty"`
	ReplyTo     MessageID       `json:"reply_to,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	FileURL     string          `json:"file_url,omitempty"`
	Edited      bool            `json:"edited,omitempty"`
	IsTyping    *bool           `json:"is_typing,omitempty"`
	TargetID    UserID          `json:"target_id,omitempty"`
	CallerID    UserID          `json:"caller_id,omitempty"`
	CallerName  string          `json:"caller_name,omitempty"`
	CallType    string          `json:"call_type,omitempty"`
	Offer       json.RawMessage `json:"offer,omitempty"`
	Answer      json.RawMessage `json:"answer,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	Messages    []Message       `json:"messages,omitempty"`
	Code        string          `json:"code,omitempty"`
	Error       string          `json:"error,omitempty"`
	Fatal       bool            `json:"fatal,omitempty"`
}

func NewChatMessageEvent(m Message) Event {
	return Event{
		Type:        EventChatMessage,
		RoomID:      m.RoomID,
		Sender:      m.Sender,
		DisplayName: m.SenderName,
		Timestamp:   m.CreatedAt,
		MessageID:   m.ID,
		Message:     m.Content,
		Kind:        m.Kind,
		ReplyTo:     m.ReplyTo,
		ImageURL:    m.ImageURL,
		FileURL:     m.FileURL,
	}
}

func NewMessageEditedEvent(m Message) Event {
	e := NewChatMessageEvent(m)
	e.Type = EventMessageEdited
	e.Edited = true
	e.Timestamp = time.Now()
	return e
}

func NewJoinEvent(room RoomID, who Identity, onlineCount int) Event {
	return Event{
		Type:        EventUserJoined,
		RoomID:      room,
		Sender:      who.ID,
		DisplayName: who.Name(),
		Timestamp:   time.Now(),
		OnlineCount: &onlineCount,
	}
}

func NewLeaveEvent(room RoomID, who Identity, onlineCount int) Event {
	e := NewJoinEvent(room, who, onlineCount)
	e.Type = EventUserLeft
	return e
}

func NewTypingEvent(room RoomID, who Identity, typing bool) Event {
	return Event{
		Type:        EventTyping,
		RoomID:      room,
		Sender:      who.ID,
		DisplayName: who.Name(),
		Timestamp:   time.Now(),
		IsTyping:    &typing,
	}
}

func NewReadReceiptEvent(room RoomID, who Identity, message MessageID) Event {
	return Event{
		Type:        EventReadReceipt,
		RoomID:      room,
		Sender:      who.ID,
		DisplayName: who.Name(),
		Timestamp:   time.Now(),
		MessageID:   message,
	}
}

// NewSignalEvent builds the call_offer, call_answer, ice_candidate or call_end frame
// delivered to target. Offers are stamped with the caller.
func NewSignalEvent(room RoomID, from Identity, target UserID, req Request) Event {
	e := Event{
		Type:        EventType(req.Type),
		RoomID:      room,
		Sender:      from.ID,
		DisplayName: from.Name(),
		Timestamp:   time.Now(),
		TargetID:    target,
		Offer:       req.Offer,
		Answer:      req.Answer,
		Candidate:   req.Candidate,
	}
	if req.Type == RequestCallOffer {
		e.CallerID = from.ID
		e.CallerName = from.Name()
		e.CallType = req.CallType
		if e.CallType == "" {
			e.CallType = string(CallAudio)
		}
	}
	return e
}

func NewHistoryEvent(room RoomID, messages []Message) Event {
	if messages == nil {
		messages = []Message{}
	}
	return Event{
		Type:      EventHistory,
		RoomID:    room,
		Timestamp: time.Now(),
		Messages:  messages,
	}
}

func NewRoomClosedEvent(room RoomID, by Identity) Event {
	return Event{
		Type:        EventRoomClosed,
		RoomID:      room,
		Sender:      by.ID,
		DisplayName: by.Name(),
		Timestamp:   time.Now(),
		Message:     "room closed",
	}
}

func NewSessionEndedEvent(room RoomID, reason string) Event {
	return Event{
		Type:      EventSessionEnded,
		RoomID:    room,
		Timestamp: time.Now(),
		Message:   reason,
	}
}

func NewPongEvent() Event {
	return Event{
		Type:      EventPong,
		Timestamp: time.Now(),
	}
}

func NewErrorEvent(err error, fatal bool) Event {
	return Event{
		Type:      EventError,
		Timestamp: time.Now(),
		Code:      CodeOf(err),
		Error:     err.Error(),
		Fatal:     fatal,
	}
}

// Terminal events end the receiving session once written.
func (e Event) Terminal() bool {
	return e.Type == EventRoomClosed || e.Type == EventSessionEnded || (e.Type == EventError && e.Fatal)
}

func (e Event) String() string {
	switch e.Type {
	case EventError:
		return string(e.Type) + ": " + e.Code + " - " + e.Error
	case EventChatMessage, EventMessageEdited:
		return string(e.Type) + ": " + e.Sender.String() + " - " + e.Message
	default:
		return string(e.Type) + ": " + e.Sender.String()
	}
}
