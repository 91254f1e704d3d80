package domain

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

type RequestType string

const (
	RequestMessage      RequestType = "message"
	RequestTyping       RequestType = "typing"
	RequestReadReceipt  RequestType = "read_receipt"
	RequestCallOffer    RequestType = "call_offer"
	RequestCallAnswer   RequestType = "call_answer"
	RequestICECandidate RequestType = "ice_candidate"
	RequestCallEnd      RequestType = "call_end"
	RequestLeave        RequestType = "leave"
	RequestPing         RequestType = "ping"
)

// Request is a client to server frame.
type Request struct {
	Type       RequestType     `json:"type"`
	Message    string          `json:"message,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	ReplyTo    MessageID       `json:"reply_to,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	FileURL    string          `json:"file_url,omitempty"`
	MessageID  MessageID       `json:"message_id,omitempty"`
	IsTyping   *bool           `json:"is_typing,omitempty"`
	ReceiverID string          `json:"receiver_id,omitempty"`
	TargetID   string          `json:"target_id,omitempty"`
	CallerID   string          `json:"caller_id,omitempty"`
	CallType   string          `json:"call_type,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

func ParseRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: malformed frame: %v", ErrInvalidRequest, err)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func (r Request) Validate() error {
	switch r.Type {
	case RequestMessage:
		if utf8.RuneCountInString(r.Message) > MaxMessageLength {
			return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, MaxMessageLength)
		}
	case RequestTyping, RequestLeave, RequestPing:
	case RequestReadReceipt:
		if r.MessageID == "" {
			return fmt.Errorf("%w: read_receipt requires message_id", ErrInvalidRequest)
		}
	case RequestCallOffer, RequestCallAnswer, RequestICECandidate:
		if r.Target() == "" {
			return fmt.Errorf("%w: %s requires a target", ErrInvalidRequest, r.Type)
		}
		if len(r.payload()) == 0 {
			return fmt.Errorf("%w: %s requires a payload", ErrInvalidRequest, r.Type)
		}
		if r.Type == RequestCallOffer {
			if _, err := ParseCallType(r.CallType); err != nil {
				return err
			}
		}
	case RequestCallEnd:
		if r.Target() == "" {
			return fmt.Errorf("%w: %s requires a target", ErrInvalidRequest, r.Type)
		}
	case "":
		return fmt.Errorf("%w: frame type is required", ErrInvalidRequest)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	return nil
}

func (r Request) IsSignal() bool {
	switch r.Type {
	case RequestCallOffer, RequestCallAnswer, RequestICECandidate, RequestCallEnd:
		return true
	default:
		return false
	}
}

// Target resolves the recipient of a direct signal. Offers address the
// receiver, answers the caller, candidates and hang-ups either peer.
func (r Request) Target() UserID {
	var candidates []string
	switch r.Type {
	case RequestCallOffer:
		candidates = []string{r.ReceiverID, r.TargetID}
	case RequestCallAnswer:
		candidates = []string{r.CallerID, r.TargetID, r.ReceiverID}
	case RequestICECandidate, RequestCallEnd:
		candidates = []string{r.TargetID, r.ReceiverID, r.CallerID}
	}
	for _, c := range candidates {
		if id := NewUserID(c); id != "" {
			return id
		}
	}
	return ""
}

// Typing defaults to true when is_typing is omitted.
func (r Request) Typing() bool {
	return r.IsTyping == nil || *r.IsTyping
}

func (r Request) payload() json.RawMessage {
	switch r.Type {
	case RequestCallOffer:
		return r.Offer
	case RequestCallAnswer:
		return r.Answer
	default:
		return r.Candidate
	}
}
