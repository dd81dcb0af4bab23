// Package chat contains the domain model for inbound chat and social events.
package chat

import (
	"fmt"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Kind classifies the content of a chat event.
type Kind string

const (
	KindText          Kind = "text"
	KindImage         Kind = "image"
	KindVideo         Kind = "video"
	KindAudio         Kind = "audio"
	KindFile          Kind = "file"
	KindSystem        Kind = "system"
	KindFriendRequest Kind = "friend_request"
	// KindUnknown is the fallback for kinds this service does not recognise.
	// Unknown kinds are still deliverable; they get a generic body.
	KindUnknown Kind = "unknown"
)

// ParseKind maps a raw kind string to a typed Kind.
// Unrecognised values collapse to KindUnknown rather than failing:
// a new client version must not poison the pipeline for older services.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindText, KindImage, KindVideo, KindAudio, KindFile, KindSystem, KindFriendRequest:
		return k
	default:
		return KindUnknown
	}
}

// Event is a single durably-created chat message or social event that may
// require notification fan-out. Events are immutable once constructed.
type Event struct {
	ID        string
	Kind      Kind
	ChatID    string // empty for non-chat events (friend requests)
	MessageID string
	Sender    urn.URN
	Recipient urn.URN // set only for friend requests
	Body      string
}

// PreviewBody derives the human-readable notification body for a chat
// message. Media kinds get a short tag instead of raw content.
func (e *Event) PreviewBody() string {
	switch e.Kind {
	case KindText:
		return e.Body
	case KindImage:
		return "📷 Photo"
	case KindVideo:
		return "🎥 Video"
	case KindAudio:
		return "🔊 Audio message"
	case KindFile:
		return "📎 File"
	default:
		return "New message"
	}
}

// Envelope event type discriminators on the wire.
const (
	EnvelopeMessageCreated       = "message_created"
	EnvelopeFriendRequestCreated = "friend_request_created"
)

// Envelope mirrors the raw JSON published by the chat and social services.
// It is the untyped boundary; Event() validates it into the typed model.
type Envelope struct {
	EventType   string `json:"event"`
	EventID     string `json:"event_id"`
	ChatID      string `json:"chat_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Event validates the envelope and converts it into a typed Event.
func (env *Envelope) Event() (*Event, error) {
	sender, err := urn.Parse(env.SenderID)
	if err != nil {
		return nil, fmt.Errorf("invalid sender urn %q: %w", env.SenderID, err)
	}

	switch env.EventType {
	case EnvelopeMessageCreated:
		if env.ChatID == "" {
			return nil, fmt.Errorf("message_created event %s is missing chat_id", env.EventID)
		}
		return &Event{
			ID:        env.EventID,
			Kind:      ParseKind(env.Kind),
			ChatID:    env.ChatID,
			MessageID: env.MessageID,
			Sender:    sender,
			Body:      env.Body,
		}, nil

	case EnvelopeFriendRequestCreated:
		recipient, err := urn.Parse(env.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient urn %q: %w", env.RecipientID, err)
		}
		return &Event{
			ID:        env.EventID,
			Kind:      KindFriendRequest,
			MessageID: env.RequestID,
			Sender:    sender,
			Recipient: recipient,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", env.EventType)
	}
}
