// Package notify contains the public notification payload model and the
// pure composer that builds gateway-ready payloads.
package notify

import (
	"time"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// DataType is the client-side routing discriminator carried in data["type"].
// It is the only signal the receiving app has for deciding which screen to
// open, so every payload must carry exactly one of these values.
type DataType string

const (
	TypeChatMessage   DataType = "chat_message"
	TypeMessage       DataType = "message"
	TypeFriendRequest DataType = "friend_request"
	TypeTest          DataType = "test_notification"
)

// ClickAction is the intent filter the mobile client registers for
// notification taps.
const ClickAction = "FLUTTER_NOTIFICATION_CLICK"

// DefaultSound is the platform default notification sound.
const DefaultSound = "default"

// Data field keys.
const (
	DataKeyType       = "type"
	DataKeyChatID     = "chatId"
	DataKeySenderID   = "senderId"
	DataKeySenderName = "senderName"
	DataKeyMessageID  = "messageId"
)

// Payload is a composed, gateway-ready notification. It is built fresh per
// recipient and never persisted.
type Payload struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
}

// Type returns the routing discriminator carried by the payload.
func (p Payload) Type() DataType {
	return DataType(p.Data[DataKeyType])
}

// Record is the lightweight in-app notification entry written for social
// events (friend requests) so the client can render a notification feed.
// Create-once; only the client ever mutates it (marking it read).
type Record struct {
	ID             string
	Recipient      urn.URN
	Sender         urn.URN
	SenderName     string
	SenderImageURL string
	Type           DataType
	IsRead         bool
	CreatedAt      time.Time
}
