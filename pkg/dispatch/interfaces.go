// Package dispatch defines the collaborator contracts the fan-out core is
// built against: the push gateway, the device token store, the presence
// registry, the chat directory and the in-app notification log.
package dispatch

import (
	"context"
	"errors"

	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// ErrNotFound is returned by lookups when the requested record does not
// exist. Callers decide whether absence is an error or a soft no-op.
var ErrNotFound = errors.New("not found")

// ErrorCode classifies a per-token gateway failure. Only permanent codes may
// drive token removal; everything else is transient and leaves the token
// untouched.
type ErrorCode string

const (
	// CodeInvalidToken - the token is malformed or rejected outright.
	CodeInvalidToken ErrorCode = "invalid-registration-token"
	// CodeUnregistered - the token belonged to an app install that no
	// longer exists (uninstalled, deregistered).
	CodeUnregistered ErrorCode = "registration-token-not-registered"
	// CodeUnavailable - the gateway or transport was temporarily unavailable.
	CodeUnavailable ErrorCode = "unavailable"
	// CodeUnknown - an unclassified failure. Treated as transient.
	CodeUnknown ErrorCode = "unknown"
)

// Permanent reports whether the code means the token will never succeed
// again.
func (c ErrorCode) Permanent() bool {
	return c == CodeInvalidToken || c == CodeUnregistered
}

// SendResult is the per-token outcome of a bulk send.
type SendResult struct {
	Token   string
	Success bool
	Code    ErrorCode // empty when Success
}

// Gateway is the external push-delivery transport.
type Gateway interface {
	// SendBulk delivers one payload to a batch of tokens and reports a
	// per-token outcome. A non-nil error means the batch as a whole could
	// not be attempted (transport failure); partial failure is expressed
	// through the results, not the error.
	SendBulk(ctx context.Context, tokens []string, payload notify.Payload) ([]SendResult, error)

	// SendDryRun validates a single token's deliverability without
	// presenting a visible notification.
	SendDryRun(ctx context.Context, token string) error
}

// UserTokens pairs a user with their registered device tokens.
type UserTokens struct {
	User   urn.URN
	Tokens []string
}

// TokenStore manages per-user device token sets. Tokens are unique within a
// user's set; Remove must be an atomic set-difference so concurrent client
// registrations are never lost.
type TokenStore interface {
	Fetch(ctx context.Context, user urn.URN) ([]string, error)
	Register(ctx context.Context, user urn.URN, token string) error
	Remove(ctx context.Context, user urn.URN, tokens []string) error
	// All enumerates every user holding at least one token. Used by the
	// periodic sweep.
	All(ctx context.Context) ([]UserTokens, error)
}

// Presence is a user's point-in-time presence record. The zero value
// (offline, no active chat) stands in for an absent record.
type Presence struct {
	Online       bool   `json:"online"`
	ActiveChatID string `json:"active_chat_id,omitempty"`
}

// PresenceStore is the read-only view of the presence registry.
type PresenceStore interface {
	// Presence returns the user's presence record, or the zero value when
	// no record exists.
	Presence(ctx context.Context, user urn.URN) (Presence, error)
}

// UserProfile is the subset of a user record the fan-out needs.
type UserProfile struct {
	DisplayName string
	ImageURL    string
}

// Directory is the read-only view of the chat/user store.
type Directory interface {
	// ChatParticipants returns all member URNs of a chat, or ErrNotFound
	// when the chat record is absent.
	ChatParticipants(ctx context.Context, chatID string) ([]urn.URN, error)

	// UserProfile returns a user's display profile, or ErrNotFound.
	UserProfile(ctx context.Context, user urn.URN) (*UserProfile, error)
}

// NotificationLog is the write-only in-app notification feed.
type NotificationLog interface {
	Append(ctx context.Context, rec notify.Record) error
}
