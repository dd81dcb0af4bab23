// Package firestore implements the chat directory, device token store,
// presence fallback and notification log on Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const (
	chatsCollection         = "chats"
	usersCollection         = "users"
	presenceCollection      = "presence"
	notificationsCollection = "notifications"
)

// Store implements dispatch.Directory, dispatch.TokenStore,
// dispatch.PresenceStore and dispatch.NotificationLog on one Firestore
// client.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// --- Internal DB representations ---

type chatRecord struct {
	Participants []string `firestore:"participants"`
}

type userRecord struct {
	DisplayName  string   `firestore:"display_name"`
	ImageURL     string   `firestore:"image_url"`
	DeviceTokens []string `firestore:"device_tokens"`
}

type presenceRecord struct {
	Online       bool   `firestore:"online"`
	ActiveChatID string `firestore:"active_chat_id"`
}

type notificationRecord struct {
	RecipientID    string    `firestore:"recipient_id"`
	SenderID       string    `firestore:"sender_id"`
	SenderName     string    `firestore:"sender_name"`
	SenderImageURL string    `firestore:"sender_image_url"`
	Type           string    `firestore:"type"`
	IsRead         bool      `firestore:"is_read"`
	CreatedAt      time.Time `firestore:"created_at"`
}

// --- Directory ---

func (s *Store) ChatParticipants(ctx context.Context, chatID string) ([]urn.URN, error) {
	doc, err := s.client.Collection(chatsCollection).Doc(chatID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrNotFound
		}
		return nil, fmt.Errorf("chat lookup failed: %w", err)
	}

	var rec chatRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("corrupt chat record %s: %w", chatID, err)
	}

	participants := make([]urn.URN, 0, len(rec.Participants))
	for _, raw := range rec.Participants {
		member, err := urn.Parse(raw)
		if err != nil {
			// Skip corrupt rows rather than fail the whole chat.
			continue
		}
		participants = append(participants, member)
	}
	return participants, nil
}

func (s *Store) UserProfile(ctx context.Context, user urn.URN) (*dispatch.UserProfile, error) {
	rec, err := s.user(ctx, user)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, dispatch.ErrNotFound
	}
	return &dispatch.UserProfile{
		DisplayName: rec.DisplayName,
		ImageURL:    rec.ImageURL,
	}, nil
}

// --- TokenStore ---

func (s *Store) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	rec, err := s.user(ctx, user)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// A user with no record has no devices. Not an error.
		return nil, nil
	}
	return rec.DeviceTokens, nil
}

func (s *Store) Register(ctx context.Context, user urn.URN, token string) error {
	// ArrayUnion deduplicates, preserving the set invariant.
	_, err := s.userRef(user).Set(ctx, map[string]interface{}{
		"device_tokens": firestore.ArrayUnion(token),
	}, firestore.MergeAll)
	return err
}

// Remove issues a single atomic set-difference. ArrayRemove only touches the
// named members, so a token the client registers concurrently survives.
func (s *Store) Remove(ctx context.Context, user urn.URN, tokens []string) error {
	members := make([]interface{}, len(tokens))
	for i, t := range tokens {
		members[i] = t
	}

	_, err := s.userRef(user).Update(ctx, []firestore.Update{
		{Path: "device_tokens", Value: firestore.ArrayRemove(members...)},
	})
	if err != nil && status.Code(err) == codes.NotFound {
		// User record gone; nothing left to remove.
		return nil
	}
	return err
}

func (s *Store) All(ctx context.Context) ([]dispatch.UserTokens, error) {
	iter := s.client.Collection(usersCollection).Documents(ctx)
	defer iter.Stop()

	var all []dispatch.UserTokens
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var rec userRecord
		if err := doc.DataTo(&rec); err != nil {
			continue
		}
		if len(rec.DeviceTokens) == 0 {
			continue
		}

		user, err := urn.Parse(doc.Ref.ID)
		if err != nil {
			continue
		}
		all = append(all, dispatch.UserTokens{User: user, Tokens: rec.DeviceTokens})
	}
	return all, nil
}

// --- PresenceStore (fallback when Redis is disabled) ---

func (s *Store) Presence(ctx context.Context, user urn.URN) (dispatch.Presence, error) {
	doc, err := s.client.Collection(presenceCollection).Doc(user.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// No record means offline.
			return dispatch.Presence{}, nil
		}
		return dispatch.Presence{}, fmt.Errorf("presence lookup failed: %w", err)
	}

	var rec presenceRecord
	if err := doc.DataTo(&rec); err != nil {
		return dispatch.Presence{}, fmt.Errorf("corrupt presence record: %w", err)
	}
	return dispatch.Presence{Online: rec.Online, ActiveChatID: rec.ActiveChatID}, nil
}

// --- NotificationLog ---

func (s *Store) Append(ctx context.Context, rec notify.Record) error {
	dbRec := notificationRecord{
		RecipientID:    rec.Recipient.String(),
		SenderID:       rec.Sender.String(),
		SenderName:     rec.SenderName,
		SenderImageURL: rec.SenderImageURL,
		Type:           string(rec.Type),
		IsRead:         rec.IsRead,
		CreatedAt:      rec.CreatedAt,
	}
	_, err := s.client.Collection(notificationsCollection).Doc(rec.ID).Set(ctx, dbRec)
	return err
}

// --- Helpers ---

func (s *Store) user(ctx context.Context, user urn.URN) (*userRecord, error) {
	doc, err := s.userRef(user).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	var rec userRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("corrupt user record: %w", err)
	}
	return &rec, nil
}

func (s *Store) userRef(user urn.URN) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(user.String())
}
