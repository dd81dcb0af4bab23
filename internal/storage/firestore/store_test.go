//go:build integration

package firestore_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-chat-fanout/internal/storage/firestore"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

func setupSuite(t *testing.T) (context.Context, *firestore.Client, *fs.Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	projectID := "test-fanout-store"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return ctx, client, fs.NewStore(client)
}

func TestTokenStore_Integration(t *testing.T) {
	ctx, _, store := setupSuite(t)
	userURN, _ := urn.Parse("urn:sm:user:token-user")

	t.Run("Registration Lifecycle", func(t *testing.T) {
		// 1. Register
		require.NoError(t, store.Register(ctx, userURN, "token-android-1"))

		// 2. Fetch and Verify
		tokens, err := store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Equal(t, []string{"token-android-1"}, tokens)

		// 3. Duplicate registration is a no-op (set semantics)
		require.NoError(t, store.Register(ctx, userURN, "token-android-1"))
		tokens, err = store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)

		// 4. Remove
		require.NoError(t, store.Remove(ctx, userURN, []string{"token-android-1"}))
		tokens, err = store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("Remove Is A Set Difference", func(t *testing.T) {
		u, _ := urn.Parse("urn:sm:user:multi-device")
		require.NoError(t, store.Register(ctx, u, "tok-keep"))
		require.NoError(t, store.Register(ctx, u, "tok-drop-1"))
		require.NoError(t, store.Register(ctx, u, "tok-drop-2"))

		require.NoError(t, store.Remove(ctx, u, []string{"tok-drop-1", "tok-drop-2"}))

		tokens, err := store.Fetch(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-keep"}, tokens)
	})

	t.Run("Remove For Absent User Is No-Op", func(t *testing.T) {
		ghost, _ := urn.Parse("urn:sm:user:ghost")
		require.NoError(t, store.Remove(ctx, ghost, []string{"whatever"}))
	})

	t.Run("Fetch For Absent User Is Empty", func(t *testing.T) {
		ghost, _ := urn.Parse("urn:sm:user:never-registered")
		tokens, err := store.Fetch(ctx, ghost)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("All Enumerates Only Users With Tokens", func(t *testing.T) {
		holder, _ := urn.Parse("urn:sm:user:holder")
		require.NoError(t, store.Register(ctx, holder, "tok-sweep"))

		all, err := store.All(ctx)
		require.NoError(t, err)

		found := false
		for _, ut := range all {
			require.NotEmpty(t, ut.Tokens)
			if ut.User.String() == holder.String() {
				found = true
				assert.Contains(t, ut.Tokens, "tok-sweep")
			}
		}
		assert.True(t, found)
	})
}

func TestDirectory_Integration(t *testing.T) {
	ctx, client, store := setupSuite(t)

	t.Run("Chat Participants", func(t *testing.T) {
		_, err := client.Collection("chats").Doc("chat-1").Set(ctx, map[string]interface{}{
			"participants": []string{
				"urn:sm:user:alice",
				"urn:sm:user:bob",
				"not a valid urn", // corrupt row, must be skipped
			},
		})
		require.NoError(t, err)

		participants, err := store.ChatParticipants(ctx, "chat-1")
		require.NoError(t, err)
		require.Len(t, participants, 2)
	})

	t.Run("Absent Chat Is ErrNotFound", func(t *testing.T) {
		_, err := store.ChatParticipants(ctx, "no-such-chat")
		require.ErrorIs(t, err, dispatch.ErrNotFound)
	})

	t.Run("User Profile", func(t *testing.T) {
		_, err := client.Collection("users").Doc("urn:sm:user:alice").Set(ctx, map[string]interface{}{
			"display_name": "Alice",
			"image_url":    "http://img/alice",
		})
		require.NoError(t, err)

		alice, _ := urn.Parse("urn:sm:user:alice")
		profile, err := store.UserProfile(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "Alice", profile.DisplayName)
		assert.Equal(t, "http://img/alice", profile.ImageURL)

		ghost, _ := urn.Parse("urn:sm:user:ghost")
		_, err = store.UserProfile(ctx, ghost)
		require.ErrorIs(t, err, dispatch.ErrNotFound)
	})
}

func TestPresenceFallback_Integration(t *testing.T) {
	ctx, client, store := setupSuite(t)
	viewer, _ := urn.Parse("urn:sm:user:viewer")

	t.Run("Absent Record Means Offline", func(t *testing.T) {
		presence, err := store.Presence(ctx, viewer)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Presence{}, presence)
	})

	t.Run("Reads Stored Record", func(t *testing.T) {
		_, err := client.Collection("presence").Doc(viewer.String()).Set(ctx, map[string]interface{}{
			"online":         true,
			"active_chat_id": "chat-1",
		})
		require.NoError(t, err)

		presence, err := store.Presence(ctx, viewer)
		require.NoError(t, err)
		assert.True(t, presence.Online)
		assert.Equal(t, "chat-1", presence.ActiveChatID)
	})
}

func TestNotificationLog_Integration(t *testing.T) {
	ctx, client, store := setupSuite(t)
	sender, _ := urn.Parse("urn:sm:user:alice")
	recipient, _ := urn.Parse("urn:sm:user:bob")

	rec := notify.Record{
		ID:         "rec-1",
		Recipient:  recipient,
		Sender:     sender,
		SenderName: "Alice",
		Type:       notify.TypeFriendRequest,
		IsRead:     false,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Append(ctx, rec))

	doc, err := client.Collection("notifications").Doc("rec-1").Get(ctx)
	require.NoError(t, err)

	data := doc.Data()
	assert.Equal(t, recipient.String(), data["recipient_id"])
	assert.Equal(t, "Alice", data["sender_name"])
	assert.Equal(t, string(notify.TypeFriendRequest), data["type"])
	assert.Equal(t, false, data["is_read"])
}
