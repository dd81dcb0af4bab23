package chat_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-fanout/pkg/chat"
)

func TestParseKind(t *testing.T) {
	assert.Equal(t, chat.KindText, chat.ParseKind("text"))
	assert.Equal(t, chat.KindFriendRequest, chat.ParseKind("friend_request"))
	assert.Equal(t, chat.KindSystem, chat.ParseKind("system"))

	// Forward compatibility: new kinds degrade, they don't fail.
	assert.Equal(t, chat.KindUnknown, chat.ParseKind("sticker"))
	assert.Equal(t, chat.KindUnknown, chat.ParseKind(""))
}

func TestPreviewBody(t *testing.T) {
	testCases := []struct {
		kind     chat.Kind
		body     string
		expected string
	}{
		{chat.KindText, "hi there", "hi there"},
		{chat.KindImage, "", "📷 Photo"},
		{chat.KindVideo, "", "🎥 Video"},
		{chat.KindAudio, "", "🔊 Audio message"},
		{chat.KindFile, "", "📎 File"},
		{chat.KindUnknown, "raw", "New message"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			ev := &chat.Event{Kind: tc.kind, Body: tc.body}
			assert.Equal(t, tc.expected, ev.PreviewBody())
		})
	}
}

func TestEnvelope_Event(t *testing.T) {
	t.Run("Message Created", func(t *testing.T) {
		raw := []byte(`{
			"event": "message_created",
			"event_id": "evt-1",
			"chat_id": "c1",
			"message_id": "m1",
			"sender_id": "urn:sm:user:u1",
			"kind": "text",
			"body": "hi"
		}`)

		var env chat.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))

		ev, err := env.Event()
		require.NoError(t, err)
		assert.Equal(t, "evt-1", ev.ID)
		assert.Equal(t, chat.KindText, ev.Kind)
		assert.Equal(t, "c1", ev.ChatID)
		assert.Equal(t, "m1", ev.MessageID)
		assert.Equal(t, "urn:sm:user:u1", ev.Sender.String())
		assert.Equal(t, "hi", ev.Body)
	})

	t.Run("Friend Request Created", func(t *testing.T) {
		raw := []byte(`{
			"event": "friend_request_created",
			"event_id": "evt-2",
			"request_id": "r1",
			"sender_id": "urn:sm:user:u1",
			"recipient_id": "urn:sm:user:u2"
		}`)

		var env chat.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))

		ev, err := env.Event()
		require.NoError(t, err)
		assert.Equal(t, chat.KindFriendRequest, ev.Kind)
		assert.Empty(t, ev.ChatID)
		assert.Equal(t, "urn:sm:user:u2", ev.Recipient.String())
	})

	t.Run("Rejects Unknown Event Type", func(t *testing.T) {
		env := chat.Envelope{EventType: "chat_deleted", SenderID: "urn:sm:user:u1"}
		_, err := env.Event()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown event type")
	})

	t.Run("Rejects Invalid Sender URN", func(t *testing.T) {
		env := chat.Envelope{EventType: chat.EnvelopeMessageCreated, ChatID: "c1", SenderID: "not-a-urn"}
		_, err := env.Event()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sender urn")
	})

	t.Run("Rejects Message Without ChatID", func(t *testing.T) {
		env := chat.Envelope{EventType: chat.EnvelopeMessageCreated, SenderID: "urn:sm:user:u1"}
		_, err := env.Event()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing chat_id")
	})
}
