package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
)

func TestCompose(t *testing.T) {
	t.Run("Sets Defaults", func(t *testing.T) {
		p := notify.Compose("Alice", "hi", notify.TypeMessage, map[string]string{
			notify.DataKeyChatID: "c1",
		})

		assert.Equal(t, "Alice", p.Title)
		assert.Equal(t, "hi", p.Body)
		assert.Equal(t, notify.DefaultSound, p.Sound)
		assert.Equal(t, notify.ClickAction, p.ClickAction)
		assert.Equal(t, "c1", p.Data[notify.DataKeyChatID])
		assert.Equal(t, notify.TypeMessage, p.Type())
	})

	t.Run("Is Pure", func(t *testing.T) {
		data := map[string]string{notify.DataKeySenderID: "urn:sm:user:u1"}

		first := notify.Compose("Alice", "hi", notify.TypeMessage, data)
		second := notify.Compose("Alice", "hi", notify.TypeMessage, data)
		require.Equal(t, first, second)

		// Input map is copied, not retained.
		data["mutated"] = "yes"
		assert.NotContains(t, first.Data, "mutated")
	})

	t.Run("Type Overrides Caller Data", func(t *testing.T) {
		p := notify.Compose("Alice", "hi", notify.TypeFriendRequest, map[string]string{
			notify.DataKeyType: "bogus",
		})
		assert.Equal(t, notify.TypeFriendRequest, p.Type())
	})

	t.Run("WithoutSound", func(t *testing.T) {
		p := notify.Compose("Alice", "hi", notify.TypeTest, nil, notify.WithoutSound())
		assert.Empty(t, p.Sound)
	})

	t.Run("All Discriminators", func(t *testing.T) {
		for _, typ := range []notify.DataType{
			notify.TypeChatMessage,
			notify.TypeMessage,
			notify.TypeFriendRequest,
			notify.TypeTest,
		} {
			p := notify.Compose("t", "b", typ, nil)
			assert.Equal(t, string(typ), p.Data[notify.DataKeyType])
		}
	})
}
