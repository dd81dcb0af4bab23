package cache_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-fanout/internal/storage/cache"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

func TestPresenceRegistry(t *testing.T) {
	ctx := context.Background()
	userURN, _ := urn.Parse("urn:sm:user:viewer")
	presenceKey := "presence:urn:sm:user:viewer"

	t.Run("Returns Stored Record", func(t *testing.T) {
		mockCache := new(MockCache)
		registry := cache.NewPresenceRegistry(mockCache)

		mockCache.On("Get", ctx, presenceKey, mock.Anything).Run(func(args mock.Arguments) {
			dest := args.Get(2).(*dispatch.Presence)
			*dest = dispatch.Presence{Online: true, ActiveChatID: "c1"}
		}).Return(nil)

		presence, err := registry.Presence(ctx, userURN)

		require.NoError(t, err)
		assert.True(t, presence.Online)
		assert.Equal(t, "c1", presence.ActiveChatID)
	})

	t.Run("Absent Key Means Offline", func(t *testing.T) {
		mockCache := new(MockCache)
		registry := cache.NewPresenceRegistry(mockCache)

		mockCache.On("Get", ctx, presenceKey, mock.Anything).Return(redis.Nil)

		presence, err := registry.Presence(ctx, userURN)

		require.NoError(t, err)
		assert.Equal(t, dispatch.Presence{}, presence)
	})

	t.Run("Redis Failure Surfaces", func(t *testing.T) {
		mockCache := new(MockCache)
		registry := cache.NewPresenceRegistry(mockCache)

		mockCache.On("Get", ctx, presenceKey, mock.Anything).Return(assert.AnError)

		_, err := registry.Presence(ctx, userURN)

		require.Error(t, err)
	})
}
