package web

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-fanout/fanoutservice/config"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
)

func newTestGateway() *Gateway {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateway(config.VapidConfig{
		PublicKey:       "test-public",
		PrivateKey:      "test-private",
		SubscriberEmail: "mailto:ops@example.com",
	}, logger)
}

// Live sends against a push service need real VAPID keys and a browser
// subscription; those run in the integration suite. The unit tests cover the
// token decoding contract, which is this gateway's own logic.

func TestDecodeSubscription(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		sub, err := decodeSubscription(`{"endpoint":"https://push.example.com/abc","keys":{"p256dh":"pk","auth":"ak"}}`)
		require.NoError(t, err)
		assert.Equal(t, "https://push.example.com/abc", sub.Endpoint)
		assert.Equal(t, "pk", sub.Keys.P256dh)
	})

	t.Run("Not JSON", func(t *testing.T) {
		_, err := decodeSubscription("a-plain-fcm-token")
		require.Error(t, err)
	})

	t.Run("Missing Endpoint", func(t *testing.T) {
		_, err := decodeSubscription(`{"keys":{"p256dh":"pk","auth":"ak"}}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing endpoint")
	})
}

func TestSendBulk_TokenDecoding(t *testing.T) {
	ctx := context.Background()
	gateway := newTestGateway()
	payload := notify.Compose("Alice", "hi", notify.TypeMessage, nil)

	t.Run("Undecodable Token Is Permanent", func(t *testing.T) {
		results, err := gateway.SendBulk(ctx, []string{"not-a-subscription"}, payload)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
		assert.Equal(t, dispatch.CodeInvalidToken, results[0].Code)
		assert.True(t, results[0].Code.Permanent(), "a token that never decodes must be pruned")
	})

	t.Run("Empty Token List Is No-Op", func(t *testing.T) {
		results, err := gateway.SendBulk(ctx, nil, payload)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSendDryRun_BadToken(t *testing.T) {
	gateway := newTestGateway()
	require.Error(t, gateway.SendDryRun(context.Background(), "not-a-subscription"))
}
