// Package apns implements the push gateway on the Apple Push Notification
// service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
}

type Gateway struct {
	client APNSClient
	topic  string // the app bundle ID
	logger *slog.Logger
}

// NewGateway creates a configured APNs gateway. It parses the P8 key
// immediately to fail fast on startup if credentials are bad.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	return &Gateway{
		client: apns2.NewTokenClient(tokenSource),
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSGateway"),
	}, nil
}

// NewGatewayWithClient injects a prebuilt client. Used in tests.
func NewGatewayWithClient(client APNSClient, bundleID string, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		topic:  bundleID,
		logger: logger.With("component", "APNSGateway"),
	}
}

// SendBulk delivers the payload token by token. The APNs HTTP/2 API is unary;
// there is no multicast endpoint. Serial iteration per user is acceptable
// because this already runs inside a scaled pipeline worker.
func (g *Gateway) SendBulk(ctx context.Context, tokens []string, p notify.Payload) ([]dispatch.SendResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	builder := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body)
	if p.Sound != "" {
		builder = builder.Sound(p.Sound)
	}
	for k, v := range p.Data {
		builder = builder.Custom(k, v)
	}

	results := make([]dispatch.SendResult, 0, len(tokens))
	for _, deviceToken := range tokens {
		n := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       g.topic,
			Payload:     builder,
		}

		res, err := g.client.Push(n)
		if err != nil {
			// Transport failure for this token only. Transient: never a
			// reason to delete the token.
			g.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			results = append(results, dispatch.SendResult{
				Token: deviceToken, Code: dispatch.CodeUnavailable,
			})
			continue
		}

		if res.Sent() {
			results = append(results, dispatch.SendResult{Token: deviceToken, Success: true})
			continue
		}
		results = append(results, dispatch.SendResult{
			Token: deviceToken, Code: classifyReason(res.Reason),
		})
	}

	return results, nil
}

// classifyReason maps APNs rejection reasons onto our error codes.
func classifyReason(reason string) dispatch.ErrorCode {
	switch reason {
	case apns2.ReasonUnregistered:
		return dispatch.CodeUnregistered
	case apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic:
		return dispatch.CodeInvalidToken
	default:
		// TopicDisallowed, PayloadEmpty etc. mean our configuration is
		// wrong, not that the token is dead.
		return dispatch.CodeUnknown
	}
}

// SendDryRun probes a token with a silent background push. Nothing is shown
// to the user, but APNs still validates the token.
func (g *Gateway) SendDryRun(_ context.Context, deviceToken string) error {
	n := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       g.topic,
		Payload:     payload.NewPayload().ContentAvailable(),
		Priority:    apns2.PriorityLow,
	}

	res, err := g.client.Push(n)
	if err != nil {
		return err
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected token: %s", res.Reason)
	}
	return nil
}
