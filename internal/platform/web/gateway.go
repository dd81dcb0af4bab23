// Package web implements the push gateway on the Web Push protocol (VAPID).
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-chat-fanout/fanoutservice/config"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
)

// Web device tokens are the JSON serialization of the browser's
// PushSubscription (endpoint + p256dh/auth keys). The token store treats
// them as opaque strings; this gateway is the only place that decodes them.

type Gateway struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewGateway(cfg config.VapidConfig, logger *slog.Logger) *Gateway {
	return &Gateway{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushGateway"),
		httpClient: &http.Client{},
	}
}

// SendBulk pushes the payload to each subscription in turn. Web Push has no
// batch endpoint.
func (g *Gateway) SendBulk(ctx context.Context, tokens []string, p notify.Payload) ([]dispatch.SendResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": p.Title,
			"body":  p.Body,
		},
		"data": p.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	results := make([]dispatch.SendResult, 0, len(tokens))
	for _, tok := range tokens {
		results = append(results, g.sendOne(tok, payloadBytes, 60))
	}
	return results, nil
}

func (g *Gateway) sendOne(tok string, payloadBytes []byte, ttl int) dispatch.SendResult {
	sub, err := decodeSubscription(tok)
	if err != nil {
		// A token that does not decode never will. Permanent.
		g.logger.Warn("Dropping undecodable web subscription", "err", err)
		return dispatch.SendResult{Token: tok, Code: dispatch.CodeInvalidToken}
	}

	resp, err := webpush.SendNotification(payloadBytes, sub, &webpush.Options{
		Subscriber:      g.subscriber,
		VAPIDPublicKey:  g.publicKey,
		VAPIDPrivateKey: g.privateKey,
		TTL:             ttl,
		HTTPClient:      g.httpClient,
	})
	if err != nil {
		// Transport error (DNS, timeout). Transient; keep the token.
		g.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
		return dispatch.SendResult{Token: tok, Code: dispatch.CodeUnavailable}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated:
		return dispatch.SendResult{Token: tok, Success: true}
	case http.StatusGone, http.StatusNotFound:
		// Subscription is dead at the push service.
		return dispatch.SendResult{Token: tok, Code: dispatch.CodeUnregistered}
	case http.StatusTooManyRequests:
		return dispatch.SendResult{Token: tok, Code: dispatch.CodeUnavailable}
	default:
		g.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return dispatch.SendResult{Token: tok, Code: dispatch.CodeUnknown}
	}
}

// SendDryRun probes a subscription with an empty-payload, zero-TTL push. The
// push service validates the subscription without queuing anything for the
// browser to display.
func (g *Gateway) SendDryRun(_ context.Context, tok string) error {
	sub, err := decodeSubscription(tok)
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotification(nil, sub, &webpush.Options{
		Subscriber:      g.subscriber,
		VAPIDPublicKey:  g.publicKey,
		VAPIDPrivateKey: g.privateKey,
		TTL:             0,
		HTTPClient:      g.httpClient,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service rejected subscription: status %d", resp.StatusCode)
	}
	return nil
}

func decodeSubscription(tok string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(tok), &sub); err != nil {
		return nil, fmt.Errorf("invalid subscription token: %w", err)
	}
	if sub.Endpoint == "" {
		return nil, fmt.Errorf("subscription token missing endpoint")
	}
	return &sub, nil
}
