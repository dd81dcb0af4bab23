// Package fcm implements the push gateway on Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SendDryRun(ctx context.Context, msg *messaging.Message) (string, error)
}

type Gateway struct {
	client MessagingClient // *messaging.Client satisfies this
	logger *slog.Logger
}

func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FCMGateway"),
	}
}

// SendBulk delivers one payload to a batch of tokens via multicast and maps
// the SDK's batch response into per-token results. A non-nil error means the
// whole batch failed at the transport level and nothing was delivered.
func (g *Gateway) SendBulk(ctx context.Context, tokens []string, payload notify.Payload) ([]dispatch.SendResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   payload.Data,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Sound:       payload.Sound,
				ClickAction: payload.ClickAction,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: payload.Sound},
			},
		},
	}

	br, err := g.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			// The batch itself was rejected as malformed. Nothing token
			// related to report; dropping beats retrying a bad payload.
			g.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "err", err)
			return nil, nil
		}
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	results := make([]dispatch.SendResult, len(br.Responses))
	for idx, resp := range br.Responses {
		res := dispatch.SendResult{Token: tokens[idx], Success: resp.Success}
		if !resp.Success {
			res.Code = classify(resp.Error)
		}
		results[idx] = res
	}

	g.logger.Debug("FCM batch dispatched",
		"success", br.SuccessCount, "failure", br.FailureCount)
	return results, nil
}

// classify maps an SDK per-token error to our gateway error codes. Only the
// two permanent classes matter downstream; everything unclassified stays
// transient so no token is ever removed on a guess.
func classify(err error) dispatch.ErrorCode {
	switch {
	case messaging.IsRegistrationTokenNotRegistered(err):
		return dispatch.CodeUnregistered
	case messaging.IsInvalidArgument(err):
		return dispatch.CodeInvalidToken
	default:
		return dispatch.CodeUnknown
	}
}

// SendDryRun validates a single token without delivering anything visible.
func (g *Gateway) SendDryRun(ctx context.Context, token string) error {
	_, err := g.client.SendDryRun(ctx, &messaging.Message{
		Token: token,
		Data:  map[string]string{"probe": "1"},
	})
	return err
}
