// Package fanout implements the notification fan-out coordinator and the
// device-token reconciler.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-chat-fanout/pkg/chat"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	"github.com/tinywideclouds/go-chat-fanout/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// fallbackSenderName is used when the sender profile cannot be resolved.
const fallbackSenderName = "Someone"

// Defaults for the direct-call entry point.
const (
	defaultDirectTitle = "New Message"
	defaultDirectBody  = "You received a new message"
)

// Outcome is the terminal state of one recipient's pipeline within a fan-out.
type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeSuppressed Outcome = "suppressed" // recipient was viewing the chat
	OutcomeSkipped    Outcome = "skipped"    // no registered devices
	OutcomeFailed     Outcome = "failed"
)

// Result aggregates the per-recipient outcomes of one fan-out. A fan-out
// never fails as a unit; failures are counted, not propagated.
type Result struct {
	Delivered  int
	Suppressed int
	Skipped    int
	Failed     int
}

// Coordinator orchestrates the recipient resolution -> presence filter ->
// token lookup -> compose -> send -> reconcile pipeline for one event.
type Coordinator struct {
	directory  dispatch.Directory
	tokens     dispatch.TokenStore
	presence   dispatch.PresenceStore
	gateway    dispatch.Gateway
	feed       dispatch.NotificationLog
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewCoordinator(
	directory dispatch.Directory,
	tokens dispatch.TokenStore,
	presence dispatch.PresenceStore,
	gateway dispatch.Gateway,
	feed dispatch.NotificationLog,
	reconciler *Reconciler,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		directory:  directory,
		tokens:     tokens,
		presence:   presence,
		gateway:    gateway,
		feed:       feed,
		reconciler: reconciler,
		logger:     logger.With("component", "FanoutCoordinator"),
	}
}

// FanOut notifies every recipient of the event. Recipients are processed
// concurrently and independently: one recipient's failure is logged and
// counted but never aborts the others.
//
// The returned error is non-nil only when recipient resolution itself hit a
// transient store failure, before any send was attempted; callers may retry
// the whole event safely in that case.
func (c *Coordinator) FanOut(ctx context.Context, ev *chat.Event) (Result, error) {
	if ev.Kind == chat.KindSystem {
		// Policy, not an error: system messages never notify.
		c.logger.Debug("Suppressing system event", "event_id", ev.ID)
		return Result{}, nil
	}

	recipients, err := c.recipients(ctx, ev)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			// Chat record gone (deleted conversation). Logged no-op.
			c.logger.Info("Chat record absent, dropping event", "event_id", ev.ID, "chat_id", ev.ChatID)
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("recipient resolution failed for event %s: %w", ev.ID, err)
	}

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)
	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient urn.URN) {
			defer wg.Done()
			outcome, err := c.notifyOne(ctx, ev, recipient)
			if err != nil {
				c.logger.Error("Recipient pipeline failed",
					"event_id", ev.ID, "recipient", recipient.String(), "err", err)
			}
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeDelivered:
				result.Delivered++
			case OutcomeSuppressed:
				result.Suppressed++
			case OutcomeSkipped:
				result.Skipped++
			default:
				result.Failed++
			}
		}(recipient)
	}
	wg.Wait()

	return result, nil
}

// recipients resolves the recipient set: the named recipient for a friend
// request, otherwise all chat participants except the sender.
func (c *Coordinator) recipients(ctx context.Context, ev *chat.Event) ([]urn.URN, error) {
	if ev.Kind == chat.KindFriendRequest {
		return []urn.URN{ev.Recipient}, nil
	}

	participants, err := c.directory.ChatParticipants(ctx, ev.ChatID)
	if err != nil {
		return nil, err
	}

	recipients := make([]urn.URN, 0, len(participants))
	for _, p := range participants {
		if p.String() == ev.Sender.String() {
			continue
		}
		recipients = append(recipients, p)
	}
	return recipients, nil
}

// notifyOne runs the full pipeline for a single recipient.
func (c *Coordinator) notifyOne(ctx context.Context, ev *chat.Event, recipient urn.URN) (Outcome, error) {
	// Presence suppression: a user actively viewing the conversation never
	// receives a push for it. Only meaningful for chat-scoped events.
	if ev.ChatID != "" {
		presence, err := c.presence.Presence(ctx, recipient)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("presence lookup: %w", err)
		}
		if presence.Online && presence.ActiveChatID == ev.ChatID {
			c.logger.Debug("Recipient viewing chat, suppressing",
				"recipient", recipient.String(), "chat_id", ev.ChatID)
			return OutcomeSuppressed, nil
		}
	}

	tokens, err := c.tokens.Fetch(ctx, recipient)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("token lookup: %w", err)
	}
	if len(tokens) == 0 {
		return OutcomeSkipped, nil
	}

	sender := c.senderProfile(ctx, ev.Sender)

	var payload notify.Payload
	if ev.Kind == chat.KindFriendRequest {
		payload = notify.Compose(sender.DisplayName, "sent you a friend request", notify.TypeFriendRequest,
			map[string]string{
				notify.DataKeySenderID:   ev.Sender.String(),
				notify.DataKeySenderName: sender.DisplayName,
			})

		// Friend requests additionally land in the in-app notification
		// feed. Best effort: a feed write failure must not block the push.
		rec := notify.Record{
			ID:             uuid.NewString(),
			Recipient:      recipient,
			Sender:         ev.Sender,
			SenderName:     sender.DisplayName,
			SenderImageURL: sender.ImageURL,
			Type:           notify.TypeFriendRequest,
			IsRead:         false,
			CreatedAt:      time.Now().UTC(),
		}
		if err := c.feed.Append(ctx, rec); err != nil {
			c.logger.Warn("Failed to append notification record",
				"recipient", recipient.String(), "err", err)
		}
	} else {
		payload = notify.Compose(sender.DisplayName, ev.PreviewBody(), notify.TypeMessage,
			map[string]string{
				notify.DataKeyChatID:     ev.ChatID,
				notify.DataKeyMessageID:  ev.MessageID,
				notify.DataKeySenderID:   ev.Sender.String(),
				notify.DataKeySenderName: sender.DisplayName,
			})
	}

	results, err := c.gateway.SendBulk(ctx, tokens, payload)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("gateway send: %w", err)
	}
	c.reconciler.Reconcile(ctx, recipient, results)

	return OutcomeDelivered, nil
}

// senderProfile resolves the sender's display profile, falling back to a
// generic name when the lookup fails or the record is absent.
func (c *Coordinator) senderProfile(ctx context.Context, sender urn.URN) dispatch.UserProfile {
	profile, err := c.directory.UserProfile(ctx, sender)
	if err != nil || profile == nil || profile.DisplayName == "" {
		return dispatch.UserProfile{DisplayName: fallbackSenderName}
	}
	return *profile
}

// DirectRequest is a user-initiated notification to one explicit recipient.
type DirectRequest struct {
	Recipient urn.URN
	Title     string
	Body      string
	ChatID    string
}

// SendDirect delivers a caller-supplied notification to exactly the named
// recipient. Unlike trigger-driven fan-out there is no recipient resolution
// and no presence suppression: the caller asked for this delivery.
// Returns dispatch.ErrNotFound when the recipient does not exist.
func (c *Coordinator) SendDirect(ctx context.Context, caller urn.URN, req DirectRequest) (int, error) {
	if _, err := c.directory.UserProfile(ctx, req.Recipient); err != nil {
		return 0, err
	}

	tokens, err := c.tokens.Fetch(ctx, req.Recipient)
	if err != nil {
		return 0, fmt.Errorf("token lookup: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	title := req.Title
	if title == "" {
		title = defaultDirectTitle
	}
	body := req.Body
	if body == "" {
		body = defaultDirectBody
	}

	data := map[string]string{notify.DataKeySenderID: caller.String()}
	if req.ChatID != "" {
		data[notify.DataKeyChatID] = req.ChatID
	}
	payload := notify.Compose(title, body, notify.TypeChatMessage, data)

	results, err := c.gateway.SendBulk(ctx, tokens, payload)
	if err != nil {
		return 0, fmt.Errorf("gateway send: %w", err)
	}
	c.reconciler.Reconcile(ctx, req.Recipient, results)

	sent := 0
	for _, r := range results {
		if r.Success {
			sent++
		}
	}
	return sent, nil
}

// SendTest delivers a test notification to the caller's own devices.
func (c *Coordinator) SendTest(ctx context.Context, caller urn.URN) (int, error) {
	tokens, err := c.tokens.Fetch(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("token lookup: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	payload := notify.Compose("Test Notification", "Push delivery is working", notify.TypeTest,
		map[string]string{notify.DataKeySenderID: caller.String()})

	results, err := c.gateway.SendBulk(ctx, tokens, payload)
	if err != nil {
		return 0, fmt.Errorf("gateway send: %w", err)
	}
	c.reconciler.Reconcile(ctx, caller, results)

	sent := 0
	for _, r := range results {
		if r.Success {
			sent++
		}
	}
	return sent, nil
}
