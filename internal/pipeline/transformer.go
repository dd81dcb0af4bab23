// Package pipeline contains the streaming-pipeline components: the envelope
// transformer and the fan-out processor.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-chat-fanout/pkg/chat"
)

// ChatEventTransformer safely unmarshals and validates a raw message payload
// into a typed chat.Event.
//
// On any failure (malformed JSON, unknown event type, invalid URN) it
// returns an error with skip=true so the StreamingService applies its
// Nack/DLQ handling instead of retrying a poison message forever.
func ChatEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*chat.Event, bool, error) {
	var env chat.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal event envelope from message %s: %w", msg.ID, err)
	}

	ev, err := env.Event()
	if err != nil {
		return nil, true, fmt.Errorf("invalid event envelope in message %s: %w", msg.ID, err)
	}

	return ev, false, nil
}
