package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-chat-fanout/internal/fanout"
	"github.com/tinywideclouds/go-chat-fanout/pkg/chat"
)

// NewProcessor adapts the fan-out coordinator to a pipeline stage.
//
// Per-recipient failures are absorbed inside the coordinator; the only error
// this stage surfaces is a transient recipient-resolution failure, which is
// safe to retry because no send has been attempted yet. Everything else acks
// the message: automatic triggers have no caller to report to.
func NewProcessor(coordinator *fanout.Coordinator, logger *slog.Logger) messagepipeline.StreamProcessor[chat.Event] {
	return func(ctx context.Context, original messagepipeline.Message, ev *chat.Event) error {
		procLogger := logger.With(
			"event_id", ev.ID,
			"pubsub_msg_id", original.ID,
		)

		result, err := coordinator.FanOut(ctx, ev)
		if err != nil {
			procLogger.Error("Fan-out aborted before dispatch", "err", err)
			return err // Retryable
		}

		procLogger.Info("Fan-out complete",
			"delivered", result.Delivered,
			"suppressed", result.Suppressed,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
		return nil
	}
}
