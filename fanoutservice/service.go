// Package fanoutservice assembles the chat notification fan-out service:
// the streaming pipeline, the scheduled token sweep and the HTTP API.
package fanoutservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-chat-fanout/fanoutservice/config"
	"github.com/tinywideclouds/go-chat-fanout/internal/api"
	"github.com/tinywideclouds/go-chat-fanout/internal/fanout"
	"github.com/tinywideclouds/go-chat-fanout/internal/pipeline"
	"github.com/tinywideclouds/go-chat-fanout/pkg/chat"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
)

// sweepTimeout bounds one full sweep run. Partial progress is safe: the
// sweep is idempotent and resumes on the next tick.
const sweepTimeout = 30 * time.Minute

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[chat.Event]
	scheduler       *cron.Cron
	logger          *slog.Logger
}

// New assembles the service from its injected collaborators.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	gateway dispatch.Gateway,
	tokenStore dispatch.TokenStore,
	presence dispatch.PresenceStore,
	directory dispatch.Directory,
	notificationLog dispatch.NotificationLog,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Core: reconciler + coordinator + pipeline processor
	reconciler := fanout.NewReconciler(tokenStore, gateway, cfg.Sweep.Concurrency, logger)
	coordinator := fanout.NewCoordinator(directory, tokenStore, presence, gateway, notificationLog, reconciler, logger)
	processor := pipeline.NewProcessor(coordinator, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService[chat.Event](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.ChatEventTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. Scheduled sweep
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Sweep.Schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if err := reconciler.Sweep(sweepCtx); err != nil {
			logger.Error("Scheduled token sweep failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Sweep.Schedule, err)
	}

	// 5. API
	tokenAPI := api.NewTokenAPI(tokenStore, logger)
	notifyAPI := api.NewNotifyAPI(coordinator, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/tokens/register", tokenAPI.Register)
	handle("POST /api/v1/tokens/unregister", tokenAPI.Unregister)
	handle("POST /api/v1/notifications/send", notifyAPI.Send)
	handle("POST /api/v1/notifications/test", notifyAPI.SendTest)

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 OK with CORS headers handled by middleware
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		scheduler:       scheduler,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.scheduler.Start()
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error

	// Let an in-flight sweep finish or be abandoned by its own timeout.
	select {
	case <-w.scheduler.Stop().Done():
	case <-ctx.Done():
		w.logger.Warn("Gave up waiting for sweep scheduler to stop.")
	}

	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
