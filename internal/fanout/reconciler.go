package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Reconciler removes device tokens the gateway reports as permanently
// invalid. Post-send reconciliation is narrow (classified permanent codes
// only); the periodic sweep is strict (any dry-run failure invalidates).
type Reconciler struct {
	tokens      dispatch.TokenStore
	gateway     dispatch.Gateway
	concurrency int
	logger      *slog.Logger
}

func NewReconciler(tokens dispatch.TokenStore, gateway dispatch.Gateway, sweepConcurrency int, logger *slog.Logger) *Reconciler {
	if sweepConcurrency <= 0 {
		sweepConcurrency = 8
	}
	return &Reconciler{
		tokens:      tokens,
		gateway:     gateway,
		concurrency: sweepConcurrency,
		logger:      logger.With("component", "TokenReconciler"),
	}
}

// Reconcile prunes tokens whose gateway result carries a permanent error
// code. Transient and unclassified failures leave the token untouched. The
// removal is a single atomic set-difference so concurrent registrations by
// the client are never lost.
func (r *Reconciler) Reconcile(ctx context.Context, user urn.URN, results []dispatch.SendResult) {
	var stale []string
	for _, res := range results {
		if !res.Success && res.Code.Permanent() {
			stale = append(stale, res.Token)
		}
	}
	if len(stale) == 0 {
		return
	}

	if err := r.tokens.Remove(ctx, user, stale); err != nil {
		r.logger.Warn("Failed to prune stale tokens", "user", user.String(), "err", err)
		return
	}
	r.logger.Info("Pruned stale device tokens", "user", user.String(), "count", len(stale))
}

// Sweep dry-run-probes every registered token and removes the ones that
// fail. Any failure counts: the sweep deliberately over-prunes rather than
// let dead tokens accumulate. Idempotent - a second run with no state change
// removes nothing further. Per-user work runs concurrently, bounded.
func (r *Reconciler) Sweep(ctx context.Context) error {
	all, err := r.tokens.All(ctx)
	if err != nil {
		return err
	}

	var (
		sem     = make(chan struct{}, r.concurrency)
		wg      sync.WaitGroup
		mu      sync.Mutex
		checked int
		removed int
	)
	for _, ut := range all {
		wg.Add(1)
		sem <- struct{}{}
		go func(ut dispatch.UserTokens) {
			defer wg.Done()
			defer func() { <-sem }()
			n := r.sweepUser(ctx, ut)
			mu.Lock()
			checked += len(ut.Tokens)
			removed += n
			mu.Unlock()
		}(ut)
	}
	wg.Wait()

	r.logger.Info("Token sweep complete", "users", len(all), "checked", checked, "removed", removed)
	return nil
}

// sweepUser probes one user's tokens and issues at most one batched removal.
// A dry-run failure for one token never aborts the checks for the rest.
func (r *Reconciler) sweepUser(ctx context.Context, ut dispatch.UserTokens) int {
	var dead []string
	for _, token := range ut.Tokens {
		if err := r.gateway.SendDryRun(ctx, token); err != nil {
			dead = append(dead, token)
		}
	}
	if len(dead) == 0 {
		return 0
	}

	if err := r.tokens.Remove(ctx, ut.User, dead); err != nil {
		r.logger.Warn("Failed to remove dead tokens during sweep",
			"user", ut.User.String(), "err", err)
		return 0
	}
	r.logger.Info("Sweep removed dead tokens", "user", ut.User.String(), "count", len(dead))
	return len(dead)
}
