package orchestrator

import (
	"context"
	"time"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/hooks"
	"github.com/harun/toolgate/pkg/routing"
	"github.com/harun/toolgate/pkg/toolregistry"
)

// needsPostSync reports whether the graph copy must be refreshed after a request: the
// strategy was a write, or an identity write tool was executed.
func needsPostSync(strategy routing.Strategy, records []ToolCallRecord) bool {
	if strategy == routing.IdentityWriteThenSync {
		return true
	}
	for _, r := range records {
		if r.Backend == backend.Identity && toolregistry.IsWriteTool(r.Tool) {
			return true
		}
	}
	return false
}

// schedulePostSync starts a forced sync that outlives the request. Failures are logged.
func (o *Orchestrator) schedulePostSync(ctx context.Context, scope string) {
	detached := tracing.Detach(ctx)
	logger := tracing.LoggerFromContext(ctx, o.logger).With().Str("scope", scope).Logger()

	o.background.Add(1)
	go func() {
		defer o.background.Done()

		ctx, cancel := context.WithTimeout(detached, o.postSyncTimeout)
		defer cancel()

		res, err := o.sync.SyncFromSource(ctx, scope, true)
		if err != nil {
			logger.Error().Err(err).Msg("Post-write sync failed")
			o.runHooks(ctx, hooks.EventSyncFailed, map[string]interface{}{
				"scope": scope,
				"error": err.Error(),
			})
			return
		}
		logger.Info().Int("records", res.RecordsSynced).Msg("Post-write sync completed")
		o.runHooks(ctx, hooks.EventSyncCompleted, map[string]interface{}{
			"scope":   scope,
			"records": res.RecordsSynced,
		})
	}()
}

// trigger runs hooks for event in the background.
func (o *Orchestrator) trigger(ctx context.Context, event string, data map[string]interface{}) {
	if o.hooks == nil {
		return
	}
	detached := tracing.Detach(ctx)

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.runHooks(detached, event, data)
	}()
}

func (o *Orchestrator) runHooks(ctx context.Context, event string, data map[string]interface{}) {
	if o.hooks == nil {
		return
	}
	if err := o.hooks.Trigger(ctx, event, data); err != nil {
		logger := tracing.LoggerFromContext(ctx, o.logger)
		logger.Warn().Err(err).Str("event", event).Msg("Hooks failed")
	}
}

// Drain waits for background post-syncs and hooks to finish, or for ctx to end.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainTimeout is Drain with a deadline.
func (o *Orchestrator) DrainTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return o.Drain(ctx)
}
