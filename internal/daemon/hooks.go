package daemon

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/pkg/hooks"
)

const defaultHookTimeout = 5 * time.Second

func newHookManager(cfg config.HooksConfig, logger zerolog.Logger) (*hooks.Manager, error) {
	hookDefs := make([]hooks.Hook, 0, len(cfg.Hooks))
	for _, entry := range cfg.Hooks {
		timeout := entry.Timeout
		if timeout <= 0 {
			timeout = defaultHookTimeout
		}
		hookDefs = append(hookDefs, hooks.Hook{
			ID:      strings.TrimSpace(entry.ID),
			Event:   strings.TrimSpace(entry.Event),
			Script:  strings.TrimSpace(entry.Script),
			Timeout: timeout,
			Enabled: entry.Enabled,
		})
	}

	return hooks.NewManager(hooks.Config{
		Enabled: cfg.Enabled,
		Hooks:   hookDefs,
		Logger:  logger,
	})
}

func (d *Daemon) triggerHookEvent(ctx context.Context, event string, data map[string]interface{}) error {
	if d.hookManager == nil {
		return nil
	}
	return d.hookManager.Trigger(ctx, event, data)
}

func (d *Daemon) triggerStartupHooks() {
	if err := d.triggerHookEvent(d.ctx, hooks.EventStartup, map[string]interface{}{
		"pid":      os.Getpid(),
		"addr":     d.gatewayServer.Addr(),
		"provider": strings.ToLower(d.config.Provider.Active),
	}); err != nil {
		d.log.Warn().Err(err).Msg("gateway:startup hooks failed")
	}
}

func (d *Daemon) triggerShutdownHooks() {
	if err := d.triggerHookEvent(context.Background(), hooks.EventShutdown, map[string]interface{}{
		"pid":    os.Getpid(),
		"uptime": time.Since(d.startTime).Round(time.Second).String(),
	}); err != nil {
		d.log.Warn().Err(err).Msg("gateway:shutdown hooks failed")
	}
}
