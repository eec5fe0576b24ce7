package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultCleanupSchedule = "@every 5m"
)

// Pruner is anything that can drop idle sessions.
type Pruner interface {
	PruneIdle(maxIdle time.Duration) []string
}

// Cleanup prunes idle sessions from one or more stores on a cron schedule. Stores never
// expire history on their own; this is the external trigger.
type Cleanup struct {
	schedule    string
	idleTimeout time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	pruners map[string]Pruner
	cron    *cron.Cron
	running bool
}

// NewCleanup creates a cleanup scheduler. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 5m".
func NewCleanup(schedule string, idleTimeout time.Duration, logger zerolog.Logger) (*Cleanup, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	c := &Cleanup{
		schedule:    schedule,
		idleTimeout: idleTimeout,
		logger:      logger,
		pruners:     make(map[string]Pruner),
		cron:        cron.New(cron.WithParser(parser)),
	}
	if _, err := c.cron.AddFunc(schedule, func() { c.CleanupNow() }); err != nil {
		return nil, fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	return c, nil
}

// Register adds a store under a name used in logs.
func (c *Cleanup) Register(name string, p Pruner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruners[name] = p
}

// Start starts the scheduler.
func (c *Cleanup) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("cleanup is already running")
	}
	c.cron.Start()
	c.running = true

	c.logger.Info().
		Str("schedule", c.schedule).
		Dur("idle_timeout", c.idleTimeout).
		Msg("Session cleanup started")
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (c *Cleanup) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("cleanup is not running")
	}
	c.running = false
	c.mu.Unlock()

	<-c.cron.Stop().Done()
	c.logger.Info().Msg("Session cleanup stopped")
	return nil
}

// IsRunning returns whether the scheduler is running.
func (c *Cleanup) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// CleanupNow prunes every registered store immediately and returns the number of
// sessions removed.
func (c *Cleanup) CleanupNow() int {
	c.mu.Lock()
	pruners := make(map[string]Pruner, len(c.pruners))
	for name, p := range c.pruners {
		pruners[name] = p
	}
	c.mu.Unlock()

	total := 0
	for name, p := range pruners {
		pruned := p.PruneIdle(c.idleTimeout)
		total += len(pruned)
		for _, id := range pruned {
			c.logger.Debug().
				Str("store", name).
				Str("session_id", id).
				Msg("Idle session pruned")
		}
	}

	if total > 0 {
		c.logger.Info().Int("pruned", total).Msg("Cleaned up idle sessions")
	}
	return total
}
