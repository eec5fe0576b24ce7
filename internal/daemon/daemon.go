package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/internal/logger"
	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/commandqueue"
	"github.com/harun/toolgate/pkg/cron"
	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/gateway"
	"github.com/harun/toolgate/pkg/hooks"
	"github.com/harun/toolgate/pkg/orchestrator"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/resilience"
	"github.com/harun/toolgate/pkg/routing"
	"github.com/harun/toolgate/pkg/session"
	"github.com/harun/toolgate/pkg/toolregistry"
)

const warmupTimeout = 30 * time.Second

// Daemon represents the toolgate gateway process
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	// Core modules
	queue        *commandqueue.CommandQueue
	breakers     *resilience.Breakers
	providers    *provider.Registry
	identity     *backend.HTTPClient
	graph        *backend.HTTPClient
	toolCache    toolregistry.Cache
	tools        *toolregistry.Registry
	synchronizer *datasync.Synchronizer
	router       *routing.Router
	hookManager  *hooks.Manager
	orchestrator *orchestrator.Orchestrator

	// Services
	gatewayServer *gateway.Server
	watcher       *routing.Watcher
	cleanup       *session.Cleanup
	cronService   *cron.Service

	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.Component("daemon"),
		ctx:    ctx,
		cancel: cancel,
	}

	observability.EnsureRegistered()
	if cfg.Tracing.Enabled {
		opts := tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		}
		if cfg.Tracing.Stdout {
			opts.Exporter = os.Stdout
		}
		if err := tracing.InitOpenTelemetry(opts); err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			d.log.Info().Str("service", cfg.Tracing.ServiceName).Msg("Tracing initialized")
		}
	}

	// Initialize core modules in dependency order
	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// abort releases what a failed New already acquired.
func (d *Daemon) abort() {
	d.cancel()
	if d.cronService != nil {
		_ = d.cronService.Stop(context.Background())
	}
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if closer, ok := d.toolCache.(*toolregistry.RedisCache); ok {
		_ = closer.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

// initializeCoreModules initializes all core modules
func (d *Daemon) initializeCoreModules() error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	d.queue = commandqueue.New()
	d.log.Info().Msg("Command queue initialized")

	auditPath := cfg.Logging.AuditFile
	if auditPath == "" && cfg.DataDir != "" {
		auditPath = filepath.Join(cfg.DataDir, "audit.log")
	}
	if auditPath != "" {
		if err := observability.InitAuditLogger(auditPath); err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			d.log.Info().Str("path", auditPath).Msg("Audit logger initialized")
		}
	}

	hookManager, err := newHookManager(cfg.Hooks, zl)
	if err != nil {
		return fmt.Errorf("failed to create hook manager: %w", err)
	}
	d.hookManager = hookManager
	d.log.Info().Bool("enabled", cfg.Hooks.Enabled).Msg("Hook manager initialized")

	d.breakers = resilience.NewBreakers(breakerConfig(cfg.Resilience), zl)
	policy := retryPolicy(cfg.Resilience)
	d.log.Info().Int("failure_threshold", cfg.Resilience.FailureThreshold).Msg("Circuit breakers initialized")

	d.providers = provider.NewRegistry(d.logger.Component("provider"))
	if err := d.providers.Build(strings.ToLower(cfg.Provider.Active), providerSettings(cfg.Provider), provider.Options{
		SystemPrompt:  cfg.Provider.SystemPrompt,
		CallTimeout:   cfg.Provider.LLMTimeout,
		HealthTimeout: cfg.Provider.HealthTimeout,
		MaxTurns:      cfg.Session.MaxTurns,
		Breakers:      d.breakers,
		Retry:         policy,
		Logger:        zl,
	}); err != nil {
		return fmt.Errorf("failed to select provider: %w", err)
	}
	d.log.Info().Str("active", strings.ToLower(cfg.Provider.Active)).Msg("Provider registry initialized")

	cleanup, err := session.NewCleanup(cfg.Session.CleanupSchedule, cfg.Session.IdleTimeout, d.logger.Component("session"))
	if err != nil {
		return fmt.Errorf("failed to create session cleanup: %w", err)
	}
	for _, st := range d.providers.Statuses() {
		p, ok := d.providers.Get(st.Name)
		if !ok {
			continue
		}
		if owner, ok := p.(interface{ Store() *session.Store }); ok {
			cleanup.Register(st.Name, owner.Store())
		}
	}
	d.cleanup = cleanup
	d.log.Info().Str("schedule", cfg.Session.CleanupSchedule).Msg("Session cleanup initialized")

	if d.identity, err = newBackend(backend.Identity, cfg.Backends.Identity, d.breakers, policy, zl); err != nil {
		return err
	}
	if d.graph, err = newBackend(backend.Graph, cfg.Backends.Graph, d.breakers, policy, zl); err != nil {
		return err
	}
	d.log.Info().
		Str("identity", d.identity.URL()).
		Str("graph", d.graph.URL()).
		Msg("Backend clients initialized")

	if err := d.initializeToolRegistry(); err != nil {
		return err
	}

	synchronizer, err := datasync.New(datasync.Config{
		Source:    datasync.NewIdentitySource(d.identity, zl),
		Store:     datasync.NewCypherStore(d.graph, cfg.Sync.BatchSize, zl),
		Threshold: cfg.Sync.FreshnessThreshold,
		Logger:    zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create synchronizer: %w", err)
	}
	d.synchronizer = synchronizer
	d.log.Info().Dur("threshold", synchronizer.Threshold()).Msg("Synchronizer initialized")

	if err := d.initializeSyncSchedule(); err != nil {
		return err
	}

	d.router = routing.NewRouter(routing.Config{
		Freshness:    synchronizer,
		DefaultScope: cfg.Sync.DefaultScope,
		Logger:       zl,
	})
	if path := cfg.Routing.KeywordsFile; path != "" {
		if cfg.Routing.Watch {
			watcher, err := routing.NewWatcher(routing.WatcherConfig{
				Path:   path,
				Router: d.router,
				Logger: zl,
			})
			if err != nil {
				return fmt.Errorf("failed to create keywords watcher: %w", err)
			}
			d.watcher = watcher
		} else if err := d.router.LoadKeywordsFile(path); err != nil {
			return fmt.Errorf("failed to load routing keywords: %w", err)
		}
	}
	d.log.Info().Str("keywords_file", cfg.Routing.KeywordsFile).Msg("Strategy router initialized")

	maxParallel := cfg.Orchestrator.MaxParallelTools
	if !cfg.Orchestrator.ParallelTools {
		maxParallel = 1
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Providers: d.providers,
		Router:    d.router,
		Tools:     d.tools,
		Backends: orchestrator.Backends{
			backend.Identity: d.identity,
			backend.Graph:    d.graph,
		},
		Sync:             synchronizer,
		Queue:            d.queue,
		Hooks:            d.hookManager,
		DefaultScope:     cfg.Sync.DefaultScope,
		MaxExtraHops:     cfg.Orchestrator.MaxExtraHops,
		MaxParallelTools: maxParallel,
		MaxMessageLength: cfg.Orchestrator.MaxMessageLength,
		PostSyncTimeout:  cfg.Sync.PostSyncTimeout,
		Logger:           zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	d.orchestrator = orch
	d.log.Info().
		Int("max_extra_hops", cfg.Orchestrator.MaxExtraHops).
		Int("max_parallel_tools", maxParallel).
		Msg("Orchestrator initialized")

	return nil
}

func (d *Daemon) initializeToolRegistry() error {
	cfg := d.config.Tools

	switch cfg.CacheBackend {
	case "redis":
		ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
		defer cancel()
		cache, err := toolregistry.DialRedisCache(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return fmt.Errorf("failed to create tool cache: %w", err)
		}
		d.toolCache = cache
	default:
		d.toolCache = toolregistry.NewMemoryCache()
	}

	d.tools = toolregistry.New(toolregistry.Config{
		Clients:  []backend.Client{d.identity, d.graph},
		Cache:    d.toolCache,
		CacheTTL: cfg.CacheTTL,
		Logger:   d.logger.GetZerolog(),
	})
	d.log.Info().
		Str("cache", cfg.CacheBackend).
		Dur("ttl", cfg.CacheTTL).
		Msg("Tool registry initialized")
	return nil
}

// initializeSyncSchedule registers one background sync job per scheduled scope. Runs
// respect freshness, so a scope synced recently by a request is skipped.
func (d *Daemon) initializeSyncSchedule() error {
	cfg := d.config.Sync
	if cfg.Schedule == "" {
		return nil
	}

	scopes := cfg.ScheduledScopes
	if len(scopes) == 0 {
		scopes = []string{cfg.DefaultScope}
	}

	d.cronService = cron.NewService(cron.ServiceOptions{
		Timeout: cfg.PostSyncTimeout,
		Logger:  d.logger.GetZerolog(),
	})
	for _, scope := range scopes {
		if _, err := d.cronService.AddJob("sync:"+scope, cfg.Schedule, d.scheduledSync(scope)); err != nil {
			return fmt.Errorf("failed to schedule sync: %w", err)
		}
	}
	d.log.Info().Str("schedule", cfg.Schedule).Strs("scopes", scopes).Msg("Sync schedule initialized")
	return nil
}

func (d *Daemon) scheduledSync(scope string) cron.JobFunc {
	return func(ctx context.Context) error {
		result, err := d.synchronizer.SyncFromSource(ctx, scope, false)
		if err != nil {
			return err
		}
		if result.Skipped {
			return cron.ErrSkipped
		}
		return nil
	}
}

// initializeServices initializes the network-facing services
func (d *Daemon) initializeServices() error {
	cfg := d.config

	server, err := gateway.NewServer(gateway.Config{
		Addr:            cfg.Server.Addr,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		HealthTimeout:   cfg.Provider.HealthTimeout,
		Chat:            d.orchestrator,
		Providers:       d.providers,
		Tools:           d.tools,
		Sync:            d.synchronizer,
		Backends: map[string]gateway.HealthChecker{
			backend.Identity: d.identity,
			backend.Graph:    d.graph,
		},
		Circuits:     d.breakers,
		Jobs:         d.syncJobs(),
		DefaultScope: cfg.Sync.DefaultScope,
		Logger:       d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = server
	d.log.Info().Str("addr", cfg.Server.Addr).Msg("Gateway server initialized")

	return nil
}

// syncJobs keeps a nil service out of the gateway's interface field.
func (d *Daemon) syncJobs() gateway.JobLister {
	if d.cronService == nil {
		return nil
	}
	return d.cronService
}

func newBackend(name string, cfg config.BackendConfig, breakers *resilience.Breakers, policy resilience.RetryPolicy, logger zerolog.Logger) (*backend.HTTPClient, error) {
	client, err := backend.New(backend.Config{
		Name:          name,
		URL:           cfg.URL,
		Timeout:       cfg.Timeout,
		HealthTimeout: cfg.HealthTimeout,
		Guard:         breakers.Guard("backend:"+name, policy),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", name, err)
	}
	return client, nil
}

func breakerConfig(cfg config.ResilienceConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold:  cfg.FailureThreshold,
		RecoveryTimeout:   cfg.RecoveryTimeout,
		RequiredSuccesses: cfg.RequiredSuccesses,
	}
}

func retryPolicy(cfg config.ResilienceConfig) resilience.RetryPolicy {
	policy := resilience.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.InitialDelay = cfg.InitialDelay
	policy.BackoffFactor = cfg.BackoffFactor
	policy.MaxDelay = cfg.MaxDelay
	if cfg.JitterPercent >= 0 {
		policy.JitterPercent = uint64(cfg.JitterPercent)
	}
	return policy
}

func providerSettings(cfg config.ProviderSettings) map[string]provider.Settings {
	out := make(map[string]provider.Settings, len(cfg.Providers))
	for name, p := range cfg.Providers {
		out[strings.ToLower(name)] = provider.Settings{
			Model:       p.Model,
			APIKey:      p.APIKey,
			BaseURL:     p.BaseURL,
			Temperature: p.Temperature,
			TopP:        p.TopP,
			MaxTokens:   p.MaxTokens,
		}
	}
	return out
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting toolgate")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.setStopped()
			_ = d.lifecycle.Stop()
			return fmt.Errorf("failed to start keywords watcher: %w", err)
		}
		logger.Info().Str("path", d.config.Routing.KeywordsFile).Msg("Keywords watcher started")
	}

	if err := d.cleanup.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start session cleanup")
	} else {
		logger.Info().Msg("Session cleanup started")
	}

	if d.cronService != nil {
		if err := d.cronService.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start sync schedule")
		}
	}

	if err := d.gatewayServer.Start(); err != nil {
		d.setStopped()
		d.stopBackground(logger)
		_ = d.lifecycle.Stop()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.warmToolCatalog()
	}()

	d.triggerStartupHooks()

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// warmToolCatalog fills the tool cache so the first chat does not pay for discovery.
func (d *Daemon) warmToolCatalog() {
	ctx, cancel := context.WithTimeout(d.ctx, warmupTimeout)
	defer cancel()

	catalog, err := d.tools.DiscoverTools(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("Tool discovery failed at startup")
		return
	}
	d.log.Info().
		Int("identity", len(catalog.Identity)).
		Int("graph", len(catalog.Graph)).
		Msg("Tool catalog warmed")
}

// Stop stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping toolgate")

	if err := d.gatewayServer.Stop(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}

	if err := d.orchestrator.DrainTimeout(d.config.Sync.PostSyncTimeout); err != nil {
		logger.Warn().Err(err).Msg("Background work did not finish")
	}

	d.triggerShutdownHooks()

	d.stopBackground(logger)

	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	logger.Info().Msg("Command queue stopped")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if closer, ok := d.toolCache.(*toolregistry.RedisCache); ok {
		if err := closer.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close tool cache")
		}
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

func (d *Daemon) stopBackground(logger zerolog.Logger) {
	if d.cronService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.cronService.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop sync schedule")
		}
		cancel()
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop keywords watcher")
		}
	}
	if d.cleanup.IsRunning() {
		if err := d.cleanup.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop session cleanup")
		}
	}
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.gatewayServer.Addr()
	}

	return status
}

// Wait blocks until ctx is done or SIGINT/SIGTERM arrives, then stops the daemon.
func (d *Daemon) Wait(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	d.log.Info().Msg("Shutdown requested")

	if err := d.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetProviders returns the provider registry
func (d *Daemon) GetProviders() *provider.Registry {
	return d.providers
}

// GetToolRegistry returns the tool registry
func (d *Daemon) GetToolRegistry() *toolregistry.Registry {
	return d.tools
}

// GetSynchronizer returns the data synchronizer
func (d *Daemon) GetSynchronizer() *datasync.Synchronizer {
	return d.synchronizer
}

// GetRouter returns the strategy router
func (d *Daemon) GetRouter() *routing.Router {
	return d.router
}

// GetOrchestrator returns the orchestrator
func (d *Daemon) GetOrchestrator() *orchestrator.Orchestrator {
	return d.orchestrator
}

// GetGatewayServer returns the gateway server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}

// GetCleanup returns the session cleanup scheduler
func (d *Daemon) GetCleanup() *session.Cleanup {
	return d.cleanup
}

// GetCronService returns the sync scheduler, nil when no schedule is configured
func (d *Daemon) GetCronService() *cron.Service {
	return d.cronService
}

// GetBreakers returns the circuit breaker registry
func (d *Daemon) GetBreakers() *resilience.Breakers {
	return d.breakers
}
