package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/commandqueue"
	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/hooks"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/routing"
	"github.com/harun/toolgate/pkg/session"
)

const (
	tracerName = "toolgate.orchestrator"

	DefaultMaxExtraHops     = 1
	DefaultMaxParallelTools = 4
	DefaultPostSyncTimeout  = 2 * time.Minute

	ruleOverride = "override"
)

// Config configures an Orchestrator.
type Config struct {
	Providers ProviderSource
	Router    StrategyRouter
	Tools     ToolCatalog
	Backends  Backends
	// Sync is optional; without it no pre- or post-sync runs.
	Sync  Synchronizer
	Queue *commandqueue.CommandQueue
	// Hooks is optional.
	Hooks hooks.Trigger

	DefaultScope string
	// MaxExtraHops bounds the continuations after the first one. Zero allows exactly one
	// continuation; negative values mean DefaultMaxExtraHops.
	MaxExtraHops int
	// MaxParallelTools bounds concurrent calls of one model turn; 1 runs them in order.
	MaxParallelTools int
	MaxMessageLength int
	PostSyncTimeout  time.Duration

	Logger zerolog.Logger
}

// Orchestrator drives the tool-calling loop.
type Orchestrator struct {
	providers ProviderSource
	router    StrategyRouter
	tools     ToolCatalog
	backends  Backends
	sync      Synchronizer
	queue     *commandqueue.CommandQueue
	hooks     hooks.Trigger

	defaultScope     string
	maxExtraHops     int
	maxParallel      int
	maxMessageLength int
	postSyncTimeout  time.Duration

	logger zerolog.Logger

	// background tracks post-syncs and hooks that outlive their request.
	background sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Providers == nil {
		return nil, faults.New(faults.KindConfig, "orchestrator.New", "provider source is required")
	}
	if cfg.Router == nil {
		return nil, faults.New(faults.KindConfig, "orchestrator.New", "router is required")
	}
	if cfg.Tools == nil {
		return nil, faults.New(faults.KindConfig, "orchestrator.New", "tool catalog is required")
	}
	if cfg.Queue == nil {
		cfg.Queue = commandqueue.New()
	}
	if cfg.MaxExtraHops < 0 {
		cfg.MaxExtraHops = DefaultMaxExtraHops
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = DefaultMaxParallelTools
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = provider.MaxMessageLength
	}
	if cfg.PostSyncTimeout <= 0 {
		cfg.PostSyncTimeout = DefaultPostSyncTimeout
	}
	if cfg.Backends == nil {
		cfg.Backends = Backends{}
	}

	return &Orchestrator{
		providers:        cfg.Providers,
		router:           cfg.Router,
		tools:            cfg.Tools,
		backends:         cfg.Backends,
		sync:             cfg.Sync,
		queue:            cfg.Queue,
		hooks:            cfg.Hooks,
		defaultScope:     cfg.DefaultScope,
		maxExtraHops:     cfg.MaxExtraHops,
		maxParallel:      cfg.MaxParallelTools,
		maxMessageLength: cfg.MaxMessageLength,
		postSyncTimeout:  cfg.PostSyncTimeout,
		logger:           cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Handle processes one request. It never returns nil and never panics.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	if tracing.GetRequestID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Msg("Orchestration panicked")
			resp = o.fail(newResponse(req.SessionID, start), faults.New(faults.KindChatFailed, "orchestrator.Handle", fmt.Sprintf("internal error: %v", r)))
		}
	}()

	message := strings.TrimSpace(req.Message)
	if err := o.validate(message, req); err != nil {
		return o.fail(newResponse(req.SessionID, start), err)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = gonanoid.Must()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)

	v, err := o.queue.EnqueueWithContext(ctx, commandqueue.SessionLane(sessionID), func(ctx context.Context) (interface{}, error) {
		return o.run(ctx, req, sessionID, message, start), nil
	}, &commandqueue.TaskOptions{WarnAfter: 10 * time.Second})
	if err != nil {
		return o.fail(newResponse(sessionID, start), faults.Wrap(faults.KindChatFailed, "orchestrator.Handle", err))
	}
	return v.(*Response)
}

func (o *Orchestrator) validate(message string, req Request) error {
	const op = "orchestrator.validate"
	if message == "" {
		return faults.New(faults.KindValidation, op, "message must not be empty")
	}
	if n := utf8.RuneCountInString(message); n > o.maxMessageLength {
		return faults.New(faults.KindValidation, op, fmt.Sprintf("message exceeds %d characters", o.maxMessageLength))
	}
	if req.SessionID != "" {
		if err := session.ValidateID(req.SessionID); err != nil {
			return faults.Wrap(faults.KindValidation, op, err)
		}
	}
	if req.Strategy != "" && !req.Strategy.IsValid() {
		return faults.New(faults.KindValidation, op, fmt.Sprintf("unknown strategy %q", req.Strategy))
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, sessionID, message string, start time.Time) *Response {
	ctx, span := tracing.StartSpan(ctx, tracerName, "orchestrator.handle", attribute.String("session_id", sessionID))
	defer span.End()

	resp := newResponse(sessionID, start)
	scope := o.scopeFor(req.Context)
	realm := ""
	if req.Context != nil {
		realm = req.Context.Realm
	}

	decision := o.decide(ctx, req, message, scope)
	resp.Strategy = decision.Strategy
	resp.Metadata.Rule = decision.Rule
	resp.Metadata.Freshness = decision.Freshness
	ctx = tracing.WithStrategy(ctx, decision.Strategy.String())
	span.SetAttributes(attribute.String("strategy", decision.Strategy.String()))

	logger := tracing.LoggerFromContext(ctx, o.logger)

	tools, err := o.tools.ToolsFor(ctx, IntentFor(decision.Strategy))
	if err != nil {
		logger.Warn().Err(err).Msg("Tool catalog unavailable, continuing without tools")
		resp.Metadata.ToolCatalogError = err.Error()
		tools = nil
	}

	if decision.Strategy == routing.SyncThenAnalyze && o.sync != nil {
		resp.Metadata.PreSync = o.preSync(ctx, scope)
	}

	p, err := o.providers.Active()
	if err != nil {
		return o.finish(ctx, span, o.fail(resp, err))
	}
	resp.Metadata.Provider = p.Name()
	ctx = tracing.WithProvider(ctx, p.Name())

	chat, err := p.Chat(ctx, provider.ChatRequest{
		Message:   message,
		SessionID: sessionID,
		Tools:     tools,
		Context:   req.Context,
	})
	if err != nil {
		return o.finish(ctx, span, o.fail(resp, err))
	}

	text := chat.Text
	resp.Metadata.FinishReason = chat.FinishReason
	resp.Metadata.Usage = chat.Usage

	agg := newAggregator()
	calls := chat.FunctionCalls
	for len(calls) > 0 {
		outcomes := o.executeCalls(ctx, calls, sessionID, realm)
		results := make([]provider.ToolResult, 0, len(outcomes))
		for _, out := range outcomes {
			resp.ToolsCalled = append(resp.ToolsCalled, out.record)
			results = append(results, out.result)
			if out.record.Success {
				agg.add(out.record.Tool, out.data)
			}
		}

		cont, err := p.ContinueWithToolResults(ctx, sessionID, results, tools)
		if err != nil {
			logger.Warn().Err(err).Msg("Continuation failed, answering with available text")
			resp.Metadata.ContinuationError = err.Error()
			break
		}
		if cont.Text != "" {
			text = cont.Text
		}
		resp.Metadata.FinishReason = cont.FinishReason
		resp.Metadata.Usage.InputTokens += cont.Usage.InputTokens
		resp.Metadata.Usage.OutputTokens += cont.Usage.OutputTokens

		calls = cont.AdditionalFunctionCalls
		if len(calls) > 0 && resp.Metadata.Hops >= o.maxExtraHops {
			resp.Metadata.PendingFunctionCalls = calls
			logger.Info().Int("pending", len(calls)).Msg("Hop limit reached, leaving function calls pending")
			break
		}
		if len(calls) > 0 {
			resp.Metadata.Hops++
		}
	}

	if text == "" && len(resp.ToolsCalled) > 0 {
		text = summarize(resp.ToolsCalled)
	}
	resp.Response = text
	resp.Data = agg.data()
	resp.Success = true

	if o.sync != nil && needsPostSync(decision.Strategy, resp.ToolsCalled) {
		o.schedulePostSync(ctx, scope)
		resp.Metadata.PostSyncScheduled = true
	}

	return o.finish(ctx, span, resp)
}

func (o *Orchestrator) decide(ctx context.Context, req Request, message, scope string) routing.Decision {
	if req.Strategy != "" {
		return routing.Decision{Strategy: req.Strategy, Rule: ruleOverride, Scope: scope}
	}

	d, err := o.router.Determine(routing.WithScope(ctx, scope), message)
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, o.logger)
		logger.Warn().Err(err).Msg("Routing failed, using coordinated strategy")
		return routing.Decision{Strategy: routing.CoordinatedMulti, Rule: routing.RuleDefault, Scope: scope}
	}
	return d
}

func (o *Orchestrator) preSync(ctx context.Context, scope string) *datasync.SyncResult {
	res, err := o.sync.SyncFromSource(ctx, scope, false)
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, o.logger)
		logger.Warn().Err(err).Str("scope", scope).Msg("Pre-sync failed, analyzing existing data")
		if res == nil {
			res = &datasync.SyncResult{Scope: scope, Error: err.Error()}
		}
	}
	return res
}

func (o *Orchestrator) scopeFor(rc *provider.RequestContext) string {
	if rc != nil && rc.Realm != "" {
		return rc.Realm
	}
	return o.defaultScope
}

func (o *Orchestrator) fail(resp *Response, err error) *Response {
	if faults.KindOf(err) == "" {
		err = faults.Wrap(faults.KindChatFailed, "orchestrator", err)
	}
	resp.Success = false
	resp.ErrorKind = faults.KindOf(err)
	resp.Error = err.Error()
	resp.Message = faults.Message(err)
	resp.Duration = time.Since(resp.started).Seconds()
	return resp
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, resp *Response) *Response {
	resp.Duration = time.Since(resp.started).Seconds()
	observability.RecordOrchestration(string(resp.Strategy), time.Since(resp.started), resp.Success)

	logger := tracing.LoggerFromContext(ctx, o.logger)
	event := hooks.EventOrchestrationSuccess
	if resp.Success {
		logger.Info().
			Str("strategy", string(resp.Strategy)).
			Int("tools", len(resp.ToolsCalled)).
			Float64("duration_s", resp.Duration).
			Msg("Request completed")
	} else {
		event = hooks.EventOrchestrationFailure
		span.SetStatus(codes.Error, resp.Error)
		logger.Warn().
			Str("strategy", string(resp.Strategy)).
			Str("error_kind", string(resp.ErrorKind)).
			Str("error", resp.Error).
			Msg("Request failed")
	}

	tools := make([]string, 0, len(resp.ToolsCalled))
	for _, r := range resp.ToolsCalled {
		tools = append(tools, r.Backend+"_"+r.Tool)
	}
	o.trigger(ctx, event, map[string]interface{}{
		"session_id":  resp.SessionID,
		"strategy":    string(resp.Strategy),
		"success":     resp.Success,
		"tools":       tools,
		"error_kind":  string(resp.ErrorKind),
		"duration_ms": int64(resp.Duration * 1000),
	})
	return resp
}

func newResponse(sessionID string, start time.Time) *Response {
	return &Response{
		SessionID:   sessionID,
		ToolsCalled: []ToolCallRecord{},
		Data:        map[string]interface{}{},
		started:     start,
	}
}

func summarize(records []ToolCallRecord) string {
	ok := 0
	for _, r := range records {
		if r.Success {
			ok++
		}
	}
	return fmt.Sprintf("Executed %d tool call(s), %d succeeded.", len(records), ok)
}
