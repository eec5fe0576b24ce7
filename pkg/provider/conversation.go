package provider

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/resilience"
	"github.com/harun/toolgate/pkg/session"
)

const (
	DefaultCallTimeout   = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second

	tracerName = "toolgate.provider"
)

// completionRequest is the SDK-neutral input of one model call.
type completionRequest struct {
	System string
	Turns  []Turn
	Tools  []ToolDecl
}

// completion is the SDK-neutral output of one model call.
type completion struct {
	Text   string
	Calls  []FunctionCall
	Finish FinishReason
	Usage  Usage
}

// completer is the per-SDK part of a provider.
type completer interface {
	complete(ctx context.Context, req completionRequest) (*completion, error)
	ping(ctx context.Context) error
	// classify converts SDK errors into errors carrying an HTTP status when known.
	classify(err error) error
}

// conversation implements Provider on top of a completer.
type conversation struct {
	name          string
	backend       completer
	store         *session.Store
	guard         *resilience.Guard
	systemPrompt  string
	callTimeout   time.Duration
	healthTimeout time.Duration
	logger        zerolog.Logger
}

func newConversation(name string, backend completer, opts Options) *conversation {
	opts = opts.withDefaults()

	store := opts.Store
	if store == nil {
		store = session.NewStore(opts.MaxTurns)
	}

	return &conversation{
		name:          name,
		backend:       backend,
		store:         store,
		guard:         opts.Breakers.Guard("provider:"+name, opts.Retry),
		systemPrompt:  opts.SystemPrompt,
		callTimeout:   opts.CallTimeout,
		healthTimeout: opts.HealthTimeout,
		logger:        opts.Logger.With().Str("provider", name).Logger(),
	}
}

// Name returns the provider name
func (c *conversation) Name() string {
	return c.name
}

// Chat sends a user message with the session's history.
func (c *conversation) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	const op = "provider.Chat"

	if err := validateMessage(req.Message); err != nil {
		return nil, faults.Wrap(faults.KindValidation, op, err)
	}
	if err := session.ValidateID(req.SessionID); err != nil {
		return nil, faults.Wrap(faults.KindValidation, op, err)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "provider.chat",
		attribute.String("provider", c.name),
		attribute.String("session_id", req.SessionID),
		attribute.Int("tools", len(req.Tools)),
	)
	defer span.End()

	userTurn := Turn{Role: session.RoleUser, Content: req.Message, Timestamp: time.Now()}
	turns := requestTurns(append(c.store.History(req.SessionID), userTurn))

	system := renderSystemPrompt(c.systemPrompt, req.Context)
	out, err := c.call(ctx, op, completionRequest{
		System: system,
		Turns:  turns,
		Tools:  req.Tools,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.store.Append(req.SessionID, userTurn, Turn{
		Role:    session.RoleModel,
		Content: out.Text,
		Calls:   out.Calls,
	})
	c.store.SetSystem(req.SessionID, system)
	observability.SetActiveSessions(c.name, c.store.Len())

	return &ChatResponse{
		Text:          out.Text,
		FunctionCalls: out.Calls,
		FinishReason:  out.Finish,
		Usage:         out.Usage,
	}, nil
}

// ContinueWithToolResults answers the function calls of the session's last model turn.
func (c *conversation) ContinueWithToolResults(ctx context.Context, sessionID string, results []ToolResult, tools []ToolDecl) (*ContinueResponse, error) {
	const op = "provider.ContinueWithToolResults"

	last, ok := c.store.LastTurn(sessionID)
	if !ok || last.Role != session.RoleModel || len(last.Calls) == 0 {
		return nil, faults.New(faults.KindChatFailed, op, "no pending function calls for session "+sessionID)
	}
	if len(results) == 0 {
		return nil, faults.New(faults.KindChatFailed, op, "no tool results to continue with")
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "provider.continue",
		attribute.String("provider", c.name),
		attribute.String("session_id", sessionID),
		attribute.Int("results", len(results)),
	)
	defer span.End()

	resultTurn := Turn{Role: session.RoleToolResult, Results: results, Timestamp: time.Now()}
	turns := requestTurns(append(c.store.History(sessionID), resultTurn))

	// continuations keep the request context the session's last Chat rendered
	system, ok := c.store.System(sessionID)
	if !ok {
		system = c.systemPrompt
	}
	out, err := c.call(ctx, op, completionRequest{
		System: system,
		Turns:  turns,
		Tools:  tools,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.store.Append(sessionID, resultTurn, Turn{
		Role:    session.RoleModel,
		Content: out.Text,
		Calls:   out.Calls,
	})

	return &ContinueResponse{
		Text:                    out.Text,
		AdditionalFunctionCalls: out.Calls,
		FinishReason:            out.Finish,
		Usage:                   out.Usage,
	}, nil
}

// ClearHistory drops a session's history.
func (c *conversation) ClearHistory(sessionID string) {
	if c.store.Clear(sessionID) {
		observability.SetActiveSessions(c.name, c.store.Len())
	}
}

// ListActiveSessions returns ids of sessions with history.
func (c *conversation) ListActiveSessions() []string {
	return c.store.Sessions()
}

// IsAvailable checks the provider within the health timeout. The check goes through
// the breaker only, so an open circuit reports unavailable without a network call.
func (c *conversation) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	err := c.guard.Breaker.Execute(ctx, func(ctx context.Context) error {
		return c.backend.classify(c.backend.ping(ctx))
	})
	if err != nil {
		c.logger.Debug().Err(err).Msg("Provider availability check failed")
		return false
	}
	return true
}

// Store exposes the provider's history store.
func (c *conversation) Store() *session.Store {
	return c.store
}

func (c *conversation) call(ctx context.Context, op string, req completionRequest) (*completion, error) {
	start := time.Now()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	var out *completion
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		res, err := c.backend.complete(attemptCtx, req)
		if err != nil {
			return c.backend.classify(err)
		}
		out = res
		return nil
	})
	if err != nil {
		fault := toFault(op, err)
		observability.RecordProviderCall(c.name, string(fault.Kind), time.Since(start))
		logger.Warn().Err(err).Str("kind", string(fault.Kind)).Msg("Provider call failed")
		return nil, fault
	}

	observability.RecordProviderCall(c.name, "success", time.Since(start))
	for i := range out.Calls {
		if out.Calls[i].ID == "" {
			out.Calls[i].ID = "call_" + gonanoid.Must()
		}
		if out.Calls[i].Args == nil {
			out.Calls[i].Args = map[string]interface{}{}
		}
	}
	if len(out.Calls) > 0 && out.Finish == FinishStop {
		out.Finish = FinishFunctionCall
	}

	logger.Debug().
		Int("function_calls", len(out.Calls)).
		Str("finish_reason", string(out.Finish)).
		Dur("duration", time.Since(start)).
		Msg("Provider call completed")

	return out, nil
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return errEmptyMessage
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return errMessageTooLong
	}
	return nil
}
