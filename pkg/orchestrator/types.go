package orchestrator

import (
	"context"
	"time"

	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/routing"
	"github.com/harun/toolgate/pkg/toolregistry"
)

// Request is one chat request.
type Request struct {
	Message   string                   `json:"message"`
	SessionID string                   `json:"sessionId,omitempty"`
	Context   *provider.RequestContext `json:"context,omitempty"`
	// Strategy overrides the router when set.
	Strategy routing.Strategy `json:"strategy,omitempty"`
}

// ToolCallRecord describes one executed function call.
type ToolCallRecord struct {
	Backend    string                 `json:"backend"`
	Tool       string                 `json:"tool"`
	Args       map[string]interface{} `json:"args,omitempty"`
	SessionID  string                 `json:"sessionId"`
	Realm      string                 `json:"realm,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"durationMs"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	Provider             string                  `json:"provider,omitempty"`
	Rule                 string                  `json:"rule,omitempty"`
	FinishReason         provider.FinishReason   `json:"finishReason,omitempty"`
	Usage                provider.Usage          `json:"usage"`
	Hops                 int                     `json:"hops"`
	Freshness            *datasync.SyncFreshness `json:"freshness,omitempty"`
	PreSync              *datasync.SyncResult    `json:"preSync,omitempty"`
	PostSyncScheduled    bool                    `json:"postSyncScheduled"`
	PendingFunctionCalls []provider.FunctionCall `json:"pendingFunctionCalls,omitempty"`
	ContinuationError    string                  `json:"continuationError,omitempty"`
	ToolCatalogError     string                  `json:"toolCatalogError,omitempty"`
}

// Response is the outcome of Handle.
type Response struct {
	Success     bool                   `json:"success"`
	Response    string                 `json:"response"`
	SessionID   string                 `json:"sessionId"`
	Strategy    routing.Strategy       `json:"strategy,omitempty"`
	ToolsCalled []ToolCallRecord       `json:"toolsCalled"`
	Duration    float64                `json:"duration"` // seconds
	Data        map[string]interface{} `json:"data"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	ErrorKind   faults.Kind            `json:"errorKind,omitempty"`
	Metadata    Metadata               `json:"metadata"`

	started time.Time
}

// ProviderSource yields the provider requests are sent to.
type ProviderSource interface {
	Active() (provider.Provider, error)
}

// StrategyRouter classifies a request.
type StrategyRouter interface {
	Determine(ctx context.Context, text string) (routing.Decision, error)
}

// ToolCatalog offers tool declarations and validates call arguments.
type ToolCatalog interface {
	ToolsFor(ctx context.Context, intent toolregistry.Intent) ([]provider.ToolDecl, error)
	Lookup(ctx context.Context, name string) (provider.ToolDecl, bool)
	ValidateArgs(decl provider.ToolDecl, args map[string]interface{}) error
}

// Synchronizer refreshes the graph copy of a scope.
type Synchronizer interface {
	SyncFromSource(ctx context.Context, scope string, force bool) (*datasync.SyncResult, error)
}

// Backends maps backend names to clients.
type Backends map[string]backend.Client

// IntentFor maps a strategy to the tools it offers.
func IntentFor(s routing.Strategy) toolregistry.Intent {
	switch s {
	case routing.FreshIdentityData:
		return toolregistry.IntentRead
	case routing.GraphAnalysisOnly, routing.SyncThenAnalyze:
		return toolregistry.IntentAnalyze
	case routing.IdentityWriteThenSync:
		return toolregistry.IntentWrite
	default:
		return toolregistry.IntentAll
	}
}
