package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/toolregistry"
)

type callOutcome struct {
	record ToolCallRecord
	result provider.ToolResult
	data   interface{}
}

// executeCalls runs the calls of one model turn. Outcomes keep call order.
func (o *Orchestrator) executeCalls(ctx context.Context, calls []provider.FunctionCall, sessionID, realm string) []callOutcome {
	outcomes := make([]callOutcome, len(calls))
	if o.maxParallel <= 1 || len(calls) == 1 {
		for i, call := range calls {
			outcomes[i] = o.executeCall(ctx, call, sessionID, realm)
		}
		return outcomes
	}

	p := pool.New().WithMaxGoroutines(o.maxParallel)
	for i, call := range calls {
		p.Go(func() {
			outcomes[i] = o.executeCall(ctx, call, sessionID, realm)
		})
	}
	p.Wait()
	return outcomes
}

// resolveBackend splits a qualified tool name, falling back to the keyword heuristic
// for names without a known prefix.
func resolveBackend(name string) (backendName, tool string, err error) {
	if b, t, ok := toolregistry.SplitName(name); ok {
		return b, t, nil
	}
	if b, ok := toolregistry.GuessBackend(name); ok {
		return b, name, nil
	}
	return "", name, faults.New(faults.KindDispatch, "orchestrator.dispatch", fmt.Sprintf("cannot resolve a backend for tool %q", name))
}

func (o *Orchestrator) executeCall(ctx context.Context, call provider.FunctionCall, sessionID, realm string) callOutcome {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, tracerName, "orchestrator.tool_call", attribute.String("tool", call.Name))
	defer span.End()

	args := make(map[string]interface{}, len(call.Args)+1)
	for k, v := range call.Args {
		args[k] = v
	}

	backendName, tool, err := resolveBackend(call.Name)
	record := ToolCallRecord{
		Backend:   backendName,
		Tool:      tool,
		Args:      args,
		SessionID: sessionID,
		Realm:     realm,
		Timestamp: start.UTC(),
	}

	var resp *backend.ToolResponse
	if err == nil {
		resp, err = o.dispatch(ctx, backendName, tool, args, realm)
	}
	record.DurationMs = time.Since(start).Milliseconds()

	out := callOutcome{record: record}
	payload := map[string]interface{}{"success": true}
	if err != nil {
		out.record.Error = err.Error()
		payload = map[string]interface{}{
			"success": false,
			"error":   toolErrorMessage(err),
			"kind":    string(kindOrExecution(err)),
		}
		span.RecordError(err)
	} else {
		out.record.Success = true
		out.data = resp.Value()
		payload["data"] = out.data
	}

	content, mErr := json.Marshal(payload)
	if mErr != nil {
		content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, mErr.Error()))
	}
	out.result = provider.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: string(content),
		IsError: err != nil,
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordToolAudit(ctx, call.Name, sessionID, status, map[string]interface{}{
		"backend":     backendName,
		"tool":        tool,
		"realm":       realm,
		"duration_ms": out.record.DurationMs,
		"error":       out.record.Error,
	})
	logger := tracing.LoggerFromContext(ctx, o.logger)
	logger.Debug().
		Str("backend", backendName).
		Str("tool", tool).
		Bool("success", out.record.Success).
		Int64("duration_ms", out.record.DurationMs).
		Msg("Tool call executed")
	return out
}

func (o *Orchestrator) dispatch(ctx context.Context, backendName, tool string, args map[string]interface{}, realm string) (*backend.ToolResponse, error) {
	client, ok := o.backends[backendName]
	if !ok {
		return nil, faults.New(faults.KindDispatch, "orchestrator.dispatch", fmt.Sprintf("backend %q is not configured", backendName))
	}

	if backendName == backend.Identity && realm != "" {
		if _, set := args["realm"]; !set {
			args["realm"] = realm
		}
	}

	if decl, found := o.tools.Lookup(ctx, toolregistry.QualifiedName(backendName, tool)); found {
		if err := o.tools.ValidateArgs(decl, args); err != nil {
			return nil, faults.Wrap(faults.KindValidation, "orchestrator.dispatch", err)
		}
	}

	return client.CallTool(ctx, tool, args)
}

func kindOrExecution(err error) faults.Kind {
	if k := faults.KindOf(err); k != "" {
		return k
	}
	return faults.KindToolExecution
}

// toolErrorMessage is the error text the model sees. Tool, dispatch and validation
// failures keep their detail; dependency failures get the generic message.
func toolErrorMessage(err error) string {
	var fe *faults.Error
	if !errors.As(err, &fe) {
		return err.Error()
	}
	switch fe.Kind {
	case faults.KindToolExecution, faults.KindDispatch, faults.KindValidation:
		return fe.Message
	}
	return faults.Message(err)
}
