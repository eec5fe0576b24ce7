package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/resilience"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second

	maxErrorBody = 512
	tracerName   = "toolgate.backend"
)

// Config configures an HTTPClient.
type Config struct {
	Name          string
	URL           string
	Timeout       time.Duration
	HealthTimeout time.Duration
	HTTPClient    *http.Client
	// Guard defaults to a breaker named "backend:<name>" with the default retry policy.
	Guard  *resilience.Guard
	Logger zerolog.Logger
}

// HTTPClient talks to one tool backend over HTTP.
type HTTPClient struct {
	name          string
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	http          *http.Client
	guard         *resilience.Guard
	logger        zerolog.Logger
}

// New creates a backend client.
func New(cfg Config) (*HTTPClient, error) {
	if cfg.Name == "" {
		return nil, faults.New(faults.KindConfig, "backend.New", "backend name is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, faults.New(faults.KindConfig, "backend.New", fmt.Sprintf("%s: invalid url %q", cfg.Name, cfg.URL))
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Guard == nil {
		cfg.Guard = resilience.NewGuard(
			resilience.NewBreaker("backend:"+cfg.Name, resilience.DefaultBreakerConfig(), cfg.Logger),
			resilience.DefaultRetryPolicy(),
		)
	}

	return &HTTPClient{
		name:          cfg.Name,
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		http:          cfg.HTTPClient,
		guard:         cfg.Guard,
		logger:        cfg.Logger.With().Str("backend", cfg.Name).Logger(),
	}, nil
}

// Name returns the backend name
func (c *HTTPClient) Name() string {
	return c.name
}

// URL returns the backend base URL.
func (c *HTTPClient) URL() string {
	return c.baseURL
}

// CallTool executes one tool. A response with success=false yields the response and a
// tool_execution_error; transport failures yield unavailable or circuit_open.
func (c *HTTPClient) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*ToolResponse, error) {
	op := "backend." + c.name + ".CallTool"
	if args == nil {
		args = map[string]interface{}{}
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "backend.call_tool",
		attribute.String("backend", c.name),
		attribute.String("tool", tool),
	)
	defer span.End()

	body, err := json.Marshal(toolRequest{Arguments: args})
	if err != nil {
		return nil, faults.Wrapf(faults.KindToolExecution, op, err, "failed to encode arguments for %s", tool)
	}

	start := time.Now()
	var out ToolResponse
	err = c.guard.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, c.timeout, http.MethodPost, "/tools/"+url.PathEscape(tool), body, &out)
	})

	logger := tracing.LoggerFromContext(ctx, c.logger).With().Str("tool", tool).Logger()
	if err != nil {
		observability.RecordToolCall(c.name, tool, time.Since(start), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Backend tool call failed")
		return nil, c.fault(op, err)
	}

	observability.RecordToolCall(c.name, tool, time.Since(start), out.Success)
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		span.SetStatus(codes.Error, msg)
		logger.Debug().Str("error", msg).Msg("Backend tool reported failure")
		return &out, faults.New(faults.KindToolExecution, op, msg)
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("Backend tool call completed")
	return &out, nil
}

// ListTools returns the tools the backend exposes.
func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	op := "backend." + c.name + ".ListTools"

	var out toolsResponse
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, c.timeout, http.MethodGet, "/tools", nil, &out)
	})
	if err != nil {
		return nil, c.fault(op, err)
	}
	return out.Tools, nil
}

// HealthCheck calls GET /health within the health timeout. It goes through the
// breaker without retries.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	op := "backend." + c.name + ".HealthCheck"

	err := c.guard.Breaker.Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, c.healthTimeout, http.MethodGet, "/health", nil, nil)
	})
	if err != nil {
		return c.fault(op, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, timeout time.Duration, method, path string, body []byte, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := tracing.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if id := tracing.GetTraceID(ctx); id != "" {
		req.Header.Set("X-Trace-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &resilience.StatusError{Code: resp.StatusCode, Body: msg}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// fault maps a guarded call failure onto the error taxonomy.
func (c *HTTPClient) fault(op string, err error) error {
	var fe *faults.Error
	if errors.As(err, &fe) {
		return err
	}
	if code, ok := resilience.StatusCode(err); ok && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
		return faults.Wrapf(faults.KindToolExecution, op, err, "%s backend rejected the request: %v", c.name, err)
	}
	if errors.Is(err, context.Canceled) {
		return faults.Wrapf(faults.KindToolExecution, op, err, "%s backend call cancelled", c.name)
	}
	return faults.Wrapf(faults.KindUnavailable, op, err, "%s backend unavailable: %v", c.name, err)
}
