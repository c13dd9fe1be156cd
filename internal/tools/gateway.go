package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/config"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// Registered tool identifiers. The set is closed: a plan referencing any
// other id is rejected at validation time, not at call time.
const (
	ToolWebSearch    = "web_search"
	ToolAcademic     = "academic_search"
	ToolEncyclopedia = "encyclopedia_search"
	ToolCalculator   = "calculator"
	ToolCodeExecutor = "code_executor"
)

// Tool is a single knowledge source. Results are Source-shaped records;
// an empty slice is a valid result, not an error.
type Tool interface {
	ID() string
	Search(ctx context.Context, query string) ([]research.Source, error)
}

// Gateway is the uniform dispatch surface over the registered tools. Each
// call is bounded by the per-call timeout and retried with exponential
// backoff on transient failures up to the attempt ceiling.
type Gateway struct {
	tools       map[string]Tool
	callTimeout time.Duration
	maxAttempts int
	backoffBase time.Duration
	logger      *zap.Logger
}

// NewGateway constructs the gateway with the full closed tool set.
func NewGateway(cfg config.ToolsConfig, webMaxResults int, logger *zap.Logger) *Gateway {
	g := &Gateway{
		tools:       make(map[string]Tool),
		callTimeout: cfg.CallTimeout,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		logger:      logger,
	}
	if g.callTimeout <= 0 {
		g.callTimeout = 15 * time.Second
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 3
	}
	if g.backoffBase <= 0 {
		g.backoffBase = 500 * time.Millisecond
	}
	g.register(newTavilyTool(cfg.TavilyBaseURL, cfg.TavilyAPIKey, webMaxResults))
	g.register(newArxivTool(cfg.ArxivBaseURL, cfg.ArxivMaxResults))
	g.register(newWikipediaTool(cfg.WikiBaseURL, cfg.WikiMaxResults))
	g.register(newCalculatorTool())
	g.register(newCodeExecutorTool(cfg.PythonBin, cfg.CodeExecTimeout))
	return g
}

func (g *Gateway) register(t Tool) {
	g.tools[t.ID()] = t
}

// Registered reports whether id names a registered tool.
func (g *Gateway) Registered(id string) bool {
	_, ok := g.tools[id]
	return ok
}

// ToolIDs returns the registered ids in stable order.
func (g *Gateway) ToolIDs() []string {
	ids := make([]string, 0, len(g.tools))
	for id := range g.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Invoke dispatches one query to one tool. An unregistered id is a
// configuration error, surfaced immediately. Transient failures (timeouts,
// network errors, upstream 5xx) retry with exponential backoff; permanent
// failures (bad expression, forbidden code) do not. The caller records a
// returned error into the owning finding; it never aborts the subtask.
func (g *Gateway) Invoke(ctx context.Context, toolID, query string) ([]research.Source, error) {
	tool, ok := g.tools[toolID]
	if !ok {
		return nil, research.NewConfigurationError("unregistered tool %q", toolID)
	}

	start := time.Now()
	defer func() {
		metrics.ToolCallDuration.WithLabelValues(toolID).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		sources, err := tool.Search(callCtx, query)
		cancel()
		if err == nil {
			metrics.ToolInvocations.WithLabelValues(toolID, "ok").Inc()
			return sources, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Cancellation observed at the timeout boundary: abandon the call.
			metrics.ToolInvocations.WithLabelValues(toolID, "cancelled").Inc()
			return nil, &research.ToolError{Tool: toolID, Cause: ctx.Err()}
		}
		if !isTransient(err) {
			break
		}
		metrics.ToolInvocations.WithLabelValues(toolID, "retry").Inc()
		if attempt < g.maxAttempts {
			delay := g.backoffBase * time.Duration(1<<uint(attempt-1))
			g.logger.Warn("Tool call failed, backing off",
				zap.String("tool", toolID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil, &research.ToolError{Tool: toolID, Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}
	metrics.ToolInvocations.WithLabelValues(toolID, "error").Inc()
	return nil, &research.ToolError{Tool: toolID, Cause: lastErr}
}

// transientError tags failures worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func markTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// upstreamStatusError reports a non-2xx response from a knowledge source.
func upstreamStatusError(tool string, status int) error {
	err := fmt.Errorf("%s returned status %d", tool, status)
	if status == 429 || status >= 500 {
		return markTransient(err)
	}
	return err
}
