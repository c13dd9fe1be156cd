package activities

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// fakeLLM replays canned completions in order. A nil error with empty
// response list panics the test, which is the desired loud failure.
type fakeLLM struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return f.responses[i], nil
}

// fakeGateway routes tool calls to canned results keyed by tool id.
type fakeGateway struct {
	results map[string][]research.Source
	errs    map[string]error
	calls   []string
}

func (g *fakeGateway) Invoke(ctx context.Context, toolID, query string) ([]research.Source, error) {
	g.calls = append(g.calls, toolID)
	if err, ok := g.errs[toolID]; ok {
		return nil, &research.ToolError{Tool: toolID, Cause: err}
	}
	return g.results[toolID], nil
}

func (g *fakeGateway) Registered(id string) bool {
	_, inResults := g.results[id]
	_, inErrs := g.errs[id]
	return inResults || inErrs
}

func newTestActivities(t *testing.T, fl *fakeLLM, fg *fakeGateway) *Activities {
	t.Helper()
	if fg == nil {
		fg = &fakeGateway{results: map[string][]research.Source{
			"web_search":          nil,
			"academic_search":     nil,
			"encyclopedia_search": nil,
			"calculator":          nil,
			"code_executor":       nil,
		}}
	}
	return NewActivities(fl, fg, nil, nil, nil, zaptest.NewLogger(t))
}

var errLLMDown = errors.New("llm unavailable")
