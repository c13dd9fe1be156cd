package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

func TestExecuteSubtaskCollectsSourcesAndSummarizes(t *testing.T) {
	fg := &fakeGateway{results: map[string][]research.Source{
		"web_search": {
			{Title: "Hit", URL: "https://example.com/hit", Snippet: "body"},
			{Title: "Answer", URL: "", Snippet: "aggregate answer"},
		},
		"encyclopedia_search": {
			{Title: "Wiki", URL: "https://en.wikipedia.org/wiki/X", Snippet: "intro"},
		},
	}}
	fl := &fakeLLM{responses: []string{`{"summary": "Detailed summary of X."}`}}
	a := newTestActivities(t, fl, fg)

	res, err := a.ExecuteSubtask(context.Background(), ExecuteInput{
		RunID: "run-1",
		Query: "what is X",
		Subtask: research.Subtask{
			ID:          1,
			Description: "X fundamentals",
			ToolsNeeded: []string{"web_search", "encyclopedia_search"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finding.SubtaskID)
	assert.Equal(t, "Detailed summary of X.", res.Finding.Summary)
	// URL-less evidence is summarized but dropped from citations.
	require.Len(t, res.Finding.Sources, 2)
	assert.Empty(t, res.Finding.ToolErrors)
	assert.ElementsMatch(t, []string{"web_search", "encyclopedia_search"}, fg.calls)

	require.Len(t, fl.requests, 1)
	assert.Contains(t, fl.requests[0].Prompt, "aggregate answer")
}

func TestExecuteSubtaskRecordsToolFailures(t *testing.T) {
	fg := &fakeGateway{
		results: map[string][]research.Source{
			"web_search": {{Title: "Hit", URL: "https://example.com", Snippet: "body"}},
		},
		errs: map[string]error{
			"academic_search": errors.New("arxiv returned status 503"),
		},
	}
	fl := &fakeLLM{responses: []string{`{"summary": "Partial evidence summary."}`}}
	a := newTestActivities(t, fl, fg)

	res, err := a.ExecuteSubtask(context.Background(), ExecuteInput{
		RunID: "run-1",
		Query: "q",
		Subtask: research.Subtask{
			ID:          2,
			Description: "papers on q",
			ToolsNeeded: []string{"web_search", "academic_search"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Finding.ToolErrors, 1)
	assert.Equal(t, "academic_search", res.Finding.ToolErrors[0].Tool)
	assert.Contains(t, res.Finding.ToolErrors[0].Error, "503")
	assert.Len(t, res.Finding.Sources, 1)
	// Failure details reach the summarizer so gaps are acknowledged.
	assert.Contains(t, fl.requests[0].Prompt, "Tool failures")
}

func TestExecuteSubtaskAllToolsFailStillYieldsFinding(t *testing.T) {
	fg := &fakeGateway{errs: map[string]error{
		"web_search":          errors.New("timeout"),
		"encyclopedia_search": errors.New("timeout"),
	}}
	fl := &fakeLLM{responses: []string{`{"summary": "No evidence could be retrieved for this subtask."}`}}
	a := newTestActivities(t, fl, fg)

	res, err := a.ExecuteSubtask(context.Background(), ExecuteInput{
		RunID: "run-1",
		Query: "q",
		Subtask: research.Subtask{
			ID:          1,
			Description: "d",
			ToolsNeeded: []string{"web_search", "encyclopedia_search"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Finding.Sources)
	assert.Len(t, res.Finding.ToolErrors, 2)
	assert.NotEmpty(t, res.Finding.Summary)
}

func TestExecuteSubtaskSummaryFailureFailsActivity(t *testing.T) {
	fg := &fakeGateway{results: map[string][]research.Source{
		"web_search": {{Title: "Hit", URL: "https://example.com", Snippet: "body"}},
	}}
	fl := &fakeLLM{responses: []string{"", ""}, errs: []error{errLLMDown, errLLMDown}}
	a := newTestActivities(t, fl, fg)

	_, err := a.ExecuteSubtask(context.Background(), ExecuteInput{
		RunID:   "run-1",
		Query:   "q",
		Subtask: research.Subtask{ID: 1, Description: "d", ToolsNeeded: []string{"web_search"}},
	})
	var stageErr *research.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "executor", stageErr.Stage)
}

func TestExecuteSubtaskRepairsMalformedSummary(t *testing.T) {
	fg := &fakeGateway{results: map[string][]research.Source{
		"web_search": {{Title: "Hit", URL: "https://example.com", Snippet: "body"}},
	}}
	fl := &fakeLLM{responses: []string{"plain text, not json", `{"summary": "Recovered summary."}`}}
	a := newTestActivities(t, fl, fg)

	res, err := a.ExecuteSubtask(context.Background(), ExecuteInput{
		RunID:   "run-1",
		Query:   "q",
		Subtask: research.Subtask{ID: 1, Description: "d", ToolsNeeded: []string{"web_search"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Recovered summary.", res.Finding.Summary)
	assert.Len(t, fl.requests, 2)
}
