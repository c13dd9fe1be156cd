package workflows

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/meridianlabs-ai/deepresearch/internal/activities"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

type stageMocks struct {
	plan        func(activities.PlanInput) (activities.PlanResult, error)
	execute     func(activities.ExecuteInput) (activities.ExecuteResult, error)
	verify      func(activities.VerifyInput) (activities.VerifyResult, error)
	synthesize  func(activities.SynthesizeInput) (activities.SynthesizeResult, error)
	execCalls   []int
	verifyCalls int
}

func defaultPlan() research.Plan {
	return research.Plan{
		QueryAnalysis: "overview of retrieval augmented generation",
		Complexity:    research.ComplexityModerate,
		Subtasks: []research.Subtask{
			{ID: 1, Description: "retrieval augmented generation fundamentals", ToolsNeeded: []string{"web_search", "encyclopedia_search"}},
			{ID: 2, Description: "recent papers on retrieval quality", ToolsNeeded: []string{"academic_search"}},
		},
		ExpectedSections: []string{"Introduction", "Architecture", "Retrieval", "Generation", "Evaluation", "Conclusion"},
	}
}

func findingFor(subtaskID, nsources int) research.Finding {
	f := research.Finding{SubtaskID: subtaskID, Summary: fmt.Sprintf("summary for subtask %d", subtaskID)}
	for i := 0; i < nsources; i++ {
		f.Sources = append(f.Sources, research.Source{
			Title: fmt.Sprintf("source %d-%d", subtaskID, i),
			URL:   fmt.Sprintf("https://example.com/%d/%d", subtaskID, i),
		})
	}
	return f
}

func reportFor(sections int, findings []research.Finding) research.Report {
	r := research.Report{Title: "Report", ExecutiveSummary: "Summary."}
	for i := 0; i < sections; i++ {
		r.Sections = append(r.Sections, research.ReportSection{
			Heading: fmt.Sprintf("Section %d", i+1),
			Content: "Content.",
		})
	}
	seen := map[string]bool{}
	for _, f := range findings {
		for _, s := range f.Sources {
			if !seen[s.URL] {
				seen[s.URL] = true
				r.References = append(r.References, s)
			}
		}
	}
	return r
}

func runWorkflow(t *testing.T, m *stageMocks, tuning Tuning) (*testsuite.TestWorkflowEnvironment, ResearchResult, error) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResearchWorkflow)

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PlanInput) (activities.PlanResult, error) {
		return m.plan(in)
	}, activity.RegisterOptions{Name: activities.ActivityGeneratePlan})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ExecuteInput) (activities.ExecuteResult, error) {
		m.execCalls = append(m.execCalls, in.Subtask.ID)
		return m.execute(in)
	}, activity.RegisterOptions{Name: activities.ActivityExecuteSubtask})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.VerifyInput) (activities.VerifyResult, error) {
		m.verifyCalls++
		return m.verify(in)
	}, activity.RegisterOptions{Name: activities.ActivityVerifyFindings})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return m.synthesize(in)
	}, activity.RegisterOptions{Name: activities.ActivitySynthesizeReport})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.SaveStateInput) error {
		return nil
	}, activity.RegisterOptions{Name: activities.ActivitySaveRunState})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PersistInput) error {
		return nil
	}, activity.RegisterOptions{Name: activities.ActivityPersistRun})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PublishEventInput) error {
		return nil
	}, activity.RegisterOptions{Name: activities.ActivityPublishEvent})

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-1", Query: "what is RAG", Tuning: tuning})
	require.True(t, env.IsWorkflowCompleted())

	var result ResearchResult
	err := env.GetWorkflowError()
	if err == nil {
		require.NoError(t, env.GetWorkflowResult(&result))
	}
	return env, result, err
}

func TestResearchWorkflowHappyPath(t *testing.T) {
	findings := []research.Finding{findingFor(1, 8), findingFor(2, 7)}
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{Plan: defaultPlan()}, nil
		},
		execute: func(in activities.ExecuteInput) (activities.ExecuteResult, error) {
			return activities.ExecuteResult{Finding: findings[in.Subtask.ID-1]}, nil
		},
		verify: func(in activities.VerifyInput) (activities.VerifyResult, error) {
			assert.Len(t, in.Findings, 2)
			return activities.VerifyResult{Verification: research.Verification{
				Confidence: 85, Decision: research.DecisionProceed, CoverageNotes: "good coverage",
			}}, nil
		},
		synthesize: func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
			return activities.SynthesizeResult{Report: reportFor(6, in.Findings)}, nil
		},
	}

	_, result, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.NoError(t, err)
	assert.Equal(t, research.StepComplete, result.Status)
	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, 85, result.Confidence)
	assert.Len(t, result.Report.Sections, 6)
	assert.Len(t, result.Report.References, 15)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []int{1, 2}, m.execCalls)
	assert.Equal(t, 1, m.verifyCalls)
}

func TestResearchWorkflowRetriesThenForcesProceed(t *testing.T) {
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{Plan: defaultPlan()}, nil
		},
		execute: func(in activities.ExecuteInput) (activities.ExecuteResult, error) {
			return activities.ExecuteResult{Finding: findingFor(in.Subtask.ID, 2)}, nil
		},
		verify: func(in activities.VerifyInput) (activities.VerifyResult, error) {
			return activities.VerifyResult{Verification: research.Verification{
				Confidence:     40,
				Decision:       research.DecisionRetry,
				MissingAspects: []string{"more recent papers"},
			}}, nil
		},
		synthesize: func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
			return activities.SynthesizeResult{Report: reportFor(5, in.Findings)}, nil
		},
	}

	_, result, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.NoError(t, err)
	// Two retries plus the initial pass: three verifier verdicts, and the
	// run still completes with the report it has.
	assert.Equal(t, research.StepComplete, result.Status)
	assert.Equal(t, 3, m.verifyCalls)
	assert.Equal(t, 2, result.Iterations)
	// The missing aspect matches subtask 2 only, so retries re-execute
	// just that subtask.
	assert.Equal(t, []int{1, 2, 2, 2}, m.execCalls)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "proceeding at confidence 40")
}

func TestResearchWorkflowRetryWithoutAspectMatchReexecutesAll(t *testing.T) {
	retried := false
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{Plan: defaultPlan()}, nil
		},
		execute: func(in activities.ExecuteInput) (activities.ExecuteResult, error) {
			return activities.ExecuteResult{Finding: findingFor(in.Subtask.ID, 2)}, nil
		},
		verify: func(in activities.VerifyInput) (activities.VerifyResult, error) {
			if retried {
				return activities.VerifyResult{Verification: research.Verification{
					Confidence: 80, Decision: research.DecisionProceed,
				}}, nil
			}
			retried = true
			return activities.VerifyResult{Verification: research.Verification{
				Confidence:     30,
				Decision:       research.DecisionRetry,
				MissingAspects: []string{"zzzz qqqq"},
			}}, nil
		},
		synthesize: func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
			return activities.SynthesizeResult{Report: reportFor(5, in.Findings)}, nil
		},
	}

	_, result, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.NoError(t, err)
	assert.Equal(t, research.StepComplete, result.Status)
	assert.Equal(t, []int{1, 2, 1, 2}, m.execCalls)
	assert.Equal(t, 1, result.Iterations)
}

func TestResearchWorkflowCompletesWhenAllToolsFail(t *testing.T) {
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{Plan: defaultPlan()}, nil
		},
		execute: func(in activities.ExecuteInput) (activities.ExecuteResult, error) {
			return activities.ExecuteResult{Finding: research.Finding{
				SubtaskID: in.Subtask.ID,
				Summary:   "no evidence retrieved",
				ToolErrors: []research.ToolFailure{
					{Tool: "web_search", Error: "timeout"},
				},
			}}, nil
		},
		verify: func(in activities.VerifyInput) (activities.VerifyResult, error) {
			return activities.VerifyResult{
				Verification: research.Verification{Confidence: 0, Decision: research.DecisionProceed, CoverageNotes: "verification unavailable"},
				Degraded:     true,
				DegradedNote: "verifier failed: llm unavailable",
			}, nil
		},
		synthesize: func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
			return activities.SynthesizeResult{
				Report:       reportFor(5, in.Findings),
				Degraded:     true,
				DegradedNote: "synthesizer failed: llm unavailable",
			}, nil
		},
	}

	_, result, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.NoError(t, err)
	assert.Equal(t, research.StepComplete, result.Status)
	assert.Empty(t, result.Report.References)
	// Degradation is visible in the error trail, not in the exit status.
	assert.Len(t, result.Errors, 2)
}

func TestResearchWorkflowPlannerFailureIsFatal(t *testing.T) {
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{}, errors.New("stage planner: no subtasks")
		},
	}

	_, _, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning failed")
	assert.Empty(t, m.execCalls)
	assert.Zero(t, m.verifyCalls)
}

func TestResearchWorkflowFailsWhenNoSubtaskYieldsFinding(t *testing.T) {
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{Plan: defaultPlan()}, nil
		},
		execute: func(in activities.ExecuteInput) (activities.ExecuteResult, error) {
			return activities.ExecuteResult{}, errors.New("stage executor: llm unavailable")
		},
	}

	_, _, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subtask produced a finding")
	assert.Zero(t, m.verifyCalls)
}

func TestResearchWorkflowCancelledBeforeVerify(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResearchWorkflow)

	verifyCalls := 0
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PlanInput) (activities.PlanResult, error) {
		return activities.PlanResult{Plan: defaultPlan()}, nil
	}, activity.RegisterOptions{Name: activities.ActivityGeneratePlan})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ExecuteInput) (activities.ExecuteResult, error) {
		// Cancellation lands while the executor pass is still running.
		if in.Subtask.ID == 2 {
			env.CancelWorkflow()
		}
		return activities.ExecuteResult{Finding: findingFor(in.Subtask.ID, 1)}, nil
	}, activity.RegisterOptions{Name: activities.ActivityExecuteSubtask})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.VerifyInput) (activities.VerifyResult, error) {
		verifyCalls++
		return activities.VerifyResult{Verification: research.Verification{Confidence: 90, Decision: research.DecisionProceed}}, nil
	}, activity.RegisterOptions{Name: activities.ActivityVerifyFindings})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{Report: reportFor(5, in.Findings)}, nil
	}, activity.RegisterOptions{Name: activities.ActivitySynthesizeReport})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.SaveStateInput) error {
		return nil
	}, activity.RegisterOptions{Name: activities.ActivitySaveRunState})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PersistInput) error {
		return nil
	}, activity.RegisterOptions{Name: activities.ActivityPersistRun})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PublishEventInput) error {
		return nil
	}, activity.RegisterOptions{Name: activities.ActivityPublishEvent})

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-1", Query: "q", Tuning: Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70}})
	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
	assert.Zero(t, verifyCalls)

	// The run stops at the stage boundary: no verification verdict is ever
	// produced or recorded.
	qr, qerr := env.QueryWorkflow(QueryRunState)
	require.NoError(t, qerr)
	var st research.State
	require.NoError(t, qr.Get(&st))
	assert.Equal(t, research.StepError, st.CurrentStep)
	assert.Nil(t, st.Verification)
}

func TestResearchWorkflowStateQuery(t *testing.T) {
	m := &stageMocks{
		plan: func(in activities.PlanInput) (activities.PlanResult, error) {
			return activities.PlanResult{Plan: defaultPlan()}, nil
		},
		execute: func(in activities.ExecuteInput) (activities.ExecuteResult, error) {
			return activities.ExecuteResult{Finding: findingFor(in.Subtask.ID, 1)}, nil
		},
		verify: func(in activities.VerifyInput) (activities.VerifyResult, error) {
			return activities.VerifyResult{Verification: research.Verification{Confidence: 90, Decision: research.DecisionProceed}}, nil
		},
		synthesize: func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
			return activities.SynthesizeResult{Report: reportFor(5, in.Findings)}, nil
		},
	}

	env, result, err := runWorkflow(t, m, Tuning{MaxVerificationRetries: 2, ConfidenceThreshold: 70})
	require.NoError(t, err)
	require.Equal(t, research.StepComplete, result.Status)

	qr, err := env.QueryWorkflow(QueryRunState)
	require.NoError(t, err)
	var st research.State
	require.NoError(t, qr.Get(&st))
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, research.StepComplete, st.CurrentStep)
	require.NotNil(t, st.Report)
	assert.Len(t, st.Findings, 2)
}
