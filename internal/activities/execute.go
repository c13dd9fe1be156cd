package activities

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// ExecuteSubtask researches one subtask: every tool the plan names for it
// runs concurrently, then the evidence is summarized into a finding. Tool
// failures are recorded in the finding and never fail the activity; a
// summarization failure does, and the workflow skips the finding.
func (a *Activities) ExecuteSubtask(ctx context.Context, in ExecuteInput) (ExecuteResult, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("executor").Observe(time.Since(start).Seconds())
	}()

	a.logger.Info("Executing subtask",
		zap.String("run_id", in.RunID),
		zap.Int("subtask_id", in.Subtask.ID),
		zap.Strings("tools", in.Subtask.ToolsNeeded),
	)

	sources, failures := a.fanOutTools(ctx, in)

	summary, err := a.summarizeEvidence(ctx, in, sources, failures)
	if err != nil {
		metrics.StageFailures.WithLabelValues("executor", "subtask_skipped").Inc()
		return ExecuteResult{}, &research.StageError{Stage: "executor", Cause: err}
	}

	finding := research.Finding{
		SubtaskID:  in.Subtask.ID,
		Summary:    summary,
		Sources:    research.FilterSources(sources),
		ToolErrors: failures,
	}
	a.logger.Info("Subtask finding ready",
		zap.String("run_id", in.RunID),
		zap.Int("subtask_id", in.Subtask.ID),
		zap.Int("sources", len(finding.Sources)),
		zap.Int("tool_errors", len(failures)),
	)
	return ExecuteResult{Finding: finding}, nil
}

// fanOutTools invokes every named tool concurrently and waits for the full
// barrier: slow tools never leave goroutines behind, and the evidence
// order is deterministic (tool order from the plan).
func (a *Activities) fanOutTools(ctx context.Context, in ExecuteInput) ([]research.Source, []research.ToolFailure) {
	type slot struct {
		sources []research.Source
		failure *research.ToolFailure
	}
	slots := make([]slot, len(in.Subtask.ToolsNeeded))

	var wg sync.WaitGroup
	for i, toolID := range in.Subtask.ToolsNeeded {
		wg.Add(1)
		go func(i int, toolID string) {
			defer wg.Done()
			sources, err := a.gateway.Invoke(ctx, toolID, in.Subtask.Description)
			if err != nil {
				if research.IsConfigurationError(err) {
					// Plan validation should have caught this; record it
					// like any other tool failure rather than crashing.
					a.logger.Error("Unregistered tool reached execution",
						zap.String("run_id", in.RunID),
						zap.String("tool", toolID),
					)
				}
				slots[i].failure = &research.ToolFailure{Tool: toolID, Error: rootMessage(err)}
				return
			}
			slots[i].sources = sources
		}(i, toolID)
	}
	wg.Wait()

	var sources []research.Source
	var failures []research.ToolFailure
	for _, s := range slots {
		sources = append(sources, s.sources...)
		if s.failure != nil {
			failures = append(failures, *s.failure)
		}
	}
	return sources, failures
}

type executorSummary struct {
	Summary string `json:"summary"`
}

func (a *Activities) summarizeEvidence(ctx context.Context, in ExecuteInput, sources []research.Source, failures []research.ToolFailure) (string, error) {
	prompt := executorPrompt(in, sources, failures)

	attempt := func(repair string) (string, error) {
		p := prompt
		if repair != "" {
			p += "\n\nYour previous response was not valid JSON (" + repair + "). Respond again with only the JSON object."
		}
		text, err := a.llm.Complete(ctx, llm.Request{
			System:     executorSystem,
			Prompt:     p,
			SchemaHint: executorSchemaHint,
		})
		if err != nil {
			return "", err
		}
		var out executorSummary
		if err := llm.Unmarshal(text, &out); err != nil {
			return "", err
		}
		if strings.TrimSpace(out.Summary) == "" {
			return "", &research.SchemaError{Field: "summary", Detail: "empty summary"}
		}
		return out.Summary, nil
	}

	summary, err := attempt("")
	if err == nil {
		return summary, nil
	}
	var schemaErr *research.SchemaError
	if !errors.As(err, &schemaErr) {
		return "", err
	}
	return attempt(schemaErr.Detail)
}

// rootMessage trims the ToolError wrapper for user-facing failure records.
func rootMessage(err error) string {
	var toolErr *research.ToolError
	if errors.As(err, &toolErr) && toolErr.Cause != nil {
		return toolErr.Cause.Error()
	}
	return err.Error()
}
