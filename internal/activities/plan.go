package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// GeneratePlan decomposes the query into subtasks. Malformed LLM output,
// including a valid JSON plan with no subtasks, gets one repair re-prompt;
// a second failure or a reference to an unregistered tool fails the planner
// stage, which is fatal to the run.
func (a *Activities) GeneratePlan(ctx context.Context, in PlanInput) (PlanResult, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("planner").Observe(time.Since(start).Seconds())
	}()

	a.logger.Info("Generating research plan",
		zap.String("run_id", in.RunID),
		zap.String("query", in.Query),
	)

	plan, err := a.planOnce(ctx, in, "")
	if err != nil {
		var schemaErr *research.SchemaError
		if !errors.As(err, &schemaErr) {
			metrics.StageFailures.WithLabelValues("planner", "fatal").Inc()
			return PlanResult{}, &research.StageError{Stage: "planner", Cause: err}
		}
		a.logger.Warn("Plan response malformed, re-prompting",
			zap.String("run_id", in.RunID),
			zap.Error(err),
		)
		plan, err = a.planOnce(ctx, in, schemaErr.Detail)
		if err != nil {
			metrics.StageFailures.WithLabelValues("planner", "fatal").Inc()
			return PlanResult{}, &research.StageError{Stage: "planner", Cause: err}
		}
	}

	if err := a.validatePlan(&plan); err != nil {
		metrics.StageFailures.WithLabelValues("planner", "fatal").Inc()
		return PlanResult{}, &research.StageError{Stage: "planner", Cause: err}
	}

	a.logger.Info("Research plan ready",
		zap.String("run_id", in.RunID),
		zap.String("complexity", string(plan.Complexity)),
		zap.Int("subtasks", len(plan.Subtasks)),
	)
	return PlanResult{Plan: plan}, nil
}

func (a *Activities) planOnce(ctx context.Context, in PlanInput, repairNote string) (research.Plan, error) {
	prompt := plannerPrompt(in.Query)
	if repairNote != "" {
		prompt += "\n\nYour previous response was not valid JSON (" + repairNote + "). Respond again with only the JSON object."
	}

	text, err := a.llm.Complete(ctx, llm.Request{
		System:     plannerSystem,
		Prompt:     prompt,
		SchemaHint: plannerSchemaHint,
	})
	if err != nil {
		return research.Plan{}, err
	}

	var plan research.Plan
	if err := llm.Unmarshal(text, &plan); err != nil {
		return research.Plan{}, err
	}
	// An empty subtask list is repairable the same way malformed JSON is:
	// one re-prompt before the stage fails.
	if len(plan.Subtasks) == 0 {
		return research.Plan{}, &research.SchemaError{Field: "subtasks", Detail: "subtasks must be a non-empty array"}
	}
	return plan, nil
}

// validatePlan normalizes subtask ids and rejects plans that cannot be
// executed, like a tool outside the registered set.
func (a *Activities) validatePlan(plan *research.Plan) error {
	seen := make(map[int]bool)
	for i := range plan.Subtasks {
		st := &plan.Subtasks[i]
		if st.ID <= 0 || seen[st.ID] {
			st.ID = i + 1
		}
		seen[st.ID] = true
		if st.Description == "" {
			return fmt.Errorf("subtask %d has no description", st.ID)
		}
		if len(st.ToolsNeeded) == 0 {
			return fmt.Errorf("subtask %d names no tools", st.ID)
		}
		for _, tool := range st.ToolsNeeded {
			if !a.gateway.Registered(tool) {
				return fmt.Errorf("subtask %d references unregistered tool %q", st.ID, tool)
			}
		}
	}
	switch plan.Complexity {
	case research.ComplexitySimple, research.ComplexityModerate, research.ComplexityComplex:
	default:
		plan.Complexity = research.ComplexityModerate
	}
	return nil
}
