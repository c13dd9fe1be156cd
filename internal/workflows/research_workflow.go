// Package workflows contains the Temporal orchestration of a research run:
// plan, execute, verify, and synthesize stages with a bounded verify-retry
// loop. Stage retries are application-level (repair re-prompts, fail-open
// fallbacks), so activities run with a single Temporal attempt.
package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/meridianlabs-ai/deepresearch/internal/activities"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
	"github.com/meridianlabs-ai/deepresearch/internal/streaming"
)

// ResearchWorkflow drives one run through the stage machine. The run ends
// in exactly one terminal step: complete (with a report) or error. Planner
// and executor failures are fatal; verifier and synthesizer failures
// degrade but never kill a run that has findings.
func ResearchWorkflow(ctx workflow.Context, in ResearchInput) (ResearchResult, error) {
	logger := workflow.GetLogger(ctx)
	st := research.NewState(in.RunID, in.Query, workflow.Now(ctx).UTC())

	if err := workflow.SetQueryHandler(ctx, QueryRunState, func() (research.State, error) {
		return *st, nil
	}); err != nil {
		return ResearchResult{}, err
	}

	stageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	sideCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	w := &runner{in: in, st: st, stageCtx: stageCtx, sideCtx: sideCtx}
	w.emit(streaming.Event{Type: streaming.EventRunStarted, Message: in.Query})

	// Planning.
	w.setStep(research.StepPlanning)
	var planRes activities.PlanResult
	if err := workflow.ExecuteActivity(stageCtx, activities.ActivityGeneratePlan, activities.PlanInput{
		RunID: in.RunID,
		Query: in.Query,
	}).Get(stageCtx, &planRes); err != nil {
		return w.fail(fmt.Errorf("planning failed: %w", err))
	}
	st.Plan = &planRes.Plan
	w.snapshot()
	w.emit(streaming.Event{
		Type:    streaming.EventPlanReady,
		Message: fmt.Sprintf("%d subtasks, %s complexity", len(planRes.Plan.Subtasks), planRes.Plan.Complexity),
	})

	// Execute / verify loop. Iteration counts verification retries, so the
	// executor runs at most MaxVerificationRetries+1 times.
	toExecute := planRes.Plan.Subtasks
	previous := make(map[int]research.Finding)
	for {
		if ctx.Err() != nil {
			return w.fail(ctx.Err())
		}
		w.setStep(research.StepExecuting)

		executed := make(map[int]research.Finding, len(toExecute))
		for _, subtask := range toExecute {
			var execRes activities.ExecuteResult
			err := workflow.ExecuteActivity(stageCtx, activities.ActivityExecuteSubtask, activities.ExecuteInput{
				RunID:   in.RunID,
				Query:   in.Query,
				Subtask: subtask,
			}).Get(stageCtx, &execRes)
			if err != nil {
				// The subtask is skipped; the run continues on whatever
				// evidence the other subtasks produce.
				logger.Warn("Subtask skipped", "subtask_id", subtask.ID, "error", err)
				w.recordError(fmt.Sprintf("subtask %d skipped: %v", subtask.ID, err))
				continue
			}
			executed[subtask.ID] = execRes.Finding
			w.emit(streaming.Event{
				Type:      streaming.EventFindingReady,
				Iteration: st.Iteration,
				Message:   fmt.Sprintf("finding for subtask %d (%d sources)", subtask.ID, len(execRes.Finding.Sources)),
			})
		}

		// Findings are rebuilt wholesale each pass: re-executed subtasks
		// contribute their fresh finding, the rest carry forward.
		st.Findings = rebuildFindings(planRes.Plan.Subtasks, executed, previous)
		w.snapshot()
		if len(st.Findings) == 0 {
			return w.fail(fmt.Errorf("execution failed: no subtask produced a finding"))
		}
		previous = make(map[int]research.Finding, len(st.Findings))
		for _, f := range st.Findings {
			previous[f.SubtaskID] = f
		}

		// Verification. Cancellation is observed at every stage boundary.
		if ctx.Err() != nil {
			return w.fail(ctx.Err())
		}
		w.setStep(research.StepVerifying)
		var verifyRes activities.VerifyResult
		if err := workflow.ExecuteActivity(stageCtx, activities.ActivityVerifyFindings, activities.VerifyInput{
			RunID:               in.RunID,
			Query:               in.Query,
			Plan:                planRes.Plan,
			Findings:            st.Findings,
			ConfidenceThreshold: in.Tuning.ConfidenceThreshold,
		}).Get(stageCtx, &verifyRes); err != nil {
			// The activity itself fails open; an infrastructure-level
			// failure here gets the same permissive treatment.
			verifyRes = activities.VerifyResult{
				Verification: research.Verification{Decision: research.DecisionProceed, CoverageNotes: "verification unavailable"},
				Degraded:     true,
				DegradedNote: err.Error(),
			}
		}
		if verifyRes.Degraded {
			w.recordError(verifyRes.DegradedNote)
		}
		st.Verification = &verifyRes.Verification
		w.snapshot()
		w.emit(streaming.Event{
			Type:      streaming.EventVerificationDone,
			Iteration: st.Iteration,
			Message:   fmt.Sprintf("confidence %d, decision %s", verifyRes.Verification.Confidence, verifyRes.Verification.Decision),
		})

		if verifyRes.Verification.Decision == research.DecisionProceed {
			break
		}
		if st.Iteration >= in.Tuning.MaxVerificationRetries {
			logger.Info("Verification retries exhausted, proceeding with current findings",
				"iteration", st.Iteration, "confidence", verifyRes.Verification.Confidence)
			w.recordError(fmt.Sprintf("proceeding at confidence %d after %d retries", verifyRes.Verification.Confidence, st.Iteration))
			break
		}
		st.Iteration++
		toExecute = subtasksForAspects(&planRes.Plan, verifyRes.Verification.MissingAspects)
		w.emit(streaming.Event{
			Type:      streaming.EventRetrying,
			Iteration: st.Iteration,
			Message:   fmt.Sprintf("re-executing %d subtasks", len(toExecute)),
		})
	}

	// Synthesis.
	if ctx.Err() != nil {
		return w.fail(ctx.Err())
	}
	w.setStep(research.StepSynthesizing)
	var synthRes activities.SynthesizeResult
	if err := workflow.ExecuteActivity(stageCtx, activities.ActivitySynthesizeReport, activities.SynthesizeInput{
		RunID:    in.RunID,
		Query:    in.Query,
		Plan:     planRes.Plan,
		Findings: st.Findings,
	}).Get(stageCtx, &synthRes); err != nil {
		return w.fail(fmt.Errorf("synthesis failed: %w", err))
	}
	if synthRes.Degraded {
		w.recordError(synthRes.DegradedNote)
	}
	st.Report = &synthRes.Report
	w.emit(streaming.Event{Type: streaming.EventReportReady, Message: synthRes.Report.Title})

	w.setStep(research.StepComplete)
	w.persist()
	w.emit(streaming.Event{Type: streaming.EventRunCompleted, Step: research.StepComplete})

	confidence := 0
	if st.Verification != nil {
		confidence = st.Verification.Confidence
	}
	return ResearchResult{
		RunID:      in.RunID,
		Status:     research.StepComplete,
		Report:     synthRes.Report,
		Confidence: confidence,
		Iterations: st.Iteration,
		Errors:     st.Errors,
	}, nil
}

// runner bundles the bookkeeping shared by every stage transition.
type runner struct {
	in       ResearchInput
	st       *research.State
	stageCtx workflow.Context
	sideCtx  workflow.Context
}

func (w *runner) setStep(step research.Step) {
	w.st.CurrentStep = step
	w.st.UpdatedAt = workflow.Now(w.stageCtx).UTC()
	w.snapshot()
	w.emit(streaming.Event{Type: streaming.EventStepChanged, Step: step, Iteration: w.st.Iteration})
}

func (w *runner) recordError(msg string) {
	if msg == "" {
		return
	}
	w.st.Errors = append(w.st.Errors, msg)
}

// snapshot saves live state best-effort; a state-store outage never fails
// the run.
func (w *runner) snapshot() {
	w.st.UpdatedAt = workflow.Now(w.stageCtx).UTC()
	_ = workflow.ExecuteActivity(w.sideCtx, activities.ActivitySaveRunState, activities.SaveStateInput{
		State: *w.st,
	}).Get(w.sideCtx, nil)
}

func (w *runner) persist() {
	_ = workflow.ExecuteActivity(w.sideCtx, activities.ActivityPersistRun, activities.PersistInput{
		State: *w.st,
	}).Get(w.sideCtx, nil)
	_ = workflow.ExecuteActivity(w.sideCtx, activities.ActivitySaveRunState, activities.SaveStateInput{
		State: *w.st,
	}).Get(w.sideCtx, nil)
}

func (w *runner) emit(evt streaming.Event) {
	_ = workflow.ExecuteActivity(w.sideCtx, activities.ActivityPublishEvent, activities.PublishEventInput{
		RunID: w.in.RunID,
		Event: evt,
	}).Get(w.sideCtx, nil)
}

// fail moves the run to its error terminal, persists it, and surfaces the
// cause as the workflow error. No report exists on this path.
func (w *runner) fail(cause error) (ResearchResult, error) {
	w.recordError(cause.Error())
	w.st.Report = nil
	w.setStep(research.StepError)
	w.persist()
	w.emit(streaming.Event{Type: streaming.EventRunFailed, Step: research.StepError, Message: cause.Error()})
	return ResearchResult{
		RunID:      w.in.RunID,
		Status:     research.StepError,
		Iterations: w.st.Iteration,
		Errors:     w.st.Errors,
	}, cause
}

// rebuildFindings assembles the findings slice in plan order from the pass
// that just ran plus carried-over findings for subtasks not re-executed.
func rebuildFindings(subtasks []research.Subtask, executed, previous map[int]research.Finding) []research.Finding {
	out := make([]research.Finding, 0, len(subtasks))
	for _, st := range subtasks {
		if f, ok := executed[st.ID]; ok {
			out = append(out, f)
			continue
		}
		if f, ok := previous[st.ID]; ok {
			out = append(out, f)
		}
	}
	return out
}

// subtasksForAspects maps the verifier's missing aspects back onto plan
// subtasks by word overlap. When nothing matches, every subtask re-runs:
// over-researching beats returning a report with known gaps.
func subtasksForAspects(plan *research.Plan, aspects []string) []research.Subtask {
	if len(aspects) == 0 {
		return plan.Subtasks
	}
	matched := make(map[int]bool)
	for _, aspect := range aspects {
		for _, st := range plan.Subtasks {
			if overlaps(st.Description, aspect) {
				matched[st.ID] = true
			}
		}
	}
	if len(matched) == 0 {
		return plan.Subtasks
	}
	out := make([]research.Subtask, 0, len(matched))
	for _, st := range plan.Subtasks {
		if matched[st.ID] {
			out = append(out, st)
		}
	}
	return out
}

// overlaps reports whether the two phrases share a significant word.
func overlaps(a, b string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		if len(w) >= 4 {
			words[strings.Trim(w, ".,:;")] = true
		}
	}
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if words[strings.Trim(w, ".,:;")] {
			return true
		}
	}
	return false
}
