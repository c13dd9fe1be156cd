package activities

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/report"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

type synthesizerDraft struct {
	Title            string                   `json:"title"`
	ExecutiveSummary string                   `json:"executive_summary"`
	Sections         []research.ReportSection `json:"sections"`
}

// SynthesizeReport writes the final report from the findings. The primary
// prompt gets one retry with a simpler prompt; if both fail the stage fails
// open and assembles a deterministic report directly from the findings, so
// a run with findings always ends with a citable artifact.
func (a *Activities) SynthesizeReport(ctx context.Context, in SynthesizeInput) (SynthesizeResult, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("synthesizer").Observe(time.Since(start).Seconds())
	}()

	draft, err := a.draftReport(ctx, in, synthesizerSystem)
	if err != nil {
		a.logger.Warn("Report synthesis failed, retrying with simpler prompt",
			zap.String("run_id", in.RunID),
			zap.Error(err),
		)
		draft, err = a.draftReport(ctx, in, synthesizerRetrySystem)
		if err != nil && len(draft.Sections) > 0 {
			// The re-prompt was spent and the draft is still under range.
			// Keep it and let assembly pad up to the minimum rather than
			// discard the model's sections.
			a.logger.Warn("Retried draft still under section range, padding",
				zap.String("run_id", in.RunID),
				zap.Int("sections", len(draft.Sections)),
			)
			err = nil
		}
	}
	if err != nil {
		metrics.StageFailures.WithLabelValues("synthesizer", "fail_open").Inc()
		a.logger.Warn("Report synthesis unavailable, building fallback report",
			zap.String("run_id", in.RunID),
			zap.Error(err),
		)
		fallback := report.Fallback(in.Query, in.Findings, time.Now().UTC())
		return SynthesizeResult{
			Report:       *fallback,
			Degraded:     true,
			DegradedNote: "synthesizer failed: " + err.Error(),
		}, nil
	}

	assembled := report.Assemble(draft.Title, draft.ExecutiveSummary, draft.Sections, in.Findings, time.Now().UTC())
	a.logger.Info("Report synthesized",
		zap.String("run_id", in.RunID),
		zap.String("title", assembled.Title),
		zap.Int("sections", len(assembled.Sections)),
		zap.Int("references", len(assembled.References)),
	)
	return SynthesizeResult{Report: *assembled}, nil
}

func (a *Activities) draftReport(ctx context.Context, in SynthesizeInput, system string) (synthesizerDraft, error) {
	text, err := a.llm.Complete(ctx, llm.Request{
		System:     system,
		Prompt:     synthesizerPrompt(in),
		SchemaHint: synthesizerSchemaHint,
		MaxTokens:  4000,
	})
	if err != nil {
		return synthesizerDraft{}, err
	}
	var draft synthesizerDraft
	if err := llm.Unmarshal(text, &draft); err != nil {
		return synthesizerDraft{}, err
	}
	if draft.Title == "" {
		draft.Title = "Research Report: " + in.Query
	}
	if draft.ExecutiveSummary == "" {
		draft.ExecutiveSummary = "This report examines " + in.Query + " in detail."
	}
	// An under-range section count gets the one re-prompt. The draft is
	// returned alongside the error so the caller can still salvage it if
	// the re-prompt comes up short too.
	if len(draft.Sections) < report.MinSections {
		return draft, &research.SchemaError{
			Field:  "sections",
			Detail: fmt.Sprintf("report has %d sections, at least %d required", len(draft.Sections), report.MinSections),
		}
	}
	return draft, nil
}
