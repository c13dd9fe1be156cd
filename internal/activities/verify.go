package activities

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

type verifierAssessment struct {
	Confidence     int      `json:"confidence"`
	CoverageNotes  string   `json:"coverage_notes"`
	MissingAspects []string `json:"missing_aspects"`
}

// VerifyFindings scores the findings against the query. The decision is
// computed here from confidence and threshold, never taken from the model.
// The verifier fails open: if both LLM attempts fail the run proceeds with
// a zero-confidence permissive verdict.
func (a *Activities) VerifyFindings(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("verifier").Observe(time.Since(start).Seconds())
	}()

	assessment, err := a.assessOnce(ctx, in, "")
	if err != nil {
		if schemaDetail, ok := schemaErrDetail(err); ok {
			assessment, err = a.assessOnce(ctx, in, schemaDetail)
		}
	}
	if err != nil {
		metrics.StageFailures.WithLabelValues("verifier", "fail_open").Inc()
		a.logger.Warn("Verifier unavailable, proceeding without verification",
			zap.String("run_id", in.RunID),
			zap.Error(err),
		)
		return VerifyResult{
			Verification: research.Verification{
				Confidence:    0,
				CoverageNotes: "verification unavailable, proceeding unverified",
				Decision:      research.DecisionProceed,
			},
			Degraded:     true,
			DegradedNote: "verifier failed: " + err.Error(),
		}, nil
	}

	confidence := assessment.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	verification := research.Verification{
		Confidence:    confidence,
		CoverageNotes: assessment.CoverageNotes,
		Decision:      research.DecisionProceed,
	}
	if confidence < in.ConfidenceThreshold {
		verification.Decision = research.DecisionRetry
		verification.MissingAspects = assessment.MissingAspects
	}

	a.logger.Info("Findings verified",
		zap.String("run_id", in.RunID),
		zap.Int("confidence", confidence),
		zap.Int("threshold", in.ConfidenceThreshold),
		zap.String("decision", string(verification.Decision)),
	)
	return VerifyResult{Verification: verification}, nil
}

func (a *Activities) assessOnce(ctx context.Context, in VerifyInput, repairNote string) (verifierAssessment, error) {
	prompt := verifierPrompt(in)
	if repairNote != "" {
		prompt += "\n\nYour previous response was not valid JSON (" + repairNote + "). Respond again with only the JSON object."
	}
	text, err := a.llm.Complete(ctx, llm.Request{
		System:     verifierSystem,
		Prompt:     prompt,
		SchemaHint: verifierSchemaHint,
	})
	if err != nil {
		return verifierAssessment{}, err
	}
	var out verifierAssessment
	if err := llm.Unmarshal(text, &out); err != nil {
		return verifierAssessment{}, err
	}
	return out, nil
}
