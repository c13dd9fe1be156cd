package activities

import (
	"github.com/meridianlabs-ai/deepresearch/internal/research"
	"github.com/meridianlabs-ai/deepresearch/internal/streaming"
)

// PlanInput asks the planner to decompose a query.
type PlanInput struct {
	RunID string `json:"run_id"`
	Query string `json:"query"`
}

// PlanResult carries the validated plan.
type PlanResult struct {
	Plan research.Plan `json:"plan"`
}

// ExecuteInput asks the executor to research one subtask.
type ExecuteInput struct {
	RunID   string           `json:"run_id"`
	Query   string           `json:"query"`
	Subtask research.Subtask `json:"subtask"`
}

// ExecuteResult carries the synthesized finding for one subtask.
type ExecuteResult struct {
	Finding research.Finding `json:"finding"`
}

// VerifyInput asks the verifier to assess the current findings.
type VerifyInput struct {
	RunID               string             `json:"run_id"`
	Query               string             `json:"query"`
	Plan                research.Plan      `json:"plan"`
	Findings            []research.Finding `json:"findings"`
	ConfidenceThreshold int                `json:"confidence_threshold"`
}

// VerifyResult carries the verdict. Degraded is set when the verifier
// failed open and the verdict is the permissive default.
type VerifyResult struct {
	Verification research.Verification `json:"verification"`
	Degraded     bool                  `json:"degraded"`
	DegradedNote string                `json:"degraded_note,omitempty"`
}

// SynthesizeInput asks the synthesizer to write the final report.
type SynthesizeInput struct {
	RunID    string             `json:"run_id"`
	Query    string             `json:"query"`
	Plan     research.Plan      `json:"plan"`
	Findings []research.Finding `json:"findings"`
}

// SynthesizeResult carries the assembled report. Degraded is set when the
// report is the deterministic fallback built without the LLM.
type SynthesizeResult struct {
	Report       research.Report `json:"report"`
	Degraded     bool            `json:"degraded"`
	DegradedNote string          `json:"degraded_note,omitempty"`
}

// PersistInput snapshots a run for durable storage.
type PersistInput struct {
	State research.State `json:"state"`
}

// SaveStateInput snapshots a run into the live state store.
type SaveStateInput struct {
	State research.State `json:"state"`
}

// PublishEventInput emits one streaming event for a run.
type PublishEventInput struct {
	RunID string          `json:"run_id"`
	Event streaming.Event `json:"event"`
}
