package workflows

import (
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// Workflow and query names.
const (
	WorkflowResearch = "ResearchWorkflow"
	QueryRunState    = "run_state"
)

// Tuning carries the per-run orchestration knobs, resolved from config at
// submission time so a hot-reload never changes a run mid-flight.
type Tuning struct {
	MaxVerificationRetries int `json:"max_verification_retries"`
	ConfidenceThreshold    int `json:"confidence_threshold"`
}

// ResearchInput starts one research run.
type ResearchInput struct {
	RunID  string `json:"run_id"`
	Query  string `json:"query"`
	Tuning Tuning `json:"tuning"`
}

// ResearchResult is the workflow's return value for a completed run.
type ResearchResult struct {
	RunID      string          `json:"run_id"`
	Status     research.Step   `json:"status"`
	Report     research.Report `json:"report"`
	Confidence int             `json:"confidence"`
	Iterations int             `json:"iterations"`
	Errors     []string        `json:"errors,omitempty"`
}
