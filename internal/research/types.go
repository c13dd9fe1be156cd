package research

import (
	"net/url"
	"time"
	"unicode/utf8"
)

// Step mirrors the orchestrator's current state-machine node. It is updated
// only by the workflow and exists for external observers (HTTP API, streaming).
type Step string

const (
	StepPending      Step = "pending"
	StepPlanning     Step = "planning"
	StepExecuting    Step = "executing"
	StepVerifying    Step = "verifying"
	StepSynthesizing Step = "synthesizing"
	StepComplete     Step = "complete"
	StepError        Step = "error"
)

// Complexity is the planner's advisory estimate of query difficulty.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Subtask is one atomic research question derived from the user query.
type Subtask struct {
	ID          int      `json:"id"`
	Description string   `json:"description"`
	ToolsNeeded []string `json:"tools_needed"`
}

// Plan is the planner's structured decomposition of a query.
type Plan struct {
	QueryAnalysis    string     `json:"query_analysis"`
	Complexity       Complexity `json:"complexity"`
	Subtasks         []Subtask  `json:"subtasks"`
	ExpectedSections []string   `json:"expected_sections"`
}

// Source is a single piece of evidence backing a finding.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ToolFailure records a tool that failed while researching a subtask.
// Failures are carried inside the owning finding and never abort a subtask.
type ToolFailure struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// Finding is the synthesized result of researching one subtask. A finding
// with empty Sources and non-empty ToolErrors is low-evidence: the summary
// was produced without any retrieved material.
type Finding struct {
	SubtaskID  int           `json:"subtask_id"`
	Summary    string        `json:"summary"`
	Sources    []Source      `json:"sources"`
	ToolErrors []ToolFailure `json:"tool_errors,omitempty"`
}

// Decision is the verifier's verdict on the current findings.
type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionRetry   Decision = "retry"
)

// Verification is the verifier's structured assessment of the findings.
// MissingAspects is non-empty only when Decision is retry.
type Verification struct {
	Confidence     int      `json:"confidence"`
	CoverageNotes  string   `json:"coverage_notes"`
	Decision       Decision `json:"decision"`
	MissingAspects []string `json:"missing_aspects,omitempty"`
}

// ReportSection is one titled body of report prose.
type ReportSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Report is the final externally consumed artifact. After assembly its
// section count is within [5,8] and its references carry no duplicate URLs.
type Report struct {
	Title            string          `json:"title"`
	ExecutiveSummary string          `json:"executive_summary"`
	Sections         []ReportSection `json:"sections"`
	References       []Source        `json:"references"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// State is the single mutable record a research run flows through. It is
// owned by the workflow; stages receive it (or slices of it) as input and
// return patches the workflow applies. Findings are rebuilt wholesale on
// every executor pass so retries never accumulate stale duplicates.
type State struct {
	RunID        string        `json:"run_id"`
	Query        string        `json:"query"`
	Plan         *Plan         `json:"plan,omitempty"`
	Findings     []Finding     `json:"findings,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
	Report       *Report       `json:"report,omitempty"`
	CurrentStep  Step          `json:"current_step"`
	Iteration    int           `json:"iteration"`
	Errors       []string      `json:"errors,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewState creates the initial state for a run.
func NewState(runID, query string, now time.Time) *State {
	return &State{
		RunID:       runID,
		Query:       query,
		CurrentStep: StepPending,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidSourceURL reports whether raw is a well-formed absolute URI. Sources
// failing this check are dropped before they reach findings.
func ValidSourceURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// FilterSources drops sources whose URL is not a well-formed absolute URI.
func FilterSources(in []Source) []Source {
	out := make([]Source, 0, len(in))
	for _, s := range in {
		if ValidSourceURL(s.URL) {
			out = append(out, s)
		}
	}
	return out
}

// TruncateText cuts s to at most max bytes without splitting a UTF-8 rune,
// so truncated evidence snippets stay valid text.
func TruncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// SubtaskByID returns the plan subtask with the given id.
func (p *Plan) SubtaskByID(id int) (Subtask, bool) {
	for _, st := range p.Subtasks {
		if st.ID == id {
			return st, true
		}
	}
	return Subtask{}, false
}
