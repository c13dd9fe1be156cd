// Package activities implements the research stages invoked from the
// orchestration workflow. Each activity is stateless with respect to the
// run: it receives everything it needs in its input and returns a patch
// the workflow applies to the run state.
package activities

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/db"
	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
	"github.com/meridianlabs-ai/deepresearch/internal/state"
	"github.com/meridianlabs-ai/deepresearch/internal/streaming"
)

// Activity names used for registration and workflow-side invocation.
const (
	ActivityGeneratePlan     = "GeneratePlan"
	ActivityExecuteSubtask   = "ExecuteSubtask"
	ActivityVerifyFindings   = "VerifyFindings"
	ActivitySynthesizeReport = "SynthesizeReport"
	ActivityPersistRun       = "PersistRun"
	ActivitySaveRunState     = "SaveRunState"
	ActivityPublishEvent     = "PublishEvent"
)

// ToolGateway is the dispatch surface the executor researches through.
// Satisfied by *tools.Gateway.
type ToolGateway interface {
	Invoke(ctx context.Context, toolID, query string) ([]research.Source, error)
	Registered(id string) bool
}

// Activities bundles the dependencies the research stages need. A nil
// database client disables durable persistence without failing runs.
type Activities struct {
	llm     llm.Client
	gateway ToolGateway
	states  *state.Store
	dbc     *db.Client
	stream  *streaming.Manager
	logger  *zap.Logger
}

// NewActivities wires the stage implementations to their dependencies.
func NewActivities(
	llmClient llm.Client,
	gateway ToolGateway,
	states *state.Store,
	dbc *db.Client,
	stream *streaming.Manager,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		llm:     llmClient,
		gateway: gateway,
		states:  states,
		dbc:     dbc,
		stream:  stream,
		logger:  logger,
	}
}

// schemaErrDetail extracts the detail of a schema validation failure, the
// signal that one repair re-prompt is worth attempting.
func schemaErrDetail(err error) (string, bool) {
	var se *research.SchemaError
	if errors.As(err, &se) {
		return se.Detail, true
	}
	return "", false
}
