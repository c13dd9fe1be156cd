// Package registry binds the workflow and activities to a Temporal worker
// under their stable string names, keeping registration in one place so
// worker setup and tests cannot drift.
package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/meridianlabs-ai/deepresearch/internal/activities"
	"github.com/meridianlabs-ai/deepresearch/internal/workflows"
)

// Register attaches the research workflow and every activity to the worker.
func Register(w worker.Worker, acts *activities.Activities) {
	w.RegisterWorkflowWithOptions(workflows.ResearchWorkflow, workflow.RegisterOptions{
		Name: workflows.WorkflowResearch,
	})

	w.RegisterActivityWithOptions(acts.GeneratePlan, activity.RegisterOptions{Name: activities.ActivityGeneratePlan})
	w.RegisterActivityWithOptions(acts.ExecuteSubtask, activity.RegisterOptions{Name: activities.ActivityExecuteSubtask})
	w.RegisterActivityWithOptions(acts.VerifyFindings, activity.RegisterOptions{Name: activities.ActivityVerifyFindings})
	w.RegisterActivityWithOptions(acts.SynthesizeReport, activity.RegisterOptions{Name: activities.ActivitySynthesizeReport})
	w.RegisterActivityWithOptions(acts.PersistRun, activity.RegisterOptions{Name: activities.ActivityPersistRun})
	w.RegisterActivityWithOptions(acts.SaveRunState, activity.RegisterOptions{Name: activities.ActivitySaveRunState})
	w.RegisterActivityWithOptions(acts.PublishEvent, activity.RegisterOptions{Name: activities.ActivityPublishEvent})
}
