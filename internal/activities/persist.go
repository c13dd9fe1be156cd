package activities

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/db"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/report"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// SaveRunState snapshots the run into Redis for live status reads.
func (a *Activities) SaveRunState(ctx context.Context, in SaveStateInput) error {
	if a.states == nil {
		return nil
	}
	return a.states.Save(ctx, &in.State)
}

// PersistRun enqueues the durable run row, and the report row once one
// exists. Persistence is best-effort: the database client is optional and
// its write queue absorbs slowness.
func (a *Activities) PersistRun(ctx context.Context, in PersistInput) error {
	st := in.State
	if st.CurrentStep == research.StepComplete || st.CurrentStep == research.StepError {
		metrics.RunsCompleted.WithLabelValues(string(st.CurrentStep)).Inc()
		metrics.RunDuration.Observe(st.UpdatedAt.Sub(st.StartedAt).Seconds())
		metrics.RetryDepth.Observe(float64(st.Iteration))
	}
	if a.dbc == nil {
		return nil
	}

	run := &db.RunRecord{
		RunID:      st.RunID,
		Query:      st.Query,
		Status:     string(st.CurrentStep),
		Iteration:  st.Iteration,
		ErrorCount: len(st.Errors),
		StartedAt:  st.StartedAt,
		UpdatedAt:  st.UpdatedAt,
	}
	if st.Verification != nil {
		run.Confidence = sql.NullInt64{Int64: int64(st.Verification.Confidence), Valid: true}
	}
	if st.CurrentStep == research.StepComplete || st.CurrentStep == research.StepError {
		run.CompletedAt = sql.NullTime{Time: st.UpdatedAt, Valid: true}
	}
	a.dbc.EnqueueRunUpsert(run)

	if st.Report != nil {
		reportJSON, err := json.Marshal(st.Report)
		if err != nil {
			a.logger.Error("Report serialization failed",
				zap.String("run_id", st.RunID),
				zap.Error(err),
			)
			return nil
		}
		a.dbc.EnqueueReport(&db.ReportRecord{
			RunID:       st.RunID,
			Title:       st.Report.Title,
			Body:        report.Render(st.Report),
			ReportJSON:  reportJSON,
			GeneratedAt: st.Report.GeneratedAt,
		})
	}
	return nil
}

// PublishEvent emits one event on the run's stream.
func (a *Activities) PublishEvent(ctx context.Context, in PublishEventInput) error {
	if a.stream == nil {
		return nil
	}
	evt := in.Event
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	a.stream.Publish(in.RunID, evt)
	return nil
}
