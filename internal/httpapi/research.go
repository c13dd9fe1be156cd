// Package httpapi exposes the consumer surface: submit a research query,
// poll status, fetch the report, and stream run events over SSE or
// WebSocket.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/config"
	"github.com/meridianlabs-ai/deepresearch/internal/db"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
	"github.com/meridianlabs-ai/deepresearch/internal/report"
	"github.com/meridianlabs-ai/deepresearch/internal/research"
	"github.com/meridianlabs-ai/deepresearch/internal/state"
	"github.com/meridianlabs-ai/deepresearch/internal/workflows"
)

const maxQueryLength = 2000

// WorkflowClient is the slice of the Temporal client the API needs.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
}

// ResearchHandler serves the run lifecycle endpoints.
type ResearchHandler struct {
	temporal  WorkflowClient
	states    *state.Store
	dbc       *db.Client
	tuning    func() config.ResearchConfig
	taskQueue string
	logger    *zap.Logger
}

// NewResearchHandler constructs the handler. tuning is read at submission
// so config hot-reloads apply to new runs only; dbc may be nil.
func NewResearchHandler(
	temporal WorkflowClient,
	states *state.Store,
	dbc *db.Client,
	tuning func() config.ResearchConfig,
	taskQueue string,
	logger *zap.Logger,
) *ResearchHandler {
	return &ResearchHandler{
		temporal:  temporal,
		states:    states,
		dbc:       dbc,
		tuning:    tuning,
		taskQueue: taskQueue,
		logger:    logger,
	}
}

// RegisterRoutes registers the run endpoints on the mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/research", h.handleCollection)
	mux.HandleFunc("/api/v1/research/", h.handleRun)
}

func (h *ResearchHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

// handleRun routes /api/v1/research/{id}[/report|/cancel].
func (h *ResearchHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/research/")
	parts := strings.SplitN(rest, "/", 2)
	runID := parts[0]
	if runID == "" {
		http.Error(w, `{"error":"run id required"}`, http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleStatus(w, r, runID)
	case action == "report" && r.Method == http.MethodGet:
		h.handleReport(w, r, runID)
	case action == "cancel" && r.Method == http.MethodPost:
		h.handleCancel(w, r, runID)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

type submitRequest struct {
	Query string `json:"query"`
}

type submitResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

func (h *ResearchHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		http.Error(w, `{"error":"query required"}`, http.StatusBadRequest)
		return
	}
	if len(query) > maxQueryLength {
		http.Error(w, `{"error":"query too long"}`, http.StatusBadRequest)
		return
	}

	cfg := h.tuning()
	runID := uuid.New().String()
	input := workflows.ResearchInput{
		RunID: runID,
		Query: query,
		Tuning: workflows.Tuning{
			MaxVerificationRetries: cfg.MaxVerificationRetries,
			ConfidenceThreshold:    cfg.ConfidenceThreshold,
		},
	}

	_, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        "research-" + runID,
		TaskQueue: h.taskQueue,
	}, workflows.WorkflowResearch, input)
	if err != nil {
		h.logger.Error("Workflow start failed", zap.Error(err))
		http.Error(w, `{"error":"failed to start research"}`, http.StatusInternalServerError)
		return
	}

	metrics.RunsStarted.Inc()
	h.logger.Info("Research run submitted",
		zap.String("run_id", runID),
		zap.String("query", query),
	)
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: runID, Status: string(research.StepPending)})
}

func (h *ResearchHandler) handleStatus(w http.ResponseWriter, r *http.Request, runID string) {
	st, err := h.states.Load(r.Context(), runID)
	if errors.Is(err, state.ErrNotFound) {
		http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Status read failed", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, `{"error":"status unavailable"}`, http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"run_id":       st.RunID,
		"query":        st.Query,
		"current_step": st.CurrentStep,
		"iteration":    st.Iteration,
		"started_at":   st.StartedAt,
		"updated_at":   st.UpdatedAt,
	}
	if st.Plan != nil {
		resp["subtasks"] = len(st.Plan.Subtasks)
		resp["complexity"] = st.Plan.Complexity
	}
	if st.Verification != nil {
		resp["confidence"] = st.Verification.Confidence
	}
	if len(st.Errors) > 0 {
		resp["errors"] = st.Errors
	}
	resp["has_report"] = st.Report != nil
	writeJSON(w, http.StatusOK, resp)
}

// handleReport serves the finished report, preferring the live snapshot
// and falling back to the database once the snapshot has expired. With
// ?format=text the rendered plain-text document is returned.
func (h *ResearchHandler) handleReport(w http.ResponseWriter, r *http.Request, runID string) {
	st, err := h.states.Load(r.Context(), runID)
	if err == nil && st.Report != nil {
		h.writeReport(w, r, st.Report)
		return
	}
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		h.logger.Error("Report read failed", zap.String("run_id", runID), zap.Error(err))
	}

	if h.dbc != nil {
		rec, dbErr := h.dbc.GetReport(r.Context(), runID)
		if dbErr == nil {
			if r.URL.Query().Get("format") == "text" {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				_, _ = w.Write([]byte(rec.Body))
				return
			}
			var rep research.Report
			if jsonErr := json.Unmarshal(rec.ReportJSON, &rep); jsonErr == nil {
				writeJSON(w, http.StatusOK, rep)
				return
			}
		} else if !errors.Is(dbErr, sql.ErrNoRows) {
			h.logger.Error("Report lookup failed", zap.String("run_id", runID), zap.Error(dbErr))
		}
	}

	if err == nil && st.Report == nil {
		// Run exists but has not produced a report (still running, or ended
		// in error).
		http.Error(w, `{"error":"report not ready"}`, http.StatusConflict)
		return
	}
	http.Error(w, `{"error":"report not found"}`, http.StatusNotFound)
}

func (h *ResearchHandler) writeReport(w http.ResponseWriter, r *http.Request, rep *research.Report) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(report.Render(rep)))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *ResearchHandler) handleCancel(w http.ResponseWriter, r *http.Request, runID string) {
	if err := h.temporal.CancelWorkflow(r.Context(), "research-"+runID, ""); err != nil {
		h.logger.Warn("Cancel failed", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, `{"error":"cancel failed"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancelling"})
}

func (h *ResearchHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	ids, err := h.states.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Run listing failed", zap.Error(err))
		http.Error(w, `{"error":"listing unavailable"}`, http.StatusInternalServerError)
		return
	}

	runs := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		st, err := h.states.Load(r.Context(), id)
		if err != nil {
			continue
		}
		runs = append(runs, map[string]interface{}{
			"run_id":       st.RunID,
			"query":        st.Query,
			"current_step": st.CurrentStep,
			"started_at":   st.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
