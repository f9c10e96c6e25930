package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mkoresh/forgeline/internal/plan"
)

// SubmitRun принимает план сборки и запускает run.
// POST /api/v1/runs
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	steps, budget, slo := req.ToDomain()
	if err := plan.Validate(steps); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := plan.ValidateBudget(budget); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := plan.ValidateSLO(slo); err != nil {
		BadRequest(w, err.Error())
		return
	}

	run, err := h.orch.Submit(r.Context(), steps, budget, slo)
	if HandleRunError(w, h.logger, err, "") {
		return
	}

	Created(w, RunFromDomain(*run))
}

// ListRuns возвращает список runs.
// GET /api/v1/runs?limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.orch.ListRuns(r.Context(), limit)
	if HandleRunError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.orch.GetRun(r.Context(), runID)
	if HandleRunError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// CancelRun отменяет выполняющийся run; завершённые шаги откатываются.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.orch.Cancel(runID); HandleRunError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, map[string]string{"status": "canceling"})
}

// RunTimeline возвращает ремонтный трейл run.
// GET /api/v1/runs/{id}/timeline
func (h *Handler) RunTimeline(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	// Проверяем, что run существует: пустой трейл и неизвестный run
	// в ответе неразличимы.
	if _, err := h.orch.GetRun(r.Context(), runID); HandleRunError(w, h.logger, err, "run not found") {
		return
	}

	attempts, err := h.orch.Timeline(r.Context(), runID)
	if HandleRunError(w, h.logger, err, "run not found") {
		return
	}

	result := make([]RepairAttemptResponse, len(attempts))
	for i, attempt := range attempts {
		result[i] = RepairAttemptFromDomain(attempt)
	}

	List(w, result, len(result))
}
