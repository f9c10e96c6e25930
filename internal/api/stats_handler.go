package api

import (
	"net/http"
	"time"
)

// QueueStats возвращает глубину очередей и статистику лиз worker pool.
// GET /api/v1/stats/queues
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	Success(w, h.pool.Stats())
}

// BreakerStats возвращает состояние всех circuit breakers.
// GET /api/v1/stats/breakers
func (h *Handler) BreakerStats(w http.ResponseWriter, r *http.Request) {
	snapshots := h.breakers.Snapshots()

	result := make([]BreakerResponse, len(snapshots))
	for i, snap := range snapshots {
		result[i] = BreakerResponse{
			FailureClass:        snap.Class,
			State:               snap.State,
			ConsecutiveFailures: snap.ConsecutiveFailures,
			OpenedAt:            snap.OpenedAt,
			CooldownSec:         snap.Cooldown.Seconds(),
		}
	}

	List(w, result, len(result))
}

// CanarySummary возвращает сравнение baseline и canary за окно.
// GET /api/v1/canary/summary?window=1h
func (h *Handler) CanarySummary(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if windowStr := r.URL.Query().Get("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid window")
			return
		}
		window = parsed
	}

	Success(w, h.canary.Evaluate(window))
}

// ChaosSummary возвращает сводку chaos-инъекций.
// GET /api/v1/chaos/summary
func (h *Handler) ChaosSummary(w http.ResponseWriter, r *http.Request) {
	Success(w, h.chaos.Summary())
}
