package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.SubmitRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))
	mux.Handle("GET /api/v1/runs/{id}/timeline", chain(http.HandlerFunc(h.RunTimeline)))

	// Management surface
	mux.Handle("GET /api/v1/stats/queues", chain(http.HandlerFunc(h.QueueStats)))
	mux.Handle("GET /api/v1/stats/breakers", chain(http.HandlerFunc(h.BreakerStats)))
	mux.Handle("GET /api/v1/canary/summary", chain(http.HandlerFunc(h.CanarySummary)))
	mux.Handle("GET /api/v1/chaos/summary", chain(http.HandlerFunc(h.ChaosSummary)))
}
