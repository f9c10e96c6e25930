package domain

import (
	"time"

	"github.com/google/uuid"
)

// CanarySample — метрики одного завершённого run для сравнения вариантов.
type CanarySample struct {
	// RunID — завершённый run.
	RunID uuid.UUID `json:"run_id"`

	// Variant — baseline или canary.
	Variant CanaryVariant `json:"variant"`

	// Success — достиг ли run статуса COMPLETED.
	Success bool `json:"success"`

	// Cost — итоговая потраченная стоимость.
	Cost float64 `json:"cost"`

	// Latency — длительность выполнения run.
	Latency time.Duration `json:"latency"`

	// RecordedAt — время записи сэмпла.
	RecordedAt time.Time `json:"recorded_at"`
}

// CanaryMetrics — агрегат сэмплов одного варианта за окно.
type CanaryMetrics struct {
	Variant     CanaryVariant `json:"variant"`
	Samples     int           `json:"samples"`
	SuccessRate float64       `json:"success_rate"`
	MeanCost    float64       `json:"mean_cost"`
	MeanLatency time.Duration `json:"mean_latency"`
}

// CanaryRecommendation — рекомендация по итогам сравнения.
// Автоматических действий не выполняется — вывод только советующий.
type CanaryRecommendation string

const (
	// RecommendPromote — canary не хуже baseline по success rate
	// и не регрессирует по стоимости/задержке.
	RecommendPromote CanaryRecommendation = "promote"

	// RecommendRollback — canary регрессировал.
	RecommendRollback CanaryRecommendation = "rollback"

	// RecommendInsufficient — недостаточно сэмплов для решения.
	RecommendInsufficient CanaryRecommendation = "insufficient_data"
)

// CanaryComparison — итог сравнения baseline и canary за окно.
type CanaryComparison struct {
	Baseline       CanaryMetrics        `json:"baseline"`
	Canary         CanaryMetrics        `json:"canary"`
	Recommendation CanaryRecommendation `json:"recommendation"`
	Reason         string               `json:"reason,omitempty"`
	Window         time.Duration        `json:"window"`
	EvaluatedAt    time.Time            `json:"evaluated_at"`
}
