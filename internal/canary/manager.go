// Package canary делит runs между baseline и canary версиями
// оркестратора и сравнивает их метрики.
//
// Назначение варианта детерминировано (стабильный хэш run id),
// поэтому повторное назначение воспроизводимо. Сравнение —
// только рекомендация: автоматических действий не выполняется.
package canary

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Default configuration values.
const (
	defaultCanaryPercent       = 10
	defaultSuccessTolerance    = 0.02
	defaultRegressionTolerance = 1.2
	defaultMinSamples          = 5
)

// Config — конфигурация Manager.
type Config struct {
	// CanaryPercent — доля runs, попадающих в canary [0..100]
	// (default: 10).
	CanaryPercent int

	// SuccessTolerance — допустимое отставание canary по success
	// rate от baseline (default: 0.02).
	SuccessTolerance float64

	// RegressionTolerance — множитель допустимой регрессии
	// стоимости/задержки canary (default: 1.2).
	RegressionTolerance float64

	// MinSamples — минимум сэмплов на вариант для решения
	// (default: 5).
	MinSamples int

	// Logger
	Logger *slog.Logger
}

// Manager — менеджер canary-раскатки.
type Manager struct {
	percent       int
	successTol    float64
	regressionTol float64
	minSamples    int
	logger        *slog.Logger

	mu      sync.Mutex
	samples []domain.CanarySample
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	percent := cfg.CanaryPercent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if cfg.CanaryPercent == 0 {
		percent = defaultCanaryPercent
	}
	successTol := cfg.SuccessTolerance
	if successTol <= 0 {
		successTol = defaultSuccessTolerance
	}
	regressionTol := cfg.RegressionTolerance
	if regressionTol <= 1 {
		regressionTol = defaultRegressionTolerance
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = defaultMinSamples
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		percent:       percent,
		successTol:    successTol,
		regressionTol: regressionTol,
		minSamples:    minSamples,
		logger:        logger,
	}
}

// AssignVariant детерминированно назначает run вариант.
// Стабильный FNV-хэш run id по модулю 100 сравнивается с процентом —
// повторные вызовы для того же run id всегда дают тот же вариант.
func (m *Manager) AssignVariant(runID uuid.UUID) domain.CanaryVariant {
	h := fnv.New32a()
	h.Write(runID[:])
	if int(h.Sum32()%100) < m.percent {
		return domain.VariantCanary
	}
	return domain.VariantBaseline
}

// Record сохраняет сэмпл завершённого run.
func (m *Manager) Record(sample domain.CanarySample) {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
}

// Evaluate агрегирует сэмплы окна и выдаёт рекомендацию.
//
// promote требует: success rate canary ≥ baseline − tolerance,
// И стоимость/задержка canary не хуже baseline × multiplier.
func (m *Manager) Evaluate(window time.Duration) domain.CanaryComparison {
	cutoff := time.Now().Add(-window)

	m.mu.Lock()
	var windowed []domain.CanarySample
	for _, s := range m.samples {
		if s.RecordedAt.After(cutoff) {
			windowed = append(windowed, s)
		}
	}
	m.mu.Unlock()

	cmp := domain.CanaryComparison{
		Baseline:    aggregate(domain.VariantBaseline, windowed),
		Canary:      aggregate(domain.VariantCanary, windowed),
		Window:      window,
		EvaluatedAt: time.Now(),
	}

	cmp.Recommendation, cmp.Reason = m.decide(cmp.Baseline, cmp.Canary)

	m.logger.Info("canary evaluation",
		"recommendation", cmp.Recommendation,
		"reason", cmp.Reason,
		"baseline_samples", cmp.Baseline.Samples,
		"canary_samples", cmp.Canary.Samples,
	)
	return cmp
}

// decide применяет пороги к агрегатам.
func (m *Manager) decide(baseline, canary domain.CanaryMetrics) (domain.CanaryRecommendation, string) {
	if baseline.Samples < m.minSamples || canary.Samples < m.minSamples {
		return domain.RecommendInsufficient, "not enough samples per variant"
	}

	if canary.SuccessRate < baseline.SuccessRate-m.successTol {
		return domain.RecommendRollback, "canary success rate regressed"
	}
	if baseline.MeanCost > 0 && canary.MeanCost > baseline.MeanCost*m.regressionTol {
		return domain.RecommendRollback, "canary cost regressed"
	}
	if baseline.MeanLatency > 0 &&
		float64(canary.MeanLatency) > float64(baseline.MeanLatency)*m.regressionTol {
		return domain.RecommendRollback, "canary latency regressed"
	}

	return domain.RecommendPromote, ""
}

// aggregate собирает CanaryMetrics одного варианта.
func aggregate(variant domain.CanaryVariant, samples []domain.CanarySample) domain.CanaryMetrics {
	metrics := domain.CanaryMetrics{Variant: variant}

	var succeeded int
	var totalCost float64
	var totalLatency time.Duration
	for _, s := range samples {
		if s.Variant != variant {
			continue
		}
		metrics.Samples++
		if s.Success {
			succeeded++
		}
		totalCost += s.Cost
		totalLatency += s.Latency
	}

	if metrics.Samples > 0 {
		metrics.SuccessRate = float64(succeeded) / float64(metrics.Samples)
		metrics.MeanCost = totalCost / float64(metrics.Samples)
		metrics.MeanLatency = totalLatency / time.Duration(metrics.Samples)
	}
	return metrics
}
