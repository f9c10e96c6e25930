// Package sched реализует cost-aware планировщик: выбор очереди
// и модельного тира под бюджет и SLA конкретного run.
package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/telemetry"
)

// Ошибки планировщика.
var (
	// ErrBudgetExceeded — оценка стоимости не помещается в остаток
	// бюджета run. Для оркестратора это триггер rollback, не retry.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrNoTier — ни один тир не проходит порог качества.
	ErrNoTier = errors.New("no suitable model tier")
)

// Default configuration values.
const (
	defaultSuccessThreshold = 0.8
	defaultPriorSuccessRate = 1.0
	// Вес новой точки в EWMA истории успехов.
	historyAlpha = 0.2
)

// ModelTier — один модельный тир с его стоимостью.
// Тиры упорядочены от дешёвого к дорогому.
type ModelTier struct {
	// Name — имя тира (например "small", "medium", "large").
	Name string

	// CostPerCall — оценка стоимости одного вызова.
	CostPerCall float64
}

// DefaultTiers — тиры по умолчанию.
func DefaultTiers() []ModelTier {
	return []ModelTier{
		{Name: "small", CostPerCall: 0.05},
		{Name: "medium", CostPerCall: 0.25},
		{Name: "large", CostPerCall: 1.00},
	}
}

// Decision — решение планировщика для одного task.
type Decision struct {
	// QueueClass — очередь worker pool.
	QueueClass domain.TaskClass

	// ModelTier — выбранный модельный тир.
	ModelTier string

	// EstimatedCost — оценка стоимости попытки.
	EstimatedCost float64
}

// Scheduler выбирает очередь и тир жадно: самый дешёвый тир,
// чья историческая доля успехов для данного типа задачи
// превышает порог. История ведётся EWMA по наблюдениям.
type Scheduler struct {
	tiers     []ModelTier
	threshold float64
	logger    *slog.Logger

	mu      sync.Mutex
	history map[historyKey]float64
}

type historyKey struct {
	taskType string
	tier     string
}

// Config — конфигурация Scheduler.
type Config struct {
	// Tiers — таблица тиров от дешёвого к дорогому
	// (default: DefaultTiers()).
	Tiers []ModelTier

	// SuccessThreshold — минимальная историческая доля успехов
	// тира для его выбора (default: 0.8).
	SuccessThreshold float64

	// Logger
	Logger *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	threshold := cfg.SuccessThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultSuccessThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		tiers:     tiers,
		threshold: threshold,
		logger:    logger,
		history:   make(map[historyKey]float64),
	}
}

// Select выбирает очередь и тир для task под бюджет и SLA run.
//
// Маппинг SLA → очередь:
//   - fast → HIGH с самым дешёвым тиром, проходящим порог качества
//   - normal → собственный класс задачи, тир по умолчанию
//   - thorough → LOW с самым качественным (дорогим) тиром
//
// Перед возвратом проверяется остаток бюджета: неудача —
// ErrBudgetExceeded, форсирующий rollback run.
func (s *Scheduler) Select(task *domain.Task, budget domain.Budget, slo domain.SLOTier) (Decision, error) {
	var decision Decision

	switch slo {
	case domain.SLOFast:
		decision.QueueClass = domain.TaskClassHigh
		tier, err := s.cheapestAcceptable(task.Type)
		if err != nil {
			return Decision{}, err
		}
		decision.ModelTier = tier.Name
		decision.EstimatedCost = tier.CostPerCall

	case domain.SLOThorough:
		decision.QueueClass = domain.TaskClassLow
		best := s.tiers[len(s.tiers)-1]
		decision.ModelTier = best.Name
		decision.EstimatedCost = best.CostPerCall

	default: // SLONormal
		decision.QueueClass = task.Class
		tier, err := s.cheapestAcceptable(task.Type)
		if err != nil {
			return Decision{}, err
		}
		decision.ModelTier = tier.Name
		decision.EstimatedCost = tier.CostPerCall
	}

	// Эскалация: после неудачных попыток того же task поднимаемся
	// на тир выше (ограничено max_attempts бюджета).
	if task.Attempt > 1 {
		decision.ModelTier = s.escalate(decision.ModelTier, task.Attempt-1)
		decision.EstimatedCost = s.costOf(decision.ModelTier)
	}

	if !budget.CanAfford(decision.EstimatedCost) {
		return Decision{}, fmt.Errorf("%w: spent %.2f + estimated %.2f > max %.2f",
			ErrBudgetExceeded, budget.SpentCost, decision.EstimatedCost, budget.MaxCost)
	}

	telemetry.SchedulerDecisions.WithLabelValues(string(decision.QueueClass), decision.ModelTier).Inc()

	s.logger.Debug("scheduling decision",
		"task_id", task.ID,
		"slo", slo,
		"queue_class", decision.QueueClass,
		"model_tier", decision.ModelTier,
		"estimated_cost", decision.EstimatedCost,
	)
	return decision, nil
}

// RecordOutcome обновляет историю успехов тира для типа задачи.
func (s *Scheduler) RecordOutcome(taskType, tier string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := historyKey{taskType: taskType, tier: tier}
	rate, ok := s.history[key]
	if !ok {
		rate = defaultPriorSuccessRate
	}

	observed := 0.0
	if success {
		observed = 1.0
	}
	s.history[key] = rate*(1-historyAlpha) + observed*historyAlpha
}

// SuccessRate возвращает историческую долю успехов тира для типа задачи.
// Для тира без истории возвращается оптимистичный prior.
func (s *Scheduler) SuccessRate(taskType, tier string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rate, ok := s.history[historyKey{taskType: taskType, tier: tier}]; ok {
		return rate
	}
	return defaultPriorSuccessRate
}

// cheapestAcceptable — жадный выбор: первый (самый дешёвый) тир,
// проходящий порог качества.
func (s *Scheduler) cheapestAcceptable(taskType string) (ModelTier, error) {
	for _, tier := range s.tiers {
		if s.SuccessRate(taskType, tier.Name) >= s.threshold {
			return tier, nil
		}
	}
	// Ни один тир не проходит порог — берём самый качественный.
	if len(s.tiers) > 0 {
		return s.tiers[len(s.tiers)-1], nil
	}
	return ModelTier{}, ErrNoTier
}

// escalate поднимает тир на steps позиций вверх, не выходя за максимум.
func (s *Scheduler) escalate(tier string, steps int) string {
	idx := 0
	for i, t := range s.tiers {
		if t.Name == tier {
			idx = i
			break
		}
	}
	idx += steps
	if idx >= len(s.tiers) {
		idx = len(s.tiers) - 1
	}
	return s.tiers[idx].Name
}

// costOf возвращает стоимость тира по имени.
func (s *Scheduler) costOf(tier string) float64 {
	for _, t := range s.tiers {
		if t.Name == tier {
			return t.CostPerCall
		}
	}
	return 0
}
