package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики системы. Регистрируются в default registry
// и экспортируются через promhttp на /metrics.
var (
	// QueueDepth — текущая глубина очереди по классу задач.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "forgeline",
		Subsystem: "pool",
		Name:      "queue_depth",
		Help:      "Current depth of the task queue per class.",
	}, []string{"class"})

	// TasksLeased — выданные лизы по классу задач.
	TasksLeased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "pool",
		Name:      "tasks_leased_total",
		Help:      "Total number of task leases granted per class.",
	}, []string{"class"})

	// LeasesReaped — лизы, возвращённые в очередь по истечении TTL.
	LeasesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "pool",
		Name:      "leases_reaped_total",
		Help:      "Total number of expired leases requeued by the reaper.",
	})

	// TasksCompleted — завершённые tasks по итоговому статусу.
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "pool",
		Name:      "tasks_completed_total",
		Help:      "Total number of finalized tasks per terminal status.",
	}, []string{"status"})

	// RunsFinished — runs по терминальному статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "orchestrator",
		Name:      "runs_finished_total",
		Help:      "Total number of runs per terminal status.",
	}, []string{"status"})

	// RepairAttempts — записи audit trail починки по фазе и исходу.
	RepairAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "orchestrator",
		Name:      "repair_attempts_total",
		Help:      "Total number of repair attempts per phase and outcome.",
	}, []string{"phase", "outcome"})

	// BreakerStateGauge — состояние breaker'а по классу отказа
	// (0=closed, 1=open, 2=half_open).
	BreakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "forgeline",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current circuit breaker state per failure class (0=closed, 1=open, 2=half_open).",
	}, []string{"failure_class"})

	// ChaosInjections — инъецированные синтетические отказы по типу.
	ChaosInjections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "chaos",
		Name:      "injections_total",
		Help:      "Total number of injected synthetic faults per fault type.",
	}, []string{"type"})

	// ChaosRecoveries — runs, завершившиеся COMPLETED несмотря на инъекцию.
	ChaosRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "chaos",
		Name:      "recoveries_total",
		Help:      "Total number of runs that completed despite injected faults.",
	})

	// SchedulerDecisions — решения планировщика по очереди и тиру.
	SchedulerDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeline",
		Subsystem: "sched",
		Name:      "decisions_total",
		Help:      "Total number of scheduling decisions per queue class and model tier.",
	}, []string{"class", "tier"})
)

// BreakerStateValue переводит имя состояния в числовое значение gauge.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
