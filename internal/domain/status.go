package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING ⇄ REPAIRING → COMPLETED
//	                              ↘ ROLLED_BACK
//	                              ↘ FAILED
//
// Из REPAIRING run обязан попасть ровно в одно из состояний:
// RUNNING (фаза починки сработала), COMPLETED, ROLLED_BACK или FAILED.
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения плана.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusRepairing — текущий шаг упал, идёт многофазная починка.
	RunStatusRepairing RunStatus = "REPAIRING"

	// RunStatusCompleted — все шаги плана успешно завершены.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusRolledBack — эффекты завершённых шагов откачены.
	RunStatusRolledBack RunStatus = "ROLLED_BACK"

	// RunStatusFailed — run завершился с ошибкой без отката.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusRolledBack, RunStatusFailed:
		return true
	default:
		return false
	}
}

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	QUEUED → LEASED → SUCCEEDED
//	                ↘ FAILED
//	                ↘ (лиза истекла) → QUEUED (attempt+1)
//	       ↘ ABANDONED (очередь переполнена retry или run откачен)
//
// Task никогда не переходит из QUEUED в SUCCEEDED напрямую —
// только через LEASED.
type TaskStatus string

const (
	// TaskStatusQueued — task в очереди своего класса, ожидает воркера.
	TaskStatusQueued TaskStatus = "QUEUED"

	// TaskStatusLeased — task взят воркером под лизу с TTL.
	TaskStatusLeased TaskStatus = "LEASED"

	// TaskStatusSucceeded — task успешно выполнен.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — task завершился с ошибкой.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusAbandoned — task снят без выполнения.
	TaskStatusAbandoned TaskStatus = "ABANDONED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusAbandoned:
		return true
	default:
		return false
	}
}

// TaskClass — класс task, определяющий очередь в worker pool.
type TaskClass string

const (
	// TaskClassCPU — вычислительные задачи.
	TaskClassCPU TaskClass = "CPU"

	// TaskClassIO — задачи с файловым/сетевым вводом-выводом.
	TaskClassIO TaskClass = "IO"

	// TaskClassLLM — вызовы внешней модели или инструмента.
	TaskClassLLM TaskClass = "LLM"

	// TaskClassHigh — приоритетная очередь (SLA fast).
	TaskClassHigh TaskClass = "HIGH"

	// TaskClassLow — фоновая очередь (SLA thorough).
	TaskClassLow TaskClass = "LOW"
)

// TaskClasses — все классы очередей в фиксированном порядке.
var TaskClasses = []TaskClass{
	TaskClassHigh,
	TaskClassCPU,
	TaskClassIO,
	TaskClassLLM,
	TaskClassLow,
}

// Valid проверяет, что класс известен системе.
func (c TaskClass) Valid() bool {
	for _, known := range TaskClasses {
		if c == known {
			return true
		}
	}
	return false
}

// SLOTier — требование SLA для run, влияющее на выбор очереди
// и модельного тира планировщиком.
type SLOTier string

const (
	// SLOFast — минимальная задержка: приоритетная очередь,
	// самый дешёвый тир, проходящий порог качества.
	SLOFast SLOTier = "fast"

	// SLONormal — очередь по классу задачи, тир по умолчанию.
	SLONormal SLOTier = "normal"

	// SLOThorough — фоновая очередь, самый качественный тир.
	SLOThorough SLOTier = "thorough"
)

// FailureClass — класс отказа, определяющий фазу починки
// и circuit breaker, через который гейтится вызов.
type FailureClass string

const (
	// FailureTransient — сетевые ошибки и таймауты; чинится retry.
	FailureTransient FailureClass = "TRANSIENT"

	// FailureCorrectable — task логически некорректен; чинится patch.
	FailureCorrectable FailureClass = "CORRECTABLE"

	// FailureStructural — план невалиден; чинится replan.
	FailureStructural FailureClass = "STRUCTURALLY_BLOCKED"

	// FailureBudgetExceeded — бюджет run исчерпан; фатально, сразу rollback.
	FailureBudgetExceeded FailureClass = "BUDGET_EXCEEDED"

	// FailureSandboxViolation — patch нарушил песочницу; фатально, без отката.
	FailureSandboxViolation FailureClass = "SANDBOX_VIOLATION"

	// FailureCircuitOpen — breaker открыт, вызов не выполнялся.
	// Трактуется как transient, но не расходует слот retry.
	FailureCircuitOpen FailureClass = "CIRCUIT_OPEN"
)

// BreakerState — состояние circuit breaker.
type BreakerState string

const (
	// BreakerClosed — вызовы проходят, отказы считаются.
	BreakerClosed BreakerState = "CLOSED"

	// BreakerOpen — вызовы мгновенно отклоняются до истечения cooldown.
	BreakerOpen BreakerState = "OPEN"

	// BreakerHalfOpen — разрешён ровно один пробный вызов.
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// RepairPhase — фаза многофазной починки упавшего шага.
// Фазы применяются строго по порядку: retry → patch → replan → rollback.
type RepairPhase string

const (
	// PhaseRetry — повторная отправка идентичного task с backoff.
	PhaseRetry RepairPhase = "RETRY"

	// PhasePatch — ограниченная правка payload внешним коллаборатором.
	PhasePatch RepairPhase = "PATCH"

	// PhaseReplan — запрос нового под-плана для оставшихся шагов.
	PhaseReplan RepairPhase = "REPLAN"

	// PhaseRollback — откат эффектов завершённых шагов.
	PhaseRollback RepairPhase = "ROLLBACK"
)

// CanaryVariant — вариант оркестратора, которому назначен run.
type CanaryVariant string

const (
	// VariantBaseline — стабильная версия оркестратора.
	VariantBaseline CanaryVariant = "baseline"

	// VariantCanary — проверяемая версия оркестратора.
	VariantCanary CanaryVariant = "canary"
)
