package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyActive — run уже обрабатывается.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunFinished — run уже в терминальном статусе.
	ErrRunFinished = errors.New("run already finished")

	// ErrEmptyPlan — план run пуст.
	ErrEmptyPlan = errors.New("plan is empty")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
