package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChaosFaultType — тип синтетического отказа.
type ChaosFaultType string

const (
	// ChaosFaultTransient — имитация сетевой ошибки/таймаута.
	ChaosFaultTransient ChaosFaultType = "transient"

	// ChaosFaultCorrectable — имитация логически некорректного task.
	ChaosFaultCorrectable ChaosFaultType = "correctable"

	// ChaosFaultWorkerDeath — имитация смерти воркера: task берётся
	// под лизу, но результат не приходит до истечения TTL.
	ChaosFaultWorkerDeath ChaosFaultType = "worker_death"
)

// FailureClass возвращает класс отказа, который производит данный fault.
func (t ChaosFaultType) FailureClass() FailureClass {
	switch t {
	case ChaosFaultCorrectable:
		return FailureCorrectable
	default:
		return FailureTransient
	}
}

// ChaosEvent — запись об инъекции синтетического отказа.
type ChaosEvent struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"id"`

	// Type — тип инъецированного отказа.
	Type ChaosFaultType `json:"type"`

	// RunID — run, в который попала инъекция.
	RunID uuid.UUID `json:"run_id"`

	// TargetTaskID — task, помеченный на синтетический отказ.
	TargetTaskID uuid.UUID `json:"target_task_id"`

	// InjectedAt — время инъекции.
	InjectedAt time.Time `json:"injected_at"`

	// ExpiresAt — окно, в пределах которого засчитывается восстановление.
	ExpiresAt time.Time `json:"expires_at"`

	// Recovered — достиг ли run COMPLETED несмотря на инъекцию.
	Recovered bool `json:"recovered"`
}

// Expired проверяет, истекло ли окно восстановления.
func (e *ChaosEvent) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
