package domain

import (
	"time"

	"github.com/google/uuid"
)

// RepairOutcome — исход одной фазы починки.
type RepairOutcome string

const (
	// RepairOutcomeSucceeded — фаза сработала, run возвращается к RUNNING.
	RepairOutcomeSucceeded RepairOutcome = "SUCCEEDED"

	// RepairOutcomeFailed — попытка фазы не сработала.
	RepairOutcomeFailed RepairOutcome = "FAILED"

	// RepairOutcomeSkipped — фаза пропущена (например breaker открыт).
	RepairOutcomeSkipped RepairOutcome = "SKIPPED"

	// RepairOutcomeExhausted — лимит фазы исчерпан, эскалация дальше.
	RepairOutcomeExhausted RepairOutcome = "EXHAUSTED"
)

// RepairAttempt — одна запись audit trail починки.
//
// Trail append-only: записи никогда не переписываются, чтобы точный
// путь починки был реконструируем постфактум.
type RepairAttempt struct {
	// RunID — run, который чинился.
	RunID uuid.UUID `json:"run_id"`

	// StepID — шаг, на котором случился отказ.
	StepID string `json:"step_id"`

	// Phase — фаза починки.
	Phase RepairPhase `json:"phase"`

	// Attempt — номер попытки внутри фазы (начиная с 1).
	Attempt int `json:"attempt"`

	// Outcome — исход попытки.
	Outcome RepairOutcome `json:"outcome"`

	// Detail — пояснение (текст ошибки, причина пропуска).
	Detail string `json:"detail,omitempty"`

	// Timestamp — время записи.
	Timestamp time.Time `json:"timestamp"`
}
