package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/mkoresh/forgeline/internal/domain"
)

// Run DTOs

// SubmitRunRequest — запрос на запуск плана сборки.
type SubmitRunRequest struct {
	Plan   []StepRequest `json:"plan"`
	Budget BudgetRequest `json:"budget"`
	SLO    string        `json:"slo,omitempty"`
}

// StepRequest — один шаг плана в запросе.
type StepRequest struct {
	ID       string         `json:"id"`
	Class    string         `json:"class"`
	Type     string         `json:"type,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Undoable bool           `json:"undoable,omitempty"`
}

// BudgetRequest — лимиты run в запросе. Нулевые поля — без ограничения.
type BudgetRequest struct {
	MaxCost     float64 `json:"max_cost,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty"`
	MaxTimeSec  int     `json:"max_time_sec,omitempty"`
}

// ToDomain конвертирует запрос в доменные типы.
func (r SubmitRunRequest) ToDomain() ([]domain.StepDef, domain.Budget, domain.SLOTier) {
	plan := make([]domain.StepDef, 0, len(r.Plan))
	for _, s := range r.Plan {
		plan = append(plan, domain.StepDef{
			ID:       s.ID,
			Class:    domain.TaskClass(s.Class),
			Type:     s.Type,
			Payload:  s.Payload,
			Undoable: s.Undoable,
		})
	}
	budget := domain.Budget{
		MaxCost:     r.Budget.MaxCost,
		MaxAttempts: r.Budget.MaxAttempts,
		MaxTime:     time.Duration(r.Budget.MaxTimeSec) * time.Second,
	}
	return plan, budget, domain.SLOTier(r.SLO)
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID            `json:"id"`
	Status     domain.RunStatus     `json:"status"`
	Plan       []domain.StepDef     `json:"plan"`
	Cursor     int                  `json:"cursor"`
	SLO        domain.SLOTier       `json:"slo"`
	Variant    domain.CanaryVariant `json:"variant,omitempty"`
	Replanned  bool                 `json:"replanned,omitempty"`
	Budget     domain.Budget        `json:"budget"`
	Error      string               `json:"error,omitempty"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Status:     r.Status,
		Plan:       r.Plan,
		Cursor:     r.Cursor,
		SLO:        r.SLO,
		Variant:    r.Variant,
		Replanned:  r.Replanned,
		Budget:     r.Budget,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// RepairAttemptResponse — одна запись ремонтного трейла.
type RepairAttemptResponse struct {
	StepID    string               `json:"step_id"`
	Phase     domain.RepairPhase   `json:"phase"`
	Attempt   int                  `json:"attempt"`
	Outcome   domain.RepairOutcome `json:"outcome"`
	Detail    string               `json:"detail,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// RepairAttemptFromDomain конвертирует domain.RepairAttempt в ответ.
func RepairAttemptFromDomain(a domain.RepairAttempt) RepairAttemptResponse {
	return RepairAttemptResponse{
		StepID:    a.StepID,
		Phase:     a.Phase,
		Attempt:   a.Attempt,
		Outcome:   a.Outcome,
		Detail:    a.Detail,
		Timestamp: a.Timestamp,
	}
}

// BreakerResponse — состояние одного breaker'а.
type BreakerResponse struct {
	FailureClass        domain.FailureClass `json:"failure_class"`
	State               domain.BreakerState `json:"state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	OpenedAt            *time.Time          `json:"opened_at,omitempty"`
	CooldownSec         float64             `json:"cooldown_sec"`
}
