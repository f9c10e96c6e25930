package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepDef — один шаг плана сборки.
//
// Payload — чёрный ящик: его содержимое производит внешний
// planner/generator, оркестратор только передаёт его воркеру.
type StepDef struct {
	// ID — идентификатор шага внутри плана (уникален в рамках run).
	ID string `json:"id"`

	// Class — класс задачи, определяющий очередь worker pool.
	Class TaskClass `json:"class"`

	// Type — тип задачи для реестра executor'ов (например "llm.call").
	Type string `json:"type,omitempty"`

	// Payload — входные данные шага.
	Payload map[string]any `json:"payload,omitempty"`

	// Undoable — есть ли у шага зарегистрированная обратная операция.
	// Шаги без неё пропускаются при rollback.
	Undoable bool `json:"undoable,omitempty"`
}

// Run — одно сквозное выполнение плана сборки.
//
// Run создаётся когда:
// - Пользователь отправляет план через API/CLI
// - Внешний planner порождает план по цели
//
// Run принадлежит ровно одному экземпляру оркестратора; все мутации
// статуса и бюджета идут только через его control loop.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Plan — упорядоченный список шагов. Шаги выполняются строго
	// по порядку; replan заменяет хвост начиная с упавшего шага.
	Plan []StepDef `json:"plan"`

	// Cursor — индекс текущего шага в Plan.
	Cursor int `json:"cursor"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Budget — лимиты стоимости/попыток/времени run.
	Budget Budget `json:"budget"`

	// SLO — требование SLA, влияющее на решения планировщика.
	SLO SLOTier `json:"slo"`

	// Variant — baseline или canary (назначается детерминированно).
	Variant CanaryVariant `json:"variant,omitempty"`

	// Replanned — был ли уже использован replan (разрешён один на run).
	Replanned bool `json:"replanned,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — причина завершения для FAILED/ROLLED_BACK.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run со статусом PENDING.
func NewRun(plan []StepDef, budget Budget, slo SLOTier) *Run {
	if slo == "" {
		slo = SLONormal
	}
	return &Run{
		ID:        uuid.New(),
		Plan:      plan,
		Status:    RunStatusPending,
		Budget:    budget,
		SLO:       slo,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// CurrentStep возвращает текущий шаг плана или nil, если план исчерпан.
func (r *Run) CurrentStep() *StepDef {
	if r.Cursor < 0 || r.Cursor >= len(r.Plan) {
		return nil
	}
	return &r.Plan[r.Cursor]
}

// CompletedSteps возвращает шаги, завершённые до текущего курсора.
func (r *Run) CompletedSteps() []StepDef {
	if r.Cursor <= 0 {
		return nil
	}
	end := r.Cursor
	if end > len(r.Plan) {
		end = len(r.Plan)
	}
	return r.Plan[:end]
}

// Advance сдвигает курсор на следующий шаг.
func (r *Run) Advance() {
	r.Cursor++
}

// SplicePlan заменяет текущий шаг и всё после него новым под-планом.
// Используется фазой replan.
func (r *Run) SplicePlan(subplan []StepDef) {
	r.Plan = append(r.Plan[:r.Cursor:r.Cursor], subplan...)
	r.Replanned = true
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	if r.StartedAt == nil {
		now := time.Now()
		r.StartedAt = &now
	}
	r.Status = RunStatusRunning
}

// MarkRepairing переводит run в статус REPAIRING.
func (r *Run) MarkRepairing() {
	r.Status = RunStatusRepairing
}

// MarkCompleted переводит run в статус COMPLETED.
func (r *Run) MarkCompleted() {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.FinishedAt = &now
}

// MarkRolledBack переводит run в статус ROLLED_BACK с причиной.
func (r *Run) MarkRolledBack(reason string) {
	now := time.Now()
	r.Status = RunStatusRolledBack
	r.FinishedAt = &now
	r.Error = reason
}

// MarkFailed переводит run в статус FAILED с причиной.
func (r *Run) MarkFailed(reason string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = reason
}
