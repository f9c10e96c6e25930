package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task — единица работы, отправляемая в worker pool.
//
// Task создаётся оркестратором для текущего шага плана и живёт
// до терминального статуса. При истечении лизы task возвращается
// в очередь с attempt+1 — это единственный механизм восстановления
// после смерти воркера.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// StepID — ID шага из плана run.
	StepID string `json:"step_id"`

	// IdempotencyKey — ключ идемпотентности вида {run_id}:{step_id}:{attempt}.
	// Исполнитель обязан трактовать повторную доставку ключа как no-op
	// после первого успеха.
	IdempotencyKey string `json:"idempotency_key"`

	// Class — класс очереди.
	Class TaskClass `json:"class"`

	// Type — тип задачи для реестра executor'ов.
	Type string `json:"type,omitempty"`

	// Payload — входные данные (чёрный ящик для оркестратора).
	Payload map[string]any `json:"payload,omitempty"`

	// ModelTier — модельный тир, выбранный планировщиком.
	ModelTier string `json:"model_tier,omitempty"`

	// Attempt — номер попытки (начиная с 1).
	// Увеличивается при requeue после истечения лизы.
	Attempt int `json:"attempt"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// Outputs — результаты выполнения (заполняет воркер).
	Outputs map[string]any `json:"outputs,omitempty"`

	// FailureClass — класс отказа при Status=FAILED.
	FailureClass FailureClass `json:"failure_class,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// EnqueuedAt — время постановки в очередь (FIFO-порядок).
	EnqueuedAt time.Time `json:"enqueued_at"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`
}

// NewTask создаёт task для шага плана со статусом QUEUED.
func NewTask(runID uuid.UUID, step StepDef, attempt int) *Task {
	now := time.Now()
	return &Task{
		ID:             uuid.New(),
		RunID:          runID,
		StepID:         step.ID,
		IdempotencyKey: IdempotencyKey(runID, step.ID, attempt),
		Class:          step.Class,
		Type:           step.Type,
		Payload:        step.Payload,
		Attempt:        attempt,
		Status:         TaskStatusQueued,
		CreatedAt:      now,
	}
}

// IdempotencyKey строит глобально уникальный ключ попытки.
func IdempotencyKey(runID uuid.UUID, stepID string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", runID, stepID, attempt)
}

// IsFinished возвращает true, если task завершён.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// MarkLeased переводит task в статус LEASED.
func (t *Task) MarkLeased() {
	t.Status = TaskStatusLeased
}

// MarkSucceeded переводит task в статус SUCCEEDED с результатами.
func (t *Task) MarkSucceeded(outputs map[string]any) {
	t.Status = TaskStatusSucceeded
	t.Outputs = outputs
}

// MarkFailed переводит task в статус FAILED с классом отказа.
func (t *Task) MarkFailed(class FailureClass, errMsg string) {
	t.Status = TaskStatusFailed
	t.FailureClass = class
	t.Error = errMsg
}

// MarkAbandoned снимает task без выполнения.
func (t *Task) MarkAbandoned(reason string) {
	t.Status = TaskStatusAbandoned
	t.Error = reason
}

// Requeue подготавливает task к возврату в очередь после истечения лизы.
// Attempt увеличивается ровно один раз; ключ идемпотентности сохраняется,
// чтобы повторная доставка того же task дедуплицировалась на executor'е.
func (t *Task) Requeue() {
	t.Attempt++
	t.Status = TaskStatusQueued
	t.Outputs = nil
	t.Error = ""
	t.FailureClass = ""
}

// WorkerInfo — зарегистрированный воркер.
//
// Запись эфемерна: воркер, не присылавший heartbeat дольше таймаута,
// удаляется из пула.
type WorkerInfo struct {
	// WorkerID — идентификатор воркера.
	WorkerID string `json:"worker_id"`

	// Capabilities — классы задач, которые воркер умеет выполнять.
	Capabilities []TaskClass `json:"capabilities"`

	// LastHeartbeat — время последнего heartbeat.
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// CurrentTaskID — task под лизой воркера (uuid.Nil, если свободен).
	CurrentTaskID uuid.UUID `json:"current_task_id,omitempty"`
}

// CanServe проверяет, обслуживает ли воркер данный класс.
// Пустой список capabilities означает «все классы».
func (w *WorkerInfo) CanServe(class TaskClass) bool {
	if len(w.Capabilities) == 0 {
		return true
	}
	for _, c := range w.Capabilities {
		if c == class {
			return true
		}
	}
	return false
}

// TaskLease — временное эксклюзивное право воркера на task.
//
// Task с истёкшей лизой атомарно возвращается в голову своей очереди
// (requeue-on-death инвариант).
type TaskLease struct {
	// TaskID — task под лизой.
	TaskID uuid.UUID `json:"task_id"`

	// WorkerID — владелец лизы.
	WorkerID string `json:"worker_id"`

	// AcquiredAt — время выдачи лизы.
	AcquiredAt time.Time `json:"acquired_at"`

	// TTL — срок действия лизы; продлевается heartbeat'ом.
	TTL time.Duration `json:"ttl"`
}

// ExpiresAt возвращает момент истечения лизы.
func (l *TaskLease) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// Expired проверяет, истекла ли лиза на момент now.
func (l *TaskLease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt())
}

// Extend продлевает лизу от момента now.
func (l *TaskLease) Extend(now time.Time) {
	l.AcquiredAt = now
}
