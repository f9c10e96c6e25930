package worker

import (
	"context"
	"fmt"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Executor — интерфейс внешнего вызова для одного типа task.
//
// Реализации: HTTPExecutor, TransformExecutor.
//
// Инфраструктурные ошибки (сеть, таймаут) возвращаются через error
// и классифицируются вызывающим как TRANSIENT. Логические отказы
// (сам task некорректен) возвращаются через ExecResult с заполненным
// FailureClass.
type Executor interface {
	Execute(ctx context.Context, task *domain.Task) (*ExecResult, error)
}

// ExecResult — результат выполнения task.
type ExecResult struct {
	// Outputs — выходные данные выполнения.
	Outputs map[string]any

	// FailureClass — класс отказа; пустой при успехе.
	FailureClass domain.FailureClass

	// Error — сообщение о логической ошибке выполнения.
	Error string
}

// Failed возвращает true, если результат — логический отказ.
func (r *ExecResult) Failed() bool {
	return r.Error != "" || r.FailureClass != ""
}

// Registry — реестр executor'ов по типу task.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry создаёт реестр с executor'ами по умолчанию.
//
// Регистрирует: http, transform. Оба обёрнуты в дедупликацию
// по idempotency key: повторная доставка после смерти воркера
// не приводит к повторному внешнему вызову.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[string]Executor)}
	r.Register("http", NewIdempotentExecutor(&HTTPExecutor{}))
	r.Register("transform", NewIdempotentExecutor(&TransformExecutor{}))
	return r
}

// Register добавляет executor для типа task.
func (r *Registry) Register(taskType string, executor Executor) {
	r.executors[taskType] = executor
}

// Get возвращает executor для типа task.
func (r *Registry) Get(taskType string) (Executor, error) {
	executor, ok := r.executors[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return executor, nil
}
