package worker

import (
	"context"
	"sync"

	"github.com/mkoresh/forgeline/internal/domain"
)

// IdempotentExecutor дедуплицирует выполнение по task.IdempotencyKey.
//
// Первый успешный результат для ключа кешируется; любая повторная
// доставка того же ключа возвращает кеш без вызова обёрнутого
// executor'а. Отказы не кешируются — повторная попытка того же
// attempt выполняется заново.
//
// Ключ фиксируется при создании task и переживает requeue после
// истечения лизы: повторная доставка — no-op. Retry оркестратора —
// это новый task с attempt+1 в ключе, то есть новый реальный вызов.
type IdempotentExecutor struct {
	inner Executor

	mu   sync.Mutex
	done map[string]*ExecResult
}

// NewIdempotentExecutor оборачивает executor в дедупликацию по ключу.
func NewIdempotentExecutor(inner Executor) *IdempotentExecutor {
	return &IdempotentExecutor{
		inner: inner,
		done:  make(map[string]*ExecResult),
	}
}

// Execute выполняет task, если его ключ ещё не выполнялся успешно.
func (e *IdempotentExecutor) Execute(ctx context.Context, task *domain.Task) (*ExecResult, error) {
	e.mu.Lock()
	if cached, ok := e.done[task.IdempotencyKey]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	res, err := e.inner.Execute(ctx, task)
	if err != nil || res.Failed() {
		return res, err
	}

	e.mu.Lock()
	// Конкурентная доставка одного ключа: выигрывает первый успех.
	if cached, ok := e.done[task.IdempotencyKey]; ok {
		res = cached
	} else {
		e.done[task.IdempotencyKey] = res
	}
	e.mu.Unlock()

	return res, nil
}

// Forget удаляет ключи run'а из кеша (run завершён, ключи больше
// не придут).
func (e *IdempotentExecutor) Forget(prefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.done {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(e.done, key)
		}
	}
}
