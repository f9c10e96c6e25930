package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/telemetry"
)

// Register регистрирует воркера с его capabilities.
// Повторная регистрация идемпотентна: обновляет capabilities и heartbeat.
func (p *Pool) Register(workerID string, capabilities []domain.TaskClass) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[workerID]; ok {
		w.Capabilities = capabilities
		w.LastHeartbeat = time.Now()
		return
	}

	p.workers[workerID] = &domain.WorkerInfo{
		WorkerID:      workerID,
		Capabilities:  capabilities,
		LastHeartbeat: time.Now(),
	}

	p.logger.Info("worker registered",
		"worker_id", workerID,
		"capabilities", capabilities,
	)
}

// Submit ставит task в очередь его класса.
// Возвращает ErrQueueFull, если глубина очереди исчерпана.
func (p *Pool) Submit(task *domain.Task) error {
	if !task.Class.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownClass, task.Class)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if len(p.queues[task.Class]) >= p.queueDepth {
		return fmt.Errorf("%w: %s", ErrQueueFull, task.Class)
	}

	task.Status = domain.TaskStatusQueued
	task.EnqueuedAt = time.Now()
	p.tasks[task.ID] = task
	// FIFO по времени постановки внутри класса.
	p.queues[task.Class] = append(p.queues[task.Class], task)

	if _, ok := p.waiters[task.ID]; !ok {
		p.waiters[task.ID] = make(chan Result, 1)
	}

	telemetry.QueueDepth.WithLabelValues(string(task.Class)).Set(float64(len(p.queues[task.Class])))

	p.logger.Debug("task submitted",
		"task_id", task.ID,
		"run_id", task.RunID,
		"class", task.Class,
	)
	return nil
}

// LeaseNext атомарно выдаёт воркеру task из очереди, которую он
// может обслужить, и создаёт лизу с TTL.
// Возвращает ErrNoTask, если подходящих задач нет.
func (p *Pool) LeaseNext(workerID string) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	w.LastHeartbeat = time.Now()

	// Очереди просматриваются в порядке приоритета классов.
	for _, class := range domain.TaskClasses {
		if !w.CanServe(class) {
			continue
		}
		q := p.queues[class]
		if len(q) == 0 {
			continue
		}

		task := q[0]
		p.queues[class] = q[1:]

		now := time.Now()
		task.MarkLeased()
		p.leases[task.ID] = &domain.TaskLease{
			TaskID:     task.ID,
			WorkerID:   workerID,
			AcquiredAt: now,
			TTL:        p.leaseTTL,
		}
		w.CurrentTaskID = task.ID

		telemetry.TasksLeased.WithLabelValues(string(class)).Inc()
		telemetry.QueueDepth.WithLabelValues(string(class)).Set(float64(len(p.queues[class])))

		p.logger.Debug("task leased",
			"task_id", task.ID,
			"worker_id", workerID,
			"class", class,
			"attempt", task.Attempt,
		)
		return task, nil
	}

	return nil, ErrNoTask
}

// Heartbeat продлевает лизу воркера на task.
// Возвращает ErrUnknownLease, если лиза уже была reclaimed реапером.
func (p *Pool) Heartbeat(workerID string, taskID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[workerID]; ok {
		w.LastHeartbeat = time.Now()
	}

	lease, ok := p.leases[taskID]
	if !ok || lease.WorkerID != workerID {
		return fmt.Errorf("%w: task %s", ErrUnknownLease, taskID)
	}

	lease.Extend(time.Now())
	return nil
}

// Complete финализирует task успехом и освобождает лизу.
//
// Если лиза уже была reclaimed (воркер опоздал), результат
// отбрасывается: задача пошла на повторную доставку, дубликат
// эффекта гасится ключом идемпотентности на стороне исполнителя.
func (p *Pool) Complete(taskID uuid.UUID, outputs map[string]any) error {
	return p.finalize(taskID, func(task *domain.Task) {
		task.MarkSucceeded(outputs)
	})
}

// Fail финализирует task отказом и освобождает лизу.
func (p *Pool) Fail(taskID uuid.UUID, class domain.FailureClass, errMsg string) error {
	return p.finalize(taskID, func(task *domain.Task) {
		task.MarkFailed(class, errMsg)
	})
}

// finalize — общий путь завершения task.
func (p *Pool) finalize(taskID uuid.UUID, mark func(*domain.Task)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	lease, ok := p.leases[taskID]
	if !ok {
		return fmt.Errorf("%w: task %s", ErrUnknownLease, taskID)
	}
	task, ok := p.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	delete(p.leases, taskID)
	delete(p.tasks, taskID)
	if w, exists := p.workers[lease.WorkerID]; exists && w.CurrentTaskID == taskID {
		w.CurrentTaskID = uuid.Nil
	}

	mark(task)
	telemetry.TasksCompleted.WithLabelValues(string(task.Status)).Inc()

	// Запись в waiters остаётся до Await: буфера в 1 элемент хватает,
	// потому что второй finalize по той же задаче упирается в ErrUnknownLease.
	if waiter, exists := p.waiters[taskID]; exists {
		waiter <- Result{Task: task}
	}

	return nil
}

// Abandon снимает все queued задачи run без выполнения.
// Используется при отмене/rollback: leased задачи не прерываются,
// их лизы истекут естественным образом.
func (p *Pool) Abandon(runID uuid.UUID, reason string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	abandoned := 0
	for class, q := range p.queues {
		kept := q[:0]
		for _, task := range q {
			if task.RunID != runID {
				kept = append(kept, task)
				continue
			}
			task.MarkAbandoned(reason)
			delete(p.tasks, task.ID)
			telemetry.TasksCompleted.WithLabelValues(string(task.Status)).Inc()
			if waiter, exists := p.waiters[task.ID]; exists {
				waiter <- Result{Task: task}
			}
			abandoned++
		}
		p.queues[class] = kept
		telemetry.QueueDepth.WithLabelValues(string(class)).Set(float64(len(kept)))
	}
	return abandoned
}

// Await блокируется до финального результата task или отмены контекста.
//
// Результат, пришедший до вызова Await, не теряется: он лежит в буфере
// waiter'а и забирается немедленно. Возврат задачи в очередь реапером
// не будит ожидающего — результатом считается только терминальный статус.
func (p *Pool) Await(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	p.mu.Lock()
	waiter, ok := p.waiters[taskID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	select {
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, taskID)
		p.mu.Unlock()
		// Финализация могла успеть раньше отмены.
		select {
		case res := <-waiter:
			return res.Task, nil
		default:
			return nil, ctx.Err()
		}
	case res := <-waiter:
		p.mu.Lock()
		delete(p.waiters, taskID)
		p.mu.Unlock()
		return res.Task, nil
	}
}

// QueueStats — статистика одной очереди.
type QueueStats struct {
	Class  domain.TaskClass `json:"class"`
	Depth  int              `json:"depth"`
	Leased int              `json:"leased"`
}

// Stats возвращает статистику очередей и воркеров.
type Stats struct {
	Queues  []QueueStats `json:"queues"`
	Workers int          `json:"workers"`
	Leases  int          `json:"leases"`
}

// Stats возвращает текущую статистику пула.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	leasedByClass := make(map[domain.TaskClass]int)
	for taskID := range p.leases {
		if task, ok := p.tasks[taskID]; ok {
			leasedByClass[task.Class]++
		}
	}

	stats := Stats{Workers: len(p.workers), Leases: len(p.leases)}
	for _, class := range domain.TaskClasses {
		stats.Queues = append(stats.Queues, QueueStats{
			Class:  class,
			Depth:  len(p.queues[class]),
			Leased: leasedByClass[class],
		})
	}
	return stats
}
