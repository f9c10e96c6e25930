package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Memory — реализация Store в памяти процесса.
//
// Используется, когда DB_URL не задан, и в тестах. Хранит копии:
// прочитанное состояние отражает последнюю запись и не алиасится
// с мутируемыми структурами оркестратора.
type Memory struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]domain.Run
	tasks   map[uuid.UUID]domain.Task
	repairs map[uuid.UUID][]domain.RepairAttempt
}

// NewMemory создаёт пустой in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[uuid.UUID]domain.Run),
		tasks:   make(map[uuid.UUID]domain.Task),
		repairs: make(map[uuid.UUID][]domain.RepairAttempt),
	}
}

// SaveRun сохраняет копию run.
func (m *Memory) SaveRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := *run
	saved.Plan = append([]domain.StepDef(nil), run.Plan...)
	m.runs[run.ID] = saved
	return nil
}

// GetRun возвращает run по ID.
func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

// ListRuns возвращает последние runs (новые первыми).
func (m *Memory) ListRuns(_ context.Context, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]domain.Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListUnfinishedRuns возвращает runs в нетерминальных статусах.
func (m *Memory) ListUnfinishedRuns(_ context.Context) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []domain.Run
	for _, run := range m.runs {
		if !run.Status.IsTerminal() {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

// SaveTask сохраняет копию task.
func (m *Memory) SaveTask(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[task.ID] = *task
	return nil
}

// ListTasksByRun возвращает tasks одного run в порядке создания.
func (m *Memory) ListTasksByRun(_ context.Context, runID uuid.UUID) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tasks []domain.Task
	for _, task := range m.tasks {
		if task.RunID == runID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// AppendRepairAttempt добавляет запись в repair trail.
func (m *Memory) AppendRepairAttempt(_ context.Context, attempt domain.RepairAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.repairs[attempt.RunID] = append(m.repairs[attempt.RunID], attempt)
	return nil
}

// ListRepairAttempts возвращает trail run'а в хронологическом порядке.
func (m *Memory) ListRepairAttempts(_ context.Context, runID uuid.UUID) ([]domain.RepairAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]domain.RepairAttempt(nil), m.repairs[runID]...), nil
}
