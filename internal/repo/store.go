// Package repo — хранилище runs, tasks и repair trail.
//
// Store определяет контракт персистентности оркестратора.
// Реализации:
//   - Postgres — write-through в PostgreSQL (pgx), переживает рестарт
//   - Memory — чистая in-memory карта для работы без БД и для тестов
package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Store — персистентность оркестратора.
//
// SaveRun — upsert: оркестратор пишет run после каждой смены статуса
// и после каждого шага, прочитанное состояние всегда отражает
// последнюю запись. Repair trail append-only.
type Store interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)

	// ListUnfinishedRuns возвращает runs в нетерминальных статусах
	// (для восстановления после рестарта).
	ListUnfinishedRuns(ctx context.Context) ([]domain.Run, error)

	SaveTask(ctx context.Context, task *domain.Task) error
	ListTasksByRun(ctx context.Context, runID uuid.UUID) ([]domain.Task, error)

	AppendRepairAttempt(ctx context.Context, attempt domain.RepairAttempt) error
	ListRepairAttempts(ctx context.Context, runID uuid.UUID) ([]domain.RepairAttempt, error)
}

// Postgres — реализация Store поверх PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт Store поверх пула соединений.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}
