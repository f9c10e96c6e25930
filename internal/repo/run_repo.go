package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkoresh/forgeline/internal/domain"
)

// SaveRun сохраняет run (upsert по id).
func (s *Postgres) SaveRun(ctx context.Context, run *domain.Run) error {
	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	budgetJSON, err := json.Marshal(run.Budget)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}

	query := `
		INSERT INTO runs (id, plan, cursor, status, budget, slo, variant, replanned,
		                  started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			plan = EXCLUDED.plan,
			cursor = EXCLUDED.cursor,
			status = EXCLUDED.status,
			budget = EXCLUDED.budget,
			variant = EXCLUDED.variant,
			replanned = EXCLUDED.replanned,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			error = EXCLUDED.error
	`
	_, err = s.pool.Exec(ctx, query,
		run.ID,
		planJSON,
		run.Cursor,
		run.Status,
		budgetJSON,
		run.SLO,
		nullString(string(run.Variant)),
		run.Replanned,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun возвращает run по ID.
func (s *Postgres) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, plan, cursor, status, budget, slo, variant, replanned,
		       started_at, finished_at, error, created_at
		FROM runs
		WHERE id = $1
	`
	return scanRun(s.pool.QueryRow(ctx, query, id))
}

// ListRuns возвращает последние runs.
func (s *Postgres) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `
		SELECT id, plan, cursor, status, budget, slo, variant, replanned,
		       started_at, finished_at, error, created_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListUnfinishedRuns возвращает runs в нетерминальных статусах.
func (s *Postgres) ListUnfinishedRuns(ctx context.Context) ([]domain.Run, error) {
	query := `
		SELECT id, plan, cursor, status, budget, slo, variant, replanned,
		       started_at, finished_at, error, created_at
		FROM runs
		WHERE status IN ('PENDING', 'RUNNING', 'REPAIRING')
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unfinished runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// scanRun сканирует одну строку runs.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run        domain.Run
		planJSON   []byte
		budgetJSON []byte
		variant    *string
		errMsg     *string
	)

	err := row.Scan(
		&run.ID,
		&planJSON,
		&run.Cursor,
		&run.Status,
		&budgetJSON,
		&run.SLO,
		&variant,
		&run.Replanned,
		&run.StartedAt,
		&run.FinishedAt,
		&errMsg,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(planJSON, &run.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if err := json.Unmarshal(budgetJSON, &run.Budget); err != nil {
		return nil, fmt.Errorf("unmarshal budget: %w", err)
	}
	if variant != nil {
		run.Variant = domain.CanaryVariant(*variant)
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}

// collectRuns сканирует все строки результата.
func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
