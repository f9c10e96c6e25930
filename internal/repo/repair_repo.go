package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

// AppendRepairAttempt добавляет запись в repair trail.
// Trail append-only: записи никогда не обновляются и не удаляются.
func (s *Postgres) AppendRepairAttempt(ctx context.Context, attempt domain.RepairAttempt) error {
	query := `
		INSERT INTO repair_attempts (run_id, step_id, phase, attempt, outcome, detail, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		attempt.RunID,
		attempt.StepID,
		attempt.Phase,
		attempt.Attempt,
		attempt.Outcome,
		nullString(attempt.Detail),
		attempt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert repair attempt: %w", err)
	}
	return nil
}

// ListRepairAttempts возвращает trail run'а в хронологическом порядке.
func (s *Postgres) ListRepairAttempts(ctx context.Context, runID uuid.UUID) ([]domain.RepairAttempt, error) {
	query := `
		SELECT run_id, step_id, phase, attempt, outcome, detail, ts
		FROM repair_attempts
		WHERE run_id = $1
		ORDER BY ts
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query repair attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.RepairAttempt
	for rows.Next() {
		var (
			attempt domain.RepairAttempt
			detail  *string
		)
		err := rows.Scan(
			&attempt.RunID,
			&attempt.StepID,
			&attempt.Phase,
			&attempt.Attempt,
			&attempt.Outcome,
			&detail,
			&attempt.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan repair attempt: %w", err)
		}
		if detail != nil {
			attempt.Detail = *detail
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repair attempts: %w", err)
	}
	return attempts, nil
}
