package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

// SaveTask сохраняет task (upsert по id).
// Оркестратор пишет tasks в терминальных статусах для audit trail.
func (s *Postgres) SaveTask(ctx context.Context, task *domain.Task) error {
	payloadJSON, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	outputsJSON, err := json.Marshal(task.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		INSERT INTO tasks (id, run_id, step_id, idempotency_key, class, type, payload,
		                   model_tier, attempt, status, outputs, failure_class, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			model_tier = EXCLUDED.model_tier,
			attempt = EXCLUDED.attempt,
			status = EXCLUDED.status,
			outputs = EXCLUDED.outputs,
			failure_class = EXCLUDED.failure_class,
			error = EXCLUDED.error
	`
	_, err = s.pool.Exec(ctx, query,
		task.ID,
		task.RunID,
		task.StepID,
		task.IdempotencyKey,
		task.Class,
		nullString(task.Type),
		payloadJSON,
		nullString(task.ModelTier),
		task.Attempt,
		task.Status,
		outputsJSON,
		nullString(string(task.FailureClass)),
		nullString(task.Error),
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// ListTasksByRun возвращает tasks одного run в порядке создания.
func (s *Postgres) ListTasksByRun(ctx context.Context, runID uuid.UUID) ([]domain.Task, error) {
	query := `
		SELECT id, run_id, step_id, idempotency_key, class, type, payload,
		       model_tier, attempt, status, outputs, failure_class, error, created_at
		FROM tasks
		WHERE run_id = $1
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var (
			task         domain.Task
			payloadJSON  []byte
			outputsJSON  []byte
			taskType     *string
			modelTier    *string
			failureClass *string
			errMsg       *string
		)

		err := rows.Scan(
			&task.ID,
			&task.RunID,
			&task.StepID,
			&task.IdempotencyKey,
			&task.Class,
			&taskType,
			&payloadJSON,
			&modelTier,
			&task.Attempt,
			&task.Status,
			&outputsJSON,
			&failureClass,
			&errMsg,
			&task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}

		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := json.Unmarshal(outputsJSON, &task.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
		if taskType != nil {
			task.Type = *taskType
		}
		if modelTier != nil {
			task.ModelTier = *modelTier
		}
		if failureClass != nil {
			task.FailureClass = domain.FailureClass(*failureClass)
		}
		if errMsg != nil {
			task.Error = *errMsg
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
