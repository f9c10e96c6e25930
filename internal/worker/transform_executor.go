package worker

import (
	"context"

	"github.com/mkoresh/forgeline/internal/domain"
)

// TransformExecutor — executor для task типа "transform".
//
// Возвращает payload как outputs без внешнего вызова —
// pass-through для шагов, передающих данные между этапами плана.
type TransformExecutor struct{}

// Execute возвращает payload как outputs.
func (e *TransformExecutor) Execute(_ context.Context, task *domain.Task) (*ExecResult, error) {
	outputs := task.Payload
	if outputs == nil {
		outputs = make(map[string]any)
	}

	return &ExecResult{Outputs: outputs}, nil
}
