package orchestrator

import (
	"context"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Patcher — внешний коллаборатор фазы patch.
//
// Получает упавший task и предлагает исправленный payload шага.
// Правка проходит песочницу до применения; сам Patcher песочницу
// не видит и полагаться на неё не может.
type Patcher interface {
	ProposePatch(ctx context.Context, run domain.Run, step domain.StepDef, failed *domain.Task) (map[string]any, error)
}

// Planner — внешний коллаборатор фазы replan.
//
// Получает run и упавший шаг и предлагает новый под-план,
// замещающий упавший шаг и всё после него.
type Planner interface {
	Replan(ctx context.Context, run domain.Run, failed domain.StepDef, reason string) ([]domain.StepDef, error)
}

// Inverter — внешний коллаборатор фазы rollback.
//
// Выполняет обратную операцию одного завершённого шага.
// Вызывается только для шагов с Undoable.
type Inverter interface {
	Undo(ctx context.Context, run domain.Run, step domain.StepDef) error
}
