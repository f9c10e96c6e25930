// Package plan валидирует планы сборки перед отправкой в оркестратор.
//
// План приходит извне (API, CLI, внешний planner) и до запуска
// проверяется целиком: пустые и дублирующиеся ID, неизвестные классы
// задач, некорректные лимиты бюджета. Payload шага не проверяется —
// это чёрный ящик для всего движка.
package plan

import (
	"fmt"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Validate выполняет полную валидацию плана.
//
// Проверяет:
// - Наличие шагов
// - Уникальность ID шагов
// - Корректность классов задач
func Validate(steps []domain.StepDef) error {
	if len(steps) == 0 {
		return ErrEmptyPlan
	}

	stepIDs := make(map[string]bool)
	for i := range steps {
		if err := ValidateStep(&steps[i], stepIDs); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.StepDef, stepIDs map[string]bool) error {
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if !step.Class.Valid() {
		return NewValidationError(step.ID, "class",
			fmt.Sprintf("unknown task class: %s", step.Class), ErrUnknownClass)
	}

	return nil
}

// ValidateSLO проверяет SLO-тир. Пустое значение допустимо —
// оркестратор подставит normal.
func ValidateSLO(slo domain.SLOTier) error {
	switch slo {
	case "", domain.SLOFast, domain.SLONormal, domain.SLOThorough:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownSLO, slo)
}

// ValidateBudget проверяет лимиты бюджета. Нулевые лимиты допустимы
// и означают отсутствие ограничения.
func ValidateBudget(budget domain.Budget) error {
	if budget.MaxCost < 0 {
		return fmt.Errorf("%w: max_cost", ErrNegativeBudget)
	}
	if budget.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts", ErrNegativeBudget)
	}
	if budget.MaxTime < 0 {
		return fmt.Errorf("%w: max_time", ErrNegativeBudget)
	}
	return nil
}
