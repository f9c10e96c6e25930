package plan

import "errors"

// Ошибки валидации плана.
var (
	// ErrEmptyPlan — план не содержит шагов.
	ErrEmptyPlan = errors.New("plan has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownClass — неизвестный класс задачи.
	ErrUnknownClass = errors.New("unknown task class")

	// ErrUnknownSLO — неизвестный SLO-тир.
	ErrUnknownSLO = errors.New("unknown SLO tier")

	// ErrNegativeBudget — отрицательный лимит бюджета.
	ErrNegativeBudget = errors.New("budget limit is negative")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
