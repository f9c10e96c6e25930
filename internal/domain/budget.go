package domain

import "time"

// BudgetReason — причина превышения бюджета.
type BudgetReason string

const (
	// BudgetReasonCost — превышен лимит стоимости.
	BudgetReasonCost BudgetReason = "MAX_COST"

	// BudgetReasonAttempts — превышен лимит попыток.
	BudgetReasonAttempts BudgetReason = "MAX_ATTEMPTS"

	// BudgetReasonTime — превышен лимит времени выполнения.
	BudgetReasonTime BudgetReason = "MAX_TIME"

	// BudgetReasonNone — бюджет не превышен.
	BudgetReasonNone BudgetReason = ""
)

// Budget — лимиты ресурсов одного run.
//
// Счётчики Spent*/Used/Elapsed монотонно растут и принадлежат
// исключительно оркестратору run — воркеры их не пишут.
// Нулевой лимит означает «без ограничения».
type Budget struct {
	// MaxCost — лимит суммарной стоимости (условные единицы, например USD).
	MaxCost float64 `json:"max_cost,omitempty"`

	// SpentCost — потрачено на текущий момент.
	SpentCost float64 `json:"spent_cost"`

	// MaxAttempts — лимит суммарного числа попыток выполнения шагов.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// AttemptsUsed — использовано попыток.
	AttemptsUsed int `json:"attempts_used"`

	// MaxTime — лимит времени выполнения run.
	MaxTime time.Duration `json:"max_time,omitempty"`

	// Elapsed — прошло времени с начала выполнения.
	Elapsed time.Duration `json:"elapsed"`
}

// Charge списывает стоимость одной попытки.
func (b *Budget) Charge(cost float64) {
	b.SpentCost += cost
	b.AttemptsUsed++
}

// Observe обновляет счётчик прошедшего времени.
// Elapsed монотонен: уменьшение игнорируется.
func (b *Budget) Observe(elapsed time.Duration) {
	if elapsed > b.Elapsed {
		b.Elapsed = elapsed
	}
}

// Exceeded возвращает причину превышения бюджета
// или BudgetReasonNone, если все лимиты соблюдены.
func (b *Budget) Exceeded() BudgetReason {
	if b.MaxCost > 0 && b.SpentCost > b.MaxCost {
		return BudgetReasonCost
	}
	if b.MaxAttempts > 0 && b.AttemptsUsed > b.MaxAttempts {
		return BudgetReasonAttempts
	}
	if b.MaxTime > 0 && b.Elapsed > b.MaxTime {
		return BudgetReasonTime
	}
	return BudgetReasonNone
}

// CanAfford проверяет, помещается ли оценка стоимости в остаток лимита.
func (b *Budget) CanAfford(estimated float64) bool {
	if b.MaxCost <= 0 {
		return true
	}
	return b.SpentCost+estimated <= b.MaxCost
}
