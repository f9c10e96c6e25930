// Package worker выполняет tasks, выданные worker pool'ом под лизу.
//
// # Обзор
//
// Runner — цикл одного воркера. Он:
//
//   - Регистрируется в пуле с набором capabilities (классов задач)
//   - Берёт task под лизу через LeaseNext
//   - Продлевает лизу heartbeat'ом, пока task выполняется
//   - Гейтит внешний вызов через circuit breaker registry
//   - Репортит результат через Complete/Fail
//
// Несколько Runner'ов живут в одном процессе как горутины
// и конкурируют за очереди пула.
//
// # Executor
//
// Интерфейс внешнего вызова (LLM-гейтвей, tool-сервис):
//
//	type Executor interface {
//	    Execute(ctx context.Context, task *domain.Task) (*ExecResult, error)
//	}
//
// Реализации:
//   - HTTPExecutor — вызов внешнего tool-сервиса по HTTP
//   - TransformExecutor — pass-through payload → outputs
//
// Registry маршрутизирует task по task.Type.
//
// # Идемпотентность
//
// IdempotentExecutor оборачивает любой Executor и дедуплицирует
// по task.IdempotencyKey: повторная доставка ключа после первого
// успеха возвращает закешированный результат без внешнего вызова.
// Это закрывает кейс "воркер умер после выполнения, но до Complete" —
// реапер вернёт task в очередь, и повторная попытка не выполнит
// побочный эффект дважды.
//
// # Ошибки
//
// Пакет различает два уровня ошибок:
//   - Инфраструктурные (error от Execute) — сеть упала, таймаут.
//     Классифицируются как TRANSIENT.
//   - Логические (ExecResult.FailureClass) — сам task некорректен.
//     Класс отказа назначает executor.
//
// Каждый отказ фиксируется в breaker'е своего класса; открытый
// breaker отклоняет вызов до исполнения с классом CIRCUIT_OPEN.
package worker
