// Package events публикует структурированные audit-события
// в RabbitMQ для внешнего Metrics/Audit Sink.
//
// Оркестратор, breaker'ы и chaos-движок отправляют сюда события
// жизненного цикла: смены статуса runs, записи repair trail,
// переходы breaker'ов, chaos-инъекции и canary-сравнения — каждая
// категория в свою очередь (audit.runs, audit.repairs, audit.chaos,
// audit.canary). Сам sink — внешний коллаборатор и здесь
// не специфицируется.
//
// Publisher опционален: без RabbitMQ система деградирует
// до log-only режима.
package events
