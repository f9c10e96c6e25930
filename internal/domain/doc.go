// Package domain содержит основные типы данных системы:
// Run, Task, Budget, лизы воркеров, audit trail починки,
// canary-сэмплы и chaos-события.
//
// Типы в этом пакете не содержат бизнес-логики выполнения —
// только данные и переходы их статусов. Логика живёт в пакетах
// orchestrator, pool, sched, breaker, canary и chaos.
package domain
