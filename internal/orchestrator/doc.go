// Package orchestrator управляет выполнением runs и их самопочинкой.
//
// # Обзор
//
// Orchestrator — центральный компонент системы. Для каждого run
// он ведёт control loop в отдельной горутине:
//
//   - Выполняет шаги плана строго по порядку через worker pool
//   - Списывает бюджет после каждой попытки
//   - При отказе шага проходит фазы починки строго по порядку:
//     retry → patch → replan → rollback
//   - Фиксирует каждую попытку починки в append-only trail
//   - Финализирует run (COMPLETED / ROLLED_BACK / FAILED)
//
// Run принадлежит ровно одному control loop: все мутации статуса,
// курсора и бюджета идут только из него.
//
// # Фазы починки
//
// Класс отказа задаёт входную фазу; исчерпание фазы эскалирует
// строго вниз, фазы никогда не идут в обратном порядке:
//
//   - TRANSIENT → retry с экспоненциальным backoff; retry
//     пропускается, пока breaker класса открыт
//   - CIRCUIT_OPEN → повтор без расхода слота retry
//   - CORRECTABLE → patch через внешний Patcher, правка проходит
//     песочницу; нарушение песочницы фатально и НЕ ведёт к rollback
//   - STRUCTURALLY_BLOCKED → replan через внешний Planner,
//     не более одного replan на run
//   - BUDGET_EXCEEDED → немедленный rollback
//
// Rollback выполняет обратные операции завершённых шагов в обратном
// порядке; шаги без Undoable пропускаются.
//
// # Коллабораторы
//
// Planner, Patcher и Inverter — внешние коллабораторы (LLM-сервисы,
// система артефактов). Оркестратор вызывает их через интерфейсы
// и не знает про их устройство. Все опциональны: отсутствие
// коллаборатора фиксируется в trail как пропуск фазы.
//
// # Персистентность
//
// Store (repo.Memory или repo.Postgres) получает run после каждой
// смены статуса и курсора. Незавершённые runs восстанавливаются
// из Store при старте и продолжают с текущего шага.
package orchestrator
