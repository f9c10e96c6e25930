// Package api содержит HTTP API сервер оркестратора.
//
// Структура:
//   - handler.go       — Handler с DI (оркестратор, pool, breakers, canary, chaos)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - run_handler.go   — обработчики для /runs
//   - stats_handler.go — обработчики для /stats, /canary, /chaos
//
// API предоставляет REST endpoints для отправки планов, наблюдения
// за выполнением и чтения management surface (очереди, breakers,
// canary-сравнение, chaos-сводка).
package api
