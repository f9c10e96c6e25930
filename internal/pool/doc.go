// Package pool реализует worker pool с лизами и приоритетными
// очередями по классам задач.
//
// Pool отвечает за:
//   - Регистрацию воркеров и их capabilities
//   - Очереди FIFO по классам с ограничением глубины
//   - Атомарную выдачу лиз с TTL и продление через heartbeat
//   - Реапер: возврат задач с истёкшей лизой в голову очереди
//   - Доставку результатов ожидающему оркестратору
//
// Pool гарантирует at-least-once доставку; at-most-once эффект
// обеспечивается ключами идемпотентности на стороне исполнителя.
package pool
