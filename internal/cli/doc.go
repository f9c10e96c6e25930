// Package cli реализует инструмент командной строки Forgeline.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Forgeline API.
// Работает через HTTP, не импортирует внутренние пакеты оркестратора.
// CLI используется для отправки планов сборки и наблюдения за
// выполнением: runs, очереди, breakers, canary и chaos.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Forgeline API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(20)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: forgeline run list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - run: list, submit, show, timeline, cancel
//   - queue: stats
//   - breaker: list
//   - canary: report
//   - chaos: report
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
