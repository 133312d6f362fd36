// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (хранилища, launcher, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (recovery, logging, metrics)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - definition_handler.go — обработчики для /definitions
//   - run_handler.go        — обработчики для /runs
//   - task_handler.go       — обработчики для /tasks
//   - schedule_handler.go   — обработчики для /schedules
//
// Успешные ответы оборачиваются в {"data": ...}, ошибки — в
// {"error": {"code", "message", "details"}}.
package api
