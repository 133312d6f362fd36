// Package engine содержит логику разрешения зависимостей definition.
//
// Включает:
//   - resolver.go — Resolve: definition + completed-set → Ready(batch) / Done / Stuck
//   - graph.go    — граф зависимостей, топологический порядок, поиск циклов
//   - validate.go — валидация definition перед сохранением
//
// Все функции пакета чистые: без I/O и без глобального состояния.
// Orchestrator вызывает Resolve на каждом шаге run, API вызывает Validate
// и FindCycle при создании definition.
package engine
