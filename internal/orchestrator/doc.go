// Package orchestrator ведёт runs от первого шага до финального статуса.
//
// Каждый шаг — одно сообщение в очереди runs.steps:
//   - Coordinator.Step пересчитывает прогресс run из task instances,
//     вызывает engine.ResolveProgress и либо завершает run, либо
//     отправляет готовый batch через dispatch.Substrate с continuation;
//   - continuation приходит следующим сообщением, когда batch завершён;
//   - Trigger создаёт run и отправляет первый шаг, а также запускает standalone задачи;
//   - Watchdog повторяет потерянные шаги и предупреждает о зависших barriers.
//
// Coordinator не хранит состояние между шагами, поэтому повтор сообщения безопасен.
package orchestrator
