// Package worker выполняет задачи из очередей tasks.<kind>.
//
// # Обзор
//
// Worker — stateless процесс. На каждую очередь разрешённого executor'а
// (tasks.script, tasks.shell, tasks.binary) запускается свой consumer.
// Одна доставка — одна попытка выполнения и один task instance.
//
// # Контракт Runner
//
//  1. Begin в tracker'е до начала работы. Ошибка логируется, задача всё равно выполняется.
//  2. Выполнение executor'ом с таймаутом (params.timeout_sec или значение из конфигурации).
//     Panic перехватывается и превращается в FAILURE.
//  3. Finish ровно один раз: SUCCESS с результатом или FAILURE с {"error": ...}.
//  4. Complete в dispatch substrate всегда, даже если шаги 1 или 3 упали.
//     Standalone задачи (без barrier) этот шаг пропускают.
//
// # Executors
//
//   - ScriptExecutor — Go handler из steps.Registry, интерпретатор (params.script)
//     или echo параметров.
//   - ShellExecutor — sh -c params.command.
//   - BinaryExecutor — params.binary_path с params.args.
//
// Shell и binary возвращают {stdout, stderr, exit_code}. Ненулевой код выхода — FAILURE.
package worker
