// Package steps содержит Go-обработчики задач executor'а script.
//
// Registry создаётся при старте worker'а и передаётся в ScriptExecutor.
// Обработчик выбирается по params.handler, а если он не задан, по имени задачи:
//
//	registry := steps.DefaultRegistry()   // http, delay, echo
//	registry.Register(myStep)             // задачи с именем myStep.Name()
//	h, ok := registry.Lookup("fetch", params)
//
// Встроенные обработчики:
//
//   - http — HTTP запрос (method, url, headers, body, follow_redirects,
//     validate_ssl, timeout_sec); outputs: status_code, headers, body.
//     Ответ со статусом >= 400 возвращает outputs вместе с *HTTPError.
//   - delay — пауза (duration_sec или duration_ms); outputs: duration_ms.
//   - echo — возвращает params как есть.
//
// Обработчики проверяют ctx.Done(): worker ограничивает задачу таймаутом.
package steps
