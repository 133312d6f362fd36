// Package telemetry — логи и метрики сервисов ZuriFlow.
//
// SetupLogger настраивает slog по LOG_FORMAT и LOG_LEVEL, хелперы
// WithRunID/WithTaskName/WithDefinitionID добавляют атрибуты к логгеру.
// Метрики регистрируются через promauto при импорте пакета и
// отдаются OpsHandler на /metrics рядом с /healthz.
package telemetry
