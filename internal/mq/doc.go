// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, каналы для consumers, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений с ручным ack/nack
//
// Типы сообщений:
//   - task.dispatch — задача batch'а (или standalone) для executor'а
//   - run.step      — следующий шаг orchestrator'а для run
//
// Exchanges:
//   - zuriflow.tasks — задачи, routing key = executor kind
//   - zuriflow.runs  — шаги orchestrator'а
//   - zuriflow.dlq   — dead letter queue
//
// Пакет ничего не знает о содержимом payload: формат задач и шагов
// определяет пакет dispatch.
package mq
