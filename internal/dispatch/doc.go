// Package dispatch доставляет jobs исполнителям и соединяет batch'и.
//
// Substrate умеет две вещи:
//   - Send: положить job в очередь;
//   - Chord: зарегистрировать barrier для batch'а, разослать участников
//     и отправить continuation ровно один раз, когда все участники завершились.
//
// Broker работает поверх RabbitMQ (internal/mq) и Postgres (repo.BarrierRepo).
// Local выполняет jobs в горутинах текущего процесса и используется в тестах
// и локальной разработке.
package dispatch
