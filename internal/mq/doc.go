// Package mq публикует события выполнения pipeline в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий run и шагов
//   - consumer.go   — чтение событий (команда agentfactory events)
//
// Типы событий:
//   - run.started    — run начал выполнение
//   - step.finished  — шаг завершён (успешно, с ошибкой или пропущен)
//   - run.finished   — run завершён
//
// События — уведомления fire-and-forget: выполнение pipeline от них не зависит.
package mq
