// Package cli реализует команды agentfactory.
//
// # Обзор
//
// CLI работает напрямую с внутренними пакетами: bridge, cache, environment,
// orchestrator. Соединения открываются лениво через Runtime, поэтому
// команда cache keys не требует bridge, а run работает без PostgreSQL
// и RabbitMQ.
//
// # Команды
//
//   - run: однократное выполнение pipeline из YAML
//   - schedule: выполнение pipeline по cron, без наложения run'ов
//   - ping: проверка bridge endpoint'ов
//   - cache: stats, keys
//   - runs: list, show (нужен DB_URL)
//   - events: чтение событий из RabbitMQ (нужен RABBITMQ_URL)
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей rtFn и outputFn: замыкания, которые отдают Runtime и
// Output после разбора PersistentFlags.
//
// Данные выводятся в stdout, сообщения (Success/Error) и логи в stderr:
//
//	agentfactory run pipeline.yaml --json | jq .outputs
package cli
