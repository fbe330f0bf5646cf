// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (bridge, cache, pipeline)
//
// Все компоненты используют единый формат логирования. CLI экспортирует
// метрики на /metrics, если задан METRICS_ADDR.
package telemetry
