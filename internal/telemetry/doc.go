// Package telemetry обеспечивает наблюдаемость dash.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Логи пишутся в stderr, stdout остаётся за итогом run.
// Метрики либо сохраняются в файл после run (--metrics-file),
// либо отдаются на /metrics в режиме schedule.
package telemetry
