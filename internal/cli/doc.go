// Package cli реализует инструмент командной строки dash.
//
// # Обзор
//
// CLI загружает конфигурацию pipeline, передаёт её диспетчеру
// и превращает результат в вывод и код завершения процесса.
//
// # Команды
//
//   - run (по умолчанию) — выполнить pipeline один раз
//   - validate — проверить конфигурацию без выполнения
//   - schedule — выполнять pipeline по cron или интервалу
//   - connectors — список поддерживаемых пар (направление, среда)
//
// Persistent flags: --config/-c, --step-timeout, --json, --metrics-file.
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Итог run выводится в stdout, логи и сообщения — в stderr.
// Это позволяет использовать pipe: dash run --json | jq .status
//
// # Коды завершения
//
//	0 — все шаги выполнены
//	1 — шаг завершился ошибкой
//	2 — ошибка конфигурации или аргументов, ни один шаг не запускался
package cli
