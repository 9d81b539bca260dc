// Package engine загружает конфигурацию pipeline.
//
// Включает:
//   - load.go     — чтение файла конфигурации
//   - template.go — подстановка выражений ${{ env.X }}
//   - parser.go   — декодирование YAML в domain.Pipeline
//   - validate.go — проверка шагов до начала выполнения
//
// Все ошибки пакета оборачивают ErrInvalidConfig: ни один шаг
// не запускается, если конфигурация некорректна.
package engine
