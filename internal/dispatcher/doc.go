// Package dispatcher выполняет pipeline шаг за шагом.
//
// Жизненный цикл run:
//
//	Idle → Running(0) → Running(1) → ... → Done
//	           ↓
//	       Failed(i)
//
// Шаги выполняются строго последовательно в порядке конфигурации.
// Каждый шаг выполняется ровно один раз; первая ошибка останавливает run,
// оставшиеся шаги помечаются SKIPPED. Значения между шагами передаются
// через cache.Cache, которым владеет диспетчер.
package dispatcher
