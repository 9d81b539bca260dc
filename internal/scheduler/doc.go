// Package scheduler повторно запускает pipeline по расписанию.
//
// Структура:
//   - scheduler.go — цикл Scheduler (Start, Tick)
//   - cron.go      — расписание, парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedule: scheduler.Schedule{CronExpr: "*/5 * * * *"},
//	    Run:      runOnce,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Блокируется до отмены ctx
//	return sched.Start(ctx)
//
// Каждый run получает новый кэш; состояние между run не сохраняется.
package scheduler
