package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Ошибки расписания.
var (
	// ErrInvalidSchedule — расписание некорректно.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Schedule — расписание повторного запуска pipeline.
// Задано ровно одно из CronExpr и Interval.
type Schedule struct {
	// CronExpr — 5-польное cron-выражение или дескриптор (@hourly, @daily).
	CronExpr string

	// Interval — фиксированный интервал между запусками.
	Interval time.Duration

	// Timezone — IANA timezone для cron. Пусто — UTC.
	Timezone string
}

// IsCron проверяет, задано ли расписание cron-выражением.
func (s Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval проверяет, задано ли расписание интервалом.
func (s Schedule) IsInterval() bool {
	return s.Interval > 0
}

// Validate проверяет расписание.
func (s Schedule) Validate() error {
	switch {
	case s.IsCron() && s.IsInterval():
		return fmt.Errorf("%w: cron and interval are mutually exclusive", ErrInvalidSchedule)
	case s.IsCron():
		if err := ValidateCronExpr(s.CronExpr); err != nil {
			return err
		}
	case s.IsInterval():
	default:
		return fmt.Errorf("%w: neither cron nor positive interval is set", ErrInvalidSchedule)
	}

	if _, err := s.location(); err != nil {
		return err
	}
	return nil
}

func (s Schedule) location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, s.Timezone, err)
	}
	return loc, nil
}

// CalculateNextDue вычисляет следующее время выполнения после from.
// Для интервалов просто добавляет Interval к from.
// Cron-выражение вычисляется в timezone расписания.
func CalculateNextDue(sched Schedule, from time.Time) (time.Time, error) {
	loc, err := sched.location()
	if err != nil {
		return time.Time{}, err
	}

	// Конвертируем from в нужный timezone
	fromInTz := from.In(loc)

	if sched.IsCron() {
		return calculateNextCron(sched.CronExpr, fromInTz)
	}

	if sched.IsInterval() {
		return calculateNextInterval(sched.Interval, fromInTz), nil
	}

	return time.Time{}, fmt.Errorf("%w: schedule has neither cron nor interval", ErrInvalidSchedule)
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse cron expression %q: %v", ErrInvalidSchedule, cronExpr, err)
	}

	next := schedule.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: cron expression %q never fires", ErrInvalidSchedule, cronExpr)
	}
	return next, nil
}

// calculateNextInterval вычисляет следующее время по интервалу.
func calculateNextInterval(interval time.Duration, from time.Time) time.Time {
	return from.Add(interval)
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %v", ErrInvalidSchedule, cronExpr, err)
	}
	return nil
}
