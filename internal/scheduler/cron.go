package scheduler

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // timezone расписаний не зависит от zoneinfo хоста

	"github.com/robfig/cron/v3"

	"github.com/shaiso/zuriflow/internal/domain"
)

// cronParser — пятипольные выражения и дескрипторы (@hourly, @every 5m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время запуска после from.
//
// Cron считается в timezone расписания, интервал просто прибавляется к from.
// Результат в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	switch {
	case sched.IsCron():
		expr, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
		}
		return expr.Next(from.In(loc)).UTC(), nil
	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}
	return time.Time{}, domain.ErrScheduleRule
}

// Validate проверяет расписание целиком: цель, правило, cron и timezone.
func Validate(sched *domain.Schedule) error {
	var errs []error
	if err := sched.Validate(); err != nil {
		errs = append(errs, err)
	}
	if sched.IsCron() {
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := loadLocation(sched.Timezone); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}
