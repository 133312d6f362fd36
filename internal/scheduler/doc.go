// Package scheduler запускает definitions и standalone задачи по расписанию.
//
// Scheduler периодически выбирает schedules с истекшим next_due_at,
// запускает цель через orchestrator.Trigger и сдвигает next_due_at.
//
// Структура:
//   - scheduler.go — цикл Run, Tick и запуск цели
//   - cron.go      — cron-выражения, интервалы и timezone
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: repo.NewScheduleRepo(pool),
//	    Launcher:  trigger,
//	    Leader:    repo.NewAdvisoryLock(pool, repo.SchedulerLockKey),
//	    Logger:    logger,
//	})
//	err := sched.Run(ctx)
//
// Leader Election:
//
// Tick выполняет только процесс, удерживающий pg_try_advisory_lock.
// Остальные экземпляры ждут и проверяют lock на каждом тике.
//
// Расписание, цель которого удалена или правило которого некорректно,
// выключается (enabled = false).
package scheduler
