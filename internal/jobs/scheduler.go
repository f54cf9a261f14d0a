// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: истечение неподтверждённых задач
// и уборку временных каталогов, оставшихся после падения процесса.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Расписания в формате cron (минуты часы день месяц день_недели).
const (
	expireSpec = "*/5 * * * *"
	sweepSpec  = "0 * * * *"
)

// PendingExpirer — координатор загрузок.
type PendingExpirer interface {
	ExpirePending(ctx context.Context) int
}

// ScratchSweeper — корень временных каталогов.
type ScratchSweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	expirer PendingExpirer
	sweeper ScratchSweeper
	maxAge  time.Duration
}

// NewScheduler создаёт планировщик задач в часовом поясе бота.
func NewScheduler(expirer PendingExpirer, sweeper ScratchSweeper, maxAge time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		expirer: expirer,
		sweeper: sweeper,
		maxAge:  maxAge,
	}
}

// Start запускает все фоновые задачи.
// Перед запуском один раз чистит каталоги, оставшиеся с прошлого запуска.
func (s *Scheduler) Start(ctx context.Context) error {
	s.SweepScratch()

	if _, err := s.cron.AddFunc(expireSpec, func() { s.ExpirePending(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.SweepScratch); err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("tz", s.cron.Location().String()).Info("Планировщик задач запущен")
	return nil
}

// ExpirePending завершает задачи, которые слишком долго ждут выбора формата.
func (s *Scheduler) ExpirePending(ctx context.Context) {
	n := s.expirer.ExpirePending(ctx)
	if n > 0 {
		log.WithField("count", n).Info("[CRON] Истекли неподтверждённые задачи")
	}
}

// SweepScratch удаляет старые временные каталоги.
func (s *Scheduler) SweepScratch() {
	n, err := s.sweeper.Sweep(s.maxAge)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка уборки каталога загрузок")
		return
	}
	if n > 0 {
		log.WithField("count", n).Info("[CRON] Удалены старые каталоги загрузок")
	}
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
