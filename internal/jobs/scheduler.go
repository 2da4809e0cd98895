// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание housekeeping: отмена зависших
// сессий и очистка устаревших записей присутствия.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Sweeper отменяет зависшие сессии.
type Sweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PresenceKeeper чистит записи присутствия и считает онлайн.
type PresenceKeeper interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
	OnlineCount(ctx context.Context) (int, error)
	TTL() time.Duration
}

// Options — параметры планировщика.
type Options struct {
	Schedule   string        // cron-выражение или @every
	StaleAfter time.Duration // возраст зависшей сессии
	Timezone   string
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	sessions Sweeper
	presence PresenceKeeper
	opts     Options
}

// NewScheduler создаёт планировщик задач в заданном часовом поясе.
func NewScheduler(sessions Sweeper, presence PresenceKeeper, opts Options) *Scheduler {
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC", opts.Timezone)
		loc = time.UTC
	}
	if opts.Schedule == "" {
		opts.Schedule = "@every 10m"
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		sessions: sessions,
		presence: presence,
		opts:     opts,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.opts.Schedule, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("некорректное расписание %q: %w", s.opts.Schedule, err)
	}

	s.cron.Start()
	log.WithField("schedule", s.opts.Schedule).Info("Планировщик задач запущен")
	return nil
}

// RunOnce выполняет один проход housekeeping.
func (s *Scheduler) RunOnce(ctx context.Context) {
	log.Debug("[CRON] Housekeeping")

	if s.sessions != nil {
		if _, err := s.sessions.SweepStale(ctx, s.opts.StaleAfter); err != nil {
			log.WithError(err).Error("[CRON] Ошибка отмены зависших сессий")
		}
	}

	if s.presence != nil {
		// Записи присутствия живут 10 TTL, потом удаляются.
		if _, err := s.presence.Prune(ctx, 10*s.presence.TTL()); err != nil {
			log.WithError(err).Error("[CRON] Ошибка очистки присутствия")
		}
		online, err := s.presence.OnlineCount(ctx)
		if err != nil {
			log.WithError(err).Warn("[CRON] Не удалось посчитать онлайн")
			return
		}
		log.WithField("online", online).Info("[CRON] Пользователей в сети")
	}
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
