// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасная чистка протухших
// черновиков и ежедневный дайджест ожидающих заявок админам.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/config"
	"refloop.app/referral-bot/internal/features/claims"
	"refloop.app/referral-bot/internal/features/drafts"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron         *cron.Cron
	draftService *drafts.Service
	claimService *claims.Service
	cfg          *config.Config
	sendFunc     func(userID int64, text string)
}

// NewScheduler создаёт планировщик задач (UTC).
func NewScheduler(draftService *drafts.Service, claimService *claims.Service, cfg *config.Config, sendFunc func(userID int64, text string)) *Scheduler {
	c := cron.New(cron.WithLocation(time.UTC))

	return &Scheduler{
		cron:         c,
		draftService: draftService,
		claimService: claimService,
		cfg:          cfg,
		sendFunc:     sendFunc,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Ежечасная чистка брошенных диалогов
	s.cron.AddFunc("0 * * * *", func() {
		log.Debug("[CRON] Чистка протухших черновиков")
		if err := s.draftService.CleanupStale(ctx, s.cfg.DraftTTL); err != nil {
			log.WithError(err).Error("[CRON] Ошибка чистки черновиков")
		}
	})

	// Ежедневный дайджест ожидающих заявок в 09:00 UTC
	s.cron.AddFunc("0 9 * * *", func() {
		log.Debug("[CRON] Дайджест ожидающих заявок")
		if err := s.sendPendingDigest(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка дайджеста")
		}
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен (UTC)")
}

// sendPendingDigest напоминает админам о заявках, ждущих ревью.
func (s *Scheduler) sendPendingDigest(ctx context.Context) error {
	pending, err := s.claimService.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	oldest := pending[0]
	text := fmt.Sprintf(
		"⏰ %d claim(s) are waiting for review.\nOldest: #%d from %s.\nOpen /admin to review.",
		len(pending), oldest.ClaimID, oldest.CreatedAt.UTC().Format("2006-01-02 15:04"))

	for _, adminID := range s.cfg.AdminIDs {
		s.sendFunc(adminID, text)
	}
	return nil
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
