// Package services ищет истекающие пробные периоды и ставит напоминания в очередь.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/metrics"
	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// AccountRepository источник аккаунтов на пробном периоде.
type AccountRepository interface {
	FindTrialsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error)
	MarkTrialReminderSent(ctx context.Context, id int64, at time.Time) error
}

// Publisher отправляет сообщения в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// SchedulerService периодически публикует напоминания об окончании триала.
type SchedulerService struct {
	repo      AccountRepository
	publisher Publisher
	log       *slog.Logger
	interval  time.Duration
	window    time.Duration
	now       func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo AccountRepository, publisher Publisher, log *slog.Logger,
	interval, window time.Duration) *SchedulerService {
	return &SchedulerService{
		repo:      repo,
		publisher: publisher,
		log:       log,
		interval:  interval,
		window:    window,
		now:       time.Now,
	}
}

// Run выполняет проход сразу и затем каждые interval, пока не отменён ctx.
func (s *SchedulerService) Run(ctx context.Context) {
	s.RemindExpiringTrials(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RemindExpiringTrials(ctx)
		}
	}
}

// RemindExpiringTrials публикует сообщение для каждого триала,
// заканчивающегося в [now, now+window), и отмечает аккаунт, чтобы следующие
// проходы его не трогали. Возвращает число отправленных.
func (s *SchedulerService) RemindExpiringTrials(ctx context.Context) int {
	const op = "services.scheduler.RemindExpiringTrials"
	log := s.log.With(slog.String("op", op))

	from := s.now().UTC()
	to := from.Add(s.window)
	log.Info("looking for expiring trials", slog.Time("from", from), slog.Time("to", to))

	accounts, err := s.repo.FindTrialsExpiringBetween(ctx, from, to)
	if err != nil {
		log.Error("failed to find expiring trials", sl.Err(err))
		return 0
	}
	if len(accounts) == 0 {
		log.Info("no expiring trials found")
		return 0
	}
	log.Info("found expiring trials", slog.Int("count", len(accounts)))

	published := 0
	for _, acc := range accounts {
		if acc.TrialExpiresAt == nil {
			continue
		}
		msg := models.TrialExpiringMessage{
			AccountID:      acc.ID,
			Email:          acc.Email,
			TrialExpiresAt: acc.TrialExpiresAt.UTC(),
		}
		if err := s.publisher.Publish(ctx, rabbitmq.RoutingKeyTrialExpiring, msg); err != nil {
			log.Error("failed to publish message", slog.Int64("account_id", acc.ID), sl.Err(err))
			continue
		}
		if err := s.repo.MarkTrialReminderSent(ctx, acc.ID, from); err != nil {
			log.Error("failed to mark reminder as sent", slog.Int64("account_id", acc.ID), sl.Err(err))
		}
		metrics.RemindersPublishedTotal.Inc()
		published++
	}
	return published
}
