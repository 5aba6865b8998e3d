// Package users — service.go содержит бизнес-логику учёта пользователей
// и наград. Сервис связывает обработчики Telegram-событий с репозиторием
// и применяет политику бесплатных публикаций.
package users

import (
	"context"

	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/features/rewards"
)

// Store — операции хранилища, нужные сервису.
// Реализуется *Repository; в тестах подменяется фейком.
type Store interface {
	Upsert(ctx context.Context, userID int64, username string) error
	GetByUserID(ctx context.Context, userID int64) (*User, error)
	IncrementVerifiedClaims(ctx context.Context, userID int64) (int, error)
	AddFreeCredits(ctx context.Context, userID int64, delta int) error
	SpendFreeCredit(ctx context.Context, userID int64) error
}

// Service управляет пользователями и их наградами.
type Service struct {
	store Store
	// порог «каждые N заявок = 1 бесплатная публикация»
	claimsPerCredit int
}

// NewService создаёт сервис пользователей.
func NewService(store Store, claimsPerCredit int) *Service {
	if claimsPerCredit <= 0 {
		claimsPerCredit = rewards.DefaultClaimsPerCredit
	}
	return &Service{store: store, claimsPerCredit: claimsPerCredit}
}

// EnsureUser гарантирует, что пользователь есть в базе (идемпотентно).
// Вызывается на каждом входящем апдейте.
func (s *Service) EnsureUser(ctx context.Context, userID int64, username string) error {
	return s.store.Upsert(ctx, userID, username)
}

// Get возвращает пользователя по Telegram ID.
func (s *Service) Get(ctx context.Context, userID int64) (*User, error) {
	return s.store.GetByUserID(ctx, userID)
}

// RecordVerifiedClaim фиксирует одобрение заявки пользователя:
// увеличивает verified_claims и, если счётчик пересёк кратную порогу
// отметку, начисляет бесплатную публикацию.
//
// Возвращает новое значение счётчика и признак «рубеж пройден».
// Инкремент и начисление — два отдельных запроса; счётчик пересекает
// каждую отметку ровно один раз, поэтому двойного начисления не бывает.
func (s *Service) RecordVerifiedClaim(ctx context.Context, userID int64) (count int, milestone bool, err error) {
	count, err = s.store.IncrementVerifiedClaims(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	delta := rewards.FreeCreditDelta(count-1, count, s.claimsPerCredit)
	if delta > 0 {
		if err := s.store.AddFreeCredits(ctx, userID, delta); err != nil {
			// Счётчик уже увеличен; кредит доначислит админ вручную по логу
			log.WithError(err).WithField("user_id", userID).Error("Не удалось начислить бесплатную публикацию")
			return count, true, err
		}
		log.WithFields(log.Fields{
			"user_id":         userID,
			"verified_claims": count,
		}).Info("Открыта бесплатная публикация")
	}

	return count, delta > 0, nil
}

// SpendFreeCredit списывает одну бесплатную публикацию.
// Возвращает common.ErrNoFreeCredits, если списывать нечего.
func (s *Service) SpendFreeCredit(ctx context.Context, userID int64) error {
	return s.store.SpendFreeCredit(ctx, userID)
}

// ClaimsPerCredit возвращает действующий порог выдачи кредитов.
func (s *Service) ClaimsPerCredit() int {
	return s.claimsPerCredit
}
