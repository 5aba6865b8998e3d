// Package drafts — service.go содержит переходы пошаговых диалогов.
// Каждый сеттер заполняет своё поле и двигает шаг вперёд; после каждого
// перехода черновик сохраняется, поэтому диалог переживает рестарт.
package drafts

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Store — операции хранилища черновиков. Реализуется *Repository.
type Store interface {
	Upsert(ctx context.Context, d *Draft) error
	Get(ctx context.Context, userID int64) (*Draft, error)
	Delete(ctx context.Context, userID int64) error
	DeleteStale(ctx context.Context, ttl time.Duration) (int, error)
}

// Service управляет черновиками диалогов.
type Service struct {
	store Store
}

// NewService создаёт сервис черновиков.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// BeginSubmission начинает диалог публикации с шага выбора плана.
// Существующий черновик пользователя сбрасывается.
func (s *Service) BeginSubmission(ctx context.Context, userID int64) (*Draft, error) {
	d := &Draft{UserID: userID, Kind: KindSubmit, Step: StepSubmitPlan}
	if err := s.store.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// BeginClaim начинает диалог заявки: ждём скриншот по выбранной ссылке.
func (s *Service) BeginClaim(ctx context.Context, userID, linkID int64) (*Draft, error) {
	d := &Draft{UserID: userID, Kind: KindClaim, Step: StepClaimProof, LinkID: linkID}
	if err := s.store.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get возвращает активный черновик пользователя (nil — нет диалога).
func (s *Service) Get(ctx context.Context, userID int64) (*Draft, error) {
	return s.store.Get(ctx, userID)
}

// SetPlan фиксирует выбранный план и переводит на выбор категории.
func (s *Service) SetPlan(ctx context.Context, d *Draft, planCode string) error {
	d.Plan = planCode
	d.Step = StepSubmitCategory
	return s.store.Upsert(ctx, d)
}

// SetCategory фиксирует категорию и переводит на ввод названия сервиса.
func (s *Service) SetCategory(ctx context.Context, d *Draft, category string) error {
	d.Category = category
	d.Step = StepSubmitService
	return s.store.Upsert(ctx, d)
}

// SetService фиксирует название сервиса и переводит на ввод URL.
func (s *Service) SetService(ctx context.Context, d *Draft, serviceName string) error {
	d.ServiceName = serviceName
	d.Step = StepSubmitURL
	return s.store.Upsert(ctx, d)
}

// SetURL фиксирует URL и переводит на ввод описания.
func (s *Service) SetURL(ctx context.Context, d *Draft, url string) error {
	d.URL = url
	d.Step = StepSubmitDescription
	return s.store.Upsert(ctx, d)
}

// SetDescription фиксирует описание. Диалог остаётся на этом шаге:
// дальше либо создание ссылки (бесплатные планы), либо переход
// в ожидание оплаты через AwaitPayment.
func (s *Service) SetDescription(ctx context.Context, d *Draft, description string) error {
	d.Description = description
	return s.store.Upsert(ctx, d)
}

// AwaitPayment переводит диалог в ожидание оплаты Stars.
func (s *Service) AwaitPayment(ctx context.Context, d *Draft) error {
	d.Step = StepSubmitPayment
	return s.store.Upsert(ctx, d)
}

// Clear завершает диалог (успех или отмена).
func (s *Service) Clear(ctx context.Context, userID int64) error {
	return s.store.Delete(ctx, userID)
}

// CleanupStale удаляет залежавшиеся черновики. Вызывается кроном,
// чтобы брошенные диалоги не копились бесконечно.
func (s *Service) CleanupStale(ctx context.Context, ttl time.Duration) error {
	n, err := s.store.DeleteStale(ctx, ttl)
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithField("deleted", n).Info("Очищены устаревшие черновики")
	}
	return nil
}
