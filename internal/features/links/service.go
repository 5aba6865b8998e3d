// Package links — service.go содержит бизнес-логику жизненного цикла ссылок:
// валидация публикаций, подборка доступных ссылок, учёт использований
// и автоудаление при исчерпании лимита.
package links

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/common"
)

// Store — операции хранилища, нужные сервису.
// Реализуется *Repository; в тестах подменяется фейком.
type Store interface {
	Create(ctx context.Context, l *Link) (int64, error)
	GetByID(ctx context.Context, id int64) (*Link, error)
	ListAvailable(ctx context.Context, category string) ([]*Link, error)
	Categories(ctx context.Context) ([]string, error)
	IncrementClaims(ctx context.Context, id int64) (*UseSnapshot, error)
	DecrementClaims(ctx context.Context, id int64) error
	DeleteIfExhausted(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) (int, error)
	ListAll(ctx context.Context) ([]*Link, error)
}

// Service управляет жизненным циклом реферальных ссылок.
type Service struct {
	store Store
}

// NewService создаёт сервис ссылок.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create валидирует поля и публикует новую ссылку.
// Лимит заявок и уплаченные Stars берутся из тарифного плана.
// Возвращает ID ссылки или *common.ValidationError.
func (s *Service) Create(ctx context.Context, ownerID int64, plan Plan, category, serviceName, url, description string) (int64, error) {
	if !ValidCategory(category) {
		return 0, common.NewValidationError("category", "неизвестная категория")
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return 0, common.NewValidationError("service_name", "пустое название сервиса")
	}
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return 0, common.NewValidationError("url", "ссылка должна начинаться с http:// или https://")
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return 0, common.NewValidationError("description",
			"описание длиннее "+strconv.Itoa(MaxDescriptionLen)+" символов")
	}
	if plan.Capacity <= 0 {
		return 0, common.NewValidationError("capacity", "лимит заявок должен быть положительным")
	}

	id, err := s.store.Create(ctx, &Link{
		OwnerUserID: ownerID,
		Category:    category,
		ServiceName: serviceName,
		URL:         url,
		Description: description,
		Capacity:    plan.Capacity,
		PaidStars:   plan.PriceStars,
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"link_id":  id,
		"owner_id": ownerID,
		"plan":     plan.Code,
		"category": category,
		"capacity": plan.Capacity,
	}).Info("Ссылка опубликована")

	return id, nil
}

// Get возвращает ссылку по ID.
func (s *Service) Get(ctx context.Context, id int64) (*Link, error) {
	return s.store.GetByID(ctx, id)
}

// ListAvailable возвращает доступные ссылки категории, свежие первыми.
// Пустая категория = все категории.
func (s *Service) ListAvailable(ctx context.Context, category string) ([]*Link, error) {
	return s.store.ListAvailable(ctx, category)
}

// Categories возвращает категории с доступными ссылками.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.store.Categories(ctx)
}

// RegisterClaimUse атомарно учитывает одно использование ссылки.
// common.ErrLinkExhausted здесь — проигранная гонка за последний слот,
// а не фатальная ошибка: вызывающий код переводит её в авто-отказ.
func (s *Service) RegisterClaimUse(ctx context.Context, id int64) (*UseSnapshot, error) {
	return s.store.IncrementClaims(ctx, id)
}

// ReleaseClaimUse возвращает занятый слот обратно.
// Нужен одному сценарию: слот занят, но одобрение заявки не состоялось.
func (s *Service) ReleaseClaimUse(ctx context.Context, id int64) error {
	return s.store.DecrementClaims(ctx, id)
}

// DeleteIfExhausted удаляет ссылку, если лимит выбран, и сообщает,
// произошло ли удаление. Вызывается после каждого RegisterClaimUse.
// Оставшиеся pending-заявки на удалённую ссылку станут не-одобряемыми:
// Approve перепроверяет существование ссылки.
func (s *Service) DeleteIfExhausted(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.DeleteIfExhausted(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		log.WithField("link_id", id).Info("Ссылка выбрала лимит и удалена")
	}
	return deleted, nil
}

// Delete принудительно удаляет ссылку с каскадом заявок (админ-действие).
func (s *Service) Delete(ctx context.Context, id int64) (int, error) {
	return s.store.Delete(ctx, id)
}

// ListAll возвращает все ссылки (админ-панель).
func (s *Service) ListAll(ctx context.Context) ([]*Link, error) {
	return s.store.ListAll(ctx)
}
