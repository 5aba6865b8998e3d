// Package claims — service.go содержит state-машину заявки.
// Подача проверяет доступность ссылки и дубликаты; одобрение атомарно
// занимает слот ссылки, ведёт счётчики наград и при гонках переводит
// заявку в авто-отказ вместо вечного pending.
package claims

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/common"
	"refloop.app/referral-bot/internal/features/links"
)

// Причины авто-отказа при одобрении.
const (
	ReasonLinkGone      = "link no longer exists"
	ReasonLinkExhausted = "link exhausted"
)

// Store — операции хранилища заявок. Реализуется *Repository.
type Store interface {
	Create(ctx context.Context, claimantID, linkID int64, proofFileID string) (int64, error)
	GetByID(ctx context.Context, id int64) (*Claim, error)
	Exists(ctx context.Context, claimantID, linkID int64) (bool, error)
	Transition(ctx context.Context, id int64, to Status) error
	MarkRewarded(ctx context.Context, id int64) error
	ListPending(ctx context.Context) ([]*PendingDetail, error)
}

// LinkGateway — нужные сервису операции над ссылками.
// Реализуется *links.Service.
type LinkGateway interface {
	Get(ctx context.Context, id int64) (*links.Link, error)
	RegisterClaimUse(ctx context.Context, id int64) (*links.UseSnapshot, error)
	ReleaseClaimUse(ctx context.Context, id int64) error
	DeleteIfExhausted(ctx context.Context, id int64) (bool, error)
}

// UserGateway — нужные сервису операции над пользователями.
// Реализуется *users.Service.
type UserGateway interface {
	RecordVerifiedClaim(ctx context.Context, userID int64) (count int, milestone bool, err error)
}

// Service управляет жизненным циклом заявок.
type Service struct {
	store Store
	links LinkGateway
	users UserGateway
	// Разрешать ли заявки на собственные ссылки (конфиг-флаг)
	allowSelfClaim bool
}

// NewService создаёт сервис заявок.
func NewService(store Store, linkGw LinkGateway, userGw UserGateway, allowSelfClaim bool) *Service {
	return &Service{
		store:          store,
		links:          linkGw,
		users:          userGw,
		allowSelfClaim: allowSelfClaim,
	}
}

// Create подаёт заявку на использование ссылки.
// Проверки по порядку: ссылка существует и доступна; заявитель не
// владелец (если самоиспользование запрещено); дубликата нет.
// Дубликат в итоге отсекает уникальный индекс, так что гонка двух
// параллельных подач невозможна.
func (s *Service) Create(ctx context.Context, claimantID, linkID int64, proofFileID string) (int64, error) {
	link, err := s.links.Get(ctx, linkID)
	if err != nil {
		return 0, err // common.ErrLinkNotFound либо StoreError
	}
	if !link.Available() {
		return 0, common.ErrLinkExhausted
	}
	if !s.allowSelfClaim && link.OwnerUserID == claimantID {
		return 0, common.ErrOwnLink
	}

	id, err := s.store.Create(ctx, claimantID, linkID, proofFileID)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"claim_id":    id,
		"claimant_id": claimantID,
		"link_id":     linkID,
	}).Info("Заявка подана")

	return id, nil
}

// Get возвращает заявку по ID.
func (s *Service) Get(ctx context.Context, id int64) (*Claim, error) {
	return s.store.GetByID(ctx, id)
}

// Approve одобряет pending-заявку.
//
// Ссылка перепроверяется именно здесь, а не доверяется более раннему
// чтению: ревью асинхронно, между подачей и одобрением ссылка могла
// исчезнуть или выбрать лимит. В обоих случаях заявка переводится в
// rejected с причиной в результате — заявитель не остаётся в вечном
// pending, а админ видит, что произошло.
//
// Успешный путь: слот ссылки занимается атомарным инкрементом ДО
// перевода в approved, чтобы проигравший гонку за последний слот
// не успел пометить заявку одобренной.
func (s *Service) Approve(ctx context.Context, claimID, reviewerID int64) (*ApprovalResult, error) {
	claim, err := s.store.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusPending {
		return nil, common.ErrClaimNotPending
	}

	result := &ApprovalResult{
		ClaimID:        claimID,
		ClaimantUserID: claim.ClaimantUserID,
	}

	// Занимаем слот ссылки. Неудача — авто-отказ, не ошибка.
	snapshot, err := s.links.RegisterClaimUse(ctx, claim.LinkID)
	switch {
	case errors.Is(err, common.ErrLinkNotFound):
		return s.autoReject(ctx, result, ReasonLinkGone, reviewerID)
	case errors.Is(err, common.ErrLinkExhausted):
		return s.autoReject(ctx, result, ReasonLinkExhausted, reviewerID)
	case err != nil:
		return nil, err
	}

	// Слот занят — фиксируем одобрение. Условный UPDATE отсечёт
	// параллельное ревью той же заявки; проигравший возвращает слот.
	if err := s.store.Transition(ctx, claimID, StatusApproved); err != nil {
		if relErr := s.links.ReleaseClaimUse(ctx, claim.LinkID); relErr != nil {
			log.WithError(relErr).WithField("link_id", claim.LinkID).Error("Не удалось вернуть слот ссылки")
		}
		return nil, err
	}

	deleted, err := s.links.DeleteIfExhausted(ctx, claim.LinkID)
	if err != nil {
		// Слот учтён и заявка одобрена; недоудалённую ссылку
		// приберёт следующий вызов DeleteIfExhausted
		log.WithError(err).WithField("link_id", claim.LinkID).Error("Ошибка автоудаления ссылки")
	}

	count, milestone, err := s.users.RecordVerifiedClaim(ctx, claim.ClaimantUserID)
	if err != nil {
		log.WithError(err).WithField("user_id", claim.ClaimantUserID).Error("Ошибка учёта награды")
	}

	result.VerifiedClaims = count
	result.Milestone = milestone
	result.LinkDeleted = deleted
	result.LinkOwnerID = snapshot.OwnerUserID
	result.ServiceName = snapshot.ServiceName
	result.ClaimedCount = snapshot.ClaimedCount
	result.Capacity = snapshot.Capacity

	log.WithFields(log.Fields{
		"claim_id":     claimID,
		"reviewer_id":  reviewerID,
		"link_id":      claim.LinkID,
		"link_deleted": deleted,
		"occupancy":    common.FormatOccupancy(snapshot.ClaimedCount, snapshot.Capacity),
	}).Info("Заявка одобрена")

	return result, nil
}

// autoReject переводит заявку в rejected из-за состояния ссылки.
func (s *Service) autoReject(ctx context.Context, result *ApprovalResult, reason string, reviewerID int64) (*ApprovalResult, error) {
	if err := s.store.Transition(ctx, result.ClaimID, StatusRejected); err != nil {
		return nil, err
	}
	result.AutoRejected = true
	result.RejectReason = reason

	log.WithFields(log.Fields{
		"claim_id":    result.ClaimID,
		"reviewer_id": reviewerID,
		"reason":      reason,
	}).Info("Заявка отклонена автоматически")

	return result, nil
}

// Reject отклоняет pending-заявку. Побочных эффектов на ссылку
// и счётчики пользователя нет.
func (s *Service) Reject(ctx context.Context, claimID, reviewerID int64) error {
	if err := s.store.Transition(ctx, claimID, StatusRejected); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"claim_id":    claimID,
		"reviewer_id": reviewerID,
	}).Info("Заявка отклонена")
	return nil
}

// MarkRewarded подтверждает выдачу награды по одобренной заявке.
// Вызывается платёжным слоем асинхронно; идемпотентна.
func (s *Service) MarkRewarded(ctx context.Context, claimID int64) error {
	return s.store.MarkRewarded(ctx, claimID)
}

// ListPending возвращает очередь ревью для админ-панели.
func (s *Service) ListPending(ctx context.Context) ([]*PendingDetail, error) {
	return s.store.ListPending(ctx)
}
