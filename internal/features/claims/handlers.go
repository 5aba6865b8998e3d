// Package claims — handlers.go обрабатывает подачу заявок:
// кнопка «я воспользовался ссылкой» → скриншот → уведомление админам.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/common"
	"refloop.app/referral-bot/internal/config"
	"refloop.app/referral-bot/internal/features/drafts"
	"refloop.app/referral-bot/internal/features/users"
)

// Handler обрабатывает подачу заявок.
type Handler struct {
	service      *Service
	userService  *users.Service
	draftService *drafts.Service
	cfg          *config.Config
	bot          *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик заявок.
func NewHandler(service *Service, userService *users.Service, draftService *drafts.Service, cfg *config.Config, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:      service,
		userService:  userService,
		draftService: draftService,
		cfg:          cfg,
		bot:          bot,
	}
}

// HandleCallback обрабатывает кнопку "claim_<id>" из каталога.
// Возвращает true, если callback принадлежит этому обработчику.
func (h *Handler) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) bool {
	if !strings.HasPrefix(query.Data, "claim_") {
		return false
	}
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	linkID, err := strconv.ParseInt(strings.TrimPrefix(query.Data, "claim_"), 10, 64)
	if err != nil || linkID <= 0 {
		h.answerCallback(query.ID, "Bad link id")
		return true
	}

	// Ранние проверки до запроса скриншота: пользователю не предлагают
	// прислать доказательство, если заявка заведомо не пройдёт
	link, err := h.service.links.Get(ctx, linkID)
	if err != nil || !link.Available() {
		h.answerCallback(query.ID, "This link is no longer available")
		return true
	}
	if !h.service.allowSelfClaim && link.OwnerUserID == userID {
		h.answerCallback(query.ID, "You cannot claim your own link")
		return true
	}
	exists, err := h.service.store.Exists(ctx, userID, linkID)
	if err == nil && exists {
		h.answerCallback(query.ID, "You already claimed this link")
		return true
	}

	if _, err := h.draftService.BeginClaim(ctx, userID, linkID); err != nil {
		log.WithError(err).Error("Ошибка создания черновика заявки")
		h.answerCallback(query.ID, "Something went wrong")
		return true
	}

	h.answerCallback(query.ID, "")
	h.sendMessage(chatID, fmt.Sprintf(
		"✋ Claiming %s.\n\nSend a screenshot proving you signed up through the link. Send /cancel to abort.",
		link.ServiceName))
	return true
}

// HandlePhoto обрабатывает скриншот-доказательство.
// Возвращает true, если у пользователя есть черновик заявки.
func (h *Handler) HandlePhoto(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) bool {
	d, err := h.draftService.Get(ctx, userID)
	if err != nil || d == nil || d.Kind != drafts.KindClaim || d.Step != drafts.StepClaimProof {
		return false
	}
	if len(msg.Photo) == 0 {
		return false
	}

	// Telegram присылает варианты фото по возрастанию размера
	proofFileID := msg.Photo[len(msg.Photo)-1].FileID

	claimID, err := h.service.Create(ctx, userID, d.LinkID, proofFileID)
	if err != nil {
		h.draftService.Clear(ctx, userID)
		switch {
		case errors.Is(err, common.ErrLinkNotFound), errors.Is(err, common.ErrLinkExhausted):
			h.sendMessage(chatID, "❌ This link is no longer available.")
		case errors.Is(err, common.ErrOwnLink):
			h.sendMessage(chatID, "❌ You cannot claim your own link.")
		case errors.Is(err, common.ErrDuplicateClaim):
			h.sendMessage(chatID, "❌ You already claimed this link.")
		default:
			log.WithError(err).Error("Ошибка подачи заявки")
			h.sendMessage(chatID, "❌ Something went wrong, try again later.")
		}
		return true
	}

	h.draftService.Clear(ctx, userID)
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Claim #%d submitted! An admin will review your screenshot soon.", claimID))

	h.notifyAdmins(ctx, claimID, userID, d.LinkID, proofFileID)
	return true
}

// notifyAdmins присылает новую заявку всем админам со скриншотом.
func (h *Handler) notifyAdmins(ctx context.Context, claimID, claimantID, linkID int64, proofFileID string) {
	claimantName := strconv.FormatInt(claimantID, 10)
	if user, err := h.userService.Get(ctx, claimantID); err == nil {
		claimantName = user.DisplayName()
	}

	caption := fmt.Sprintf(
		"📋 New claim #%d\nFrom: %s\nLink: #%d\n\n/approve %d · /reject %d",
		claimID, claimantName, linkID, claimID, claimID)

	for _, adminID := range h.cfg.AdminIDs {
		photo := tgbotapi.NewPhoto(adminID, tgbotapi.FileID(proofFileID))
		photo.Caption = caption
		if _, err := h.bot.Send(photo); err != nil {
			log.WithError(err).WithField("admin_id", adminID).Error("Ошибка уведомления админа")
		}
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}

func (h *Handler) answerCallback(id, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.WithError(err).Error("Ошибка ответа на callback")
	}
}
