// Package links — handlers.go обрабатывает публикацию ссылок
// (пошаговый диалог с оплатой Stars) и каталог доступных ссылок.
package links

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

// PromoGate сообщает, доступен ли бесплатный план single.
// Реализуется админ-сервисом.
type PromoGate interface {
	PromoMode() bool
}

// Handler обрабатывает диалоги публикации и каталог ссылок.
type Handler struct {
	service      *Service
	userService  *users.Service
	draftService *drafts.Service
	promo        PromoGate
	cfg          *config.Config
	bot          *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик ссылок.
func NewHandler(service *Service, userService *users.Service, draftService *drafts.Service, promo PromoGate, cfg *config.Config, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:      service,
		userService:  userService,
		draftService: draftService,
		promo:        promo,
		cfg:          cfg,
		bot:          bot,
	}
}

// --- Публикация: план → категория → сервис → URL → описание → (оплата) ---

// StartSubmission начинает диалог публикации: показывает тарифные планы.
func (h *Handler) StartSubmission(ctx context.Context, chatID, userID int64) {
	user, err := h.userService.Get(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения пользователя")
		h.sendMessage(chatID, "❌ Something went wrong, try again later.")
		return
	}

	if _, err := h.draftService.BeginSubmission(ctx, userID); err != nil {
		log.WithError(err).Error("Ошибка создания черновика")
		h.sendMessage(chatID, "❌ Something went wrong, try again later.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range AllPlans {
		switch p.Code {
		case PlanSingle.Code:
			if !h.promo.PromoMode() {
				continue
			}
		case PlanCredit.Code:
			if user.FreeCredits <= 0 {
				continue
			}
		}
		title := p.Title
		if p.PriceStars > 0 {
			title = fmt.Sprintf("%s — %d⭐", p.Title, p.PriceStars)
		}
		if p.Code == PlanCredit.Code {
			title = fmt.Sprintf("%s (%d left)", p.Title, user.FreeCredits)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(title, "plan_"+p.Code),
		))
	}

	msg := tgbotapi.NewMessage(chatID, "➕ Submit a referral link.\n\nChoose a plan:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

// HandleCallback обрабатывает инлайн-кнопки диалога публикации и каталога.
// Возвращает true, если callback принадлежит этому обработчику.
func (h *Handler) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) bool {
	data := query.Data
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	switch {
	case data == "menu_submit":
		h.answerCallback(query.ID, "")
		h.StartSubmission(ctx, chatID, userID)
	case data == "menu_browse":
		h.answerCallback(query.ID, "")
		h.ShowCategories(ctx, chatID)
	case strings.HasPrefix(data, "plan_"):
		h.handlePlanChosen(ctx, query, strings.TrimPrefix(data, "plan_"))
	case strings.HasPrefix(data, "cat_"):
		h.handleCategoryChosen(ctx, query, strings.TrimPrefix(data, "cat_"))
	case strings.HasPrefix(data, "browse_cat_"):
		h.answerCallback(query.ID, "")
		h.showLinks(ctx, chatID, strings.TrimPrefix(data, "browse_cat_"))
	default:
		return false
	}
	return true
}

// handlePlanChosen проверяет доступность плана и переходит к выбору категории.
func (h *Handler) handlePlanChosen(ctx context.Context, query *tgbotapi.CallbackQuery, planCode string) {
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	d, err := h.draftService.Get(ctx, userID)
	if err != nil || d == nil || d.Step != drafts.StepSubmitPlan {
		h.answerCallback(query.ID, "Start over with /submit")
		return
	}

	plan, ok := PlanByCode(planCode)
	if !ok {
		h.answerCallback(query.ID, "Unknown plan")
		return
	}

	// Доступность плана перепроверяется при выборе: промо-режим мог
	// выключиться, кредит — израсходоваться между показом и нажатием
	switch plan.Code {
	case PlanSingle.Code:
		if !h.promo.PromoMode() {
			h.answerCallback(query.ID, "The promo plan is no longer available")
			return
		}
	case PlanCredit.Code:
		user, err := h.userService.Get(ctx, userID)
		if err != nil || user.FreeCredits <= 0 {
			h.answerCallback(query.ID, "No free submissions left")
			return
		}
	}

	if err := h.draftService.SetPlan(ctx, d, plan.Code); err != nil {
		log.WithError(err).Error("Ошибка сохранения плана")
		h.answerCallback(query.ID, "Something went wrong")
		return
	}

	h.answerCallback(query.ID, "")

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, c := range Categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c, "cat_"+strconv.Itoa(i)),
		))
	}
	msg := tgbotapi.NewMessage(chatID, "Choose a category:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

// handleCategoryChosen сохраняет категорию и запрашивает название сервиса.
func (h *Handler) handleCategoryChosen(ctx context.Context, query *tgbotapi.CallbackQuery, idxRaw string) {
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	d, err := h.draftService.Get(ctx, userID)
	if err != nil || d == nil || d.Step != drafts.StepSubmitCategory {
		h.answerCallback(query.ID, "Start over with /submit")
		return
	}

	idx, err := strconv.Atoi(idxRaw)
	if err != nil || idx < 0 || idx >= len(Categories) {
		h.answerCallback(query.ID, "Unknown category")
		return
	}

	if err := h.draftService.SetCategory(ctx, d, Categories[idx]); err != nil {
		log.WithError(err).Error("Ошибка сохранения категории")
		h.answerCallback(query.ID, "Something went wrong")
		return
	}

	h.answerCallback(query.ID, "")
	h.sendMessage(chatID, "Send the service name (e.g. \"Revolut\"):")
}

// HandleText обрабатывает текстовые шаги диалога публикации.
// Вызывается маршрутизатором, когда у пользователя есть черновик
// публикации. Возвращает true, если текст обработан.
func (h *Handler) HandleText(ctx context.Context, chatID, userID int64, text string, d *drafts.Draft) bool {
	if d == nil || d.Kind != drafts.KindSubmit {
		return false
	}

	switch d.Step {
	case drafts.StepSubmitService:
		name := strings.TrimSpace(text)
		if name == "" {
			h.sendMessage(chatID, "The service name cannot be empty, try again:")
			return true
		}
		if err := h.draftService.SetService(ctx, d, name); err != nil {
			h.failDraft(chatID, err)
			return true
		}
		h.sendMessage(chatID, "Send your referral link (must start with http:// or https://):")
	case drafts.StepSubmitURL:
		url := strings.TrimSpace(text)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			h.sendMessage(chatID, "❌ The link must start with http:// or https://, try again:")
			return true
		}
		if err := h.draftService.SetURL(ctx, d, url); err != nil {
			h.failDraft(chatID, err)
			return true
		}
		h.sendMessage(chatID, fmt.Sprintf(
			"Add a short description (up to %d characters), or send \"-\" to skip:", MaxDescriptionLen))
	case drafts.StepSubmitDescription:
		description := strings.TrimSpace(text)
		if description == "-" {
			description = ""
		}
		if len([]rune(description)) > MaxDescriptionLen {
			h.sendMessage(chatID, fmt.Sprintf(
				"❌ The description is too long (max %d characters), try again:", MaxDescriptionLen))
			return true
		}
		if err := h.draftService.SetDescription(ctx, d, description); err != nil {
			h.failDraft(chatID, err)
			return true
		}
		h.finishOrInvoice(ctx, chatID, userID, d)
	default:
		return false
	}
	return true
}

// finishOrInvoice завершает диалог: бесплатные планы публикуются сразу,
// платные получают инвойс Stars.
func (h *Handler) finishOrInvoice(ctx context.Context, chatID, userID int64, d *drafts.Draft) {
	plan, ok := PlanByCode(d.Plan)
	if !ok {
		h.failDraft(chatID, fmt.Errorf("неизвестный план в черновике: %q", d.Plan))
		return
	}

	if plan.PriceStars == 0 {
		h.publish(ctx, chatID, userID, d, plan)
		return
	}

	if err := h.draftService.AwaitPayment(ctx, d); err != nil {
		h.failDraft(chatID, err)
		return
	}

	invoice := tgbotapi.NewInvoice(
		chatID,
		fmt.Sprintf("Link submission: %s", plan.Title),
		fmt.Sprintf("Publish your %s referral link for up to %d verified referrals.", d.ServiceName, plan.Capacity),
		fmt.Sprintf("submit:%d", userID),
		"", // Для Stars токен провайдера не нужен
		"", // start_parameter
		"XTR",
		[]tgbotapi.LabeledPrice{{Label: plan.Title, Amount: plan.PriceStars}},
	)
	invoice.SuggestedTipAmounts = []int{}
	if _, err := h.bot.Send(invoice); err != nil {
		log.WithError(err).Error("Ошибка отправки инвойса")
		h.sendMessage(chatID, "❌ Failed to create the invoice, try again later.")
	}
}

// HandlePreCheckout подтверждает pre-checkout запрос оплаты публикации.
// Возвращает true, если запрос принадлежит этому обработчику.
func (h *Handler) HandlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) bool {
	if !strings.HasPrefix(query.InvoicePayload, "submit:") {
		return false
	}

	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}

	// Черновик мог истечь между инвойсом и оплатой
	d, err := h.draftService.Get(ctx, query.From.ID)
	if err != nil || d == nil || d.Step != drafts.StepSubmitPayment {
		answer.OK = false
		answer.ErrorMessage = "The submission has expired, start over with /submit."
	}

	if _, err := h.bot.Request(answer); err != nil {
		log.WithError(err).Error("Ошибка ответа на pre-checkout")
	}
	return true
}

// HandleSuccessfulPayment завершает публикацию после оплаты Stars.
// Возвращает true, если платёж принадлежит этому обработчику.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, chatID, userID int64, payment *tgbotapi.SuccessfulPayment) bool {
	if !strings.HasPrefix(payment.InvoicePayload, "submit:") {
		return false
	}

	d, err := h.draftService.Get(ctx, userID)
	if err != nil || d == nil || d.Step != drafts.StepSubmitPayment {
		log.WithFields(log.Fields{
			"user_id": userID,
			"payload": payment.InvoicePayload,
		}).Error("Оплата пришла без активного черновика")
		h.sendMessage(chatID, "❌ Payment received, but the submission expired. Contact support.")
		return true
	}

	plan, ok := PlanByCode(d.Plan)
	if !ok || payment.TotalAmount != plan.PriceStars {
		log.WithFields(log.Fields{
			"user_id": userID,
			"plan":    d.Plan,
			"amount":  payment.TotalAmount,
		}).Error("Сумма оплаты не совпадает с планом")
		h.sendMessage(chatID, "❌ Payment amount mismatch. Contact support.")
		return true
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"plan":    plan.Code,
		"stars":   payment.TotalAmount,
		"charge":  payment.TelegramPaymentChargeID,
	}).Info("Оплата публикации получена")

	h.publish(ctx, chatID, userID, d, plan)
	return true
}

// publish создаёт ссылку из черновика и закрывает диалог.
func (h *Handler) publish(ctx context.Context, chatID, userID int64, d *drafts.Draft, plan Plan) {
	// План credit списывает заработанную бесплатную публикацию
	if plan.Code == PlanCredit.Code {
		if err := h.userService.SpendFreeCredit(ctx, userID); err != nil {
			if errors.Is(err, common.ErrNoFreeCredits) {
				h.sendMessage(chatID, "❌ No free submissions left. Start over with /submit.")
				h.draftService.Clear(ctx, userID)
				return
			}
			h.failDraft(chatID, err)
			return
		}
	}

	id, err := h.service.Create(ctx, userID, plan, d.Category, d.ServiceName, d.URL, d.Description)
	if err != nil {
		if v, ok := common.AsValidation(err); ok {
			h.sendMessage(chatID, fmt.Sprintf("❌ Invalid %s. Start over with /submit.", v.Field))
		} else {
			h.failDraft(chatID, err)
		}
		h.draftService.Clear(ctx, userID)
		return
	}

	h.draftService.Clear(ctx, userID)
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Your link #%d is live!\n\n%s (%s)\nSlots: %s\n\nYou will be notified about every verified referral.",
		id, d.ServiceName, d.Category, common.FormatOccupancy(0, plan.Capacity)))

	h.announce(ctx, id, d, plan)
}

// announce публикует анонс новой ссылки в канал, если он настроен.
func (h *Handler) announce(ctx context.Context, linkID int64, d *drafts.Draft, plan Plan) {
	if h.cfg.AnnounceChannelID == 0 {
		return
	}

	text := fmt.Sprintf("🆕 New referral link!\n\n%s (%s)\nSlots: %d", d.ServiceName, d.Category, plan.Capacity)
	if d.Description != "" {
		text += "\n\n" + d.Description
	}

	msg := tgbotapi.NewMessage(h.cfg.AnnounceChannelID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("link_id", linkID).Error("Ошибка анонса в канал")
	}
}

// --- Каталог ---

// ShowCategories показывает категории, в которых есть доступные ссылки.
func (h *Handler) ShowCategories(ctx context.Context, chatID int64) {
	available, err := h.service.Categories(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения категорий")
		h.sendMessage(chatID, "❌ Something went wrong, try again later.")
		return
	}
	if len(available) == 0 {
		h.sendMessage(chatID, "No links available right now. Check back later!")
		return
	}

	availableSet := make(map[string]bool, len(available))
	for _, c := range available {
		availableSet[c] = true
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, c := range Categories {
		if !availableSet[c] {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c, "browse_cat_"+strconv.Itoa(i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🌐 All categories", "browse_cat_all"),
	))

	msg := tgbotapi.NewMessage(chatID, "🔍 Browse referral links.\n\nChoose a category:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

// showLinks выводит доступные ссылки категории с кнопками подачи заявки.
func (h *Handler) showLinks(ctx context.Context, chatID int64, idxRaw string) {
	category := ""
	if idxRaw != "all" {
		idx, err := strconv.Atoi(idxRaw)
		if err != nil || idx < 0 || idx >= len(Categories) {
			h.sendMessage(chatID, "❌ Unknown category.")
			return
		}
		category = Categories[idx]
	}

	available, err := h.service.ListAvailable(ctx, category)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка ссылок")
		h.sendMessage(chatID, "❌ Something went wrong, try again later.")
		return
	}
	if len(available) == 0 {
		h.sendMessage(chatID, "No links in this category right now.")
		return
	}

	for _, l := range available {
		text := fmt.Sprintf("%s %s\n%s\nSlots: %s", l.Category, l.ServiceName, l.URL,
			common.FormatOccupancy(l.ClaimedCount, l.Capacity))
		if l.Description != "" {
			text += "\n\n" + l.Description
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✋ I used this link", fmt.Sprintf("claim_%d", l.ID)),
			),
		)
		h.send(msg)
	}
}

// --- Вспомогательные ---

// failDraft сообщает пользователю об ошибке шага, не сбрасывая черновик.
func (h *Handler) failDraft(chatID int64, err error) {
	log.WithError(err).Error("Ошибка шага публикации")
	h.sendMessage(chatID, "❌ Something went wrong, try again later.")
}

func (h *Handler) sendMessage(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handler) send(msg tgbotapi.Chattable) {
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}

func (h *Handler) answerCallback(id, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.WithError(err).Error("Ошибка ответа на callback")
	}
}
