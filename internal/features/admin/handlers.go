// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает через Reply Keyboard в личных сообщениях.
// Поток: аутентификация → клавиатура → ревью заявок / управление ссылками.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/common"
	"refloop.app/referral-bot/internal/features/claims"
	"refloop.app/referral-bot/internal/features/links"
)

// Кнопки клавиатуры админ-панели.
const (
	btnPending   = "📋 Pending claims"
	btnDashboard = "📊 Dashboard"
	btnLinks     = "🔗 Manage links"
	btnPromo     = "🎁 Promo mode"
	btnLogout    = "🚪 Logout"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service      *Service
	claimService *claims.Service
	linkService  *links.Service
	bot          *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, claimService *claims.Service, linkService *links.Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:      service,
		claimService: claimService,
		linkService:  linkService,
		bot:          bot,
	}
}

// HandleAdminMessage обрабатывает любое сообщение от администратора в DM.
// Возвращает true, если сообщение принадлежит админ-панели.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID int64, userID int64, text string) bool {
	// Проверяем, числится ли пользователь администратором
	if !h.service.cfg.IsAdmin(userID) {
		return false
	}

	// Обрабатываем состояние ожидания пароля
	state := h.service.GetState(userID)
	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	isPanelInput := text == "/admin" || h.isPanelCommand(text)
	if !isPanelInput {
		return false
	}

	// Проверяем активную сессию
	if !h.service.HasActiveSession(ctx, userID) {
		h.sendMessage(chatID, "🔐 Enter the admin password:")
		h.service.SetState(userID, StateAwaitingPassword, nil)
		return true
	}

	// Команды ревью с аргументом: /approve 12, /reject 12, ...
	cmd, arg := splitCommand(text)
	switch cmd {
	case "/approve":
		h.handleApprove(ctx, chatID, userID, arg)
		return true
	case "/reject":
		h.handleReject(ctx, chatID, userID, arg)
		return true
	case "/screenshot":
		h.handleScreenshot(ctx, chatID, arg)
		return true
	case "/paid":
		h.handlePaid(ctx, chatID, arg)
		return true
	}

	// Кнопки клавиатуры
	switch text {
	case btnPending:
		h.showPending(ctx, chatID)
	case btnDashboard:
		h.showDashboard(ctx, chatID)
	case btnLinks:
		h.showLinks(ctx, chatID)
	case btnPromo:
		enabled := h.service.TogglePromoMode()
		if enabled {
			h.sendMessage(chatID, "🎁 Promo mode is ON: the free single-use plan is available.")
		} else {
			h.sendMessage(chatID, "🎁 Promo mode is OFF: only paid and earned plans are available.")
		}
	case btnLogout:
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка завершения сессии")
		}
		msg := tgbotapi.NewMessage(chatID, "Logged out.")
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		h.send(msg)
	case "/admin":
		h.showKeyboard(chatID)
	}
	return true
}

// isPanelCommand сообщает, относится ли текст к админ-панели.
func (h *Handler) isPanelCommand(text string) bool {
	switch text {
	case btnPending, btnDashboard, btnLinks, btnPromo, btnLogout:
		return true
	}
	cmd, _ := splitCommand(text)
	switch cmd {
	case "/approve", "/reject", "/screenshot", "/paid":
		return true
	}
	return false
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID int64, userID int64, password string) {
	err := h.service.VerifyPassword(ctx, userID, password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrTooManyAttempts):
			h.sendMessage(chatID, "❌ Too many attempts. Try again in an hour.")
		case errors.Is(err, common.ErrWrongPassword):
			h.sendMessage(chatID, "❌ Wrong password.")
		default:
			h.sendMessage(chatID, "❌ Authentication failed, try again later.")
			log.WithError(err).Error("Ошибка аутентификации админа")
		}
		h.service.ClearState(userID)
		return
	}

	h.service.ClearState(userID)
	h.showKeyboard(chatID)
}

// showKeyboard отображает клавиатуру админ-панели.
func (h *Handler) showKeyboard(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnPending),
			tgbotapi.NewKeyboardButton(btnDashboard),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnLinks),
			tgbotapi.NewKeyboardButton(btnPromo),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnLogout),
		),
	)

	msg := tgbotapi.NewMessage(chatID, "✅ Admin panel is open")
	msg.ReplyMarkup = keyboard
	h.send(msg)
}

// --- Ревью заявок ---

// showPending выводит список заявок, ожидающих ревью.
func (h *Handler) showPending(ctx context.Context, chatID int64) {
	pending, err := h.claimService.ListPending(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка заявок")
		h.sendMessage(chatID, "❌ Failed to load pending claims.")
		return
	}
	if len(pending) == 0 {
		h.sendMessage(chatID, "No pending claims. 🎉")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Pending claims: %d\n\n", len(pending)))
	for _, d := range pending {
		sb.WriteString(fmt.Sprintf("Claim #%d by %s\n", d.ClaimID, d.ClaimantName))
		sb.WriteString(fmt.Sprintf("Link #%d: %s (%s)\n", d.LinkID, d.ServiceName, d.Category))
		sb.WriteString(fmt.Sprintf("Submitted: %s\n", common.FormatDateTime(d.CreatedAt)))
		sb.WriteString(fmt.Sprintf("/screenshot %d · /approve %d · /reject %d\n\n", d.ClaimID, d.ClaimID, d.ClaimID))
	}
	h.sendMessage(chatID, sb.String())
}

// handleApprove одобряет заявку и рассылает уведомления участникам.
func (h *Handler) handleApprove(ctx context.Context, chatID int64, reviewerID int64, arg string) {
	claimID, ok := parseID(arg)
	if !ok {
		h.sendMessage(chatID, "Usage: /approve <claim id>")
		return
	}

	result, err := h.claimService.Approve(ctx, claimID, reviewerID)
	if err != nil {
		h.sendMessage(chatID, reviewErrorText(err))
		return
	}

	if result.AutoRejected {
		h.sendMessage(chatID, fmt.Sprintf("⚠️ Claim #%d auto-rejected: %s.", claimID, result.RejectReason))
		h.sendMessage(result.ClaimantUserID, fmt.Sprintf(
			"❌ Your claim #%d was rejected: %s.", claimID, result.RejectReason))
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Claim #%d approved (%s, %s).",
		claimID, result.ServiceName, common.FormatOccupancy(result.ClaimedCount, result.Capacity)))

	// Уведомляем заявителя
	claimantMsg := fmt.Sprintf("✅ Your claim #%d for %s was approved! Verified claims: %d.",
		claimID, result.ServiceName, result.VerifiedClaims)
	if result.Milestone {
		claimantMsg += "\n🎁 You earned a free link submission!"
	}
	h.sendMessage(result.ClaimantUserID, claimantMsg)

	// Уведомляем владельца ссылки
	ownerMsg := fmt.Sprintf("📈 Your link %s got a verified referral (%s).",
		result.ServiceName, common.FormatOccupancy(result.ClaimedCount, result.Capacity))
	if result.LinkDeleted {
		ownerMsg += "\n🏁 The link reached its limit and was removed."
	}
	h.sendMessage(result.LinkOwnerID, ownerMsg)
}

// handleReject отклоняет заявку.
func (h *Handler) handleReject(ctx context.Context, chatID int64, reviewerID int64, arg string) {
	idPart, reason := splitCommand(arg)
	claimID, ok := parseID(idPart)
	if !ok {
		h.sendMessage(chatID, "Usage: /reject <claim id> [reason]")
		return
	}

	claim, err := h.claimService.Get(ctx, claimID)
	if err != nil {
		h.sendMessage(chatID, reviewErrorText(err))
		return
	}
	if err := h.claimService.Reject(ctx, claimID, reviewerID); err != nil {
		h.sendMessage(chatID, reviewErrorText(err))
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("❌ Claim #%d rejected.", claimID))

	claimantMsg := fmt.Sprintf("❌ Your claim #%d was rejected.", claimID)
	if reason != "" {
		claimantMsg += " Reason: " + reason
	}
	h.sendMessage(claim.ClaimantUserID, claimantMsg)
}

// handleScreenshot пересылает скриншот-доказательство заявки.
func (h *Handler) handleScreenshot(ctx context.Context, chatID int64, arg string) {
	claimID, ok := parseID(arg)
	if !ok {
		h.sendMessage(chatID, "Usage: /screenshot <claim id>")
		return
	}

	claim, err := h.claimService.Get(ctx, claimID)
	if err != nil {
		h.sendMessage(chatID, reviewErrorText(err))
		return
	}
	if claim.ProofFileID == "" {
		h.sendMessage(chatID, fmt.Sprintf("Claim #%d has no screenshot attached.", claimID))
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(claim.ProofFileID))
	photo.Caption = fmt.Sprintf("Proof for claim #%d (link #%d, status: %s)",
		claim.ID, claim.LinkID, claim.Status)
	if _, err := h.bot.Send(photo); err != nil {
		log.WithError(err).Error("Ошибка отправки скриншота")
		h.sendMessage(chatID, "❌ Failed to send the screenshot.")
	}
}

// handlePaid отмечает награду за одобренную заявку как выплаченную.
func (h *Handler) handlePaid(ctx context.Context, chatID int64, arg string) {
	claimID, ok := parseID(arg)
	if !ok {
		h.sendMessage(chatID, "Usage: /paid <claim id>")
		return
	}

	claim, err := h.claimService.Get(ctx, claimID)
	if err != nil {
		h.sendMessage(chatID, reviewErrorText(err))
		return
	}
	if err := h.claimService.MarkRewarded(ctx, claimID); err != nil {
		h.sendMessage(chatID, reviewErrorText(err))
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("⭐ Claim #%d marked as rewarded.", claimID))
	h.sendMessage(claim.ClaimantUserID, fmt.Sprintf("⭐ Your reward for claim #%d has been sent!", claimID))
}

// --- Дашборд и управление ссылками ---

// showDashboard выводит сводную статистику.
func (h *Handler) showDashboard(ctx context.Context, chatID int64) {
	stats, err := h.service.Dashboard(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка сборки дашборда")
		h.sendMessage(chatID, "❌ Failed to build the dashboard.")
		return
	}

	promo := "off"
	if h.service.PromoMode() {
		promo = "on"
	}
	text := fmt.Sprintf(
		"📊 Dashboard\n\n"+
			"👥 Users: %d\n"+
			"🔗 Links: %d (%d active)\n"+
			"📋 Claims: %d pending / %d approved / %d rejected\n"+
			"⭐ Stars received: %d\n"+
			"⭐ Stars to pay out: %d\n"+
			"🎁 Promo mode: %s",
		stats.TotalUsers,
		stats.TotalLinks, stats.ActiveLinks,
		stats.PendingClaims, stats.ApprovedClaims, stats.RejectedClaims,
		stats.StarsReceived,
		stats.StarsToPay,
		promo,
	)
	h.sendMessage(chatID, text)
}

// showLinks выводит все ссылки с кнопками удаления.
func (h *Handler) showLinks(ctx context.Context, chatID int64) {
	all, err := h.linkService.ListAll(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка ссылок")
		h.sendMessage(chatID, "❌ Failed to load links.")
		return
	}
	if len(all) == 0 {
		h.sendMessage(chatID, "No links in the database.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var sb strings.Builder
	sb.WriteString("🔗 All links:\n\n")
	for _, l := range all {
		sb.WriteString(fmt.Sprintf("#%d %s (%s) — %s\n",
			l.ID, l.ServiceName, l.Category, common.FormatOccupancy(l.ClaimedCount, l.Capacity)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🗑 Delete #%d %s", l.ID, l.ServiceName),
				fmt.Sprintf("admin_del_%d", l.ID),
			),
		))
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

// HandleCallback обрабатывает инлайн-кнопки админ-панели ("admin_del_<id>").
// Возвращает true, если callback принадлежит панели.
func (h *Handler) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) bool {
	if !strings.HasPrefix(query.Data, "admin_del_") {
		return false
	}
	userID := query.From.ID

	if !h.service.cfg.IsAdmin(userID) || !h.service.HasActiveSession(ctx, userID) {
		h.answerCallback(query.ID, "Session expired, open /admin again")
		return true
	}

	linkID, ok := parseID(strings.TrimPrefix(query.Data, "admin_del_"))
	if !ok {
		h.answerCallback(query.ID, "Bad link id")
		return true
	}

	deletedClaims, err := h.linkService.Delete(ctx, linkID)
	if err != nil {
		if errors.Is(err, common.ErrLinkNotFound) {
			h.answerCallback(query.ID, "Link already deleted")
		} else {
			log.WithError(err).WithField("link_id", linkID).Error("Ошибка удаления ссылки")
			h.answerCallback(query.ID, "Deletion failed")
		}
		return true
	}

	h.answerCallback(query.ID, "Deleted")
	h.sendMessage(query.Message.Chat.ID, fmt.Sprintf(
		"🗑 Link #%d deleted along with %d claim%s.",
		linkID, deletedClaims, common.Plural(deletedClaims)))
	return true
}

// --- Вспомогательные ---

// reviewErrorText переводит ошибки ревью в ответ админу.
func reviewErrorText(err error) string {
	switch {
	case errors.Is(err, common.ErrClaimNotFound):
		return "❌ Claim not found."
	case errors.Is(err, common.ErrClaimNotPending):
		return "❌ Claim has already been reviewed."
	case errors.Is(err, common.ErrClaimNotApproved):
		return "❌ Claim is not approved, nothing to pay."
	default:
		log.WithError(err).Error("Ошибка операции ревью")
		return "❌ Operation failed, try again later."
	}
}

// splitCommand отделяет первое слово от остального текста.
func splitCommand(text string) (head, tail string) {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}

// parseID разбирает положительный числовой идентификатор.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
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
