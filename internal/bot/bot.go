// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go принимает собранные обработчики, маршрутизирует апдейты и ведёт polling.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/bot/filters"
	"refloop.app/referral-bot/internal/bot/middleware"
	"refloop.app/referral-bot/internal/config"
	"refloop.app/referral-bot/internal/features/admin"
	"refloop.app/referral-bot/internal/features/claims"
	"refloop.app/referral-bot/internal/features/drafts"
	"refloop.app/referral-bot/internal/features/links"
	"refloop.app/referral-bot/internal/features/rewards"
	"refloop.app/referral-bot/internal/features/users"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	accessFilter *filters.AccessFilter
	rateLimiter  *middleware.RateLimiter

	linkHandler  *links.Handler
	claimHandler *claims.Handler
	adminHandler *admin.Handler

	userService  *users.Service
	draftService *drafts.Service

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	userService *users.Service,
	draftService *drafts.Service,
	linkHandler *links.Handler,
	claimHandler *claims.Handler,
	adminHandler *admin.Handler,
	accessFilter *filters.AccessFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:          api,
		cfg:          cfg,
		accessFilter: accessFilter,
		rateLimiter:  middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.AdminIDs),
		linkHandler:  linkHandler,
		claimHandler: claimHandler,
		adminHandler: adminHandler,
		userService:  userService,
		draftService: draftService,
		parser:       NewCommandParser(api.Self.UserName),
		inflight:     make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleCallback маршрутизирует нажатия инлайн-кнопок.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	middleware.LogCallback(query)

	if !b.accessFilter.CheckCallback(query) {
		return
	}
	userID := query.From.ID
	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}
	if err := b.userService.EnsureUser(ctx, userID, query.From.UserName); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureUser failed")
	}

	if query.Data == "menu_stats" {
		b.answerCallback(query.ID)
		b.showStats(ctx, query.Message.Chat.ID, userID)
		return
	}

	if b.adminHandler.HandleCallback(ctx, query) {
		return
	}
	if b.linkHandler.HandleCallback(ctx, query) {
		return
	}
	if b.claimHandler.HandleCallback(ctx, query) {
		return
	}

	b.answerCallback(query.ID)
}

// handlePreCheckout подтверждает оплату Stars.
func (b *Bot) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	if b.linkHandler.HandlePreCheckout(ctx, query) {
		return
	}

	// Неизвестный payload — отклоняем платёж
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 false,
		ErrorMessage:       "Unknown payment, please start over.",
	}
	if _, err := b.api.Request(answer); err != nil {
		log.WithError(err).Error("Ошибка ответа на pre-checkout")
	}
}

// handleMessage обрабатывает входящее сообщение в личке.
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	middleware.LogMessage(message)

	if !b.accessFilter.CheckMessage(message) {
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	// EnsureUser — ошибки нельзя игнорировать, иначе потом будет "оно не работает"
	if err := b.userService.EnsureUser(ctx, userID, message.From.UserName); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureUser failed")
	}

	// Завершение оплаты публикации
	if message.SuccessfulPayment != nil {
		if !b.linkHandler.HandleSuccessfulPayment(ctx, chatID, userID, message.SuccessfulPayment) {
			log.WithField("payload", message.SuccessfulPayment.InvoicePayload).
				Error("Оплата с неизвестным payload")
		}
		return
	}

	// Скриншот-доказательство заявки
	if len(message.Photo) > 0 {
		if !b.claimHandler.HandlePhoto(ctx, chatID, userID, message) {
			b.sendMessage(chatID, "I wasn't expecting a photo. Use /browse to find a link first.")
		}
		return
	}

	if message.Text == "" {
		return
	}

	// Админ-панель перехватывает свои команды и кнопки
	if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		b.routeCommand(ctx, chatID, userID, cmd, args)
		return
	}

	// Свободный текст — шаг активного диалога публикации
	d, err := b.draftService.Get(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Ошибка чтения черновика")
		return
	}
	if b.linkHandler.HandleText(ctx, chatID, userID, message.Text, d) {
		return
	}

	b.sendMessage(chatID, "I didn't get that. Use /help to see what I can do.")
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "start":
		b.showMainMenu(chatID,
			"👋 Welcome to the referral exchange!\n\n"+
				"Share your referral links, claim links from others, and earn rewards: "+
				fmt.Sprintf("every %d verified claims give you a free link submission.", b.userService.ClaimsPerCredit()))

	case "help":
		b.showMainMenu(chatID,
			"Commands:\n"+
				"/submit — publish a referral link\n"+
				"/browse — find links to use\n"+
				"/mystats — your claims and rewards\n"+
				"/cancel — abort the current dialog")

	case "submit":
		b.linkHandler.StartSubmission(ctx, chatID, userID)

	case "browse":
		b.linkHandler.ShowCategories(ctx, chatID)

	case "mystats":
		b.showStats(ctx, chatID, userID)

	case "cancel":
		if err := b.draftService.Clear(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Ошибка сброса черновика")
		}
		b.sendMessage(chatID, "Cancelled. Use /submit or /browse to start over.")
	}
}

// showMainMenu отправляет текст с главным меню.
func (b *Bot) showMainMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Submit a link", "menu_submit"),
			tgbotapi.NewInlineKeyboardButtonData("🔍 Browse links", "menu_browse"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 My stats", "menu_stats"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки меню")
	}
}

// showStats показывает счётчики пользователя.
func (b *Bot) showStats(ctx context.Context, chatID, userID int64) {
	user, err := b.userService.Get(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения пользователя")
		b.sendMessage(chatID, "❌ Something went wrong, try again later.")
		return
	}

	every := b.userService.ClaimsPerCredit()
	until := rewards.ClaimsUntilNextCredit(user.VerifiedClaims, every)
	b.sendMessage(chatID, fmt.Sprintf(
		"📈 Your stats\n\n"+
			"✅ Verified claims: %d\n"+
			"🎁 Free submissions: %d\n"+
			"⏳ Claims until the next free submission: %d",
		user.VerifiedClaims, user.FreeCredits, until))
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// SendMessageToUser отправляет сообщение пользователю (для напоминаний).
func (b *Bot) SendMessageToUser(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось отправить сообщение")
	}
}

func (b *Bot) answerCallback(id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		log.WithError(err).Error("Ошибка ответа на callback")
	}
}

// CommandParser парсит slash-команды, учитывая упоминание бота
// ("/submit@RefLoopBot" в пересланных сообщениях).
type CommandParser struct {
	botUsername string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser(botUsername string) *CommandParser {
	return &CommandParser{botUsername: strings.ToLower(botUsername)}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}

	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at >= 0 {
		if p.botUsername != "" && command[at+1:] != p.botUsername {
			return "", nil, false // команда адресована другому боту
		}
		command = command[:at]
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
