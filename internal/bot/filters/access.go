// Package filters содержит проверки доступа к боту.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// AccessFilter пропускает только личные сообщения от пользователей
// с публичным @username. Username обязателен: владельцы ссылок и
// админы должны иметь возможность связаться с заявителем.
type AccessFilter struct {
	bot *tgbotapi.BotAPI
}

func NewAccessFilter(bot *tgbotapi.BotAPI) *AccessFilter {
	return &AccessFilter{bot: bot}
}

func (f *AccessFilter) CheckMessage(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "AccessFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "AccessFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}

	// Бот работает только в личке
	if !message.Chat.IsPrivate() {
		log.WithFields(log.Fields{
			"component": "AccessFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: not a private chat")
		return false
	}

	if message.From.UserName == "" {
		msg := tgbotapi.NewMessage(message.Chat.ID,
			"❌ Set a public @username in your Telegram settings to use this bot.")
		if _, err := f.bot.Send(msg); err != nil {
			log.WithError(err).Warn("failed to send username requirement message")
		}
		return false
	}

	return true
}

// CheckCallback проверяет нажатие инлайн-кнопки по тем же правилам.
func (f *AccessFilter) CheckCallback(query *tgbotapi.CallbackQuery) bool {
	if query == nil || query.From == nil || query.Message == nil {
		return false
	}
	if query.From.UserName == "" {
		callback := tgbotapi.NewCallback(query.ID, "Set a public @username to use this bot")
		if _, err := f.bot.Request(callback); err != nil {
			log.WithError(err).Warn("failed to answer callback")
		}
		return false
	}
	return true
}
