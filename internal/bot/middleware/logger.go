// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение.
// Записывает: user_id, chat_id, username, текст (первые 50 символов).
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     shorten(message.Text, 50),
		"time":     time.Now().Format("15:04:05"),
	}).Debug("Входящее сообщение")
}

// LogCallback логирует нажатие inline-кнопки.
func LogCallback(cb *tgbotapi.CallbackQuery) {
	if cb == nil || cb.From == nil {
		return
	}

	fields := log.Fields{
		"user_id":  cb.From.ID,
		"username": cb.From.UserName,
		"data":     cb.Data,
		"time":     time.Now().Format("15:04:05"),
	}
	if cb.Message != nil && cb.Message.Chat != nil {
		fields["chat_id"] = cb.Message.Chat.ID
	}
	log.WithFields(fields).Debug("Нажатие кнопки")
}

// shorten обрезает строку по рунам, чтобы не резать UTF-8 посередине.
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
