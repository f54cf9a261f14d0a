// Package common — telegram.go описывает минимальный интерфейс Telegram API,
// которым пользуются обработчики. *tgbotapi.BotAPI ему удовлетворяет.
package common

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Sender — отправка сообщений и прочие запросы к Bot API.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}
