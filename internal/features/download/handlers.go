// Package download — handlers.go связывает апдейты Telegram с координатором:
// ссылки из сообщений, нажатия кнопок и команду /cancel.
package download

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

// Handler обрабатывает апдейты, относящиеся к загрузкам.
type Handler struct {
	coord *Coordinator
	bot   common.Sender
}

// NewHandler создаёт обработчик загрузок.
func NewHandler(coord *Coordinator, bot common.Sender) *Handler {
	return &Handler{coord: coord, bot: bot}
}

// HandleURL принимает текст со ссылкой и запускает предпросмотр.
func (h *Handler) HandleURL(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	job, err := h.coord.Request(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
	if err != nil && job == nil {
		h.reply(msg.Chat.ID, msg.MessageID, "❌ "+common.UserMessage(err))
	}
}

// HandleCallback обрабатывает кнопки задачи и всегда отвечает на callback.
func (h *Handler) HandleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, action Action) {
	userID := cb.From.ID

	var err error
	answer := ""
	switch a := action.(type) {
	case SelectQualityAction:
		err = h.coord.SelectQuality(ctx, a.JobID, userID, a.Quality)
		answer = a.Quality.Label()
	case SelectDestinationAction:
		err = h.coord.Confirm(ctx, a.JobID, userID, a.Destination)
		answer = "⏳ Начинаю загрузку"
	case CancelAction:
		err = h.coord.Cancel(ctx, a.JobID, userID)
		answer = "Отменено"
	default:
		err = fmt.Errorf("%w: кнопка %T", common.ErrUnsupportedSelection, action)
	}

	if err != nil {
		fields := log.Fields{"user_id": userID, "data": cb.Data}
		if common.IsInternal(err) {
			log.WithError(err).WithFields(fields).Error("Ошибка обработки кнопки")
		} else {
			log.WithError(err).WithFields(fields).Debug("Кнопка отклонена")
		}
		h.answer(cb.ID, common.UserMessage(err), true)
		if errors.Is(err, common.ErrJobNotFound) && cb.Message != nil {
			// убираем устаревшую клавиатуру
			edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
				tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
			if _, err := h.bot.Request(edit); err != nil {
				log.WithError(err).Debug("Не удалось убрать клавиатуру")
			}
		}
		return
	}
	h.answer(cb.ID, answer, false)
}

// HandleCancel — команда /cancel: отменяет все задачи пользователя.
func (h *Handler) HandleCancel(ctx context.Context, chatID, userID int64) {
	n := h.coord.CancelUser(ctx, userID)
	if n == 0 {
		h.reply(chatID, 0, "Нет активных задач")
		return
	}
	h.reply(chatID, 0, fmt.Sprintf("🛑 Отменено задач: %d", n))
}

func (h *Handler) answer(callbackID, text string, alert bool) {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	if _, err := h.bot.Request(cfg); err != nil {
		log.WithError(err).Warn("Ошибка ответа на callback")
	}
}

func (h *Handler) reply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
