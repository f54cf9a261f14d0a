// Package download — keyboards.go собирает inline-клавиатуры.
package download

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"serotonyl.ru/media-bot/internal/features/media"
)

// QualityKeyboard — по кнопке на каждое доступное качество и «Отмена».
func QualityKeyboard(job *Job) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if p := job.Preview(); p != nil {
		for _, q := range p.Qualities {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(qualityButtonLabel(job, q), SelectQualityAction{JobID: job.ID, Quality: q}.Encode()),
			))
		}
	}
	rows = append(rows, cancelRow(job.ID))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func qualityButtonLabel(job *Job, q media.Quality) string {
	if job.Link.IsPlaylist {
		if q.IsAudio() {
			return "🎵 Все в MP3"
		}
		return "📹 Все видео " + string(q)
	}
	return q.Label()
}

// DestinationKeyboard — выбор доставки: в чат или в облако.
func DestinationKeyboard(job *Job) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📲 В Telegram", SelectDestinationAction{JobID: job.ID, Destination: DestinationInline}.Encode()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("☁️ В Google Drive", SelectDestinationAction{JobID: job.ID, Destination: DestinationCloud}.Encode()),
		),
		cancelRow(job.ID),
	)
}

// CancelKeyboard — одна кнопка отмены для идущей загрузки.
func CancelKeyboard(jobID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(cancelRow(jobID))
}

// MainMenuKeyboard — меню из /start.
func MainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Баланс", MenuAction{Item: MenuBalance}.Encode()),
			tgbotapi.NewInlineKeyboardButtonData("📊 История", MenuAction{Item: MenuHistory}.Encode()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💎 Купить токены", MenuAction{Item: MenuPrices}.Encode()),
			tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", MenuAction{Item: MenuHelp}.Encode()),
		),
	)
}

func cancelRow(jobID string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", CancelAction{JobID: jobID}.Encode()),
	)
}
