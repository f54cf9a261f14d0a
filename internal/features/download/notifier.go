// Package download — notifier.go показывает ход задачи в чате.
// Первое уведомление отправляет сообщение, остальные редактируют его.
package download

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

const (
	// Сколько элементов плейлиста перечислять в предпросмотре
	previewEntriesShown = 5
	// Лимит Telegram на текст сообщения (в символах)
	maxMessageRunes = 4096
)

// TelegramNotifier — Notifier поверх Bot API.
type TelegramNotifier struct {
	bot common.Sender
}

// NewTelegramNotifier создаёт уведомитель.
func NewTelegramNotifier(bot common.Sender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// Report отправляет или редактирует сообщение задачи.
func (n *TelegramNotifier) Report(_ context.Context, job *Job, phase Phase) {
	text, markup := PhaseText(job, phase)

	msgID := job.MessageID()
	if msgID == 0 {
		if job.statusMuted() && !phase.Kind.Terminal() {
			return
		}
		msg := tgbotapi.NewMessage(job.ChatID, text)
		msg.DisableWebPagePreview = true
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		sent, err := n.bot.Send(msg)
		if err != nil {
			log.WithError(err).WithField("job_id", job.ID).Error("Ошибка отправки статуса задачи")
			job.muteStatus()
			return
		}
		job.SetMessageID(sent.MessageID)
		return
	}

	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(job.ChatID, msgID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(job.ChatID, msgID, text)
	}
	edit.DisableWebPagePreview = true
	if _, err := n.bot.Request(edit); err != nil {
		// Telegram отвечает ошибкой, если текст не изменился
		if strings.Contains(err.Error(), "message is not modified") {
			return
		}
		log.WithError(err).WithFields(log.Fields{
			"job_id": job.ID,
			"phase":  phase.Kind,
		}).Warn("Ошибка обновления статуса задачи")
	}
}

// PhaseText формирует текст и клавиатуру уведомления.
func PhaseText(job *Job, phase Phase) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch phase.Kind {
	case PhasePreviewing:
		return "🔍 Получаю информацию о видео...", nil

	case PhaseAwaitingSelection:
		text := previewText(job)
		if job.Quality() == "" {
			kb := QualityKeyboard(job)
			return text + "\n\n🎯 Выберите качество:", &kb
		}
		kb := DestinationKeyboard(job)
		return fmt.Sprintf("%s\n\nКачество: %s\n📦 Куда отправить?", text, job.Quality().Label()), &kb

	case PhaseDownloading:
		var sb strings.Builder
		if phase.Items > 0 {
			sb.WriteString(fmt.Sprintf("⬇️ Скачиваю %d из %d", phase.Item, phase.Items))
		} else {
			sb.WriteString("⬇️ Скачиваю")
		}
		if phase.Title != "" {
			sb.WriteString(": " + phase.Title)
		}
		sb.WriteString("\n" + progressBar(phase.Percent))
		kb := CancelKeyboard(job.ID)
		return sb.String(), &kb

	case PhaseUploadingToCloud:
		kb := CancelKeyboard(job.ID)
		return "☁️ Загружаю в Google Drive...", &kb

	case PhaseCompleted:
		return completedText(phase.Result), nil

	case PhaseFailed:
		return "❌ " + common.UserMessage(phase.Err), nil

	default:
		return phase.Kind.String(), nil
	}
}

func previewText(job *Job) string {
	p := job.Preview()
	if p == nil {
		return job.Link.URL
	}

	var sb strings.Builder
	if p.IsPlaylist {
		sb.WriteString(fmt.Sprintf("📋 %s\n", p.Title))
		if p.Channel != "" {
			sb.WriteString(fmt.Sprintf("👤 %s\n", p.Channel))
		}
		sb.WriteString(fmt.Sprintf("🎞 %d %s", p.TotalEntries, common.PluralizeVideos(p.TotalEntries)))
		if len(p.Entries) < p.TotalEntries {
			sb.WriteString(fmt.Sprintf(" (скачаю первые %d)", len(p.Entries)))
		}
		for i, e := range p.Entries {
			if i == previewEntriesShown {
				sb.WriteString(fmt.Sprintf("\n… и ещё %d", len(p.Entries)-previewEntriesShown))
				break
			}
			sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, e.Title))
		}
		sb.WriteString(fmt.Sprintf("\n\n💰 Стоимость: %s", common.FormatBalance(int64(len(p.Entries)))))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("🎬 %s\n", p.Title))
	if p.Channel != "" {
		sb.WriteString(fmt.Sprintf("👤 %s\n", p.Channel))
	}
	if p.Duration > 0 {
		sb.WriteString(fmt.Sprintf("⏱ %s\n", common.FormatDuration(p.Duration)))
	}
	if p.Views > 0 {
		sb.WriteString(fmt.Sprintf("👁 %s\n", common.FormatNumber(p.Views)))
	}
	if p.UploadDate != "" {
		sb.WriteString(fmt.Sprintf("📅 %s\n", p.UploadDate))
	}
	sb.WriteString(fmt.Sprintf("\n💰 Стоимость: %s", common.FormatBalance(creditPerItem)))
	return sb.String()
}

func completedText(r *Result) string {
	if r == nil {
		return "✅ Готово"
	}

	if len(r.Items) == 1 {
		it := r.Items[0]
		var sb strings.Builder
		sb.WriteString("✅ Готово")
		if it.Title != "" {
			sb.WriteString(": " + it.Title)
		}
		if it.SizeBytes > 0 {
			sb.WriteString("\n📦 " + common.FormatFileSize(it.SizeBytes))
		}
		if it.Fallback != nil {
			sb.WriteString("\n⚠️ " + common.UserMessage(it.Fallback) + " Файл загружен в облако.")
		}
		if it.Reference != "" {
			sb.WriteString("\n🔗 " + it.Reference)
		}
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Плейлист: готово %d из %d\n", r.Succeeded(), len(r.Items)))
	// запас под строку "… и ещё N"
	budget := maxMessageRunes - 100 - utf8.RuneCountInString(sb.String())
	for i, it := range r.Items {
		line := playlistLine(i, it)
		n := utf8.RuneCountInString(line)
		if n > budget {
			sb.WriteString(fmt.Sprintf("\n\n… и ещё %d. Все ссылки: /history", len(r.Items)-i))
			break
		}
		budget -= n
		sb.WriteString(line)
	}
	return sb.String()
}

func playlistLine(i int, it ItemResult) string {
	title := it.Title
	if title == "" {
		title = fmt.Sprintf("#%d", i+1)
	}
	if it.Err != nil {
		return fmt.Sprintf("\n❌ %s: %s", title, common.UserMessage(it.Err))
	}
	line := "\n✅ " + title
	if it.Reference != "" {
		line += "\n   🔗 " + it.Reference
	}
	return line
}

// progressBar рисует полосу из 10 делений.
//
//	▓▓▓▓░░░░░░ 40%
func progressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 10)
	return fmt.Sprintf("%s%s %.0f%%", strings.Repeat("▓", filled), strings.Repeat("░", 10-filled), percent)
}
