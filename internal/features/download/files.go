package download

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"serotonyl.ru/media-bot/internal/common"
)

// Лимит подписи к файлу в Telegram
const maxCaptionRunes = 1024

// TelegramFiles отправляет готовые файлы в чат задачи:
// MP3 уходит как аудио, остальное как видео с потоковым воспроизведением.
type TelegramFiles struct {
	bot common.Sender
}

// NewTelegramFiles создаёт отправщик файлов.
func NewTelegramFiles(bot common.Sender) *TelegramFiles {
	return &TelegramFiles{bot: bot}
}

// SendFile загружает файл в Telegram. Bot API не принимает ctx, поэтому
// отправка идёт в горутине, а по отмене или таймауту ctx SendFile сразу
// возвращает ErrCancelled или ErrTimeout. Сам HTTP-запрос ограничен таймаутом клиента.
func (f *TelegramFiles) SendFile(ctx context.Context, job *Job, path, caption string) error {
	caption = truncateRunes(caption, maxCaptionRunes)
	file := tgbotapi.FilePath(path)

	var msg tgbotapi.Chattable
	if job.Quality().IsAudio() {
		audio := tgbotapi.NewAudio(job.ChatID, file)
		audio.Caption = caption
		msg = audio
	} else {
		video := tgbotapi.NewVideo(job.ChatID, file)
		video.Caption = caption
		video.SupportsStreaming = true
		msg = video
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ошибка отправки файла: %w", err)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("отправка файла: %w", common.ErrTimeout)
		}
		return fmt.Errorf("отправка файла: %w", common.ErrCancelled)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
