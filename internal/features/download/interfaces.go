// Package download — interfaces.go описывает зависимости координатора.
// Реальные реализации живут в media, ledger и в Telegram-уведомителе этого пакета.
package download

import (
	"context"

	"serotonyl.ru/media-bot/internal/features/ledger"
	"serotonyl.ru/media-bot/internal/features/media"
)

// Fetcher — yt-dlp.
type Fetcher interface {
	Inspect(ctx context.Context, link media.Link) (*media.Preview, error)
	Fetch(ctx context.Context, url string, formatArgs []string, dir string, progress func(percent float64)) (string, error)
}

// Uploader — rclone.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, path, subfolder string) (string, error)
}

// Ledger — счёт токенов. Координатор только просит списать, балансы меняет леджер.
type Ledger interface {
	CanAfford(ctx context.Context, userID, amount int64) (bool, error)
	Debit(ctx context.Context, userID, amount int64, reason string) (int64, error)
	RecordDownload(ctx context.Context, userID int64, entry ledger.HistoryEntry) error
}

// Scratch выдаёт временный каталог на каждый файл задачи.
type Scratch interface {
	Acquire(id string) (media.Area, error)
}

// Notifier показывает ход задачи в чате. Одна задача — одно сообщение, которое редактируется.
type Notifier interface {
	Report(ctx context.Context, job *Job, phase Phase)
}

// FileSender отправляет готовый файл в чат задачи.
type FileSender interface {
	SendFile(ctx context.Context, job *Job, path, caption string) error
}

// Authorizer решает, может ли пользователь пользоваться ботом.
type Authorizer func(userID int64) bool
