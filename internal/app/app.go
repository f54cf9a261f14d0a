// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: открывает леджер, создаёт утилиты загрузки,
// сервисы, обработчики, фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/bot"
	"serotonyl.ru/media-bot/internal/bot/filters"
	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/config"
	"serotonyl.ru/media-bot/internal/db/postgres"
	"serotonyl.ru/media-bot/internal/features/admin"
	"serotonyl.ru/media-bot/internal/features/download"
	"serotonyl.ru/media-bot/internal/features/ledger"
	"serotonyl.ru/media-bot/internal/features/media"
	"serotonyl.ru/media-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot         *bot.Bot
	Scheduler   *jobs.Scheduler
	Coordinator *download.Coordinator
	Ledger      *ledger.Service
	BotAPI      *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Хранилище леджера ===
	store, err := openLedgerStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ledgerService := ledger.NewService(store, cfg.IsAdmin)

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint, newHTTPClient(cfg))
	if err != nil {
		ledgerService.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Внешние утилиты ===
	scratch, err := media.NewScratch(cfg.DownloadDir)
	if err != nil {
		ledgerService.Close()
		return nil, err
	}
	runner := media.NewExecRunner()
	fetcher := media.NewFetcher(cfg.YtDlpBinary, cfg.CookiesFile, cfg.PlaylistMaxItems)
	uploader := media.NewUploader(runner, cfg.RcloneBinary, cfg.RcloneRemote)
	if !uploader.Enabled() {
		log.Warn("RCLONE_REMOTE не задан: загрузка в облако отключена")
	}

	// === 4. Фильтры ===
	isBanned := func(userID int64) bool { return ledgerService.IsBanned(ctx, userID) }
	accessFilter := filters.NewAccessFilter(cfg.IsAdmin, cfg.IsAllowed, isBanned, botAPI)

	// === 5. Координатор загрузок ===
	coord := download.NewCoordinator(download.Deps{
		Fetcher:   fetcher,
		Uploader:  uploader,
		Ledger:    ledgerService,
		Scratch:   scratch,
		Notifier:  download.NewTelegramNotifier(botAPI),
		Files:     download.NewTelegramFiles(botAPI),
		Authorize: accessFilter.Authorized,
	}, download.Options{
		PreviewTimeout:    cfg.PreviewTimeout,
		FetchTimeout:      cfg.FetchTimeout,
		UploadTimeout:     cfg.UploadTimeout,
		InlineMaxBytes:    cfg.InlineMaxBytes,
		MaxFilenameLength: cfg.MaxFilenameLength,
		PendingTTL:        cfg.PendingJobTTL,
	})

	// === 6. Сервисы и обработчики ===
	adminService := admin.NewService(admin.NewRepository(), ledgerService, cfg.AdminPasswordHash, coord.ActiveJobs)
	if !adminService.PasswordRequired() {
		log.Warn("ADMIN_PASSWORD_HASH не задан: админка доступна без /login")
	}

	ledgerHandler := ledger.NewHandler(ledgerService, botAPI, cfg.TokenPackages, cfg.AdminContact)
	downloadHandler := download.NewHandler(coord, botAPI)
	adminHandler := admin.NewHandler(adminService, botAPI)

	// === 7. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		ledgerService, ledgerHandler,
		downloadHandler,
		adminHandler,
		accessFilter,
	)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(coord, scratch, cfg.ScratchMaxAge, common.Location())

	return &App{
		Bot:         b,
		Scheduler:   scheduler,
		Coordinator: coord,
		Ledger:      ledgerService,
		BotAPI:      botAPI,
	}, nil
}

// Shutdown отменяет загрузки и закрывает леджер.
// Леджер закрывается последним: отменённые задачи ещё пишут историю.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Coordinator.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Не все загрузки завершились")
	}
	if err := a.Ledger.Close(); err != nil {
		log.WithError(err).Error("Ошибка закрытия леджера")
	}
}

// newHTTPClient — клиент Bot API с общим таймаутом запроса.
// Отправка файла ограничена UPLOAD_TIMEOUT, long polling должен в него помещаться.
func newHTTPClient(cfg *config.Config) *http.Client {
	timeout := cfg.UploadTimeout
	if poll := time.Duration(cfg.BotUpdateTimeoutSeconds)*time.Second + 10*time.Second; timeout < poll {
		timeout = poll
	}
	return &http.Client{Timeout: timeout}
}

// openLedgerStore открывает JSON-файл или PostgreSQL в зависимости от LEDGER_BACKEND.
func openLedgerStore(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		return ledger.NewRepository(pool), nil
	default:
		store, err := ledger.OpenFileStore(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия леджера: %w", err)
		}
		log.WithField("path", cfg.LedgerPath).Info("Леджер загружен из файла")
		return store, nil
	}
}
