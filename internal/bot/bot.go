// Package bot содержит главный модуль бота: цикл апдейтов и маршрутизацию
// сообщений, команд и нажатий кнопок по обработчикам.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/bot/filters"
	"serotonyl.ru/media-bot/internal/bot/middleware"
	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/config"
	"serotonyl.ru/media-bot/internal/features/admin"
	"serotonyl.ru/media-bot/internal/features/download"
	"serotonyl.ru/media-bot/internal/features/ledger"
)

const helpTemplate = `❓ Как пользоваться ботом

1. Пришлите ссылку на видео, shorts или плейлист YouTube
2. Выберите качество: MP3, 360p, 720p, 1080p или лучшее
3. Выберите, куда отправить файл: в Telegram или в Google Drive

1 токен = 1 файл. Токен списывается только после успешной загрузки.
Файлы больше %s отправляются в Google Drive.

Команды:
/balance — баланс
/history — последние загрузки
/prices — купить токены
/cancel — отменить загрузку`

// updateSource — источник апдейтов (long polling Bot API).
type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api    updateSource
	sender common.Sender
	cfg    *config.Config

	accessFilter *filters.AccessFilter
	rateLimiter  *middleware.RateLimiter

	ledgerService   *ledger.Service
	ledgerHandler   *ledger.Handler
	downloadHandler *download.Handler
	adminHandler    *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	ledgerService *ledger.Service,
	ledgerHandler *ledger.Handler,
	downloadHandler *download.Handler,
	adminHandler *admin.Handler,
	accessFilter *filters.AccessFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:             api,
		sender:          api,
		cfg:             cfg,
		accessFilter:    accessFilter,
		rateLimiter:     middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		ledgerService:   ledgerService,
		ledgerHandler:   ledgerHandler,
		downloadHandler: downloadHandler,
		adminHandler:    adminHandler,
		parser:          NewCommandParser(),
		inflight:        make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram. Возвращается после отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
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
				b.rateLimiter.Close()
				return
			}

			// лимит параллелизма; загрузки идут в горутинах координатора и слот не держат
			if !b.acquire(ctx) {
				log.Info("Бот останавливается (ctx done)...")
				b.api.StopReceivingUpdates()
				b.rateLimiter.Close()
				return
			}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// acquire занимает слот обработки. false — ctx отменён раньше, чем слот освободился.
func (b *Bot) acquire(ctx context.Context) bool {
	select {
	case b.inflight <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// updateLogFields — контекст апдейта для лога паники.
func updateLogFields(update tgbotapi.Update) log.Fields {
	var userID, chatID int64
	if from := update.SentFrom(); from != nil {
		userID = from.ID
	}
	if chat := update.FromChat(); chat != nil {
		chatID = chat.ID
	}
	return middleware.UpdateFields(update.UpdateID, userID, chatID)
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(updateLogFields(update))

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	message := update.Message
	middleware.LogMessage(message)

	if !b.accessFilter.CheckAccess(message) {
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	b.ensureUser(ctx, message.From)

	if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.MessageID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      args,
	}).Debug("parsed command")

	if isCommand {
		b.routeCommand(ctx, message, cmd)
		return
	}

	// Всё остальное считаем ссылкой
	b.downloadHandler.HandleURL(ctx, message)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID, message.From)
	case "help":
		b.sendMessage(chatID, b.helpText())
	case "balance", "tokens":
		b.ledgerHandler.HandleBalance(ctx, chatID, userID)
	case "history":
		b.ledgerHandler.HandleHistory(ctx, chatID, userID)
	case "prices", "buy":
		b.ledgerHandler.HandlePrices(chatID)
	case "cancel":
		b.downloadHandler.HandleCancel(ctx, chatID, userID)
	default:
		b.sendMessage(chatID, "Неизвестная команда. Список команд: /help")
	}
}

// handleCallback обрабатывает нажатие inline-кнопки. На callback всегда отвечаем,
// иначе у пользователя крутятся часики.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	middleware.LogCallback(cb)

	if !b.accessFilter.CheckCallback(cb) {
		return
	}
	if !b.rateLimiter.Allow(cb.From.ID) {
		b.answerCallback(cb.ID, "⏳ Слишком часто, подождите немного")
		return
	}

	action, err := download.ParseCallback(cb.Data)
	if err != nil {
		log.WithError(err).WithField("user_id", cb.From.ID).Debug("unknown callback")
		b.answerCallback(cb.ID, "Кнопка устарела")
		return
	}

	menu, ok := action.(download.MenuAction)
	if !ok {
		b.downloadHandler.HandleCallback(ctx, cb, action)
		return
	}

	b.answerCallback(cb.ID, "")
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	switch menu.Item {
	case download.MenuBalance:
		b.ledgerHandler.HandleBalance(ctx, chatID, cb.From.ID)
	case download.MenuHistory:
		b.ledgerHandler.HandleHistory(ctx, chatID, cb.From.ID)
	case download.MenuPrices:
		b.ledgerHandler.HandlePrices(chatID)
	case download.MenuHelp:
		b.sendMessage(chatID, b.helpText())
	}
}

func (b *Bot) helpText() string {
	return fmt.Sprintf(helpTemplate, common.FormatFileSize(b.cfg.InlineMaxBytes))
}

// handleStart — приветствие с балансом и главным меню.
func (b *Bot) handleStart(ctx context.Context, chatID int64, from *tgbotapi.User) {
	balanceText, err := b.ledgerHandler.BalanceText(ctx, from.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", from.ID).Error("Ошибка получения баланса")
		balanceText = ""
	}

	name := from.FirstName
	if name == "" {
		name = from.UserName
	}
	text := fmt.Sprintf("👋 Привет, %s!\n\nЯ скачиваю видео и музыку с YouTube.\n"+
		"Пришлите ссылку на видео, shorts или плейлист.\n\n%s", name, balanceText)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = download.MainMenuKeyboard()
	if _, err := b.sender.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// ensureUser сохраняет профиль пользователя в леджере.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) {
	if err := b.ledgerService.EnsureUser(ctx, ledger.Profile{
		ID:        from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}); err != nil {
		log.WithError(err).WithField("user_id", from.ID).Warn("EnsureUser failed")
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.WithError(err).Warn("Ошибка ответа на callback")
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
