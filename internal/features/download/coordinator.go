// Package download — coordinator.go ведёт задачу от ссылки до доставки файла.
// На каждую подтверждённую задачу запускается своя горутина, цикл апдейтов не блокируется.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/features/ledger"
	"serotonyl.ru/media-bot/internal/features/media"
)

// Стоимость одного файла в токенах
const creditPerItem = 1

// Options — таймауты и лимиты координатора.
type Options struct {
	PreviewTimeout    time.Duration
	FetchTimeout      time.Duration
	UploadTimeout     time.Duration
	InlineMaxBytes    int64
	MaxFilenameLength int
	PendingTTL        time.Duration
}

// Deps — внешние зависимости координатора.
type Deps struct {
	Fetcher   Fetcher
	Uploader  Uploader
	Ledger    Ledger
	Scratch   Scratch
	Notifier  Notifier
	Files     FileSender
	Authorize Authorizer
}

// Coordinator управляет всеми задачами бота.
type Coordinator struct {
	fetcher   Fetcher
	uploader  Uploader
	ledger    Ledger
	scratch   Scratch
	notifier  Notifier
	files     FileSender
	authorize Authorizer
	opts      Options

	mu   sync.Mutex
	jobs map[string]*Job

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewCoordinator создаёт координатор.
func NewCoordinator(d Deps, opts Options) *Coordinator {
	ctx, stop := context.WithCancel(context.Background())
	authorize := d.Authorize
	if authorize == nil {
		authorize = func(int64) bool { return false }
	}
	return &Coordinator{
		fetcher:   d.Fetcher,
		uploader:  d.Uploader,
		ledger:    d.Ledger,
		scratch:   d.Scratch,
		notifier:  d.Notifier,
		files:     d.Files,
		authorize: authorize,
		opts:      opts,
		jobs:      make(map[string]*Job),
		ctx:       ctx,
		stop:      stop,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// CloudEnabled сообщает, доступна ли доставка в облако.
func (c *Coordinator) CloudEnabled() bool {
	return c.uploader != nil && c.uploader.Enabled()
}

// Preview получает метаданные ссылки без загрузки файла.
func (c *Coordinator) Preview(ctx context.Context, link media.Link) (*media.Preview, error) {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PreviewTimeout)
	defer cancel()
	return c.fetcher.Inspect(pctx, link)
}

// Request создаёт задачу по тексту сообщения и показывает предпросмотр.
// Ссылка, не похожая на YouTube, даёт ErrURLInvalid без создания задачи (job == nil).
// Если задача создана, об ошибке уже сообщено в её сообщении.
func (c *Coordinator) Request(ctx context.Context, chatID, userID int64, text string) (*Job, error) {
	if !c.authorize(userID) {
		return nil, common.ErrNotAuthorized
	}
	link, err := media.ParseLink(text)
	if err != nil {
		return nil, err
	}

	job := newJob(c.newID(), chatID, userID, link, c.now())
	c.register(job)
	c.logger(job).WithField("url", link.URL).Info("Новая задача")

	c.notifier.Report(ctx, job, Phase{Kind: PhasePreviewing})

	preview, err := c.Preview(ctx, link)
	if err != nil {
		c.fail(ctx, job, err)
		return job, err
	}

	job.mu.Lock()
	job.preview = preview
	err = job.advanceLocked(StatusPreviewed)
	job.mu.Unlock()
	if err != nil {
		// задачу успели отменить или она истекла, пока шёл предпросмотр
		return job, common.ErrJobNotFound
	}

	c.notifier.Report(ctx, job, Phase{Kind: PhaseAwaitingSelection})
	return job, nil
}

// SelectQuality запоминает выбранное качество.
// Если облако не настроено, задача сразу подтверждается с доставкой в чат.
func (c *Coordinator) SelectQuality(ctx context.Context, jobID string, userID int64, quality media.Quality) error {
	job, err := c.lookup(jobID, userID)
	if err != nil {
		return err
	}

	job.mu.Lock()
	if job.status != StatusPreviewed {
		job.mu.Unlock()
		return common.ErrJobNotFound
	}
	if job.preview == nil || !slices.Contains(job.preview.Qualities, quality) {
		job.mu.Unlock()
		return fmt.Errorf("%w: %s", common.ErrUnsupportedSelection, quality)
	}
	kind := media.KindVideo
	switch {
	case job.Link.IsPlaylist:
		kind = media.KindPlaylist
	case quality.IsAudio():
		kind = media.KindAudio
	}
	if !media.Supported(kind, quality) {
		job.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", common.ErrUnsupportedSelection, kind, quality)
	}
	job.kind = kind
	job.quality = quality
	job.mu.Unlock()

	if !c.CloudEnabled() {
		return c.Confirm(ctx, jobID, userID, DestinationInline)
	}
	c.notifier.Report(ctx, job, Phase{Kind: PhaseAwaitingSelection})
	return nil
}

// Confirm фиксирует способ доставки и запускает задачу в отдельной горутине.
func (c *Coordinator) Confirm(ctx context.Context, jobID string, userID int64, dest Destination) error {
	switch dest {
	case DestinationInline:
	case DestinationCloud:
		if !c.CloudEnabled() {
			return fmt.Errorf("%w: облако не настроено", common.ErrUnsupportedSelection)
		}
	default:
		return fmt.Errorf("%w: %s", common.ErrUnsupportedSelection, dest)
	}

	job, err := c.lookup(jobID, userID)
	if err != nil {
		return err
	}

	job.mu.Lock()
	if job.quality == "" {
		job.mu.Unlock()
		return fmt.Errorf("%w: качество не выбрано", common.ErrUnsupportedSelection)
	}
	if err := job.advanceLocked(StatusConfirmed); err != nil {
		job.mu.Unlock()
		return common.ErrJobNotFound
	}
	job.destination = dest
	runCtx, cancel := context.WithCancel(c.ctx)
	job.cancel = cancel
	job.mu.Unlock()

	c.logger(job).WithField("destination", dest).Info("Задача подтверждена")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(runCtx, job)
	}()
	return nil
}

// run выполняет подтверждённую задачу целиком и сообщает итог.
func (c *Coordinator) run(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			c.logger(job).WithField("panic", fmt.Sprintf("%v", r)).Error("ПАНИКА в задаче — восстановлено")
			c.fail(context.Background(), job, fmt.Errorf("%w: panic: %v", common.ErrInternal, r))
		}
	}()

	var result Result
	if job.Kind() == media.KindPlaylist {
		result = c.runPlaylist(ctx, job)
	} else {
		title := ""
		if p := job.Preview(); p != nil {
			title = p.Title
		}
		result.Items = []ItemResult{c.runItem(ctx, job, job.Link.URL, title, 0, 0)}
	}
	c.finish(ctx, job, &result)
}

// runPlaylist обрабатывает элементы по очереди. Ошибка одного элемента
// не останавливает остальные; после отмены оставшиеся элементы не запускаются.
func (c *Coordinator) runPlaylist(ctx context.Context, job *Job) Result {
	var entries []media.Entry
	if p := job.Preview(); p != nil {
		entries = p.Entries
	}

	var result Result
	for i, e := range entries {
		if ctx.Err() != nil {
			result.Items = append(result.Items, ItemResult{Title: e.Title, Err: common.ErrCancelled})
			continue
		}
		item := c.runItem(ctx, job, e.URL, e.Title, i+1, len(entries))
		result.Items = append(result.Items, item)
	}
	if len(result.Items) == 0 {
		result.Items = append(result.Items, ItemResult{Err: fmt.Errorf("плейлист пуст: %w", common.ErrURLUnavailable)})
	}
	return result
}

// runItem — конвейер одного файла: каталог → Execute → списание → Deliver → очистка.
// Каталог удаляется ровно один раз на любом пути выхода.
func (c *Coordinator) runItem(ctx context.Context, job *Job, url, title string, index, total int) (res ItemResult) {
	res.Title = title
	defer func() { c.record(job, url, res) }()

	areaID := job.ID
	if index > 0 {
		areaID = fmt.Sprintf("%s-%03d", job.ID, index)
	}
	area, err := c.scratch.Acquire(areaID)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", common.ErrInternal, err)
		return res
	}
	defer area.Release()

	path, err := c.Execute(ctx, job, url, area.Path(), c.progressReporter(ctx, job, title, index, total))
	if err != nil {
		res.Err = err
		return res
	}
	if res.Title == "" {
		res.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	// Отмена после загрузки: файл не доставляем и токен не списываем
	if ctx.Err() != nil {
		res.Err = common.ErrCancelled
		return res
	}

	// Списание ровно один раз на файл и только после успешной загрузки.
	// Неудачная доставка токен не возвращает.
	if _, err := c.ledger.Debit(context.WithoutCancel(ctx), job.UserID, creditPerItem, ledger.ReasonDownload); err != nil {
		res.Err = err
		return res
	}

	if info, err := os.Stat(path); err == nil {
		res.SizeBytes = info.Size()
	}

	d, err := c.Deliver(ctx, job, path, res.Title)
	res.Destination = d.Destination
	res.Reference = d.Reference
	res.Fallback = d.Fallback
	res.Err = err
	return res
}

// Execute проверяет доступ и баланс, затем запускает yt-dlp с таймаутом
// и возвращает путь к файлу с безопасным именем. До проверок процесс не запускается.
func (c *Coordinator) Execute(ctx context.Context, job *Job, url, dir string, progress func(float64)) (string, error) {
	if !c.authorize(job.UserID) {
		return "", common.ErrNotAuthorized
	}
	ok, err := c.ledger.CanAfford(ctx, job.UserID, creditPerItem)
	if err != nil {
		return "", fmt.Errorf("%w: проверка баланса: %v", common.ErrInternal, err)
	}
	if !ok {
		return "", common.ErrInsufficientBalance
	}

	args, err := media.Translate(job.Kind(), job.Quality())
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", common.ErrCancelled
	}

	if err := job.advance(StatusFetching); err != nil {
		c.logger(job).WithError(err).Warn("Переход статуса")
	}

	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	path, err := c.fetcher.Fetch(fctx, url, args, dir, progress)
	if err != nil {
		return "", err
	}

	clean, err := media.SanitizeFile(path, c.opts.MaxFilenameLength)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	return clean, nil
}

// Delivery — куда в итоге ушёл файл.
type Delivery struct {
	Destination Destination
	Reference   string
	Fallback    error
}

// Deliver отправляет файл в чат или в облако.
// Файл больше лимита чата никогда не отправляется в чат: он уходит в облако,
// а без облака задача падает с ErrPayloadTooLarge. Сбой отправки в чат тоже
// переводит доставку в облако, если оно настроено.
func (c *Coordinator) Deliver(ctx context.Context, job *Job, path, title string) (Delivery, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}

	if job.Destination() == DestinationCloud {
		return c.deliverCloud(ctx, job, path, Delivery{})
	}

	if info.Size() > c.opts.InlineMaxBytes {
		tooLarge := fmt.Errorf("%w: %s при лимите %s", common.ErrPayloadTooLarge,
			common.FormatFileSize(info.Size()), common.FormatFileSize(c.opts.InlineMaxBytes))
		if !c.CloudEnabled() {
			return Delivery{Destination: DestinationInline}, tooLarge
		}
		c.logger(job).WithField("size", info.Size()).Info("Файл больше лимита чата, отправляем в облако")
		return c.deliverCloud(ctx, job, path, Delivery{Fallback: tooLarge})
	}

	caption := fmt.Sprintf("%s\n%s", title, job.Quality().Label())
	sctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
	err = c.files.SendFile(sctx, job, path, caption)
	cancel()
	if err != nil {
		// таймаут и отмена завершают задачу, облако не пробуем
		if errors.Is(err, common.ErrTimeout) || errors.Is(err, common.ErrCancelled) {
			return Delivery{Destination: DestinationInline}, err
		}
		c.logger(job).WithError(err).Warn("Не удалось отправить файл в чат")
		failed := fmt.Errorf("%w: отправка в чат: %v", common.ErrUploadFailed, err)
		if !c.CloudEnabled() {
			return Delivery{Destination: DestinationInline}, failed
		}
		return c.deliverCloud(ctx, job, path, Delivery{Fallback: failed})
	}
	return Delivery{Destination: DestinationInline}, nil
}

func (c *Coordinator) deliverCloud(ctx context.Context, job *Job, path string, d Delivery) (Delivery, error) {
	d.Destination = DestinationCloud
	if err := job.advance(StatusUploading); err != nil {
		c.logger(job).WithError(err).Warn("Переход статуса")
	}
	c.notifier.Report(ctx, job, Phase{Kind: PhaseUploadingToCloud})

	uctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
	defer cancel()

	ref, err := c.uploader.Upload(uctx, path, strconv.FormatInt(job.UserID, 10))
	if err != nil {
		return d, err
	}
	d.Reference = ref
	return d, nil
}

// progressReporter шлёт уведомление о загрузке на каждые 10%.
func (c *Coordinator) progressReporter(ctx context.Context, job *Job, title string, index, total int) func(float64) {
	c.notifier.Report(ctx, job, Phase{Kind: PhaseDownloading, Item: index, Items: total, Title: title})

	var mu sync.Mutex
	lastBucket := 0
	return func(pct float64) {
		bucket := int(pct / 10)
		mu.Lock()
		if bucket <= lastBucket {
			mu.Unlock()
			return
		}
		lastBucket = bucket
		mu.Unlock()
		c.notifier.Report(ctx, job, Phase{Kind: PhaseDownloading, Percent: pct, Item: index, Items: total, Title: title})
	}
}

// finish переводит задачу в терминальный статус и удаляет её из памяти.
func (c *Coordinator) finish(ctx context.Context, job *Job, result *Result) {
	if result.Succeeded() == 0 {
		c.fail(ctx, job, result.FirstError())
		return
	}
	if err := job.advance(StatusCompleted); err != nil {
		c.logger(job).WithError(err).Warn("Переход статуса")
	}
	c.remove(job)
	c.notifier.Report(context.WithoutCancel(ctx), job, Phase{Kind: PhaseCompleted, Result: result})

	c.logger(job).WithFields(log.Fields{
		"succeeded": result.Succeeded(),
		"items":     len(result.Items),
	}).Info("Задача завершена")
}

// fail переводит задачу в Failed, сообщает причину и удаляет задачу.
// Повторный вызов для уже завершённой задачи ничего не делает.
func (c *Coordinator) fail(ctx context.Context, job *Job, err error) {
	if err == nil {
		err = common.ErrInternal
	}
	if advErr := job.advance(StatusFailed); advErr != nil {
		return
	}
	c.remove(job)

	entry := c.logger(job).WithError(err)
	if common.IsInternal(err) {
		entry.Error("Задача завершилась внутренней ошибкой")
	} else {
		entry.Info("Задача завершилась с ошибкой")
	}
	c.notifier.Report(context.WithoutCancel(ctx), job, Phase{Kind: PhaseFailed, Err: err})
}

// record сохраняет сводку файла в историю пользователя.
func (c *Coordinator) record(job *Job, url string, res ItemResult) {
	entry := ledger.HistoryEntry{
		JobID:       job.ID,
		URL:         url,
		Title:       res.Title,
		Kind:        string(c.itemKind(job)),
		Quality:     string(job.Quality()),
		Destination: string(res.Destination),
		Reference:   res.Reference,
		SizeBytes:   res.SizeBytes,
		Status:      ledger.HistoryStatusCompleted,
		CreatedAt:   c.now(),
	}
	if res.Err != nil {
		entry.Status = ledger.HistoryStatusFailed
		entry.Error = common.UserMessage(res.Err)
	}
	if err := c.ledger.RecordDownload(context.Background(), job.UserID, entry); err != nil {
		c.logger(job).WithError(err).Warn("Не удалось записать историю")
	}
}

func (c *Coordinator) itemKind(job *Job) media.Kind {
	if k := job.Kind(); k != media.KindPlaylist {
		return k
	}
	return media.ItemKind(job.Quality())
}

// Cancel отменяет задачу пользователя. Задача, которая ещё не запущена,
// завершается сразу; у запущенной убивается процесс, дальше её завершает run.
func (c *Coordinator) Cancel(ctx context.Context, jobID string, userID int64) error {
	job, err := c.lookup(jobID, userID)
	if err != nil {
		return err
	}

	job.mu.Lock()
	job.cancelled = true
	cancel := job.cancel
	status := job.status
	job.mu.Unlock()

	switch status {
	case StatusRequested, StatusPreviewed:
		c.fail(ctx, job, common.ErrCancelled)
	default:
		if cancel != nil {
			cancel()
		}
	}
	c.logger(job).WithField("status", status).Info("Задача отменена пользователем")
	return nil
}

// CancelUser отменяет все задачи пользователя и возвращает их число.
func (c *Coordinator) CancelUser(ctx context.Context, userID int64) int {
	var ids []string
	c.mu.Lock()
	for id, job := range c.jobs {
		if job.UserID == userID {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	n := 0
	for _, id := range ids {
		if err := c.Cancel(ctx, id, userID); err == nil {
			n++
		}
	}
	return n
}

// ExpirePending завершает задачи, ожидающие выбора дольше PendingTTL.
// Возвращает число истёкших задач.
func (c *Coordinator) ExpirePending(ctx context.Context) int {
	cutoff := c.now().Add(-c.opts.PendingTTL)

	var expired []*Job
	c.mu.Lock()
	for _, job := range c.jobs {
		st := job.Status()
		if (st == StatusRequested || st == StatusPreviewed) && job.CreatedAt.Before(cutoff) {
			expired = append(expired, job)
		}
	}
	c.mu.Unlock()

	for _, job := range expired {
		c.fail(ctx, job, fmt.Errorf("%w: истёк срок выбора формата", common.ErrJobNotFound))
	}
	return len(expired)
}

// ActiveJobs возвращает число задач в памяти.
func (c *Coordinator) ActiveJobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// Job возвращает задачу пользователя по id.
func (c *Coordinator) Job(jobID string, userID int64) (*Job, error) {
	return c.lookup(jobID, userID)
}

// Shutdown отменяет все запущенные задачи и ждёт их завершения (не дольше ctx).
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("задачи не завершились вовремя: %w", ctx.Err())
	}
}

func (c *Coordinator) register(job *Job) {
	c.mu.Lock()
	c.jobs[job.ID] = job
	c.mu.Unlock()
}

func (c *Coordinator) remove(job *Job) {
	c.mu.Lock()
	delete(c.jobs, job.ID)
	c.mu.Unlock()
}

// lookup находит задачу; чужая задача выглядит как несуществующая.
func (c *Coordinator) lookup(jobID string, userID int64) (*Job, error) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok || job.UserID != userID {
		return nil, common.ErrJobNotFound
	}
	return job, nil
}

func (c *Coordinator) logger(job *Job) *log.Entry {
	return log.WithFields(log.Fields{
		"job_id":  job.ID,
		"user_id": job.UserID,
		"kind":    job.Kind(),
		"quality": job.Quality(),
	})
}
