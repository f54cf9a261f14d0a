// Package download — координатор задач загрузки: предпросмотр, выбор формата,
// подтверждение, списание токена, запуск yt-dlp, доставка и очистка.
// models.go описывает задачу, её статусы и фазы для уведомлений.
package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"serotonyl.ru/media-bot/internal/features/media"
)

// Status — этап жизненного цикла задачи.
type Status string

const (
	StatusRequested Status = "requested"
	StatusPreviewed Status = "previewed"
	StatusConfirmed Status = "confirmed"
	StatusFetching  Status = "fetching"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal сообщает, что из статуса переходов нет.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Допустимые переходы. В Failed можно попасть из любого нетерминального статуса.
// У плейлиста Fetching и Uploading чередуются по элементам.
var transitions = map[Status][]Status{
	StatusRequested: {StatusPreviewed},
	StatusPreviewed: {StatusConfirmed},
	StatusConfirmed: {StatusFetching},
	StatusFetching:  {StatusUploading, StatusCompleted, StatusFetching},
	StatusUploading: {StatusCompleted, StatusFetching},
}

// Destination — куда доставить файл.
type Destination string

const (
	DestinationInline Destination = "tg"    // файлом в чат
	DestinationCloud  Destination = "cloud" // в облако через rclone
)

// Label возвращает подпись способа доставки.
func (d Destination) Label() string {
	switch d {
	case DestinationInline:
		return "Telegram"
	case DestinationCloud:
		return "Google Drive"
	default:
		return string(d)
	}
}

// Job — одна задача загрузки. Живёт в памяти до терминального статуса,
// после чего от неё остаётся только запись в истории.
type Job struct {
	ID        string
	ChatID    int64
	UserID    int64
	Link      media.Link
	CreatedAt time.Time

	mu          sync.Mutex
	status      Status
	kind        media.Kind
	quality     media.Quality
	destination Destination
	preview     *media.Preview
	messageID   int
	muted       bool
	cancel      context.CancelFunc
	cancelled   bool
}

func newJob(id string, chatID, userID int64, link media.Link, now time.Time) *Job {
	kind := media.KindVideo
	if link.IsPlaylist {
		kind = media.KindPlaylist
	}
	return &Job{
		ID:        id,
		ChatID:    chatID,
		UserID:    userID,
		Link:      link,
		CreatedAt: now,
		status:    StatusRequested,
		kind:      kind,
	}
}

// Status возвращает текущий статус.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// advance переводит задачу в статус to, проверяя таблицу переходов.
func (j *Job) advance(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.advanceLocked(to)
}

func (j *Job) advanceLocked(to Status) error {
	if j.status.Terminal() {
		return fmt.Errorf("задача %s уже завершена (%s)", j.ID, j.status)
	}
	if to == StatusFailed {
		j.status = to
		return nil
	}
	for _, allowed := range transitions[j.status] {
		if allowed == to {
			j.status = to
			return nil
		}
	}
	return fmt.Errorf("недопустимый переход %s → %s", j.status, to)
}

// Kind возвращает тип задачи.
func (j *Job) Kind() media.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.kind
}

// Quality возвращает выбранное качество (пусто, пока не выбрано).
func (j *Job) Quality() media.Quality {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.quality
}

// Destination возвращает способ доставки (пусто, пока не выбран).
func (j *Job) Destination() Destination {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.destination
}

// Preview возвращает метаданные ссылки.
func (j *Job) Preview() *media.Preview {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.preview
}

// MessageID — сообщение, в котором показывается статус задачи.
func (j *Job) MessageID() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.messageID
}

// SetMessageID запоминает сообщение статуса (вызывает уведомитель).
func (j *Job) SetMessageID(id int) {
	j.mu.Lock()
	j.messageID = id
	j.mu.Unlock()
}

// muteStatus отмечает, что сообщение статуса отправить не удалось.
// Промежуточные фазы после этого не шлются, чтобы не плодить сообщения.
func (j *Job) muteStatus() {
	j.mu.Lock()
	j.muted = true
	j.mu.Unlock()
}

func (j *Job) statusMuted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.muted
}

// PhaseKind — что показать пользователю.
type PhaseKind int

const (
	PhasePreviewing PhaseKind = iota
	PhaseAwaitingSelection
	PhaseDownloading
	PhaseUploadingToCloud
	PhaseCompleted
	PhaseFailed
)

func (k PhaseKind) String() string {
	switch k {
	case PhasePreviewing:
		return "previewing"
	case PhaseAwaitingSelection:
		return "awaiting_selection"
	case PhaseDownloading:
		return "downloading"
	case PhaseUploadingToCloud:
		return "uploading"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(k))
	}
}

// Terminal сообщает, что фаза итоговая.
func (k PhaseKind) Terminal() bool {
	return k == PhaseCompleted || k == PhaseFailed
}

// Phase — уведомление о ходе задачи.
type Phase struct {
	Kind PhaseKind

	// Downloading: процент и номер элемента плейлиста (Item с 1, Items = 0 для одиночной задачи)
	Percent float64
	Item    int
	Items   int
	Title   string

	// Completed
	Result *Result

	// Failed
	Err error
}

// ItemResult — итог одного файла.
type ItemResult struct {
	Title       string
	Destination Destination
	Reference   string // ссылка в облаке; пусто для доставки в чат
	SizeBytes   int64
	// Fallback — почему файл ушёл в облако вместо чата (например, ErrPayloadTooLarge)
	Fallback error
	Err      error
}

// Result — итог задачи.
type Result struct {
	Items []ItemResult
}

// Succeeded считает успешные элементы.
func (r *Result) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// FirstError возвращает первую ошибку элемента.
func (r *Result) FirstError() error {
	for _, it := range r.Items {
		if it.Err != nil {
			return it.Err
		}
	}
	return nil
}
