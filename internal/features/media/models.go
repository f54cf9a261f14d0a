// Package media оборачивает внешние утилиты: yt-dlp (загрузка) и rclone (облако).
// models.go описывает типы медиа, качества и метаданные предпросмотра.
package media

// Kind — тип задачи.
type Kind string

const (
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
)

// Quality — выбранное качество.
type Quality string

const (
	QualityMP3  Quality = "mp3"
	Quality360  Quality = "360p"
	Quality720  Quality = "720p"
	Quality1080 Quality = "1080p"
	QualityBest Quality = "best"
)

// Label возвращает подпись качества для кнопок и сообщений.
func (q Quality) Label() string {
	switch q {
	case QualityMP3:
		return "🎵 MP3"
	case Quality360:
		return "📹 360p"
	case Quality720:
		return "📺 720p"
	case Quality1080:
		return "🎬 1080p"
	case QualityBest:
		return "⭐ Лучшее"
	default:
		return string(q)
	}
}

// IsAudio сообщает, что результат — аудиофайл.
func (q Quality) IsAudio() bool {
	return q == QualityMP3
}

// Entry — элемент плейлиста.
type Entry struct {
	ID       string
	Title    string
	URL      string
	Duration float64
}

// Preview — метаданные, полученные без загрузки файла.
type Preview struct {
	ID         string
	Title      string
	Channel    string
	Duration   float64 // секунды
	Views      int64
	UploadDate string // YYYY-MM-DD
	// Qualities — что можно выбрать для этой ссылки
	Qualities []Quality

	IsPlaylist bool
	// Entries — элементы плейлиста, обрезанные до лимита
	Entries []Entry
	// TotalEntries — сколько элементов в плейлисте на самом деле
	TotalEntries int
}
