// Package media — fetcher.go вызывает yt-dlp через go-ytdlp: предпросмотр
// (только метаданные) и загрузку файла по аргументам из Translate.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/media-bot/internal/common"
)

const (
	toolYtDlp = "yt-dlp"

	// как часто go-ytdlp вызывает ProgressFunc
	progressInterval = 500 * time.Millisecond
)

// Флаги без обёртки в билдере: передаются как есть перед ссылкой
var fetchExtraArgs = []string{"--retries", "3"}

// Fetcher запускает yt-dlp.
type Fetcher struct {
	binary      string
	cookiesFile string
	maxItems    int
}

// NewFetcher создаёт обёртку над yt-dlp.
// cookiesFile может быть пустым; maxItems ограничивает число элементов плейлиста.
func NewFetcher(binary, cookiesFile string, maxItems int) *Fetcher {
	if binary == "" {
		binary = toolYtDlp
	}
	return &Fetcher{
		binary:      binary,
		cookiesFile: cookiesFile,
		maxItems:    maxItems,
	}
}

// command собирает базовую команду: бинарник и cookies, если файл существует.
func (f *Fetcher) command() *ytdlp.Command {
	cmd := ytdlp.New().SetExecutable(f.binary)
	if f.cookiesFile == "" {
		return cmd
	}
	if _, err := os.Stat(f.cookiesFile); err != nil {
		log.WithField("path", f.cookiesFile).Warn("Файл cookies не найден, загружаем без него")
		return cmd
	}
	return cmd.Cookies(f.cookiesFile)
}

// Inspect получает метаданные без загрузки файла.
// Ошибки: ErrURLInvalid, ErrURLUnavailable, FetchFailed, ErrTimeout.
func (f *Fetcher) Inspect(ctx context.Context, link Link) (*Preview, error) {
	cmd := f.command().DumpSingleJSON()
	if link.IsPlaylist {
		cmd = cmd.FlatPlaylist()
	} else {
		cmd = cmd.NoPlaylist()
	}

	res, err := cmd.Run(ctx, link.URL)
	if err != nil {
		return nil, classifyYtDlp(ctx, res, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: разбор JSON yt-dlp: %v", common.ErrInternal, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("%w: yt-dlp не вернул метаданные", common.ErrInternal)
	}
	info := infos[0]

	p := &Preview{
		ID:         info.ID,
		Title:      deref(info.Title),
		Channel:    deref(info.Channel),
		Duration:   float64(deref(info.Duration)),
		Views:      int64(deref(info.ViewCount)),
		UploadDate: formatUploadDate(deref(info.UploadDate)),
	}
	if p.Channel == "" {
		p.Channel = deref(info.Uploader)
	}

	if link.IsPlaylist || len(info.Entries) > 0 {
		p.IsPlaylist = true
		p.TotalEntries = len(info.Entries)
		for _, e := range info.Entries {
			if e == nil || e.ID == "" {
				continue
			}
			if f.maxItems > 0 && len(p.Entries) >= f.maxItems {
				break
			}
			p.Entries = append(p.Entries, Entry{
				ID:       e.ID,
				Title:    deref(e.Title),
				URL:      VideoURL(e.ID),
				Duration: float64(deref(e.Duration)),
			})
		}
		if len(p.Entries) == 0 {
			return nil, fmt.Errorf("плейлист пуст: %w", common.ErrURLUnavailable)
		}
		p.Qualities = append([]Quality(nil), qualityOrder[KindPlaylist]...)
		return p, nil
	}

	maxHeight := 0
	for _, fm := range info.Formats {
		if fm == nil || deref(fm.VCodec) == "none" {
			continue
		}
		if h := int(deref(fm.Height)); h > maxHeight {
			maxHeight = h
		}
	}
	p.Qualities = availableQualities(maxHeight, len(info.Formats) > 0)
	return p, nil
}

// availableQualities отбрасывает качества выше максимальной высоты ролика.
// 360p остаётся всегда: формат с ограничением сверху подберёт и меньшую высоту.
func availableQualities(maxHeight int, haveFormats bool) []Quality {
	out := []Quality{QualityMP3}
	if haveFormats && maxHeight == 0 {
		// только аудиодорожки
		return out
	}
	out = append(out, Quality360)
	if !haveFormats || maxHeight >= 720 {
		out = append(out, Quality720)
	}
	if !haveFormats || maxHeight >= 1080 {
		out = append(out, Quality1080)
	}
	return append(out, QualityBest)
}

// Fetch скачивает url в dir с аргументами формата formatArgs.
// progress получает проценты загрузки (может быть nil).
// Возвращает путь к готовому файлу.
func (f *Fetcher) Fetch(ctx context.Context, url string, formatArgs []string, dir string, progress func(percent float64)) (string, error) {
	cmd := f.command().
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(dir, "%(title)s.%(ext)s")).
		Print("after_move:filepath")

	if progress != nil {
		cmd = cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if pct, ok := progressPercent(update); ok {
				progress(pct)
			}
		})
	}

	args := make([]string, 0, len(formatArgs)+len(fetchExtraArgs)+1)
	args = append(args, formatArgs...)
	args = append(args, fetchExtraArgs...)
	args = append(args, url)

	res, err := cmd.Run(ctx, args...)
	if err != nil {
		return "", classifyYtDlp(ctx, res, err)
	}

	if path := printedPath(res.Stdout, dir); path != "" {
		return path, nil
	}
	return largestFile(dir)
}

// progressPercent считает процент по байтам. Пока размер неизвестен, прогресса нет.
func progressPercent(update ytdlp.ProgressUpdate) (float64, bool) {
	if update.TotalBytes <= 0 {
		return 0, false
	}
	pct := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// printedPath ищет в stdout последнюю строку --print, указывающую на файл внутри dir.
func printedPath(stdout, dir string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasPrefix(filepath.Clean(line), filepath.Clean(dir)+string(filepath.Separator)) {
			continue
		}
		if st, err := os.Stat(line); err == nil && st.Mode().IsRegular() {
			return line
		}
	}
	return ""
}

// largestFile выбирает самый большой готовый файл в каталоге задачи.
func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	var (
		best     string
		bestSize int64 = -1
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, name), info.Size()
		}
	}
	if best == "" {
		return "", errors.Join(common.NewFetchError(common.FetchUnknown), errors.New("yt-dlp не создал файл"))
	}
	return best, nil
}

// formatUploadDate превращает 20240131 в 2024-01-31.
func formatUploadDate(s string) string {
	if len(s) != 8 {
		return s
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
