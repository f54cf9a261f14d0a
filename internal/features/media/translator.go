// Package media — translator.go переводит пару (тип, качество) в аргументы формата yt-dlp.
// Таблица статическая: одна и та же пара всегда даёт один и тот же список.
package media

import (
	"fmt"

	"serotonyl.ru/media-bot/internal/common"
)

// Selection — пара (тип, качество).
type Selection struct {
	Kind    Kind
	Quality Quality
}

func (s Selection) String() string {
	return fmt.Sprintf("%s/%s", s.Kind, s.Quality)
}

var (
	audioMP3Args = []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
	}

	formatTable = map[Selection][]string{
		{KindAudio, QualityMP3}:    audioMP3Args,
		{KindVideo, Quality360}:    videoCapped(360),
		{KindVideo, Quality720}:    videoCapped(720),
		{KindVideo, Quality1080}:   videoCapped(1080),
		{KindVideo, QualityBest}:   {"--format", "bestvideo+bestaudio/best"},
		{KindPlaylist, QualityMP3}: audioMP3Args,
		{KindPlaylist, Quality720}: videoCapped(720),
	}

	// Порядок кнопок выбора качества
	qualityOrder = map[Kind][]Quality{
		KindAudio:    {QualityMP3},
		KindVideo:    {QualityMP3, Quality360, Quality720, Quality1080, QualityBest},
		KindPlaylist: {QualityMP3, Quality720},
	}
)

func videoCapped(height int) []string {
	return []string{
		"--format", fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height),
	}
}

// Translate возвращает аргументы формата для пары (kind, quality).
// Возвращается копия: вызывающий может дописывать в неё свои флаги.
func Translate(kind Kind, quality Quality) ([]string, error) {
	args, ok := formatTable[Selection{Kind: kind, Quality: quality}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", common.ErrUnsupportedSelection, kind, quality)
	}
	return append([]string(nil), args...), nil
}

// Supported сообщает, есть ли пара в таблице.
func Supported(kind Kind, quality Quality) bool {
	_, ok := formatTable[Selection{Kind: kind, Quality: quality}]
	return ok
}

// ItemKind возвращает тип одиночной задачи, которой становится элемент плейлиста.
func ItemKind(quality Quality) Kind {
	if quality.IsAudio() {
		return KindAudio
	}
	return KindVideo
}

// Selections возвращает все поддерживаемые пары (для тестов и справки).
func Selections() []Selection {
	out := make([]Selection, 0, len(formatTable))
	for _, kind := range []Kind{KindAudio, KindVideo, KindPlaylist} {
		for _, q := range qualityOrder[kind] {
			if kind == KindVideo && q == QualityMP3 {
				// mp3 из видео-ссылки — это задача типа audio
				continue
			}
			out = append(out, Selection{Kind: kind, Quality: q})
		}
	}
	return out
}
