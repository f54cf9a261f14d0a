// Package media — url.go распознаёт ссылки YouTube: видео, shorts, youtu.be и плейлисты.
package media

import (
	"fmt"
	"regexp"
	"strings"

	"serotonyl.ru/media-bot/internal/common"
)

var (
	videoPattern    = regexp.MustCompile(`(?:https?://)?(?:www\.|m\.)?(?:youtube\.com/watch\?(?:\S*&)?v=|youtu\.be/|youtube\.com/shorts/)([a-zA-Z0-9_-]{6,})`)
	playlistPattern = regexp.MustCompile(`(?:https?://)?(?:www\.|m\.)?youtube\.com/playlist\?(?:\S*&)?list=([a-zA-Z0-9_-]+)`)
)

const (
	videoURLTemplate    = "https://www.youtube.com/watch?v=%s"
	playlistURLTemplate = "https://www.youtube.com/playlist?list=%s"
)

// Link — распознанная ссылка.
type Link struct {
	ID         string
	URL        string // каноническая ссылка, её и получает yt-dlp
	IsPlaylist bool
}

// ParseLink ищет в тексте ссылку на видео или плейлист.
// Плейлист проверяется первым: ссылка /playlist?list= не бывает видео.
func ParseLink(text string) (Link, error) {
	text = strings.TrimSpace(text)
	if m := playlistPattern.FindStringSubmatch(text); m != nil {
		return Link{ID: m[1], URL: fmt.Sprintf(playlistURLTemplate, m[1]), IsPlaylist: true}, nil
	}
	if m := videoPattern.FindStringSubmatch(text); m != nil {
		return Link{ID: m[1], URL: fmt.Sprintf(videoURLTemplate, m[1])}, nil
	}
	return Link{}, common.ErrURLInvalid
}

// VideoURL строит ссылку на видео по id (для элементов плейлиста).
func VideoURL(id string) string {
	return fmt.Sprintf(videoURLTemplate, id)
}
