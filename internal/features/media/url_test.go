package media

import (
	"errors"
	"testing"

	"serotonyl.ru/media-bot/internal/common"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		in       string
		id       string
		playlist bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"youtube.com/watch?v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://m.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtube.com/shorts/abcDEF12345", "abcDEF12345", false},
		{"посмотри https://youtu.be/dQw4w9WgXcQ классное", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/playlist?list=PL1234567890abc", "PL1234567890abc", true},
	}
	for _, tt := range tests {
		link, err := ParseLink(tt.in)
		if err != nil {
			t.Fatalf("ParseLink(%q): %v", tt.in, err)
		}
		if link.ID != tt.id || link.IsPlaylist != tt.playlist {
			t.Fatalf("ParseLink(%q) = %+v", tt.in, link)
		}
	}
}

func TestParseLinkCanonicalURL(t *testing.T) {
	link, _ := ParseLink("youtu.be/dQw4w9WgXcQ")
	if link.URL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("URL = %q", link.URL)
	}
}

func TestParseLinkInvalid(t *testing.T) {
	for _, in := range []string{"", "hello", "https://vimeo.com/123", "https://example.com/watch?v=dQw4w9WgXcQ"} {
		if _, err := ParseLink(in); !errors.Is(err, common.ErrURLInvalid) {
			t.Fatalf("ParseLink(%q) err = %v, want ErrURLInvalid", in, err)
		}
	}
}
