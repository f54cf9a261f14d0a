package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lrstanley/go-ytdlp"

	"serotonyl.ru/media-bot/internal/common"
)

// yt-dlp -J печатает JSON одной строкой
const videoJSON = `{"_type":"video","id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","uploader":"Rick Astley","duration":213,"view_count":1500000000,"upload_date":"20091025","formats":[{"format_id":"140","height":null,"vcodec":"none"},{"format_id":"18","height":360,"vcodec":"avc1"},{"format_id":"22","height":720,"vcodec":"avc1"}]}`

const playlistJSON = `{"_type":"playlist","id":"PL123","title":"Mix","entries":[{"_type":"url","id":"aaaaaaaaaaa","title":"One","duration":60},{"_type":"url","id":"bbbbbbbbbbb","title":"Two","duration":61},{"_type":"url","id":"ccccccccccc","title":"Three","duration":62}]}`

// fakeYtDlp пишет shell-скрипт вместо yt-dlp. Аргументы вызова
// сохраняются построчно в файл, путь к которому возвращается вторым.
func fakeYtDlp(t *testing.T, body string) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	bin = filepath.Join(dir, "yt-dlp")
	argsFile = filepath.Join(dir, "args")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\n" + body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

// writeStdout кладёт вывод в файл, чтобы скрипт отдал его через cat без экранирования.
func writeStdout(t *testing.T, s string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdout")
	if err := os.WriteFile(path, []byte(s+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("yt-dlp was not invoked: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestInspectVideo(t *testing.T) {
	bin, argsFile := fakeYtDlp(t, "cat "+writeStdout(t, videoJSON))
	f := NewFetcher(bin, "", 50)

	link, _ := ParseLink("https://youtu.be/dQw4w9WgXcQ")
	p, err := f.Inspect(context.Background(), link)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if p.Title != "Never Gonna Give You Up" || p.Channel != "Rick Astley" || p.Duration != 213 {
		t.Fatalf("unexpected preview: %+v", p)
	}
	if p.UploadDate != "2009-10-25" || p.Views != 1500000000 {
		t.Fatalf("upload date = %q views = %d", p.UploadDate, p.Views)
	}
	want := []Quality{QualityMP3, Quality360, Quality720, QualityBest}
	if !reflect.DeepEqual(p.Qualities, want) {
		t.Fatalf("qualities = %v, want %v", p.Qualities, want)
	}

	args := readArgs(t, argsFile)
	if !contains(args, "--dump-single-json") || !contains(args, "--no-playlist") || args[len(args)-1] != link.URL {
		t.Fatalf("unexpected inspect args: %v", args)
	}
}

func TestInspectPlaylistCapsItems(t *testing.T) {
	bin, argsFile := fakeYtDlp(t, "cat "+writeStdout(t, playlistJSON))
	f := NewFetcher(bin, "", 2)

	link, _ := ParseLink("https://www.youtube.com/playlist?list=PL123")
	p, err := f.Inspect(context.Background(), link)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !p.IsPlaylist || p.TotalEntries != 3 || len(p.Entries) != 2 {
		t.Fatalf("unexpected playlist preview: %+v", p)
	}
	if p.Entries[0].URL != "https://www.youtube.com/watch?v=aaaaaaaaaaa" {
		t.Fatalf("entry URL = %q", p.Entries[0].URL)
	}
	if !reflect.DeepEqual(p.Qualities, []Quality{QualityMP3, Quality720}) {
		t.Fatalf("playlist qualities = %v", p.Qualities)
	}
	if !contains(readArgs(t, argsFile), "--flat-playlist") {
		t.Fatal("playlist inspection must be flat")
	}
}

func TestInspectUnavailable(t *testing.T) {
	bin, _ := fakeYtDlp(t, `echo "ERROR: [youtube] x: Video unavailable. This video has been removed" >&2; exit 1`)
	f := NewFetcher(bin, "", 50)

	link, _ := ParseLink("https://youtu.be/xxxxxxxxxxx")
	_, err := f.Inspect(context.Background(), link)
	if !errors.Is(err, common.ErrURLUnavailable) {
		t.Fatalf("err = %v, want ErrURLUnavailable", err)
	}
}

func TestFetchReturnsPrintedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Song.mp3")
	bin, argsFile := fakeYtDlp(t, "printf audio > "+path+"; echo "+path)
	f := NewFetcher(bin, "", 50)

	formatArgs, _ := Translate(KindAudio, QualityMP3)
	got, err := f.Fetch(context.Background(), "https://www.youtube.com/watch?v=x", formatArgs, dir, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != path {
		t.Fatalf("path = %q", got)
	}

	args := readArgs(t, argsFile)
	joined := strings.Join(args, " ")
	for _, want := range append([]string{
		"--restrict-filenames",
		"--no-playlist",
		"--output " + filepath.Join(dir, "%(title)s.%(ext)s"),
		"after_move:filepath",
	}, strings.Join(formatArgs, " ")) {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "https://www.youtube.com/watch?v=x" {
		t.Fatalf("url must be last: %v", args)
	}
	if contains(args, "--cookies") {
		t.Fatalf("no cookies configured, got %v", args)
	}
}

func TestFetchFallsBackToLargestFile(t *testing.T) {
	dir := t.TempDir()
	bin, _ := fakeYtDlp(t, "printf x > "+filepath.Join(dir, "small.jpg")+
		"; printf xxxxxxxx > "+filepath.Join(dir, "video.mp4")+
		"; printf xxxxxxxxxxxxxxxx > "+filepath.Join(dir, "video.mp4.part"))
	f := NewFetcher(bin, "", 50)

	got, err := f.Fetch(context.Background(), "u", nil, dir, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(got) != "video.mp4" {
		t.Fatalf("picked %q", got)
	}
}

func TestFetchNoFile(t *testing.T) {
	bin, _ := fakeYtDlp(t, "true")
	f := NewFetcher(bin, "", 50)
	_, err := f.Fetch(context.Background(), "u", nil, t.TempDir(), nil)
	if !errors.Is(err, common.ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	bin, _ := fakeYtDlp(t, `echo "ERROR: Unable to download webpage: <urlopen error [Errno -3]>" >&2; exit 1`)
	f := NewFetcher(bin, "", 50)

	_, err := f.Fetch(context.Background(), "u", nil, t.TempDir(), nil)
	var fe *common.FetchError
	if !errors.As(err, &fe) || fe.Reason != common.FetchNetwork {
		t.Fatalf("err = %v, want FetchFailed{network}", err)
	}
}

func TestFetchUsesCookiesWhenPresent(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape"), 0o600); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("x"), 0o600)
	bin, argsFile := fakeYtDlp(t, "true")
	f := NewFetcher(bin, cookies, 50)

	if _, err := f.Fetch(context.Background(), "u", nil, dir, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(strings.Join(readArgs(t, argsFile), " "), "--cookies "+cookies) {
		t.Fatal("cookies not passed")
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name   string
		update ytdlp.ProgressUpdate
		want   float64
		ok     bool
	}{
		{"unknown size", ytdlp.ProgressUpdate{DownloadedBytes: 10}, 0, false},
		{"half", ytdlp.ProgressUpdate{DownloadedBytes: 50, TotalBytes: 200}, 25, true},
		{"overshoot", ytdlp.ProgressUpdate{DownloadedBytes: 300, TotalBytes: 200}, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := progressPercent(tt.update)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("progressPercent = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
