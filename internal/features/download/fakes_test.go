package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/features/ledger"
	"serotonyl.ru/media-bot/internal/features/media"
)

const (
	testChatID   int64 = 42
	testUserID   int64 = 100
	testAdminID  int64 = 1
	testStranger int64 = 555

	testVideoURL    = "https://youtu.be/dQw4w9WgXcQ"
	testPlaylistURL = "https://www.youtube.com/playlist?list=PLabc123"
)

// fakeFetcher изображает yt-dlp: по умолчанию пишет файл в каталог задачи.
type fakeFetcher struct {
	mu         sync.Mutex
	inspectCalls int
	fetchCalls int
	fetchURLs  []string
	lastArgs   []string

	preview  *media.Preview
	inspectErr error
	size     int
	fetch    func(ctx context.Context, url, dir string) (string, error)
}

func (f *fakeFetcher) Inspect(_ context.Context, link media.Link) (*media.Preview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspectCalls++
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	if f.preview != nil {
		p := *f.preview
		return &p, nil
	}
	return &media.Preview{
		ID:        link.ID,
		Title:     "Test Video",
		Channel:   "Test Channel",
		Duration:  213,
		Qualities: []media.Quality{media.QualityMP3, media.Quality360, media.Quality720, media.Quality1080, media.QualityBest},
	}, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, formatArgs []string, dir string, progress func(float64)) (string, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.fetchURLs = append(f.fetchURLs, url)
	f.lastArgs = append([]string(nil), formatArgs...)
	fn := f.fetch
	size := f.size
	f.mu.Unlock()

	if progress != nil {
		progress(50)
		progress(100)
	}
	if fn != nil {
		return fn(ctx, url, dir)
	}
	if size == 0 {
		size = 2048
	}
	return writeFile(dir, "Test Video.mp4", size)
}

func (f *fakeFetcher) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func writeFile(dir, name string, size int) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	enabled bool
	calls   int
	err     error
}

func (u *fakeUploader) Enabled() bool { return u.enabled }

func (u *fakeUploader) Upload(_ context.Context, path, subfolder string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return "https://drive.example/" + subfolder + "/" + filepath.Base(path), nil
}

func (u *fakeUploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type fakeFiles struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeFiles) SendFile(_ context.Context, _ *Job, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("файл не найден при отправке: %w", err)
	}
	f.sent = append(f.sent, filepath.Base(path))
	return nil
}

func (f *fakeFiles) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// countingScratch считает вызовы Release для каждого каталога.
type countingScratch struct {
	inner *media.Scratch

	mu       sync.Mutex
	releases map[string]int
	dirs     map[string]string
}

func (s *countingScratch) Acquire(id string) (media.Area, error) {
	a, err := s.inner.Acquire(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.dirs[id] = a.Path()
	s.mu.Unlock()
	return &countingArea{Area: a, id: id, s: s}, nil
}

func (s *countingScratch) Releases(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases[id]
}

func (s *countingScratch) Dir(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[id]
}

type countingArea struct {
	media.Area
	id string
	s  *countingScratch
}

func (a *countingArea) Release() error {
	a.s.mu.Lock()
	a.s.releases[a.id]++
	a.s.mu.Unlock()
	return a.Area.Release()
}

// recordingNotifier запоминает фазы и отдаёт терминальные в канал.
type recordingNotifier struct {
	mu     sync.Mutex
	phases []Phase
	done   chan Phase
}

func (n *recordingNotifier) Report(_ context.Context, _ *Job, p Phase) {
	n.mu.Lock()
	n.phases = append(n.phases, p)
	n.mu.Unlock()
	if p.Kind == PhaseCompleted || p.Kind == PhaseFailed {
		n.done <- p
	}
}

func (n *recordingNotifier) Phases() []Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Phase(nil), n.phases...)
}

func (n *recordingNotifier) wait(t *testing.T) Phase {
	t.Helper()
	select {
	case p := <-n.done:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("задача не завершилась")
		return Phase{}
	}
}

type harness struct {
	coord    *Coordinator
	ledger   *ledger.Service
	fetcher  *fakeFetcher
	uploader *fakeUploader
	files    *fakeFiles
	scratch  *countingScratch
	notifier *recordingNotifier
}

func newHarness(t *testing.T, cloud bool) *harness {
	t.Helper()

	store, err := ledger.OpenFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatal(err)
	}
	svc := ledger.NewService(store, func(id int64) bool { return id == testAdminID })

	root, err := media.NewScratch(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		ledger:   svc,
		fetcher:  &fakeFetcher{},
		uploader: &fakeUploader{enabled: cloud},
		files:    &fakeFiles{},
		scratch:  &countingScratch{inner: root, releases: map[string]int{}, dirs: map[string]string{}},
		notifier: &recordingNotifier{done: make(chan Phase, 16)},
	}
	h.coord = NewCoordinator(Deps{
		Fetcher:   h.fetcher,
		Uploader:  h.uploader,
		Ledger:    svc,
		Scratch:   h.scratch,
		Notifier:  h.notifier,
		Files:     h.files,
		Authorize: func(id int64) bool { return id == testAdminID || id == testUserID },
	}, Options{
		PreviewTimeout:    time.Second,
		FetchTimeout:      2 * time.Second,
		UploadTimeout:     2 * time.Second,
		InlineMaxBytes:    1 << 20,
		MaxFilenameLength: 120,
		PendingTTL:        time.Minute,
	})

	var idMu sync.Mutex
	next := 0
	h.coord.newID = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		next++
		return fmt.Sprintf("job%d", next)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.coord.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return h
}

func (h *harness) credit(t *testing.T, userID, amount int64) {
	t.Helper()
	if _, err := h.ledger.Credit(context.Background(), userID, amount, ledger.ReasonAdminGrant); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := h.ledger.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// start проводит задачу через предпросмотр, выбор качества и подтверждение.
func (h *harness) start(t *testing.T, userID int64, url string, q media.Quality, dest Destination) *Job {
	t.Helper()
	ctx := context.Background()

	job, err := h.coord.Request(ctx, testChatID, userID, url)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := h.coord.SelectQuality(ctx, job.ID, userID, q); err != nil {
		t.Fatalf("SelectQuality: %v", err)
	}
	if h.coord.CloudEnabled() {
		if err := h.coord.Confirm(ctx, job.ID, userID, dest); err != nil {
			t.Fatalf("Confirm: %v", err)
		}
	}
	return job
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.ErrTimeout
	}
	return common.ErrCancelled
}

// fakeSender — Telegram-клиент в памяти.
type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	sendErr  error
	reqErr   error
	attempts int
	// block держит Send, пока канал не закрыт (зависшая загрузка файла)
	block chan struct{}
	// sending получает сигнал, когда Send начался
	sending chan struct{}
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.sending != nil {
		select {
		case s.sending <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.sendErr != nil {
		return tgbotapi.Message{}, s.sendErr
	}
	s.sent = append(s.sent, c)
	s.nextID++
	return tgbotapi.Message{MessageID: 76 + s.nextID}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	if s.reqErr != nil {
		return nil, s.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}
