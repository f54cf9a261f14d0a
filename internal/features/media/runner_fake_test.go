package media

import (
	"context"
	"sync"
)

// fakeRunner отвечает заранее заданной функцией и запоминает вызовы.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Command
	fn    func(ctx context.Context, c Command) (Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, c Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.fn == nil {
		return Result{}, nil
	}
	return f.fn(ctx, c)
}

func (f *fakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}
