package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	rl.now = func() time.Time { return clock }

	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow(1) {
		t.Fatal("third request allowed inside window")
	}
	if !rl.Allow(2) {
		t.Fatal("other user limited")
	}

	clock = base.Add(time.Minute + time.Second)
	if !rl.Allow(1) {
		t.Fatal("request rejected after window passed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Close()
	for i := 0; i < 100; i++ {
		if !rl.Allow(1) {
			t.Fatal("disabled limiter rejected request")
		}
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("привет", 3); got != "при..." {
		t.Fatalf("shorten = %q", got)
	}
	if got := shorten("ok", 3); got != "ok" {
		t.Fatalf("shorten = %q", got)
	}
}
