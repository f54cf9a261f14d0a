package admin

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"serotonyl.ru/media-bot/internal/common"
	"serotonyl.ru/media-bot/internal/features/ledger"
)

const (
	testAdmin int64 = 1
	testUser  int64 = 100
)

func newTestService(t *testing.T, password string) (*Service, *ledger.Service) {
	t.Helper()
	store, err := ledger.OpenFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatal(err)
	}
	lsvc := ledger.NewService(store, func(id int64) bool { return id == testAdmin })

	hash := ""
	if password != "" {
		hash, err = HashPassword(password)
		if err != nil {
			t.Fatal(err)
		}
	}
	return NewService(NewRepository(), lsvc, hash, func() int { return 2 }), lsvc
}

func TestVerifyArgon2idRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !verifyArgon2id("s3cret", hash) {
		t.Fatal("correct password rejected")
	}
	if verifyArgon2id("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
	if verifyArgon2id("s3cret", "not-a-hash") {
		t.Fatal("garbage hash accepted")
	}
}

func TestNoPasswordMeansAdminIDsSuffice(t *testing.T) {
	svc, _ := newTestService(t, "")
	if err := svc.Authorize(testAdmin); err != nil {
		t.Fatalf("Authorize(admin) = %v", err)
	}
	if err := svc.Authorize(testUser); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("Authorize(user) = %v, want ErrNotAdmin", err)
	}
}

func TestLoginLockout(t *testing.T) {
	svc, _ := newTestService(t, "s3cret")

	if err := svc.Authorize(testAdmin); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("Authorize before login = %v", err)
	}
	for i := 0; i < maxLoginAttempts; i++ {
		if err := svc.VerifyPassword(testAdmin, "nope"); !errors.Is(err, common.ErrWrongPassword) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := svc.VerifyPassword(testAdmin, "s3cret"); !errors.Is(err, common.ErrTooManyAttempts) {
		t.Fatalf("after lockout: %v", err)
	}

	// через час блокировка снимается
	svc.repo.now = func() time.Time { return time.Now().Add(attemptsWindow + time.Minute) }
	if err := svc.VerifyPassword(testAdmin, "s3cret"); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	svc, _ := newTestService(t, "s3cret")
	if err := svc.VerifyPassword(testAdmin, "s3cret"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Authorize(testAdmin); err != nil {
		t.Fatalf("Authorize after login = %v", err)
	}

	svc.repo.now = func() time.Time { return time.Now().Add(sessionTTL + time.Minute) }
	if err := svc.Authorize(testAdmin); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("Authorize after TTL = %v", err)
	}
}

func TestGrantTokensAndStats(t *testing.T) {
	ctx := context.Background()
	svc, lsvc := newTestService(t, "")

	if _, err := svc.GrantTokens(ctx, testUser, testUser, 5); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("non-admin grant = %v", err)
	}
	if _, err := svc.GrantTokens(ctx, testAdmin, testUser, 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("zero grant = %v", err)
	}
	balance, err := svc.GrantTokens(ctx, testAdmin, testUser, 5)
	if err != nil || balance != 5 {
		t.Fatalf("grant = %d, %v", balance, err)
	}
	if b, _ := lsvc.GetBalance(ctx, testUser); b != 5 {
		t.Fatalf("ledger balance = %d", b)
	}

	st, err := svc.Stats(ctx, testAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if st.Users != 1 || st.CreditsInCirculation != 5 || st.ActiveJobs != 2 {
		t.Fatalf("stats = %+v", st)
	}
}
