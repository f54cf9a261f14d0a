package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"serotonyl.ru/media-bot/internal/common"
)

func openTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	return s, path
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	ids, err := s.ListUserIDs(context.Background())
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty ledger, got %v", ids)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	if err := s.EnsureUser(ctx, Profile{ID: 42, Username: "alice"}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if _, err := s.ApplyDelta(ctx, 42, 5, ReasonAdminGrant); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if _, err := s.ApplyDelta(ctx, 42, -2, ReasonDownload); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if err := s.AddHistory(ctx, 42, HistoryEntry{JobID: "j1", Title: "Song", Status: HistoryStatusCompleted}); err != nil {
		t.Fatalf("AddHistory: %v", err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	u, err := reopened.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Balance != 3 {
		t.Fatalf("balance = %d, want 3", u.Balance)
	}
	if u.Username != "alice" {
		t.Fatalf("username = %q", u.Username)
	}
	if len(u.Transactions) != 2 || u.Transactions[1].Delta != -2 {
		t.Fatalf("unexpected transactions: %+v", u.Transactions)
	}
	if len(u.History) != 1 || u.History[0].Title != "Song" {
		t.Fatalf("unexpected history: %+v", u.History)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	for i := int64(1); i <= 5; i++ {
		if err := s.EnsureUser(ctx, Profile{ID: i}); err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "ledger.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files: %v", names)
	}
}

func TestFileStoreRejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	if err := s.EnsureUser(ctx, Profile{ID: 1}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	balance, err := s.ApplyDelta(ctx, 1, -1, ReasonDownload)
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
	txs, _ := s.ListTransactions(ctx, 1, 0)
	if len(txs) != 0 {
		t.Fatalf("rejected debit must not be recorded, got %+v", txs)
	}
}

func TestFileStoreEmptyProfileKeepsNames(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	if err := s.EnsureUser(ctx, Profile{ID: 7, Username: "bob", FirstName: "Bob"}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if err := s.EnsureUser(ctx, Profile{ID: 7}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	u, _ := s.GetUser(ctx, 7)
	if u.Username != "bob" || u.FirstName != "Bob" {
		t.Fatalf("profile was overwritten: %+v", u)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := OpenFileStore(path)
	if err == nil || !strings.Contains(err.Error(), "повреждённый") {
		t.Fatalf("expected corrupt file error, got %v", err)
	}
}

func TestListHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	_ = s.EnsureUser(ctx, Profile{ID: 1})
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AddHistory(ctx, 1, HistoryEntry{JobID: id}); err != nil {
			t.Fatalf("AddHistory: %v", err)
		}
	}

	got, err := s.ListHistory(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(got) != 2 || got[0].JobID != "c" || got[1].JobID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestFileStoreBanSurvivesReopenAndProfileUpdate(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	if err := s.SetBanned(ctx, 42, true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	if err := s.EnsureUser(ctx, Profile{ID: 42, Username: "alice"}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	u, err := reopened.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !u.Banned || u.Username != "alice" {
		t.Fatalf("user = %+v", u)
	}

	if err := reopened.SetBanned(ctx, 42, false); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if u, _ := reopened.GetUser(ctx, 42); u.Banned {
		t.Fatal("still banned")
	}
}
