package gotrue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/account-service/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	if got, err := store.Load(); err != nil || got != nil {
		t.Fatalf("empty store should load nil, got %+v %v", got, err)
	}

	expires := time.Unix(1700000000, 0).UTC()
	if err := store.Save(domain.Tokens{AccessToken: "a", RefreshToken: "r", ExpiresAt: expires}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load()
	if err != nil || got == nil || got.RefreshToken != "r" || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected load: %+v %v", got, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clearing twice should succeed: %v", err)
	}
	if got, _ := store.Load(); got != nil {
		t.Fatalf("cleared store should load nil, got %+v", got)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := NewFileStore(path).Load(); err == nil {
		t.Fatal("expected decode error")
	}
}
