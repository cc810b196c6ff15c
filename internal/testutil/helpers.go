package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/i18n"
	"github.com/runixer/tubegrab/internal/storage"
)

// TestLogger returns a discarding logger for tests.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestConfig returns the embedded defaults with a token and a temp download folder.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.Telegram.Token = "test-token"
	cfg.Download.Dir = t.TempDir()
	cfg.Database.Path = ":memory:"
	return cfg
}

// TestTranslator returns the embedded translator with English as default.
func TestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator("en")
	if err != nil {
		t.Fatalf("failed to create test translator: %v", err)
	}
	return tr
}

// TestStore returns an initialized in-memory SQLite store closed at test end.
func TestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(TestLogger(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// WriteFile creates dir/name with content and returns its path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
