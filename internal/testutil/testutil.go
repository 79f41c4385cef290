// Package testutil provides shared test helpers for setting up vaults and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/crosslink/internal/inspect"
	"github.com/starford/crosslink/internal/storage"
)

// TestDB creates a temporary inspection database that is automatically cleaned up.
func TestDB(t *testing.T) *inspect.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "crosslink-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := inspect.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory holding files (slash path to
// content) and a storage provider rooted at it.
func TestVault(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	for p, body := range files {
		abs := filepath.Join(vaultDir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LinkedVault is a small corpus where doc1 mentions doc2 through an alias and
// both share a tag.
var LinkedVault = map[string]string{
	"doc1.md": "---\ntags: [shared]\n---\nThis mentions doc two today.\n",
	"doc2.md": "---\ntags: [shared]\naliases: [doc two]\n---\nSecond document.\n",
	"doc3.md": "---\ntags: [other]\n---\nUnrelated doc1 mention.\n",
}
