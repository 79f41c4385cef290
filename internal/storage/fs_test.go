package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/crosslink/internal/apperr"
)

func tempVault(t *testing.T, opts ...FSOption) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, opts...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWritePreservesMode(t *testing.T) {
	s := tempVault(t)
	abs := filepath.Join(s.Root(), "ro.md")
	if err := os.WriteFile(abs, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("ro.md", []byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestReadMissing(t *testing.T) {
	s := tempVault(t)
	_, err := s.Read("nope.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("b.md", []byte("b"))
	_ = s.Write("sub/a.md", []byte("a"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".obsidian/cache.md", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	if items[0].Path != "b.md" || items[1].Path != "sub/a.md" {
		t.Errorf("paths = %q, %q; want sorted slash paths", items[0].Path, items[1].Path)
	}
	if items[0].Checksum == "" {
		t.Error("checksum should be set")
	}
}

func TestList_Subfolder(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("top.md", []byte("t"))
	_ = s.Write("cards/one.md", []byte("1"))
	items, err := s.List("cards")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "cards/one.md" {
		t.Errorf("items = %+v", items)
	}
}

func TestList_CustomExtension(t *testing.T) {
	s := tempVault(t, WithExtension("txt"))
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("b.txt", []byte("b"))
	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "b.txt" {
		t.Errorf("items = %+v", items)
	}
	if s.Extension() != ".txt" {
		t.Errorf("extension = %q", s.Extension())
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".crosslink-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "crosslink-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
