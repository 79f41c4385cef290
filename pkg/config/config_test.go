package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Depth int    `yaml:"depth"`
}

func (s *sample) Validate() error {
	if s.Depth < 1 {
		return errors.New("depth must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "vault")
	p := writeFile(t, "name: ${SAMPLE_NAME}\n")

	s := &sample{Depth: 2}
	if err := Load(p, s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "vault" {
		t.Errorf("name = %q, want %q", s.Name, "vault")
	}
	if s.Depth != 2 {
		t.Errorf("depth = %d, want 2", s.Depth)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	p := writeFile(t, "depth: 0\n")
	err := Load(p, &sample{})
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeFile(t, "name: [unclosed\n")
	if err := Load(p, &sample{Depth: 1}); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	s := &sample{Name: "default", Depth: 1}
	read, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), s)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if read {
		t.Error("missing file reported as read")
	}
	if s.Name != "default" {
		t.Errorf("name = %q, want %q", s.Name, "default")
	}
}

func TestLoadWithDefaults_ExistingFile(t *testing.T) {
	p := writeFile(t, "depth: 3\n")
	s := &sample{Depth: 1}
	read, err := LoadWithDefaults(p, s)
	if err != nil || !read {
		t.Fatalf("read = %v, err = %v", read, err)
	}
	if s.Depth != 3 {
		t.Errorf("depth = %d, want 3", s.Depth)
	}
}
