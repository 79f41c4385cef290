package internal

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Linking.MaxDistance != 2 {
		t.Errorf("max distance = %d, want 2", cfg.Linking.MaxDistance)
	}
	if len(cfg.Linking.LabelKeys) != 1 || cfg.Linking.LabelKeys[0] != "tags" {
		t.Errorf("label keys = %v, want [tags]", cfg.Linking.LabelKeys)
	}
}

func TestLinkingConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		cfg  LinkingConfig
	}{
		{"zero distance", LinkingConfig{MaxDistance: 0, LabelKeys: []string{"tags"}}},
		{"negative workers", LinkingConfig{MaxDistance: 2, Workers: -1, LabelKeys: []string{"tags"}}},
		{"no label keys", LinkingConfig{MaxDistance: 2}},
		{"empty label key", LinkingConfig{MaxDistance: 2, LabelKeys: []string{""}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCorpusConfig_FolderEscapes(t *testing.T) {
	cfg := CorpusConfig{Root: ".", Folders: []string{"notes", "../outside"}, Extension: ".md"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("folder outside the root should fail")
	}
	cfg.Folders = []string{"notes", "cards/deep"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("nested folders should pass: %v", err)
	}
}

func TestInspectConfig_PathRequiredWhenEnabled(t *testing.T) {
	cfg := InspectConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled store without path should fail")
	}
	cfg.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled store needs no path: %v", err)
	}
}

func TestWatchConfig_NegativeDebounce(t *testing.T) {
	cfg := WatchConfig{Debounce: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("negative debounce should fail")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_SectionErrorsPrefixed(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Linking.MaxDistance = 0
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "linking: ") {
		t.Errorf("error = %v, want linking prefix", err)
	}
}
