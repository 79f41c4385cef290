package parser

import (
	"errors"
	"testing"

	"github.com/starford/crosslink/internal/apperr"
)

func TestSplit_FrontmatterAndBody(t *testing.T) {
	input := "---\ntitle: Hello\naliases: hi there\ntags:\n  - go\n  - notes\n---\n\n  # Hello\nBody text.\n"
	r, err := Split([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Header != "---\ntitle: Hello\naliases: hi there\ntags:\n  - go\n  - notes\n---" {
		t.Errorf("header = %q", r.Header)
	}
	if r.Leading != "\n\n  " {
		t.Errorf("leading = %q, want %q", r.Leading, "\n\n  ")
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if r.Header+r.Leading+r.Body != input {
		t.Error("split is not lossless")
	}
	if got := Aliases(r.Meta); len(got) != 1 || got[0] != "hi there" {
		t.Errorf("aliases = %v, want [hi there]", got)
	}
	if got := Labels(r.Meta, []string{"tags"}); len(got) != 2 || got[0] != "go" || got[1] != "notes" {
		t.Errorf("labels = %v, want [go notes]", got)
	}
}

func TestSplit_NoFrontmatter(t *testing.T) {
	input := "\n  Just text.\n"
	r, err := Split([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Meta != nil || r.Header != "" {
		t.Errorf("expected no header, got %q / %v", r.Header, r.Meta)
	}
	if r.Leading != "\n  " || r.Body != "Just text.\n" {
		t.Errorf("leading = %q, body = %q", r.Leading, r.Body)
	}
}

func TestSplit_UnclosedHeaderIsBody(t *testing.T) {
	input := "---\ntitle: x\nno closing fence"
	r, err := Split([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Header != "" || r.Body != input {
		t.Errorf("header = %q, body = %q", r.Header, r.Body)
	}
}

func TestSplit_EmptyHeader(t *testing.T) {
	r, err := Split([]byte("---\n---\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Header != "---\n---" || r.Meta != nil || r.Body != "body" {
		t.Errorf("result = %+v", r)
	}
}

func TestSplit_MalformedHeader(t *testing.T) {
	cases := []string{
		"---\n: invalid: yaml: {{{\n---\nBody\n",
		"---\n- just\n- a list\n---\nBody\n",
	}
	for _, in := range cases {
		_, err := Split([]byte(in))
		if !errors.Is(err, apperr.ErrMalformedHeader) {
			t.Errorf("Split(%q) error = %v, want ErrMalformedHeader", in, err)
		}
	}
}

func TestStrings_Shapes(t *testing.T) {
	meta := map[string]any{
		"single": "one",
		"list":   []any{"a", 2, nil, "  ", "b"},
		"empty":  nil,
		"other":  map[string]any{"x": 1},
	}
	if got := Strings(meta, "single"); len(got) != 1 || got[0] != "one" {
		t.Errorf("single = %v", got)
	}
	if got := Strings(meta, "list"); len(got) != 3 || got[0] != "a" || got[1] != "2" || got[2] != "b" {
		t.Errorf("list = %v, want [a 2 b]", got)
	}
	if got := Strings(meta, "empty"); got != nil {
		t.Errorf("empty = %v", got)
	}
	if got := Strings(meta, "other"); got != nil {
		t.Errorf("other = %v", got)
	}
	if got := Strings(nil, "missing"); got != nil {
		t.Errorf("nil meta = %v", got)
	}
}

func TestLabels_DedupAcrossKeys(t *testing.T) {
	meta := map[string]any{
		"tags":   []any{"x", "y"},
		"topics": []any{"y", "z"},
	}
	got := Labels(meta, []string{"tags", "topics"})
	want := []string{"x", "y", "z"}
	if len(got) != len(want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("labels[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
