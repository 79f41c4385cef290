// Package parser splits Markdown files into a verbatim YAML header, the
// whitespace that follows it, and the body, and reads the metadata keys the
// linker cares about.
package parser

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/starford/crosslink/internal/apperr"
)

const delim = "---"

// Result holds the output of splitting a Markdown file.
type Result struct {
	Meta    map[string]any
	Header  string
	Leading string
	Body    string
}

// Split separates the YAML header (between leading --- delimiters) from the
// body. Header and Leading are returned verbatim so that
// Header+Leading+Body == data. If no closing delimiter exists the whole
// content is body. A header that is not a YAML mapping yields
// apperr.ErrMalformedHeader.
func Split(data []byte) (*Result, error) {
	content := string(data)

	header, inner, ok := cutHeader(content)
	rest := content
	res := &Result{}
	if ok {
		res.Header = header
		rest = content[len(header):]

		meta, err := decode(inner)
		if err != nil {
			return nil, err
		}
		res.Meta = meta
	}

	body := strings.TrimLeftFunc(rest, unicode.IsSpace)
	res.Leading = rest[:len(rest)-len(body)]
	res.Body = body
	return res, nil
}

// cutHeader returns the full header text including both delimiters and the
// YAML between them.
func cutHeader(content string) (header, inner string, ok bool) {
	if !strings.HasPrefix(content, delim) {
		return "", "", false
	}
	after := content[len(delim):]
	idx := strings.Index(after, "\n"+delim)
	if idx < 0 {
		return "", "", false
	}
	end := len(delim) + idx + 1 + len(delim)
	return content[:end], after[:idx], true
}

func decode(inner string) (map[string]any, error) {
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(inner), &node); err != nil {
		return nil, fmt.Errorf("parser: %w: %v", apperr.ErrMalformedHeader, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parser: %w: header is not a mapping", apperr.ErrMalformedHeader)
	}
	var meta map[string]any
	if err := node.Decode(&meta); err != nil {
		return nil, fmt.Errorf("parser: %w: %v", apperr.ErrMalformedHeader, err)
	}
	return meta, nil
}

// Aliases returns the "aliases" metadata value, which may be a single string
// or a list. Non-string list items are formatted with %v.
func Aliases(meta map[string]any) []string {
	return Strings(meta, "aliases")
}

// Labels collects the values of every key in keys, in key order, without
// duplicates.
func Labels(meta map[string]any, keys []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range keys {
		for _, v := range Strings(meta, k) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Strings reads meta[key] as a list of non-empty strings.
func Strings(meta map[string]any, key string) []string {
	if meta == nil {
		return nil
	}
	raw, ok := meta[key]
	if !ok || raw == nil {
		return nil
	}
	var out []string
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
