// Package corpus loads vault documents for a linking run and commits the
// rewritten ones back.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/checksum"
	"github.com/starford/crosslink/internal/lexer"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/metrics"
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/parser"
	"github.com/starford/crosslink/internal/storage"
)

// Corpus is the set of documents that loaded cleanly plus the per-document
// faults of those that did not.
type Corpus struct {
	Documents []*models.Document
	Faults    []error
}

// Find returns the loaded document at path.
func (c *Corpus) Find(path string) (*models.Document, bool) {
	for _, d := range c.Documents {
		if d.Path == path {
			return d, true
		}
	}
	return nil, false
}

// Loader reads every document under Folders through Store.
type Loader struct {
	Store   storage.Provider
	Folders []string
	// IsolateHeaderErrors skips documents with malformed headers instead of
	// failing the whole load.
	IsolateHeaderErrors bool
	Logger              *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Paths lists the document paths under the configured folders, in folder
// order and de-duplicated when folders overlap.
func (l *Loader) Paths() ([]string, error) {
	folders := l.Folders
	if len(folders) == 0 {
		folders = []string{""}
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, folder := range folders {
		metas, err := l.Store.List(folder)
		if err != nil {
			return nil, fmt.Errorf("corpus: list %q: %w", folder, err)
		}
		for _, m := range metas {
			if _, dup := seen[m.Path]; dup {
				continue
			}
			seen[m.Path] = struct{}{}
			paths = append(paths, m.Path)
		}
	}
	return paths, nil
}

// Load lists, reads, splits and tokenizes the corpus. Documents that fail to
// tokenize are reported in Faults and skipped. A malformed header fails the
// load unless IsolateHeaderErrors is set.
func (l *Loader) Load(ctx context.Context) (*Corpus, error) {
	paths, err := l.Paths()
	if err != nil {
		return nil, err
	}

	c := &Corpus{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := l.Store.Read(p)
		if err != nil {
			return nil, fmt.Errorf("corpus: %w", apperr.ForDocument(p, err))
		}
		doc, err := Parse(p, data)
		if err == nil {
			c.Documents = append(c.Documents, doc)
			continue
		}

		switch {
		case errors.Is(err, apperr.ErrMalformedHeader) && !l.IsolateHeaderErrors:
			metrics.DocumentFaults.WithLabelValues("header").Inc()
			return nil, fmt.Errorf("corpus: %w", err)
		case errors.Is(err, apperr.ErrMalformedHeader):
			metrics.DocumentFaults.WithLabelValues("header").Inc()
		default:
			metrics.DocumentFaults.WithLabelValues("tokenize").Inc()
		}
		l.logger().Warn("corpus: document skipped",
			slog.String("path", p),
			slog.String("error", err.Error()))
		c.Faults = append(c.Faults, err)
	}

	l.logger().Debug("corpus: loaded",
		slog.Int("documents", len(c.Documents)),
		slog.Int("faults", len(c.Faults)))
	return c, nil
}

// Parse builds a document from raw file content. Errors are
// *apperr.DocumentError values.
func Parse(path string, data []byte) (*models.Document, error) {
	split, err := parser.Split(data)
	if err != nil {
		return nil, apperr.ForDocument(path, err)
	}
	tokens, err := lexer.Tokenize(split.Body)
	if err != nil {
		return nil, apperr.ForDocument(path, err)
	}
	return &models.Document{
		Path:     path,
		Meta:     split.Meta,
		Header:   split.Header,
		Leading:  split.Leading,
		Tokens:   tokens,
		Checksum: checksum.Sum(data),
	}, nil
}

// Commit writes every changed, successfully linked document. It is the only
// step of a run that touches the vault. Documents whose on-disk checksum no
// longer matches the loaded one are left alone and reported.
func Commit(ctx context.Context, store storage.Provider, report *linker.Report, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var written []string
	for _, res := range report.Changed() {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		current, err := store.Read(res.Path)
		if err != nil {
			return written, fmt.Errorf("corpus: commit: %w", err)
		}
		if res.Document != nil && !checksum.Unchanged(current, res.Document.Checksum) {
			logger.Warn("corpus: document changed during run, not written", slog.String("path", res.Path))
			continue
		}
		if err := store.Write(res.Path, []byte(res.Output)); err != nil {
			return written, fmt.Errorf("corpus: commit: %w", err)
		}
		metrics.DocumentsWritten.Inc()
		logger.Info("corpus: document linked",
			slog.String("path", res.Path),
			slog.Int("links", len(res.Accepted)))
		written = append(written, res.Path)
	}
	return written, nil
}
