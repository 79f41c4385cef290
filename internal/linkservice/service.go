// Package linkservice coordinates the vault, the linking pipeline, the
// inspection store and event publishing. The CLI, HTTP API, watcher and MCP
// server all go through it.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/crosslink/internal/alias"
	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/corpus"
	"github.com/starford/crosslink/internal/inspect"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/metrics"
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/relevance"
	"github.com/starford/crosslink/internal/sse"
	"github.com/starford/crosslink/internal/storage"
)

// Publisher receives run and document events.
type Publisher interface {
	Publish(event sse.Event)
	PublishDocumentEvent(kind, path string)
}

// Settings control how the vault is loaded and whether runs write.
type Settings struct {
	Folders             []string
	IsolateHeaderErrors bool
	DryRun              bool
	// KeepRuns bounds the inspection history; zero keeps everything.
	KeepRuns int
}

// Outcome is the result of one vault-wide run.
type Outcome struct {
	Run     inspect.Run
	Report  *linker.Report
	Faults  []error
	Written []string
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithInspect records every run in db.
func WithInspect(db *inspect.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithPublisher announces runs and document changes through p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

type snapshot struct {
	corpus *corpus.Corpus
	index  *linker.Index
}

// Service links a vault and answers queries against its current state.
type Service struct {
	store    storage.Provider
	pipeline *linker.Pipeline
	loader   *corpus.Loader
	settings Settings

	db     *inspect.DB
	events Publisher
	logger *slog.Logger

	// runMu serializes vault-wide runs.
	runMu sync.Mutex

	mu    sync.RWMutex
	snap  *snapshot
	gen   uint64
	group singleflight.Group
}

// NewService creates a link service over store.
func NewService(store storage.Provider, pipeline *linker.Pipeline, settings Settings, opts ...Option) *Service {
	s := &Service{
		store:    store,
		pipeline: pipeline,
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if pipeline.Logger == nil {
		pipeline.Logger = s.logger
	}
	s.loader = &corpus.Loader{
		Store:               store,
		Folders:             settings.Folders,
		IsolateHeaderErrors: settings.IsolateHeaderErrors,
		Logger:              s.logger,
	}
	return s
}

// Pipeline returns the pipeline the service links with.
func (s *Service) Pipeline() *linker.Pipeline {
	return s.pipeline
}

// LinkVault loads the whole vault, links every document and, unless the
// service is in dry-run mode, writes the changed ones back. Runs never
// overlap.
func (s *Service) LinkVault(ctx context.Context) (*Outcome, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now().UTC()
	run := inspect.Run{
		ID:          inspect.NewRunID(),
		StartedAt:   start,
		DryRun:      s.settings.DryRun,
		MaxDistance: s.pipeline.Radius(),
	}
	s.publish(sse.Event{Type: sse.TypeRunStarted, Data: map[string]string{"id": run.ID}})

	fail := func(err error) (*Outcome, error) {
		metrics.RunsTotal.WithLabelValues("aborted").Inc()
		s.publish(sse.Event{Type: sse.TypeRunFailed, Data: map[string]string{"id": run.ID, "error": err.Error()}})
		s.logger.Error("linkservice: run aborted",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
		return nil, err
	}

	c, err := s.loader.Load(ctx)
	if err != nil {
		return fail(fmt.Errorf("linkservice: load: %w", err))
	}
	report, err := s.pipeline.Run(ctx, c.Documents)
	if err != nil {
		return fail(err)
	}

	outcome := "dry_run"
	var written []string
	if !s.settings.DryRun {
		outcome = "committed"
		written, err = corpus.Commit(ctx, s.store, report, s.logger)
		if len(written) > 0 {
			s.Invalidate()
		}
		if err != nil {
			return fail(err)
		}
	}

	run.FinishedAt = time.Now().UTC()
	run = inspect.Summarize(run, report)
	run.Written = len(written)
	run.Failed += len(c.Faults)

	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(run.FinishedAt.Sub(start).Seconds())

	s.record(run, report)
	for _, p := range written {
		s.publishDocument("linked", p)
	}
	s.publish(sse.Event{Type: sse.TypeRunCompleted, Data: run})

	s.logger.Info("linkservice: run completed",
		slog.String("run_id", run.ID),
		slog.Int("documents", run.Documents),
		slog.Int("accepted", run.Accepted),
		slog.Int("written", run.Written),
		slog.Int("failed", run.Failed),
		slog.Bool("dry_run", run.DryRun))

	return &Outcome{Run: run, Report: report, Faults: c.Faults, Written: written}, nil
}

// Relink handles a batch of changed documents reported by the watcher. The
// paths are announced, but the whole vault is re-linked: a changed alias or
// label can create or remove links in documents that did not change.
func (s *Service) Relink(ctx context.Context, paths []string) {
	for _, p := range paths {
		s.publishDocument("changed", p)
	}
	s.Invalidate()
	if _, err := s.LinkVault(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("linkservice: relink failed", slog.String("error", err.Error()))
	}
}

func (s *Service) record(run inspect.Run, report *linker.Report) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveRun(run, report); err != nil {
		s.logger.Warn("linkservice: save run failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
		return
	}
	if s.settings.KeepRuns > 0 {
		if n, err := s.db.Prune(s.settings.KeepRuns); err != nil {
			s.logger.Warn("linkservice: prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.Debug("linkservice: pruned runs", slog.Int64("count", n))
		}
	}
}

func (s *Service) publish(e sse.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}

func (s *Service) publishDocument(kind, path string) {
	if s.events != nil {
		s.events.PublishDocumentEvent(kind, path)
	}
}

// Invalidate drops the cached corpus snapshot used by queries.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.snap = nil
	s.gen++
	s.mu.Unlock()
}

// current returns the cached snapshot, loading it once for concurrent
// callers when missing.
func (s *Service) current(ctx context.Context) (*snapshot, error) {
	s.mu.RLock()
	snap, gen := s.snap, s.gen
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	v, err, _ := s.group.Do("snapshot", func() (any, error) {
		c, err := s.loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		fresh := &snapshot{corpus: c, index: s.pipeline.BuildIndex(c.Documents)}
		s.mu.Lock()
		if s.gen == gen {
			s.snap = fresh
		}
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, fmt.Errorf("linkservice: load: %w", err)
	}
	return v.(*snapshot), nil
}

// Suggest links one vault document against the current vault without
// writing anything.
func (s *Service) Suggest(ctx context.Context, path string) (*linker.Result, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := snap.corpus.Find(path)
	if !ok {
		return nil, fmt.Errorf("linkservice: %s: %w", path, apperr.ErrNotFound)
	}
	res := s.pipeline.Link(snap.index, d)
	return res, res.Err
}

// Preview links content as if it were stored at path. The vault is not
// modified; an existing document at path is replaced for the preview only.
func (s *Service) Preview(ctx context.Context, path, content string) (*linker.Result, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	d, err := corpus.Parse(path, []byte(content))
	if err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(snap.corpus.Documents)+1)
	replaced := false
	for _, existing := range snap.corpus.Documents {
		if existing.Path == path {
			docs = append(docs, d)
			replaced = true
			continue
		}
		docs = append(docs, existing)
	}
	if !replaced {
		docs = append(docs, d)
	}

	idx := &linker.Index{
		Trie:  alias.Build(docs),
		Graph: relevance.Build(docs, s.pipeline.Labels),
	}
	res := s.pipeline.Link(idx, d)
	return res, res.Err
}

// ResolveAlias returns the document an alias phrase resolves to.
func (s *Service) ResolveAlias(ctx context.Context, phrase string) (string, bool, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return "", false, err
	}
	target, ok := snap.index.Trie.Lookup(phrase)
	return target, ok, nil
}

// Aliases returns the alias table of the current vault.
func (s *Service) Aliases(ctx context.Context) ([]alias.Entry, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return snap.index.Trie.Entries(), nil
}

// Documents lists the paths of the documents in scope, optionally narrowed
// to one folder. Files outside the configured folders are never listed.
func (s *Service) Documents(folder string) ([]string, error) {
	paths, err := s.loader.Paths()
	if err != nil {
		return nil, err
	}
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" {
		return paths, nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, folder+"/") {
			out = append(out, p)
		}
	}
	return out, nil
}

// Distance returns the relevance distance between two vault documents;
// relevance.Unreachable when no label path connects them.
func (s *Service) Distance(ctx context.Context, source, target string) (int, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return 0, err
	}
	d, ok := snap.index.Graph.PathDistance(source, target)
	if !ok {
		return 0, fmt.Errorf("linkservice: distance %s -> %s: %w", source, target, apperr.ErrNotFound)
	}
	return d, nil
}

// Runs lists recorded runs, newest first.
func (s *Service) Runs(limit int) ([]inspect.Run, error) {
	if s.db == nil {
		return nil, apperr.ErrInspectDisabled
	}
	return s.db.ListRuns(limit)
}

// GetRun returns one recorded run.
func (s *Service) GetRun(id string) (inspect.Run, error) {
	if s.db == nil {
		return inspect.Run{}, apperr.ErrInspectDisabled
	}
	return s.db.GetRun(id)
}

// Candidates returns the candidates recorded for a run, optionally for one
// source document.
func (s *Service) Candidates(runID, source string) ([]models.Candidate, error) {
	if s.db == nil {
		return nil, apperr.ErrInspectDisabled
	}
	if _, err := s.db.GetRun(runID); err != nil {
		return nil, err
	}
	return s.db.Candidates(runID, source)
}

// Tokens returns the token stream recorded for one document of a run.
func (s *Service) Tokens(runID, path string) ([]models.Token, error) {
	if s.db == nil {
		return nil, apperr.ErrInspectDisabled
	}
	return s.db.Tokens(runID, path)
}
