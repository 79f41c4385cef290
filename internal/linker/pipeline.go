package linker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/starford/crosslink/internal/alias"
	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/metrics"
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/parser"
	"github.com/starford/crosslink/internal/relevance"
)

// DefaultLabelKeys are the metadata keys whose values connect documents.
var DefaultLabelKeys = []string{"tags"}

// Pipeline links a whole corpus. The zero value is usable and applies the
// defaults.
type Pipeline struct {
	MaxDistance int
	Workers     int
	LabelKeys   []string
	Logger      *slog.Logger
}

// Index is the read-only corpus state shared by every document of a run.
type Index struct {
	Trie  *alias.Trie
	Graph *relevance.Graph
}

// Result is the outcome of linking one document.
type Result struct {
	Path       string             `json:"path"`
	Candidates []models.Candidate `json:"candidates"`
	Accepted   []models.Candidate `json:"accepted"`
	Rejected   []models.Candidate `json:"rejected"`
	Document   *models.Document   `json:"-"`
	Output     string             `json:"-"`
	Changed    bool               `json:"changed"`
	Err        error              `json:"-"`
}

// Report is the outcome of a run, with results in document order.
type Report struct {
	Results    []*Result         `json:"results"`
	Aliases    []alias.Entry     `json:"aliases"`
	Collisions []alias.Collision `json:"collisions"`
	Edges      int               `json:"edges"`
}

// Accepted counts accepted links across all documents.
func (r *Report) Accepted() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Accepted)
	}
	return n
}

// Changed returns the results whose output differs from the input.
func (r *Report) Changed() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res.Err == nil && res.Changed {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results that could not be linked.
func (r *Report) Failed() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Radius returns the maximum relevance distance in effect.
func (p *Pipeline) Radius() int {
	if p.MaxDistance > 0 {
		return p.MaxDistance
	}
	return DefaultMaxDistance
}

func (p *Pipeline) labelKeys() []string {
	if len(p.LabelKeys) > 0 {
		return p.LabelKeys
	}
	return DefaultLabelKeys
}

// Labels returns the label values of d under the configured keys.
func (p *Pipeline) Labels(d *models.Document) []string {
	return parser.Labels(d.Meta, p.labelKeys())
}

// BuildIndex builds the alias trie and relevance graph for docs and reports
// alias collisions.
func (p *Pipeline) BuildIndex(docs []*models.Document) *Index {
	trie := alias.Build(docs)
	for _, c := range trie.Collisions() {
		p.logger().Warn("linker: alias collision",
			slog.String("alias", c.Alias),
			slog.String("winner", c.Paths[0]),
			slog.Any("paths", c.Paths))
	}
	return &Index{
		Trie:  trie,
		Graph: relevance.Build(docs, p.Labels),
	}
}

// Run links every document against the whole corpus. Documents are processed
// concurrently; the index is shared read-only. A document that fails keeps
// its error in Result.Err and does not stop the others. No I/O is done.
func (p *Pipeline) Run(ctx context.Context, docs []*models.Document) (*Report, error) {
	idx := p.BuildIndex(docs)

	results := make([]*Result, len(docs))
	g, gCtx := errgroup.WithContext(ctx)
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, d := range docs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = p.Link(idx, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("linker: run: %w", err)
	}

	report := &Report{
		Results:    results,
		Aliases:    idx.Trie.Entries(),
		Collisions: idx.Trie.Collisions(),
		Edges:      idx.Graph.Edges(),
	}
	for _, res := range results {
		if res.Err != nil {
			metrics.DocumentFaults.WithLabelValues("rewrite").Inc()
			p.logger().Warn("linker: document skipped",
				slog.String("path", res.Path),
				slog.String("error", res.Err.Error()))
			continue
		}
		metrics.CandidatesTotal.WithLabelValues("accepted").Add(float64(len(res.Accepted)))
		for _, c := range res.Rejected {
			metrics.CandidatesTotal.WithLabelValues(c.Reason).Inc()
			if c.Reason == models.ReasonUnknownTarget {
				p.logger().Warn("linker: alias target not in corpus",
					slog.String("path", c.Source),
					slog.String("target", c.Target))
			}
		}
	}
	return report, nil
}

// Link runs match, filter and rewrite for one document against idx.
func (p *Pipeline) Link(idx *Index, d *models.Document) *Result {
	res := &Result{Path: d.Path}
	res.Candidates = Match(idx.Trie, d.Tokens, d.Path)
	res.Accepted, res.Rejected = Filter(res.Candidates, idx.Graph, p.Radius())

	tokens, err := Rewrite(d.Tokens, res.Accepted)
	if err != nil {
		res.Err = apperr.ForDocument(d.Path, err)
		return res
	}

	out := *d
	out.Tokens = tokens
	res.Document = &out
	res.Output = out.Render()
	res.Changed = len(res.Accepted) > 0
	if len(res.Accepted) > 0 {
		p.logger().Debug("linker: document linked",
			slog.String("path", d.Path),
			slog.Int("candidates", len(res.Candidates)),
			slog.Int("accepted", len(res.Accepted)))
	}
	return res
}
