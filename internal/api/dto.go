package api

import (
	"path"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/crosslink/internal/alias"
	"github.com/starford/crosslink/internal/inspect"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/models"
)

// PreviewRequest is the request body for linking unsaved content.
type PreviewRequest struct {
	Path    string `json:"path" example:"notes/draft.md"`
	Content string `json:"content" example:"---\ntags: [go]\n---\nMentions another note."`
}

// Validate checks the request fields.
func (r PreviewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(relativePath)),
		validation.Field(&r.Content, validation.Length(0, 10<<20)),
	)
}

func relativePath(v any) error {
	p, _ := v.(string)
	if strings.HasPrefix(p, "/") || path.Clean(p) != p || strings.HasPrefix(p, "..") {
		return validation.NewError("validation_relative_path", "must be a clean vault-relative path")
	}
	return nil
}

// LinkResultResponse describes the links found for one document.
type LinkResultResponse struct {
	Path       string             `json:"path"`
	Output     string             `json:"output"`
	Changed    bool               `json:"changed"`
	Candidates []models.Candidate `json:"candidates"`
	Accepted   []models.Candidate `json:"accepted"`
	Rejected   []models.Candidate `json:"rejected"`
}

func newLinkResultResponse(res *linker.Result) LinkResultResponse {
	return LinkResultResponse{
		Path:       res.Path,
		Output:     res.Output,
		Changed:    res.Changed,
		Candidates: nonNilSlice(res.Candidates),
		Accepted:   nonNilSlice(res.Accepted),
		Rejected:   nonNilSlice(res.Rejected),
	}
}

// RunListResponse wraps recorded runs.
type RunListResponse struct {
	Runs []inspect.Run `json:"runs"`
}

// CandidateListResponse wraps the candidates of a run.
type CandidateListResponse struct {
	RunID      string             `json:"run_id"`
	Candidates []models.Candidate `json:"candidates"`
}

// TokenListResponse wraps the recorded token stream of a document.
type TokenListResponse struct {
	RunID  string         `json:"run_id"`
	Path   string         `json:"path"`
	Tokens []models.Token `json:"tokens"`
}

// AliasListResponse wraps the alias table.
type AliasListResponse struct {
	Aliases []alias.Entry `json:"aliases"`
}

// DistanceResponse is the relevance distance between two documents.
// Reachable is false when no label path connects them.
type DistanceResponse struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Distance  int    `json:"distance"`
	Reachable bool   `json:"reachable"`
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
