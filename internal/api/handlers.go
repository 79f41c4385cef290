package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/crosslink/internal/linkservice"
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/relevance"
)

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the wildcard part of the URL.
// Supports encoded slashes (e.g. topics%2Fnote.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListRuns handles GET /api/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: nonNilSlice(runs)})
}

// StartRun handles POST /api/runs: links the vault now and returns the run.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.LinkVault(r.Context())
	if err != nil {
		writeError(w, "start run", err)
		return
	}
	writeJSON(w, http.StatusCreated, out.Run)
}

// GetRun handles GET /api/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunCandidates handles GET /api/runs/{id}/candidates?path=.
func (h *Handler) RunCandidates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cands, err := h.svc.Candidates(id, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, "run candidates", err)
		return
	}
	writeJSON(w, http.StatusOK, CandidateListResponse{RunID: id, Candidates: nonNilSlice(cands)})
}

// RunTokens handles GET /api/runs/{id}/tokens/*.
func (h *Handler) RunTokens(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	tokens, err := h.svc.Tokens(id, path)
	if err != nil {
		writeError(w, "run tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenListResponse{RunID: id, Path: path, Tokens: tokens})
}

// Aliases handles GET /api/aliases.
func (h *Handler) Aliases(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Aliases(r.Context())
	if err != nil {
		writeError(w, "aliases", err)
		return
	}
	writeJSON(w, http.StatusOK, AliasListResponse{Aliases: nonNilSlice(entries)})
}

// Suggest handles GET /api/suggestions/*: the links a run would insert into
// one vault document.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Suggest(r.Context(), path)
	if err != nil {
		writeError(w, "suggest", err)
		return
	}
	writeJSON(w, http.StatusOK, newLinkResultResponse(res))
}

// Preview handles POST /api/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.Preview(r.Context(), req.Path, req.Content)
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, newLinkResultResponse(res))
}

// Distance handles GET /api/distance?source=&target=.
func (h *Handler) Distance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, target := q.Get("source"), q.Get("target")
	if source == "" || target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	d, err := h.svc.Distance(r.Context(), source, target)
	if err != nil {
		writeError(w, "distance", err)
		return
	}
	resp := DistanceResponse{Source: source, Target: target, Distance: d, Reachable: d != relevance.Unreachable}
	if !resp.Reachable {
		resp.Distance = models.DistanceUnreachable
	}
	writeJSON(w, http.StatusOK, resp)
}
