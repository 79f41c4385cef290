package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/crosslink/internal/inspect"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/linkservice"
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/testutil"
)

// testEnv sets up a temp vault, inspection DB, service, and router.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) (*linkservice.Service, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*linkservice.Service, http.Handler) {
	t.Helper()
	_, store := testutil.TestVault(t, testutil.LinkedVault)
	db := testutil.TestDB(t)
	svc := linkservice.NewService(store, &linker.Pipeline{}, linkservice.Settings{},
		linkservice.WithInspect(db),
		linkservice.WithLogger(testutil.Logger()))
	return svc, NewRouter(svc, authEnabled, authToken, sseHandler)
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		req = httptest.NewRequest(method, target, bytes.NewReader(data))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStartAndInspectRun(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/runs", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	var run inspect.Run
	_ = json.Unmarshal(w.Body.Bytes(), &run)
	if run.ID == "" || run.Written != 1 {
		t.Fatalf("run = %+v", run)
	}

	w = do(t, router, http.MethodGet, "/runs", nil)
	var list RunListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list.Runs) != 1 {
		t.Fatalf("list status = %d, runs = %+v", w.Code, list.Runs)
	}

	w = do(t, router, http.MethodGet, "/runs/"+run.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get run status = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/runs/"+run.ID+"/candidates?path=doc1.md", nil)
	var cands CandidateListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cands)
	if w.Code != http.StatusOK || len(cands.Candidates) != 1 || cands.Candidates[0].Target != "doc2.md" {
		t.Errorf("candidates status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/runs/"+run.ID+"/tokens/doc1.md", nil)
	var tokens TokenListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tokens)
	if w.Code != http.StatusOK {
		t.Fatalf("tokens status = %d", w.Code)
	}
	found := false
	for _, tok := range tokens.Tokens {
		if tok.Text == "[[doc2|doc two]]" && tok.Kind == "synthetic_link" {
			found = true
		}
	}
	if !found {
		t.Errorf("synthetic link token missing: %+v", tokens.Tokens)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/runs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing run = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/runs/missing/candidates", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing run candidates = %d, want 404", w.Code)
	}
}

func TestRunsWithoutInspect(t *testing.T) {
	_, store := testutil.TestVault(t, testutil.LinkedVault)
	svc := linkservice.NewService(store, &linker.Pipeline{}, linkservice.Settings{},
		linkservice.WithLogger(testutil.Logger()))
	router := NewRouter(svc, false, "", nil)

	if w := do(t, router, http.MethodGet, "/runs", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("runs without store = %d, want 503", w.Code)
	}
}

func TestSuggest(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/suggestions/doc1.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suggest status = %d", w.Code)
	}
	var res LinkResultResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Changed || !strings.Contains(res.Output, "[[doc2|doc two]]") {
		t.Errorf("suggestion = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/suggestions/doc3.md", nil)
	res = LinkResultResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Rejected) != 1 || res.Rejected[0].Distance != models.DistanceUnreachable {
		t.Errorf("unreachable rejection = %+v", res.Rejected)
	}

	if w := do(t, router, http.MethodGet, "/suggestions/nope.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing doc = %d, want 404", w.Code)
	}
}

func TestPreview(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/preview", PreviewRequest{
		Path:    "draft.md",
		Content: "---\ntags: [shared]\n---\nSee doc two here.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body = %s", w.Code, w.Body.String())
	}
	var res LinkResultResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Output != "---\ntags: [shared]\n---\nSee [[doc2|doc two]] here." {
		t.Errorf("output = %q", res.Output)
	}
	if len(res.Rejected) != 0 || len(res.Accepted) != 1 {
		t.Errorf("accepted = %+v, rejected = %+v", res.Accepted, res.Rejected)
	}
}

func TestPreview_Invalid(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing path", PreviewRequest{Content: "x"}, http.StatusBadRequest},
		{"absolute path", PreviewRequest{Path: "/etc/x.md", Content: "x"}, http.StatusBadRequest},
		{"traversal", PreviewRequest{Path: "../x.md", Content: "x"}, http.StatusBadRequest},
		{"bad header", PreviewRequest{Path: "x.md", Content: "---\n- a\n---\nbody"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/preview", tc.body); w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/preview", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestAliasesAndDistance(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/aliases", nil)
	var aliases AliasListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &aliases)
	if w.Code != http.StatusOK || len(aliases.Aliases) != 4 {
		t.Errorf("aliases status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/distance?source=doc1.md&target=doc2.md", nil)
	var d DistanceResponse
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if w.Code != http.StatusOK || d.Distance != 1 || !d.Reachable {
		t.Errorf("distance = %+v", d)
	}

	w = do(t, router, http.MethodGet, "/distance?source=doc1.md&target=doc3.md", nil)
	d = DistanceResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Reachable || d.Distance != -1 {
		t.Errorf("unreachable distance = %+v", d)
	}

	if w := do(t, router, http.MethodGet, "/distance?source=doc1.md", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing target = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/aliases", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/aliases", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/aliases", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, router := testEnvFull(t, true, "secret", sseHandler)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/aliases?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("query token GET = %d, want 200", w.Code)
	}
	w := do(t, router, http.MethodPost, "/runs?access_token=secret123", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token POST = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
}
