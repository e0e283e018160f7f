package searchapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/allowlist"
	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
	"github.com/hehepig166/blueprint-agent/pkg/logging"
)

// fakeAgent scripts the pipeline stages and records how it was called.
type fakeAgent struct {
	generate func(string) (agent.SearchQuery, error)
	search   func(string, int) ([]leanexplore.Candidate, error)
	analyze  func(string, string) (agent.Analysis, error)

	generateCalls int
	searchCalls   int
	analyzeCalls  int
	searchQuery   string
	searchLimit   int
}

func (f *fakeAgent) GenerateSearchQuery(_ context.Context, userQuery string) (agent.SearchQuery, error) {
	f.generateCalls++
	if f.generate != nil {
		return f.generate(userQuery)
	}
	return agent.NewSearchQuery(userQuery), nil
}

func (f *fakeAgent) Search(_ context.Context, query string, limit int) ([]leanexplore.Candidate, error) {
	f.searchCalls++
	f.searchQuery = query
	f.searchLimit = limit
	if f.search != nil {
		return f.search(query, limit)
	}
	return nil, nil
}

func (f *fakeAgent) AnalyzeResults(_ context.Context, userQuery, searchQuery string, _ []leanexplore.Candidate) (agent.Analysis, error) {
	f.analyzeCalls++
	if f.analyze != nil {
		return f.analyze(userQuery, searchQuery)
	}
	return agent.Analysis{}, nil
}

const streamAnalysis = "**1. Commutativity of addition**\n" +
	"- **Lean Name**: `Nat.add_comm`\n" +
	"- **Type**: theorem\n" +
	"- **Statement**: `theorem Nat.add_comm (n m : ℕ) : n + m = m + n`\n" +
	"- **Relevance**: Directly answers the question.\n" +
	"- **Module**: Mathlib.Algebra.Group.Nat\n" +
	"\n" +
	"Cover match: `Nat.add_comm`\n"

func resultSet() []leanexplore.Candidate {
	return []leanexplore.Candidate{
		{
			ID:                   101,
			PrimaryDeclaration:   leanexplore.Declaration{LeanName: "Nat.add_comm"},
			SourceFile:           "Mathlib/Algebra/Group/Nat.lean",
			RangeStartLine:       42,
			DisplayStatementText: "theorem Nat.add_comm (n m : ℕ) : n + m = m + n",
		},
		{
			ID:                 102,
			PrimaryDeclaration: leanexplore.Declaration{LeanName: "add_comm"},
			SourceFile:         "Mathlib/Algebra/Group/Defs.lean",
			RangeStartLine:     7,
		},
	}
}

func newTestServer(t *testing.T, fake *fakeAgent) *Server {
	t.Helper()
	allow, err := allowlist.Parse("")
	if err != nil {
		t.Fatalf("parse allowlist: %v", err)
	}
	return New(func() SearchAgent { return fake }, allow).
		WithLogger(logging.NewWithWriter(io.Discard, false))
}

func doSearch(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeFrames(t *testing.T, body string) []frame {
	t.Helper()
	var frames []frame
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		payload, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			t.Fatalf("frame missing data prefix: %q", chunk)
		}
		var f frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			t.Fatalf("decode frame %q: %v", payload, err)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestSearchStreamsAllStages(t *testing.T) {
	fake := &fakeAgent{
		generate: func(string) (agent.SearchQuery, error) {
			return agent.NewSearchQuery("Nat.add_comm commutativity"), nil
		},
		search: func(string, int) ([]leanexplore.Candidate, error) {
			return resultSet(), nil
		},
		analyze: func(string, string) (agent.Analysis, error) {
			return agent.Analysis{Text: streamAnalysis, CoverMatch: "Nat.add_comm"}, nil
		},
	}
	s := newTestServer(t, fake)

	rec := doSearch(t, s, "/search?q=is+addition+commutative")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header is missing")
	}

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}

	first := frames[0]
	if first.Stage != "generate_query" || first.Msg != nil {
		t.Errorf("first frame = stage %q msg %v, want generate_query with no msg", first.Stage, first.Msg)
	}
	if first.Data.UserQuery != "is addition commutative" {
		t.Errorf("user_query = %q", first.Data.UserQuery)
	}
	if first.Data.AgentQuery == nil || *first.Data.AgentQuery != "Nat.add_comm commutativity" {
		t.Errorf("agent_query = %v, want the generated query", first.Data.AgentQuery)
	}
	if first.Data.SearchResults != nil {
		t.Errorf("first frame already carries search results")
	}

	second := frames[1]
	if second.Stage != "search" || second.Msg != nil {
		t.Errorf("second frame = stage %q msg %v", second.Stage, second.Msg)
	}
	if len(second.Data.SearchResults) != 2 {
		t.Errorf("search_results has %d entries, want 2", len(second.Data.SearchResults))
	}
	if second.Data.AnalysisText != nil {
		t.Errorf("second frame already carries analysis text")
	}

	third := frames[2]
	if third.Stage != "analyze" || third.Msg != nil {
		t.Errorf("third frame = stage %q msg %v", third.Stage, third.Msg)
	}
	if third.Data.AnalysisText == nil || *third.Data.AnalysisText != streamAnalysis {
		t.Errorf("analysis_text = %v, want the full analysis", third.Data.AnalysisText)
	}
	if len(third.Data.Analysis) != 1 || third.Data.Analysis[0].LeanName != "Nat.add_comm" {
		t.Errorf("analysis entries = %+v, want one Nat.add_comm entry", third.Data.Analysis)
	}
	if third.Data.CoverMatch == nil || *third.Data.CoverMatch != "Nat.add_comm" {
		t.Errorf("cover_match = %v, want Nat.add_comm", third.Data.CoverMatch)
	}

	if fake.searchQuery != "Nat.add_comm commutativity" {
		t.Errorf("search ran with query %q", fake.searchQuery)
	}
	if fake.searchLimit != leanexplore.DefaultLimit {
		t.Errorf("search ran with limit %d, want default %d", fake.searchLimit, leanexplore.DefaultLimit)
	}
}

func TestSearchNoSearchDirective(t *testing.T) {
	fake := &fakeAgent{
		generate: func(string) (agent.SearchQuery, error) {
			return agent.NoSearch(), nil
		},
	}
	rec := doSearch(t, newTestServer(t, fake), "/search?q=hello+there")

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Msg == nil || *frames[0].Msg != "No search needed for this query" {
		t.Errorf("msg = %v", frames[0].Msg)
	}
	if frames[0].Data.AgentQuery == nil || *frames[0].Data.AgentQuery != "NO_SEARCH" {
		t.Errorf("agent_query = %v, want NO_SEARCH", frames[0].Data.AgentQuery)
	}
	if fake.searchCalls != 0 {
		t.Errorf("search ran %d times after a skip directive", fake.searchCalls)
	}
}

func TestSearchSkipsGeneration(t *testing.T) {
	fake := &fakeAgent{
		search: func(string, int) ([]leanexplore.Candidate, error) {
			return resultSet(), nil
		},
	}
	rec := doSearch(t, newTestServer(t, fake), "/search?q=Nat.add_comm&generate_query=false")

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Msg == nil || *frames[0].Msg != "Using original query (skip generation)" {
		t.Errorf("msg = %v", frames[0].Msg)
	}
	if frames[0].Data.AgentQuery == nil || *frames[0].Data.AgentQuery != "Nat.add_comm" {
		t.Errorf("agent_query = %v, want the raw query", frames[0].Data.AgentQuery)
	}
	if fake.generateCalls != 0 {
		t.Errorf("query generation ran %d times", fake.generateCalls)
	}
	if fake.searchQuery != "Nat.add_comm" {
		t.Errorf("search ran with query %q", fake.searchQuery)
	}
	// An unstructured analysis still yields an empty entry list, not null.
	if frames[2].Data.Analysis == nil || len(frames[2].Data.Analysis) != 0 {
		t.Errorf("analysis = %v, want empty list", frames[2].Data.Analysis)
	}
}

func TestSearchNoResults(t *testing.T) {
	fake := &fakeAgent{}
	rec := doSearch(t, newTestServer(t, fake), "/search?q=extremely+obscure")

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[1].Msg == nil || *frames[1].Msg != "No result found" {
		t.Errorf("msg = %v", frames[1].Msg)
	}
	if !strings.Contains(rec.Body.String(), `"search_results":[]`) {
		t.Errorf("empty result set should encode as [], body: %s", rec.Body.String())
	}
	if fake.analyzeCalls != 0 {
		t.Errorf("analysis ran %d times with no results", fake.analyzeCalls)
	}
}

func TestSearchAnalyzeDisabled(t *testing.T) {
	fake := &fakeAgent{
		search: func(string, int) ([]leanexplore.Candidate, error) {
			return resultSet(), nil
		},
	}
	rec := doSearch(t, newTestServer(t, fake), "/search?q=addition&analyze_result=false")

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[1].Stage != "search" || frames[1].Msg != nil {
		t.Errorf("last frame = stage %q msg %v", frames[1].Stage, frames[1].Msg)
	}
	if fake.analyzeCalls != 0 {
		t.Errorf("analysis ran %d times despite analyze_result=false", fake.analyzeCalls)
	}
}

func TestSearchStageErrors(t *testing.T) {
	cases := []struct {
		name    string
		fake    *fakeAgent
		frames  int
		lastMsg string
	}{
		{
			name: "generate",
			fake: &fakeAgent{
				generate: func(string) (agent.SearchQuery, error) {
					return agent.SearchQuery{}, errors.New("llm offline")
				},
			},
			frames:  1,
			lastMsg: "Query generation failed: llm offline",
		},
		{
			name: "search",
			fake: &fakeAgent{
				search: func(string, int) ([]leanexplore.Candidate, error) {
					return nil, errors.New("backend down")
				},
			},
			frames:  2,
			lastMsg: "Search failed: backend down",
		},
		{
			name: "analyze",
			fake: &fakeAgent{
				search: func(string, int) ([]leanexplore.Candidate, error) {
					return resultSet(), nil
				},
				analyze: func(string, string) (agent.Analysis, error) {
					return agent.Analysis{}, errors.New("llm offline")
				},
			},
			frames:  3,
			lastMsg: "Analysis failed: llm offline",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doSearch(t, newTestServer(t, tc.fake), "/search?q=addition")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			frames := decodeFrames(t, rec.Body.String())
			if len(frames) != tc.frames {
				t.Fatalf("got %d frames, want %d", len(frames), tc.frames)
			}
			last := frames[len(frames)-1]
			if last.Msg == nil || *last.Msg != tc.lastMsg {
				t.Errorf("msg = %v, want %q", last.Msg, tc.lastMsg)
			}
			if last.Data.AnalysisText != nil {
				t.Errorf("failed stage still populated analysis_text")
			}
		})
	}
}

func TestSearchDropsUnknownCoverMatch(t *testing.T) {
	fake := &fakeAgent{
		search: func(string, int) ([]leanexplore.Candidate, error) {
			return resultSet(), nil
		},
		analyze: func(string, string) (agent.Analysis, error) {
			return agent.Analysis{Text: "nothing structured", CoverMatch: "Fake.result"}, nil
		},
	}
	rec := doSearch(t, newTestServer(t, fake), "/search?q=addition")

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[2].Data.CoverMatch != nil {
		t.Errorf("cover_match = %q, want null for a name outside the result set", *frames[2].Data.CoverMatch)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	for _, target := range []string{"/search", "/search?q=%20%20"} {
		rec := doSearch(t, newTestServer(t, &fakeAgent{}), target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
			continue
		}
		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Errorf("%s: decode error body: %v", target, err)
			continue
		}
		if resp.Success || !strings.Contains(resp.Error, "q is required") {
			t.Errorf("%s: error body = %+v", target, resp)
		}
	}
}

func TestSearchRejectsBadParams(t *testing.T) {
	targets := []string{
		"/search?q=x&limit=0",
		"/search?q=x&limit=-3",
		"/search?q=x&limit=abc",
		"/search?q=x&generate_query=maybe",
		"/search?q=x&analyze_result=2",
	}
	for _, target := range targets {
		rec := doSearch(t, newTestServer(t, &fakeAgent{}), target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	req := httptest.NewRequest(http.MethodPost, "/search?q=x", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestSearchHonorsAllowlist(t *testing.T) {
	allow, err := allowlist.Parse("10.0.0.0/8")
	if err != nil {
		t.Fatalf("parse allowlist: %v", err)
	}
	fake := &fakeAgent{
		search: func(string, int) ([]leanexplore.Candidate, error) {
			return resultSet(), nil
		},
	}
	s := New(func() SearchAgent { return fake }, allow).
		WithLogger(logging.NewWithWriter(io.Discard, false))

	// httptest requests come from 192.0.2.1, which is outside the allowlist.
	rec := doSearch(t, s, "/search?q=x")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?q=x&analyze_result=false", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 172.16.0.1")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for forwarded allowlisted IP", rec.Code)
	}
}

func TestSearchCustomDefaultLimit(t *testing.T) {
	fake := &fakeAgent{}
	s := newTestServer(t, fake).WithLimit(7)

	doSearch(t, s, "/search?q=x")
	if fake.searchLimit != 7 {
		t.Errorf("search ran with limit %d, want configured 7", fake.searchLimit)
	}

	doSearch(t, s, "/search?q=x&limit=3")
	if fake.searchLimit != 3 {
		t.Errorf("search ran with limit %d, want explicit 3", fake.searchLimit)
	}
}

func TestHealthz(t *testing.T) {
	rec := doSearch(t, newTestServer(t, &fakeAgent{}), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestExtractClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr with port", "203.0.113.9:4411", "", "203.0.113.9"},
		{"remote addr without port", "203.0.113.9", "", "203.0.113.9"},
		{"forwarded single", "203.0.113.9:4411", "10.1.2.3", "10.1.2.3"},
		{"forwarded chain", "203.0.113.9:4411", " 10.1.2.3 , 172.16.0.1", "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/search", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
