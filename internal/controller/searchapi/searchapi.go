// Package searchapi exposes the search pipeline over HTTP as a server-sent
// event stream: one frame per completed stage, a message frame when a stage
// ends the stream early.
package searchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/allowlist"
	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
	"github.com/hehepig166/blueprint-agent/pkg/logging"
)

// SearchAgent defines the pipeline operations a request drives.
type SearchAgent interface {
	GenerateSearchQuery(ctx context.Context, userQuery string) (agent.SearchQuery, error)
	Search(ctx context.Context, query string, limit int) ([]leanexplore.Candidate, error)
	AnalyzeResults(ctx context.Context, userQuery, searchQuery string, results []leanexplore.Candidate) (agent.Analysis, error)
}

// AgentFactory builds the agent for one request. Each request gets a fresh
// agent so chat history never leaks between clients.
type AgentFactory func() SearchAgent

// Server handles search requests.
type Server struct {
	factory      AgentFactory
	allowlist    allowlist.Allowlist
	defaultLimit int
	logger       *logging.Logger
}

// New creates a server instance.
func New(factory AgentFactory, allow allowlist.Allowlist) *Server {
	return &Server{
		factory:      factory,
		allowlist:    allow,
		defaultLimit: leanexplore.DefaultLimit,
		logger:       logging.Default(),
	}
}

// WithLimit sets the result limit used when a request omits one.
func (s *Server) WithLimit(limit int) *Server {
	if limit > 0 {
		s.defaultLimit = limit
	}
	return s
}

// WithLogger sets the operational logger.
func (s *Server) WithLogger(logger *logging.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Stream stage names.
const (
	stageGenerateQuery = "generate_query"
	stageSearch        = "search"
	stageAnalyze       = "analyze"
)

// framePayload is the data object carried by every frame. Pointer and slice
// fields render as null until their stage has populated them.
type framePayload struct {
	UserQuery     string                  `json:"user_query"`
	AgentQuery    *string                 `json:"agent_query"`
	SearchResults []leanexplore.Candidate `json:"search_results"`
	Analysis      []agent.ReportEntry     `json:"analysis"`
	AnalysisText  *string                 `json:"analysis_text"`
	CoverMatch    *string                 `json:"cover_match"`
}

type frame struct {
	Stage string        `json:"stage"`
	Msg   *string       `json:"msg"`
	Data  *framePayload `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type searchParams struct {
	Query         string
	Limit         int
	GenerateQuery bool
	AnalyzeResult bool
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := s.logger.With("path", r.URL.Path, "request_id", requestID)

	if r.Method != http.MethodGet {
		log.Warn("search rejected: invalid method", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	clientIP := extractClientIP(r)
	if !s.allowlist.AllowsString(clientIP) {
		log.Warn("search rejected: IP not in allowlist", "client_ip", clientIP)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	params, err := s.parseSearchParams(r)
	if err != nil {
		log.Warn("search rejected: bad request", "error", err.Error())
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("search rejected: response writer does not support streaming")
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	log.Info("search stream started",
		"q", params.Query,
		"limit", params.Limit,
		"generate_query", params.GenerateQuery,
		"analyze_result", params.AnalyzeResult,
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.stream(r.Context(), w, flusher, params, log)
}

// stream runs the pipeline, emitting one frame per stage. A message frame
// ends the stream: skip directives, empty result sets and stage errors all
// finish with a frame whose msg explains why.
func (s *Server) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, p searchParams, log *logging.Logger) {
	ag := s.factory()
	data := &framePayload{UserQuery: p.Query}

	emit := func(stage, msg string) {
		f := frame{Stage: stage, Data: data}
		if msg != "" {
			f.Msg = &msg
		}
		payload, err := json.Marshal(f)
		if err != nil {
			log.Error("marshal frame failed", "stage", stage, "error", err.Error())
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			log.Warn("write frame failed", "stage", stage, "error", err.Error())
			return
		}
		flusher.Flush()
	}

	if p.GenerateQuery {
		query, err := ag.GenerateSearchQuery(ctx, p.Query)
		if err != nil {
			emit(stageGenerateQuery, fmt.Sprintf("Query generation failed: %v", err))
			return
		}
		raw := query.String()
		data.AgentQuery = &raw
		if query.Skip() {
			emit(stageGenerateQuery, "No search needed for this query")
			return
		}
		emit(stageGenerateQuery, "")
	} else {
		q := p.Query
		data.AgentQuery = &q
		emit(stageGenerateQuery, "Using original query (skip generation)")
	}

	results, err := ag.Search(ctx, *data.AgentQuery, p.Limit)
	if err != nil {
		emit(stageSearch, fmt.Sprintf("Search failed: %v", err))
		return
	}
	if results == nil {
		results = []leanexplore.Candidate{}
	}
	data.SearchResults = results
	if len(results) == 0 {
		emit(stageSearch, "No result found")
		return
	}
	emit(stageSearch, "")

	if !p.AnalyzeResult {
		return
	}

	analysis, err := ag.AnalyzeResults(ctx, p.Query, *data.AgentQuery, results)
	if err != nil {
		emit(stageAnalyze, fmt.Sprintf("Analysis failed: %v", err))
		return
	}
	text := analysis.Text
	data.AnalysisText = &text
	entries := agent.ParseAnalysisReport(analysis.Text)
	if entries == nil {
		entries = []agent.ReportEntry{}
	}
	data.Analysis = entries

	match, consistent := agent.ResolveCoverMatch(analysis.CoverMatch, results)
	if !consistent {
		log.Warn("cover match not in result set", "claimed", analysis.CoverMatch)
	}
	if match != "" {
		data.CoverMatch = &match
	}
	emit(stageAnalyze, "")

	log.Info("search stream completed", "results", len(results), "cover_match", match != "")
}

func (s *Server) parseSearchParams(r *http.Request) (searchParams, error) {
	values := r.URL.Query()

	q := strings.TrimSpace(values.Get("q"))
	if q == "" {
		return searchParams{}, errors.New("query parameter q is required")
	}

	p := searchParams{
		Query:         q,
		Limit:         s.defaultLimit,
		GenerateQuery: true,
		AnalyzeResult: true,
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return searchParams{}, fmt.Errorf("invalid limit %q", raw)
		}
		if limit < 1 {
			return searchParams{}, errors.New("limit must be at least 1")
		}
		p.Limit = limit
	}
	if raw := values.Get("generate_query"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return searchParams{}, fmt.Errorf("invalid generate_query %q", raw)
		}
		p.GenerateQuery = v
	}
	if raw := values.Get("analyze_result"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return searchParams{}, fmt.Errorf("invalid analyze_result %q", raw)
		}
		p.AnalyzeResult = v
	}
	return p, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Success: false, Error: msg})
}

func extractClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
