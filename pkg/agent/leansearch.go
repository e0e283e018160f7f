package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
	"github.com/hehepig166/blueprint-agent/pkg/llm"
)

// LibrarySearcher is the slice of the Lean Explore client the search agent
// needs.
type LibrarySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]leanexplore.Candidate, error)
}

// LeanSearchAgent turns informal user queries into Lean Explore searches and
// analyzes the results.
type LeanSearchAgent struct {
	*ChatAgent
	searcher LibrarySearcher
}

// NewLeanSearchAgent builds a search agent over the given provider and
// searcher.
func NewLeanSearchAgent(provider llm.Provider, searcher LibrarySearcher, opts ...Option) *LeanSearchAgent {
	opts = append([]Option{WithID("leansearch-agent")}, opts...)
	return &LeanSearchAgent{
		ChatAgent: NewChatAgent(provider, opts...),
		searcher:  searcher,
	}
}

// GenerateSearchQuery translates a user query into a search query, or into a
// no-search marker when the message is not a request for mathematical
// content.
func (a *LeanSearchAgent) GenerateSearchQuery(ctx context.Context, userQuery string) (SearchQuery, error) {
	prompt := fmt.Sprintf("%s\n\nUser query: %s", queryPrompt, userQuery)
	reply, err := a.Generate(ctx, prompt)
	if err != nil {
		return SearchQuery{}, err
	}
	return ParseSearchQuery(reply), nil
}

// Search runs the query against Lean Explore.
func (a *LeanSearchAgent) Search(ctx context.Context, query string, limit int) ([]leanexplore.Candidate, error) {
	if a.searcher == nil {
		return nil, errors.New("lean explore client is not configured")
	}
	return a.searcher.Search(ctx, query, limit)
}

// Analysis is the model's review of a batch of search results. CoverMatch is
// the raw extracted name; callers resolve it against the result set before
// trusting it.
type Analysis struct {
	Text       string
	CoverMatch string
}

// AnalyzeResults asks the model to review the search results against the
// original query.
func (a *LeanSearchAgent) AnalyzeResults(ctx context.Context, userQuery, searchQuery string, results []leanexplore.Candidate) (Analysis, error) {
	prompt := buildAnalysisPrompt(userQuery, searchQuery, results)
	reply, err := a.Generate(ctx, prompt)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		Text:       reply,
		CoverMatch: ExtractCoverMatch(reply),
	}, nil
}

func buildAnalysisPrompt(userQuery, searchQuery string, results []leanexplore.Candidate) string {
	var b strings.Builder
	b.WriteString(analyzePrompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**User Query**: %s\n", userQuery)
	fmt.Fprintf(&b, "**Search Query**: %s\n\n", searchQuery)
	b.WriteString("**Search Results**:\n")
	b.WriteString(FormatCandidates(searchQuery, results))
	b.WriteString("\n\nPlease analyze these results and provide your response in the specified format.")
	return b.String()
}

// FormatCandidates renders search results as the plain-text listing shown to
// the model and written to the per-query logs.
func FormatCandidates(searchQuery string, results []leanexplore.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search Query: %s\n", searchQuery)
	fmt.Fprintf(&b, "Total Found: %d results\n\n", len(results))
	fmt.Fprintf(&b, "SEARCH RESULTS (%d total):\n", len(results))
	for i, c := range results {
		name := c.Name()
		if name == "" {
			name = "N/A"
		}
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, name)
		fmt.Fprintf(&b, "   File: %s:%d\n", c.SourceFile, c.RangeStartLine)
		if c.DisplayStatementText != "" {
			fmt.Fprintf(&b, "   Statement: %s\n", c.DisplayStatementText)
		}
		if c.Docstring != "" {
			fmt.Fprintf(&b, "   Docstring: %s\n", c.Docstring)
		}
		if c.InformalDescription != "" {
			fmt.Fprintf(&b, "   Description: %s\n", c.InformalDescription)
		}
	}
	return b.String()
}

// ExtractCoverMatch pulls the cover-match name out of an analysis reply.
// It returns "" when the reply declares no cover match or carries none.
func ExtractCoverMatch(analysis string) string {
	for _, line := range strings.Split(analysis, "\n") {
		if !strings.Contains(line, "Cover match") || !strings.Contains(line, ":") {
			continue
		}
		value := strings.SplitN(line, ":", 2)[1]
		value = strings.TrimSpace(value)
		value = strings.Trim(value, "`")
		if value == "" || value == "None" {
			return ""
		}
		return value
	}
	return ""
}

// ResolveCoverMatch validates an extracted cover match against the result
// set. It returns the accepted name and whether the claim was consistent: an
// empty match is consistent, a match naming a listed result is consistent, a
// match naming anything else is dropped and flagged.
func ResolveCoverMatch(match string, results []leanexplore.Candidate) (string, bool) {
	if match == "" {
		return "", true
	}
	for _, c := range results {
		if c.Name() == match {
			return match, true
		}
	}
	return "", false
}
