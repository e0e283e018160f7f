package agent

import "strings"

// SearchQuery is the outcome of translating a user message. It either carries
// the query text to send to Lean Explore, or marks the message as one that
// needs no search at all.
type SearchQuery struct {
	text string
	skip bool
}

// NewSearchQuery returns a query that should be searched.
func NewSearchQuery(text string) SearchQuery {
	return SearchQuery{text: text}
}

// NoSearch returns the query value for messages that need no search.
func NoSearch() SearchQuery {
	return SearchQuery{skip: true}
}

// ParseSearchQuery interprets a raw model reply as a search query. A reply
// consisting exactly of the no-search sentinel maps to NoSearch.
func ParseSearchQuery(raw string) SearchQuery {
	trimmed := strings.TrimSpace(raw)
	if trimmed == noSearchSentinel {
		return NoSearch()
	}
	return NewSearchQuery(trimmed)
}

// Skip reports whether the query marks a message that needs no search.
func (q SearchQuery) Skip() bool {
	return q.skip
}

// Text returns the query text, or "" for a no-search query.
func (q SearchQuery) Text() string {
	if q.skip {
		return ""
	}
	return q.text
}

// String renders the query for logs.
func (q SearchQuery) String() string {
	if q.skip {
		return noSearchSentinel
	}
	return q.text
}
