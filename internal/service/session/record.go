package session

import (
	"time"

	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
)

// QueryRecord captures one processed query. A record is appended to the
// session record when its turn finishes and is not modified afterwards.
type QueryRecord struct {
	// RawText is the query as the user typed it.
	RawText string

	// Timestamp is when the turn started.
	Timestamp time.Time

	// SearchQuery is the translated query, or the no-search marker.
	SearchQuery agent.SearchQuery

	// Results is the candidate list exactly as the search returned it.
	// Empty whenever the query was marked no-search.
	Results []leanexplore.Candidate

	// Analysis is the full analysis text.
	Analysis string

	// CoverMatch names the single result that fully answers the query.
	// Empty when there is none, when the search was skipped, or when the
	// analyzer claimed a name outside the result set.
	CoverMatch string

	// Note records why a turn ended without the full pipeline: the skip
	// reason, a dropped cover match, or the error that stopped it.
	Note string

	// LogFile is the per-query artifact log path.
	LogFile string
}

// SessionRecord is the in-memory history of a session.
type SessionRecord struct {
	StartTime time.Time
	EndTime   time.Time
	Queries   []QueryRecord
}
