// Package session implements the interactive search loop: a sequential REPL
// that drives one query at a time through translation, search and analysis,
// mirroring every turn to the console and to the artifact logs.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
	"github.com/hehepig166/blueprint-agent/pkg/logbook"
	"github.com/hehepig166/blueprint-agent/pkg/logging"
)

// Searcher defines the search agent operations the session drives.
type Searcher interface {
	GenerateSearchQuery(ctx context.Context, userQuery string) (agent.SearchQuery, error)
	Search(ctx context.Context, query string, limit int) ([]leanexplore.Candidate, error)
	AnalyzeResults(ctx context.Context, userQuery, searchQuery string, results []leanexplore.Candidate) (agent.Analysis, error)
}

var _ Searcher = (*agent.LeanSearchAgent)(nil)

// Config configures a Session.
type Config struct {
	// LogDir is where the session and per-query artifact logs go.
	LogDir string

	// Limit caps how many search results a turn requests.
	Limit int

	// Input is the query stream. Defaults to stdin.
	Input io.Reader

	// Output receives the console conversation. Defaults to stdout.
	Output io.Writer

	// Logger receives the operational log. Defaults to the package default.
	Logger *logging.Logger
}

// Session drives the interactive loop. Turns are strictly sequential: the
// next prompt is not shown until the previous turn has finished and been
// logged.
type Session struct {
	searcher Searcher
	logDir   string
	limit    int
	in       io.Reader
	out      io.Writer
	log      *logging.Logger
	now      func() time.Time

	book   *logbook.Book
	record SessionRecord
	count  int
}

const (
	timeLayout  = "2006-01-02 15:04:05"
	stampLayout = "20060102_150405"
)

// New creates a session over the given searcher.
func New(cfg Config, searcher Searcher) *Session {
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	if cfg.Limit < 1 {
		cfg.Limit = leanexplore.DefaultLimit
	}
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Session{
		searcher: searcher,
		logDir:   cfg.LogDir,
		limit:    cfg.Limit,
		in:       cfg.Input,
		out:      cfg.Output,
		log:      cfg.Logger,
		now:      time.Now,
	}
}

// Record returns a copy of the session history.
func (s *Session) Record() SessionRecord {
	rec := s.record
	rec.Queries = make([]QueryRecord, len(s.record.Queries))
	copy(rec.Queries, s.record.Queries)
	return rec
}

// Run reads queries until the user quits or the input ends. Empty lines
// reprompt, quit commands close the session, everything else runs one turn.
// A failed turn is reported and the loop continues.
func (s *Session) Run(ctx context.Context) error {
	if err := s.start(); err != nil {
		return err
	}

	var runErr error
	scanner := bufio.NewScanner(s.in)
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}

		fmt.Fprintf(s.out, "\n%s\n", strings.Repeat("-", 30))
		fmt.Fprint(s.out, "📝 Enter your query: ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out, "\n👋 Goodbye!")
			runErr = scanner.Err()
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			fmt.Fprintln(s.out, "⚠️ Please enter a valid query")
		case isQuit(input):
			fmt.Fprintln(s.out, "👋 Goodbye!")
			break loop
		default:
			s.RunTurn(ctx, input)
		}
	}

	s.end()
	fmt.Fprintln(s.out, "\n✅ Session complete!")
	return runErr
}

// RunTurn processes one query through the full pipeline and returns its
// record. Errors never escape a turn: they are logged, written to both
// artifact books, and captured in the record's note.
func (s *Session) RunTurn(ctx context.Context, raw string) QueryRecord {
	s.count++
	startedAt := s.now()
	rec := QueryRecord{RawText: raw, Timestamp: startedAt}

	fmt.Fprintf(s.out, "\n🔍 Processing: %s\n", raw)

	qpath := filepath.Join(s.logDir, fmt.Sprintf("query_%d_%s.log", s.count, startedAt.Format(stampLayout)))
	qlog, err := logbook.New(qpath)
	if err != nil {
		s.log.Warn("create query log failed", "path", qpath, "error", err.Error())
	}
	rec.LogFile = qpath
	fmt.Fprintf(s.out, "📝 Query logging to: %s\n", qpath)

	sep := strings.Repeat("=", 50)
	ts := startedAt.Format(timeLayout)
	s.book.Appendf("\n--- Query #%d ---\n", s.count)
	s.book.Appendf("Time: %s\n", ts)
	s.book.Appendf("User Query: %s\n", raw)
	s.book.Appendf("Query Log File: %s\n", qpath)
	qlog.Appendf("Query #%d - %s\n%s\nUser Query: %s\n%s\n\n", s.count, ts, sep, raw, sep)

	// Stage 1: translate the query.
	fmt.Fprintln(s.out, "📝 Stage 1: Generating search query...")
	done := s.log.Stage("generate-query", "query_num", s.count)
	query, err := s.searcher.GenerateSearchQuery(ctx, raw)
	done(err)
	if err != nil {
		return s.failTurn(rec, qlog, s.log.WrapError("generate-query", "GenerateSearchQuery", err))
	}
	rec.SearchQuery = query
	s.book.Appendf("Generated Search Query: %s\n", query)
	qlog.Appendf("Generated Search Query: %s\n\n", query)

	if query.Skip() {
		fmt.Fprintln(s.out, "✅ Correctly identified as non-mathematical query")
		rec.Note = "no search needed"
		s.book.Append("Result: Identified as non-mathematical query\n")
		qlog.Append("Result: Identified as non-mathematical query\n")
		return s.finishTurn(rec)
	}
	fmt.Fprintf(s.out, "🔍 Generated search query: %s\n", query.Text())

	// Stage 2: search Lean Explore.
	fmt.Fprintln(s.out, "🔍 Stage 2: Searching Lean Explore...")
	done = s.log.Stage("search", "limit", s.limit)
	results, err := s.searcher.Search(ctx, query.Text(), s.limit)
	done(err)
	if err != nil {
		return s.failTurn(rec, qlog, s.log.WrapError("search", "Search", err))
	}
	rec.Results = results
	fmt.Fprintf(s.out, "📊 Found %d results\n", len(results))
	s.printResults(results)

	// Stage 3: analyze the results.
	fmt.Fprintln(s.out, "🧠 Stage 3: Analyzing results...")
	done = s.log.Stage("analyze", "results", len(results))
	analysis, err := s.searcher.AnalyzeResults(ctx, raw, query.Text(), results)
	done(err)
	if err != nil {
		return s.failTurn(rec, qlog, s.log.WrapError("analyze", "AnalyzeResults", err))
	}
	rec.Analysis = analysis.Text

	match, consistent := agent.ResolveCoverMatch(analysis.CoverMatch, results)
	if !consistent {
		rec.Note = fmt.Sprintf("analyzer referenced unknown result %q; cover match dropped", analysis.CoverMatch)
		s.log.Warn("cover match not in result set", "claimed", analysis.CoverMatch)
	}
	rec.CoverMatch = match

	fmt.Fprintln(s.out, "🤖 Analysis complete!")
	fmt.Fprintf(s.out, "   - Cover match: %s\n", coverForLog(match))
	fmt.Fprintf(s.out, "\n📝 Full Analysis:\n%s\n", analysis.Text)

	s.book.Appendf("Search Results: %d found\n", len(results))
	s.book.Appendf("Cover Match: %s\n", coverForLog(match))
	if rec.Note != "" {
		s.book.Appendf("Note: %s\n", rec.Note)
	}
	qlog.Appendf("\nDetailed Search Results (%d found):\n", len(results))
	qlog.Appendf("Cover Match: %s\n", coverForLog(match))
	qlog.Append(formatResultList(results))
	qlog.Appendf("\nFull Analysis:\n%s\n", analysis.Text)

	return s.finishTurn(rec)
}

func (s *Session) start() error {
	s.record = SessionRecord{StartTime: s.now()}

	name := fmt.Sprintf("leansearch_session_%s.log", s.record.StartTime.Format(stampLayout))
	book, err := logbook.New(filepath.Join(s.logDir, name))
	if err != nil {
		return fmt.Errorf("create session log: %w", err)
	}
	s.book = book
	fmt.Fprintf(s.out, "📝 Session logging to: %s\n", book.Path())

	sep := strings.Repeat("=", 50)
	s.book.Appendf("\n%s\nSession started at: %s\n%s\n\n", sep, s.record.StartTime.Format(timeLayout), sep)
	s.log = s.log.StartSession("leansearch", "log_file", book.Path())

	fmt.Fprintln(s.out, "\n🔍 LeanSearchAgent Interactive Mode")
	fmt.Fprintln(s.out, sep)
	fmt.Fprintln(s.out, "Enter your mathematical queries (type 'quit' to exit)")
	return nil
}

func (s *Session) end() {
	s.record.EndTime = s.now()
	sep := strings.Repeat("=", 50)
	s.book.Appendf("\n%s\nSession ended at: %s\nTotal queries processed: %d\n%s\n",
		sep, s.record.EndTime.Format(timeLayout), s.count, sep)
	s.log.EndSession(nil)
}

func (s *Session) finishTurn(rec QueryRecord) QueryRecord {
	s.record.Queries = append(s.record.Queries, rec)
	return rec
}

func (s *Session) failTurn(rec QueryRecord, qlog *logbook.Book, err error) QueryRecord {
	rec.Note = err.Error()
	fmt.Fprintf(s.out, "❌ Error: %v\n", err)
	s.book.Appendf("Error: %v\n", err)
	qlog.Appendf("Error: %v\n", err)
	return s.finishTurn(rec)
}

func (s *Session) printResults(results []leanexplore.Candidate) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(s.out, "\n📋 Detailed Search Results:")
	fmt.Fprint(s.out, formatResultList(results))
}

// formatResultList renders candidates the way the console and the per-query
// log show them, one block per result.
func formatResultList(results []leanexplore.Candidate) string {
	var b strings.Builder
	for i, c := range results {
		fmt.Fprintf(&b, "\n--- Result %d ---\n", i+1)
		name := c.Name()
		if name == "" {
			name = "N/A"
		}
		fmt.Fprintf(&b, "Lean Name: %s\n", name)
		fmt.Fprintf(&b, "File: %s:%d\n", c.SourceFile, c.RangeStartLine)
		if c.DisplayStatementText != "" {
			fmt.Fprintf(&b, "Statement: %s\n", c.DisplayStatementText)
		}
		if c.Docstring != "" {
			fmt.Fprintf(&b, "Docstring: %s\n", c.Docstring)
		}
		if c.InformalDescription != "" {
			fmt.Fprintf(&b, "Description: %s\n", c.InformalDescription)
		}
	}
	return b.String()
}

func coverForLog(match string) string {
	if match == "" {
		return "None"
	}
	return match
}

func isQuit(input string) bool {
	switch strings.ToLower(input) {
	case "quit", "exit", "q":
		return true
	}
	return false
}
