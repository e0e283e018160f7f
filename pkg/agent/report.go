package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// ReportEntry is one structured result parsed out of an analysis reply.
type ReportEntry struct {
	Index         int     `json:"index"`
	LeanName      string  `json:"lean_name"`
	Type          string  `json:"type"`
	Statement     string  `json:"statement"`
	Relevance     string  `json:"relevance"`
	Module        string  `json:"module"`
	Documentation *string `json:"documentation"`
}

// reportEntryRE matches one entry of the analysis report format pinned by
// analyzePrompt. The Documentation line is optional.
var reportEntryRE = regexp.MustCompile(
	"\\*\\*(\\d+)\\. [^*]+\\*\\*\\n" +
		"- \\*\\*Lean Name\\*\\*: `([^`]+)`\\n" +
		"- \\*\\*Type\\*\\*: ([^\\n]+)\\n" +
		"- \\*\\*Statement\\*\\*: `([^`]+)`\\n" +
		"- \\*\\*Relevance\\*\\*: ([^\\n]+)\\n" +
		"- \\*\\*Module\\*\\*: ([^\\n]+)\\n" +
		"(?:- \\*\\*Documentation\\*\\*: ([^\\n]+))?",
)

// ParseAnalysisReport extracts the structured entries from an analysis reply.
// Replies that do not follow the report format yield no entries.
func ParseAnalysisReport(text string) []ReportEntry {
	matches := reportEntryRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	entries := make([]ReportEntry, 0, len(matches))
	for _, m := range matches {
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		entry := ReportEntry{
			Index:     index,
			LeanName:  strings.TrimSpace(m[2]),
			Type:      strings.TrimSpace(m[3]),
			Statement: strings.TrimSpace(m[4]),
			Relevance: strings.TrimSpace(m[5]),
			Module:    strings.TrimSpace(m[6]),
		}
		if doc := strings.TrimSpace(m[7]); doc != "" && doc != "(No docstring provided)" {
			entry.Documentation = &doc
		}
		entries = append(entries, entry)
	}
	return entries
}
