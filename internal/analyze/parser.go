// Response parsing for model output.
//
// Models commonly wrap their JSON in a markdown fence, sometimes return bare
// JSON, and occasionally ignore the format instructions entirely and answer
// in prose. Parsing is therefore a chain of strategies tried in order, first
// success wins:
//
//  1. a fenced ```json block, decoded as JSON;
//  2. the entire response body, decoded as JSON;
//  3. heuristic free-text parsing: a labeled summary section plus
//     numbered/bulleted sections mined for scores and type labels.
//
// The chain guarantees a well-formed {summary, clauses} result for any
// input. Tier 3 is approximate by nature; its heuristics are pinned by
// tests rather than tightened.
package analyze

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-contract-backend/internal/domain"
)

const (
	// minSectionLen filters list sections too short to be a real clause.
	minSectionLen = 20
	// maxClauses caps the number of clauses mined from free text.
	maxClauses = 10
	// clauseCap / exactTextCap bound free-text clause fields; longer text is
	// truncated with a trailing ellipsis marker.
	clauseCap    = 200
	exactTextCap = 300

	defaultRiskScore = 50
	defaultType      = "Contract Clause"
	defaultSummary   = "Contract analysis completed."
)

var (
	fencedJSONRE = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

	// Summary heading, case-insensitive. RE2 has no lookahead, so the match
	// is cut at the section end separately (see summaryEndRE).
	summaryHeadingRE = regexp.MustCompile(`(?i)(?:executive summary|summary|overview):[ \t]*`)
	summaryEndRE     = regexp.MustCompile(`\n\n|\n(?:Identified|Risk)`)

	// List markers that open a new section: "1.", "•", "-", "*".
	sectionSplitRE = regexp.MustCompile(`\n\s*(?:\d+\.|•|\-|\*)\s*`)

	riskScoreRE = regexp.MustCompile(`(?i)(?:risk|score):\s*(\d+)`)
	typeRE      = regexp.MustCompile(`(?i)(?:type|category):\s*([^\n]+)`)
)

// ParseResponse converts raw model output into an AnalysisResult. It never
// fails: structured tiers are attempted first and the free-text tier absorbs
// everything else.
func ParseResponse(content string) *domain.AnalysisResult {
	if r := parseFencedJSON(content); r != nil {
		return r
	}
	if r := parseWholeJSON(content); r != nil {
		return r
	}
	return parseFreeText(content)
}

// parseFencedJSON extracts a ```json fenced block and decodes it.
// Returns nil when there is no fence or the block is not valid JSON.
func parseFencedJSON(content string) *domain.AnalysisResult {
	m := fencedJSONRE.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	return decodeResult(m[1])
}

// parseWholeJSON decodes the entire response body as JSON.
func parseWholeJSON(content string) *domain.AnalysisResult {
	return decodeResult(content)
}

// decodeResult unmarshals s into an AnalysisResult, or nil on any decode
// error. A JSON object lacking both fields still decodes (to an empty
// result), matching the permissiveness of the wire contract.
func decodeResult(s string) *domain.AnalysisResult {
	var r domain.AnalysisResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &r); err != nil {
		return nil
	}
	if r.Clauses == nil {
		r.Clauses = []domain.RiskClause{}
	}
	return &r
}

// parseFreeText is the last-resort tier: mine a summary and clause sections
// out of prose.
func parseFreeText(content string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Summary: extractSummary(content),
		Clauses: parseClauses(content),
	}
}

// extractSummary locates a labeled summary section; failing that it uses the
// first line longer than 50 characters, and failing that a fixed fallback.
func extractSummary(content string) string {
	if loc := summaryHeadingRE.FindStringIndex(content); loc != nil {
		tail := content[loc[1]:]
		if end := summaryEndRE.FindStringIndex(tail); end != nil {
			tail = tail[:end[0]]
		}
		if s := strings.TrimSpace(tail); s != "" {
			return s
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if len(strings.TrimSpace(line)) > 50 {
			return strings.TrimSpace(line)
		}
	}
	return defaultSummary
}

// parseClauses splits the response on list markers and builds a clause per
// section, pulling a risk score and a type label when the section names
// them. Scores are used as parsed — even outside [0,100].
func parseClauses(content string) []domain.RiskClause {
	sections := sectionSplitRE.Split(content, -1)
	clauses := []domain.RiskClause{}
	if len(sections) < 2 {
		return clauses
	}
	for _, section := range sections[1:] { // skip the preamble before the first marker
		section = strings.TrimSpace(section)
		if len(section) < minSectionLen {
			continue
		}
		clause := domain.RiskClause{
			ID:           len(clauses) + 1,
			Type:         defaultType,
			RiskScore:    defaultRiskScore,
			Clause:       truncate(section, clauseCap),
			Consequences: "Potential business impact requires review.",
			Mitigation:   "Consult legal counsel for specific guidance.",
			ExactText:    truncate(section, exactTextCap),
		}
		if m := riskScoreRE.FindStringSubmatch(section); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				clause.RiskScore = n
			}
		}
		if m := typeRE.FindStringSubmatch(section); m != nil {
			clause.Type = strings.TrimSpace(m[1])
		}
		clauses = append(clauses, clause)
		if len(clauses) >= maxClauses {
			break
		}
	}
	return clauses
}

// cutRunes returns at most max characters of s. The cut counts runes, not
// bytes, so multi-byte text is never split mid-character.
func cutRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// truncate caps s at max characters, appending an ellipsis marker when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return cutRunes(s, max) + "..."
}
