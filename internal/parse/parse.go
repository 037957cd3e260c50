// Package parse extracts structured review records from free-form agent
// output. Parsing is tolerant by design: a missing verdict yields Unknown
// and a missing section yields an empty list, never an error.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mfalkner/arbiter/internal/models"
)

// cliEnvelope is the outer JSON some CLI tools wrap their answer in
// (e.g. `claude -p --output-format json`). The real text lives in Result.
type cliEnvelope struct {
	Type   string `json:"type"`
	Result string `json:"result"`
}

var (
	verdictRe = regexp.MustCompile(`(?im)^\s*VERDICT:\s*(PASS|FAIL|PARTIAL)\b`)
	resultRe  = regexp.MustCompile(`"result":\s*"((?:[^"\\]|\\.)*)"`)
	sectionRe = regexp.MustCompile(`^(?:#+\s*)?([A-Z][A-Z _/-]*[A-Z]):\s*$`)
	bulletRe  = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s+(.*\S)\s*$`)
)

// Unwrap detects a CLI JSON envelope and returns the inner result text.
// Anything that is not a recognizable envelope passes through unchanged.
func Unwrap(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	var env cliEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Result != "" {
		return env.Result
	}

	// Malformed or concatenated JSON: fall back to a literal scrape of the
	// result field before giving up.
	if strings.Contains(trimmed, `"result"`) && strings.Contains(trimmed, `"type"`) {
		if m := resultRe.FindStringSubmatch(trimmed); len(m) > 1 {
			var s string
			if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err == nil {
				return s
			}
		}
	}
	return raw
}

// Response parses one tool's raw output into a verdict, issues, and
// recommendations. The envelope, if any, is unwrapped first.
func Response(raw string) models.ParsedReview {
	text := Unwrap(raw)

	review := models.ParsedReview{
		Verdict:         models.VerdictUnknown,
		Issues:          []string{},
		Recommendations: []string{},
	}

	if m := verdictRe.FindStringSubmatch(text); len(m) > 1 {
		switch strings.ToUpper(m[1]) {
		case "PASS":
			review.Verdict = models.VerdictPass
		case "FAIL":
			review.Verdict = models.VerdictFail
		case "PARTIAL":
			review.Verdict = models.VerdictPartial
		}
	}

	review.Issues = section(text, "ISSUES")
	review.Recommendations = section(text, "RECOMMENDATIONS")
	return review
}

// section collects bullet lines under a labeled header until the next
// section header or end of text.
func section(text, name string) []string {
	items := []string{}
	inSection := false

	for _, line := range strings.Split(text, "\n") {
		if m := sectionRe.FindStringSubmatch(strings.TrimSpace(line)); len(m) > 1 {
			header := strings.ToUpper(strings.TrimSpace(m[1]))
			inSection = header == name
			continue
		}
		if !inSection {
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); len(m) > 1 {
			items = append(items, m[1])
		}
	}
	return items
}
