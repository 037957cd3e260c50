package parse

import (
	"strings"

	"github.com/mfalkner/arbiter/internal/models"
)

// Keyword heuristics for severity classification. First match wins, in
// descending severity order; anything unmatched defaults to medium.
var (
	criticalTerms = []string{
		"security", "vulnerab", "injection", "exploit", "unsafe",
		"credential", "secret leak", "auth bypass",
	}
	highTerms = []string{
		"crash", "data loss", "race condition", "deadlock",
		"memory leak", "corrupt", "breaks",
	}
	mediumTerms = []string{
		"missing test", "no tests", "test coverage", "untested",
		"coverage gap",
	}
	lowTerms = []string{
		"typo", "cosmetic", "style", "formatting", "whitespace",
		"naming", "nit",
	}
)

// CategorizeIssues assigns a heuristic severity to each issue string.
// Order is preserved.
func CategorizeIssues(issues []string) []models.CategorizedIssue {
	out := make([]models.CategorizedIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, models.CategorizedIssue{
			Issue:    issue,
			Severity: classify(issue),
		})
	}
	return out
}

func classify(issue string) models.Severity {
	lower := strings.ToLower(issue)
	for _, term := range criticalTerms {
		if strings.Contains(lower, term) {
			return models.SeverityCritical
		}
	}
	for _, term := range highTerms {
		if strings.Contains(lower, term) {
			return models.SeverityHigh
		}
	}
	for _, term := range mediumTerms {
		if strings.Contains(lower, term) {
			return models.SeverityMedium
		}
	}
	for _, term := range lowTerms {
		if strings.Contains(lower, term) {
			return models.SeverityLow
		}
	}
	return models.SeverityMedium
}
