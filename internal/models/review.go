package models

// Verdict is the tri-state (plus unknown) outcome a tool expresses about
// the reviewed subject.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictPartial Verdict = "partial"
	VerdictUnknown Verdict = "unknown"
)

// Severity buckets for categorized issues.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParsedReview is the structured record extracted from one tool's free-form
// output. Issues and Recommendations preserve the order they appeared in.
type ParsedReview struct {
	Verdict         Verdict  `json:"verdict"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// CategorizedIssue pairs an issue string with its heuristic severity.
type CategorizedIssue struct {
	Issue    string   `json:"issue"`
	Severity Severity `json:"severity"`
}
