package models

// FrequencyEntry is one row of an issue or recommendation frequency table.
// Entries are sorted descending by count; ties keep first-seen order.
type FrequencyEntry struct {
	Text    string  `json:"text"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// ConsensusResult aggregates N parsed reviews into one verdict.
//
// AgreementRate's denominator is the count of responses that produced a
// parseable verdict; tools that errored or timed out are counted in
// Failures instead.
type ConsensusResult struct {
	Responses []ParsedReview `json:"responses"`

	Verdict      Verdict `json:"verdict"`
	HasConsensus bool    `json:"has_consensus"`

	AgreementRate float64 `json:"agreement_rate"`
	Failures      int     `json:"failures"`

	IssueFrequency          []FrequencyEntry   `json:"issue_frequency"`
	RecommendationFrequency []FrequencyEntry   `json:"recommendation_frequency"`
	CategorizedIssues       []CategorizedIssue `json:"categorized_issues"`
}
