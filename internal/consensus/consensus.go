// Package consensus aggregates parsed reviews from multiple tools into a
// single verdict with an agreement measure, and optionally delegates to one
// extra tool call for narrative synthesis.
package consensus

import (
	"sort"

	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/parse"
)

// DefaultMinAgreement is the minimum top-vote count required before a
// majority verdict is declared.
const DefaultMinAgreement = 2

// Detect computes the majority verdict over the given reviews. Reviews with
// an Unknown verdict count as failures and are excluded from the agreement
// denominator. Ties, or a top count below minAgreement, yield an explicit
// no-consensus result rather than an arbitrary pick.
func Detect(reviews []models.ParsedReview, minAgreement int) models.ConsensusResult {
	result := models.ConsensusResult{
		Responses: reviews,
		Verdict:   models.VerdictUnknown,
	}

	votes := map[models.Verdict]int{}
	successful := 0
	for _, r := range reviews {
		if r.Verdict == models.VerdictUnknown {
			result.Failures++
			continue
		}
		successful++
		votes[r.Verdict]++
	}

	if successful > 0 {
		verdict, count, tied := topVote(votes)
		// Denominator is responses with a parseable verdict, not all
		// consulted tools.
		result.AgreementRate = float64(count) / float64(successful)
		if !tied && count >= minAgreement {
			result.Verdict = verdict
			result.HasConsensus = true
		}
	}

	result.IssueFrequency = frequency(reviews, func(r models.ParsedReview) []string { return r.Issues })
	result.RecommendationFrequency = frequency(reviews, func(r models.ParsedReview) []string { return r.Recommendations })

	var allIssues []string
	for _, e := range result.IssueFrequency {
		allIssues = append(allIssues, e.Text)
	}
	result.CategorizedIssues = parse.CategorizeIssues(allIssues)

	return result
}

// topVote returns the verdict with the highest count and whether the top
// count is shared by more than one verdict.
func topVote(votes map[models.Verdict]int) (models.Verdict, int, bool) {
	var best models.Verdict
	bestCount := 0
	tied := false
	// Fixed iteration order keeps tie detection deterministic.
	for _, v := range []models.Verdict{models.VerdictPass, models.VerdictFail, models.VerdictPartial} {
		count := votes[v]
		switch {
		case count > bestCount:
			best, bestCount, tied = v, count, false
		case count == bestCount && count > 0:
			tied = true
		}
	}
	return best, bestCount, tied
}

// frequency groups strings by exact match across reviews, counts
// occurrences, and sorts descending by count with first-seen tiebreak.
// Percentages are relative to the number of reviews.
func frequency(reviews []models.ParsedReview, pick func(models.ParsedReview) []string) []models.FrequencyEntry {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	order := 0

	for _, r := range reviews {
		for _, text := range pick(r) {
			if _, ok := counts[text]; !ok {
				firstSeen[text] = order
				order++
			}
			counts[text]++
		}
	}

	entries := make([]models.FrequencyEntry, 0, len(counts))
	for text, count := range counts {
		pct := 0.0
		if len(reviews) > 0 {
			pct = float64(count) / float64(len(reviews)) * 100
		}
		entries = append(entries, models.FrequencyEntry{Text: text, Count: count, Percent: pct})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return firstSeen[entries[i].Text] < firstSeen[entries[j].Text]
	})
	return entries
}
