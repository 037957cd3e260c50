package consensus

import (
	"regexp"
	"strconv"
	"strings"
)

// Section headings of the synthesis output contract. Matched literally
// (case-insensitive) because the upstream prompt pins the exact schema.
var (
	scoreRe = regexp.MustCompile(`(?i)\*\*Consensus Score\*\*:\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*10`)
	recRe   = regexp.MustCompile(`(?i)\*\*Final Recommendation\*\*:\s*(APPROVE|REVISE|REJECT)`)
	levelRe = regexp.MustCompile(`(?i)\*\*Consensus Level\*\*:\s*(Strong|Moderate|Weak|Conflicted)`)

	flaggedRe  = regexp.MustCompile(`^(.*?)\s*-\s*flagged by:\s*\[([^\]]*)\]\s*$`)
	headingRe  = regexp.MustCompile(`^#{2,3}\s+(.*\S)\s*$`)
	topBullet  = regexp.MustCompile(`^- \s*(.*\S)\s*$`)
	subBullet  = regexp.MustCompile(`^\s+[-*]\s+(.*\S)\s*$`)
	impactPre  = regexp.MustCompile(`(?i)^Impact:\s*`)
	fixPre     = regexp.MustCompile(`(?i)^Recommended fix:\s*`)
)

type synthSection int

const (
	secNone synthSection = iota
	secOverall
	secCritical
	secHigh
	secMediumLow
	secAgreement
	secDisagreement
	secRecommendations
)

func sectionFor(heading string) synthSection {
	h := strings.ToLower(heading)
	switch {
	case strings.HasPrefix(h, "overall assessment"):
		return secOverall
	case strings.HasPrefix(h, "critical issues"):
		return secCritical
	case strings.HasPrefix(h, "high priority"):
		return secHigh
	case strings.HasPrefix(h, "medium/low"), strings.HasPrefix(h, "medium priority"), strings.HasPrefix(h, "low priority"):
		return secMediumLow
	case strings.HasPrefix(h, "points of agreement"):
		return secAgreement
	case strings.HasPrefix(h, "points of disagreement"):
		return secDisagreement
	case strings.HasPrefix(h, "recommendations"):
		return secRecommendations
	default:
		return secNone
	}
}

// ParseSynthesis extracts the structured fields from a synthesis answer.
// Tolerant like the per-tool parser: a missing section yields an empty
// list and a missing score yields zero.
func ParseSynthesis(output string) SynthesisResult {
	var result SynthesisResult
	result.Agreements = []string{}
	result.Disagreements = []string{}
	result.Recommendations = []string{}

	if m := scoreRe.FindStringSubmatch(output); len(m) > 1 {
		result.Score, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := recRe.FindStringSubmatch(output); len(m) > 1 {
		result.Recommendation = strings.ToUpper(m[1])
	}
	if m := levelRe.FindStringSubmatch(output); len(m) > 1 {
		level := strings.ToLower(m[1])
		result.Level = strings.ToUpper(level[:1]) + level[1:]
	}

	section := secNone
	var current *SynthesisIssue
	var issueList *[]SynthesisIssue

	flush := func() {
		if current != nil && issueList != nil {
			*issueList = append(*issueList, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		if m := headingRe.FindStringSubmatch(line); len(m) > 1 {
			flush()
			section = sectionFor(m[1])
			switch section {
			case secCritical:
				issueList = &result.CriticalIssues
			case secHigh:
				issueList = &result.HighIssues
			case secMediumLow:
				issueList = &result.MediumLowIssues
			default:
				issueList = nil
			}
			continue
		}

		switch section {
		case secCritical, secHigh, secMediumLow:
			if m := topBullet.FindStringSubmatch(line); len(m) > 1 {
				flush()
				current = parseIssueBullet(m[1])
				continue
			}
			if current != nil {
				if m := subBullet.FindStringSubmatch(line); len(m) > 1 {
					text := m[1]
					switch {
					case impactPre.MatchString(text):
						current.Impact = impactPre.ReplaceAllString(text, "")
					case fixPre.MatchString(text):
						current.Fix = fixPre.ReplaceAllString(text, "")
					}
				}
			}

		case secAgreement:
			if m := topBullet.FindStringSubmatch(line); len(m) > 1 {
				result.Agreements = append(result.Agreements, m[1])
			}
		case secDisagreement:
			if m := topBullet.FindStringSubmatch(line); len(m) > 1 {
				result.Disagreements = append(result.Disagreements, m[1])
			}
		case secRecommendations:
			if m := topBullet.FindStringSubmatch(line); len(m) > 1 {
				result.Recommendations = append(result.Recommendations, m[1])
			}
		}
	}
	flush()

	return result
}

// parseIssueBullet splits "<title> - flagged by: [m1, m2]" into its parts.
// A bullet without the flagged-by suffix becomes a title-only issue.
func parseIssueBullet(text string) *SynthesisIssue {
	issue := &SynthesisIssue{Title: text}
	if m := flaggedRe.FindStringSubmatch(text); len(m) > 2 {
		issue.Title = strings.TrimSpace(m[1])
		for _, model := range strings.Split(m[2], ",") {
			model = strings.TrimSpace(model)
			if model != "" {
				issue.FlaggedBy = append(issue.FlaggedBy, model)
			}
		}
	}
	return issue
}
