package consult

import (
	"fmt"
	"strings"
)

// BuildReviewPrompt wraps the subject content with review instructions that
// pin the inline response format the parser consumes (VERDICT line plus
// ISSUES/RECOMMENDATIONS bulleted sections).
func BuildReviewPrompt(kind, subject, content string) string {
	var b strings.Builder

	b.WriteString("You are an independent review agent. Review the material below and respond with a verdict.\n\n")
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	if kind != "" {
		fmt.Fprintf(&b, "Review kind: %s\n", kind)
	}
	b.WriteString("\n## Material Under Review\n\n")
	b.WriteString(content)
	b.WriteString("\n\n## Response Format\n\n")
	b.WriteString("Respond in exactly this structure:\n\n")
	b.WriteString("VERDICT: PASS|FAIL|PARTIAL\n\n")
	b.WriteString("ISSUES:\n")
	b.WriteString("- <each concrete problem found, one per bullet; omit the section if none>\n\n")
	b.WriteString("RECOMMENDATIONS:\n")
	b.WriteString("- <each suggested improvement, one per bullet; omit the section if none>\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- PASS means the material is acceptable as-is\n")
	b.WriteString("- FAIL means it has problems that must be fixed\n")
	b.WriteString("- PARTIAL means it is acceptable with reservations\n")
	b.WriteString("- Be specific; cite the exact place a problem occurs\n")

	return b.String()
}
