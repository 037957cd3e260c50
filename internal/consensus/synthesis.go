package consensus

import (
	"context"
	"fmt"
	"strings"

	"github.com/mfalkner/arbiter/internal/models"
)

// Caller performs the single narrative-synthesis invocation. Implementations
// wrap either an external tool or a direct API client.
type Caller interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// SynthesisIssue is one issue extracted from a synthesis answer.
type SynthesisIssue struct {
	Title     string   `json:"title"`
	FlaggedBy []string `json:"flagged_by"`
	Impact    string   `json:"impact,omitempty"`
	Fix       string   `json:"fix,omitempty"`
}

// SynthesisResult is the parsed outcome of a narrative synthesis call. A
// failed call yields Success=false with Error set so the caller can fall
// back to the statistical consensus path instead of handling a raised error.
type SynthesisResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation"`
	Level          string  `json:"level"`

	CriticalIssues  []SynthesisIssue `json:"critical_issues"`
	HighIssues      []SynthesisIssue `json:"high_issues"`
	MediumLowIssues []SynthesisIssue `json:"medium_low_issues"`

	Agreements      []string `json:"agreements"`
	Disagreements   []string `json:"disagreements"`
	Recommendations []string `json:"recommendations"`

	RawOutput string `json:"raw_output,omitempty"`
}

// Synthesizer concatenates raw per-tool outputs into one synthesis prompt
// and sends it to exactly one additional call. No retry, no fallback.
type Synthesizer struct {
	caller Caller
}

// NewSynthesizer creates a Synthesizer with the given caller.
func NewSynthesizer(c Caller) *Synthesizer {
	return &Synthesizer{caller: c}
}

// Synthesize runs the single synthesis attempt over the given responses.
func (s *Synthesizer) Synthesize(ctx context.Context, subject string, responses []models.ToolResponse) SynthesisResult {
	prompt := BuildSynthesisPrompt(subject, responses)

	output, err := s.caller.Call(ctx, prompt)
	if err != nil {
		return SynthesisResult{Error: fmt.Sprintf("synthesis call: %v", err)}
	}

	result := ParseSynthesis(output)
	result.Success = true
	result.RawOutput = output
	return result
}

// BuildSynthesisPrompt assembles the synthesis prompt. The output schema is
// reproduced literally because a downstream parser consumes it by heading
// and bullet match.
func BuildSynthesisPrompt(subject string, responses []models.ToolResponse) string {
	var b strings.Builder

	b.WriteString("You are synthesizing independent review opinions from multiple AI models into one consensus assessment.\n\n")
	if subject != "" {
		fmt.Fprintf(&b, "Subject under review: %s\n\n", subject)
	}

	for i, r := range responses {
		name := r.ToolName
		if r.Model != "" {
			name = fmt.Sprintf("%s (%s)", r.ToolName, r.Model)
		}
		fmt.Fprintf(&b, "## Review %d: %s\n\n%s\n\n", i+1, name, strings.TrimSpace(r.Output))
	}

	b.WriteString(`Synthesize the reviews above. Respond with EXACTLY this markdown structure and nothing else:

## Overall Assessment
- **Consensus Score**: X.X/10
- **Final Recommendation**: APPROVE|REVISE|REJECT
- **Consensus Level**: Strong|Moderate|Weak|Conflicted

### Critical Issues (Must Fix)
- <title> - flagged by: [model1, model2]
  - Impact: ...
  - Recommended fix: ...

### High Priority Issues
- <title> - flagged by: [model1, ...]

### Medium/Low Priority
- <title> - flagged by: [model1, ...]

## Points of Agreement
- ...

## Points of Disagreement
- ...

## Recommendations
- ...
`)
	return b.String()
}
