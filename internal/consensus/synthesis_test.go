package consensus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfalkner/arbiter/internal/models"
)

// mockCaller records prompts and returns a canned answer.
type mockCaller struct {
	prompt string
	output string
	err    error
	calls  int
}

func (m *mockCaller) Call(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.output, m.err
}

const sampleSynthesis = `## Overall Assessment
- **Consensus Score**: 6.5/10
- **Final Recommendation**: REVISE
- **Consensus Level**: Moderate

### Critical Issues (Must Fix)
- SQL injection in login - flagged by: [claude, gemini]
  - Impact: Attackers can bypass authentication
  - Recommended fix: Use parameterized queries

### High Priority Issues
- Race condition in cache writer - flagged by: [claude]

### Medium/Low Priority
- Inconsistent naming - flagged by: [gemini, codex]

## Points of Agreement
- The core design is sound

## Points of Disagreement
- Models disagree on test coverage adequacy

## Recommendations
- Add integration tests before release
`

func TestParseSynthesis(t *testing.T) {
	result := ParseSynthesis(sampleSynthesis)

	assert.InDelta(t, 6.5, result.Score, 1e-9)
	assert.Equal(t, "REVISE", result.Recommendation)
	assert.Equal(t, "Moderate", result.Level)

	require.Len(t, result.CriticalIssues, 1)
	crit := result.CriticalIssues[0]
	assert.Equal(t, "SQL injection in login", crit.Title)
	assert.Equal(t, []string{"claude", "gemini"}, crit.FlaggedBy)
	assert.Equal(t, "Attackers can bypass authentication", crit.Impact)
	assert.Equal(t, "Use parameterized queries", crit.Fix)

	require.Len(t, result.HighIssues, 1)
	assert.Equal(t, "Race condition in cache writer", result.HighIssues[0].Title)

	require.Len(t, result.MediumLowIssues, 1)
	assert.Equal(t, []string{"gemini", "codex"}, result.MediumLowIssues[0].FlaggedBy)

	assert.Equal(t, []string{"The core design is sound"}, result.Agreements)
	assert.Equal(t, []string{"Models disagree on test coverage adequacy"}, result.Disagreements)
	assert.Equal(t, []string{"Add integration tests before release"}, result.Recommendations)
}

func TestParseSynthesisMissingSections(t *testing.T) {
	result := ParseSynthesis("## Overall Assessment\n- **Consensus Score**: 9.0/10\n")
	assert.InDelta(t, 9.0, result.Score, 1e-9)
	assert.Empty(t, result.CriticalIssues)
	assert.Empty(t, result.Agreements)
	assert.Empty(t, result.Recommendations)
}

func TestParseSynthesisEmpty(t *testing.T) {
	result := ParseSynthesis("")
	assert.Zero(t, result.Score)
	assert.Equal(t, "", result.Recommendation)
}

func TestSynthesizeRoundTrip(t *testing.T) {
	caller := &mockCaller{output: sampleSynthesis}
	s := NewSynthesizer(caller)

	responses := []models.ToolResponse{
		{ToolName: "claude", Model: "opus", Output: "VERDICT: FAIL\n\nISSUES:\n- SQL injection in login"},
		{ToolName: "gemini", Output: "VERDICT: PASS"},
	}
	result := s.Synthesize(context.Background(), "spec-1", responses)

	assert.True(t, result.Success)
	assert.Equal(t, "REVISE", result.Recommendation)
	assert.Equal(t, 1, caller.calls)

	// The prompt carries every raw output and the literal output contract.
	assert.Contains(t, caller.prompt, "claude (opus)")
	assert.Contains(t, caller.prompt, "SQL injection in login")
	assert.Contains(t, caller.prompt, "## Overall Assessment")
	assert.Contains(t, caller.prompt, "**Consensus Score**: X.X/10")
	assert.Contains(t, caller.prompt, "APPROVE|REVISE|REJECT")
}

func TestSynthesizeFailureDoesNotRaise(t *testing.T) {
	caller := &mockCaller{err: errors.New("tool exploded")}
	s := NewSynthesizer(caller)

	result := s.Synthesize(context.Background(), "", nil)
	assert.False(t, result.Success)
	assert.True(t, strings.Contains(result.Error, "tool exploded"))
	// Exactly one attempt, no retry.
	assert.Equal(t, 1, caller.calls)
}
