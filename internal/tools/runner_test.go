package tools

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfalkner/arbiter/internal/models"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec tests use unix shell tools")
	}
}

func TestRunSuccess(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	resp := r.Run(context.Background(), Invocation{
		Tool:    Tool{Name: "echo-tool", Command: "cat"},
		Prompt:  "VERDICT: PASS",
		Timeout: 10 * time.Second,
	})

	assert.Equal(t, models.ToolStatusSuccess, resp.Status)
	assert.Equal(t, "VERDICT: PASS", resp.Output)
	require.NotNil(t, resp.ExitCode)
	assert.Equal(t, 0, *resp.ExitCode)
	assert.Greater(t, resp.Duration, time.Duration(0))
}

func TestRunNotFound(t *testing.T) {
	r := NewExecRunner()
	resp := r.Run(context.Background(), Invocation{
		Tool: Tool{Name: "ghost", Command: "definitely-not-a-real-binary-xyz"},
	})
	assert.Equal(t, models.ToolStatusNotFound, resp.Status)
	assert.Contains(t, resp.Error, "command not found")
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	resp := r.Run(context.Background(), Invocation{
		Tool:    Tool{Name: "sleeper", Command: "sleep", Args: []string{"30"}},
		Timeout: 100 * time.Millisecond,
	})
	assert.Equal(t, models.ToolStatusTimeout, resp.Status)
	assert.Contains(t, resp.Error, "timed out")
}

func TestRunError(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	resp := r.Run(context.Background(), Invocation{
		Tool:    Tool{Name: "failer", Command: "false"},
		Timeout: 10 * time.Second,
	})
	assert.Equal(t, models.ToolStatusError, resp.Status)
	require.NotNil(t, resp.ExitCode)
	assert.NotEqual(t, 0, *resp.ExitCode)
}

// scriptedRunner returns canned responses keyed by model.
type scriptedRunner struct {
	byModel map[string]models.ToolStatus
	calls   []string
}

func (s *scriptedRunner) Run(_ context.Context, inv Invocation) *models.ToolResponse {
	s.calls = append(s.calls, inv.Model)
	return &models.ToolResponse{
		ToolName: inv.Tool.Name,
		Model:    inv.Model,
		Status:   s.byModel[inv.Model],
	}
}

func TestRunWithModelFallback(t *testing.T) {
	r := &scriptedRunner{byModel: map[string]models.ToolStatus{
		"opus":   models.ToolStatusError,
		"sonnet": models.ToolStatusSuccess,
	}}
	tool := Tool{Name: "claude", Models: []string{"opus", "sonnet"}}

	resp := RunWithModelFallback(context.Background(), r, tool, "p", time.Second)
	assert.Equal(t, models.ToolStatusSuccess, resp.Status)
	assert.Equal(t, "sonnet", resp.Model)
	assert.Equal(t, []string{"opus", "sonnet"}, r.calls)
}

func TestRunWithModelFallbackTimeoutStops(t *testing.T) {
	r := &scriptedRunner{byModel: map[string]models.ToolStatus{
		"opus":   models.ToolStatusTimeout,
		"sonnet": models.ToolStatusSuccess,
	}}
	tool := Tool{Name: "claude", Models: []string{"opus", "sonnet"}}

	resp := RunWithModelFallback(context.Background(), r, tool, "p", time.Second)
	assert.Equal(t, models.ToolStatusTimeout, resp.Status)
	assert.Equal(t, []string{"opus"}, r.calls)
}

func TestRunWithModelFallbackNoModels(t *testing.T) {
	r := &scriptedRunner{byModel: map[string]models.ToolStatus{
		"": models.ToolStatusSuccess,
	}}
	resp := RunWithModelFallback(context.Background(), r, Tool{Name: "codex"}, "p", time.Second)
	assert.Equal(t, models.ToolStatusSuccess, resp.Status)
	assert.Equal(t, []string{""}, r.calls)
}
