package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/mfalkner/arbiter/internal/models"
)

// DefaultTimeout is the per-invocation wall-clock limit when the request
// does not specify one.
const DefaultTimeout = 120 * time.Second

// Invocation describes one tool call.
type Invocation struct {
	Tool    Tool
	Prompt  string
	Model   string
	Timeout time.Duration
}

// Runner executes a single blocking tool invocation. Implementations never
// return an error: every outcome, including timeouts and missing binaries,
// is classified in the ToolResponse status.
type Runner interface {
	Run(ctx context.Context, inv Invocation) *models.ToolResponse
}

// ExecRunner runs tools as subprocesses. The prompt is written to stdin;
// exceeding the timeout forcibly terminates the process.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the invocation and classifies the outcome.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) *models.ToolResponse {
	resp := &models.ToolResponse{
		ToolName: inv.Tool.Name,
		Model:    inv.Model,
	}

	if _, err := exec.LookPath(inv.Tool.Command); err != nil {
		resp.Status = models.ToolStatusNotFound
		resp.Error = "command not found: " + inv.Tool.Command
		return resp
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{}, inv.Tool.Args...)
	if inv.Model != "" && inv.Tool.ModelFlag != "" {
		args = append(args, inv.Tool.ModelFlag, inv.Model)
	}

	cmd := exec.CommandContext(runCtx, inv.Tool.Command, args...)
	cmd.Stdin = strings.NewReader(inv.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	resp.Duration = time.Since(start)
	resp.Output = stdout.String()

	if runCtx.Err() == context.DeadlineExceeded {
		resp.Status = models.ToolStatusTimeout
		resp.Error = "timed out after " + timeout.String()
		return resp
	}

	if err != nil {
		resp.Status = models.ToolStatusError
		resp.Error = strings.TrimSpace(stderr.String())
		if resp.Error == "" {
			resp.Error = err.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			resp.ExitCode = &code
		}
		return resp
	}

	resp.Status = models.ToolStatusSuccess
	code := 0
	resp.ExitCode = &code
	return resp
}

// RunWithModelFallback tries the tool's model-priority list in order,
// returning the first successful response. A timeout stops the chain (the
// budget is spent); other failures advance to the next model. With no
// models configured it runs once with no model hint.
func RunWithModelFallback(ctx context.Context, r Runner, tool Tool, prompt string, timeout time.Duration) *models.ToolResponse {
	modelsToTry := tool.Models
	if len(modelsToTry) == 0 {
		modelsToTry = []string{""}
	}

	var last *models.ToolResponse
	for _, model := range modelsToTry {
		last = r.Run(ctx, Invocation{Tool: tool, Prompt: prompt, Model: model, Timeout: timeout})
		if last.Status == models.ToolStatusSuccess || last.Status == models.ToolStatusTimeout {
			return last
		}
	}
	return last
}
