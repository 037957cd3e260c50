package consult

import (
	"context"
	"fmt"
	"time"

	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/parse"
	"github.com/mfalkner/arbiter/internal/tools"
)

// ToolCaller adapts a configured tool to the consensus.Caller interface for
// narrative synthesis. One attempt only: the orchestrator's single-consult
// path runs once per Call, and the synthesizer never retries.
type ToolCaller struct {
	o       *Orchestrator
	tool    string
	model   string
	timeout time.Duration
}

// SynthesisCaller builds a ToolCaller from the configured synthesis tool.
func (o *Orchestrator) SynthesisCaller() *ToolCaller {
	syn := o.cfg.Consensus.Synthesis
	return &ToolCaller{
		o:       o,
		tool:    syn.Tool,
		model:   syn.Model,
		timeout: o.cfg.Timeout(),
	}
}

// Call runs the synthesis prompt through the configured tool and returns
// the unwrapped text. The invocation is pinned to a single runner call so
// a tool with a model-priority list cannot turn one failed synthesis into
// several.
func (c *ToolCaller) Call(ctx context.Context, prompt string) (string, error) {
	tool, err := c.o.resolveTool(c.tool)
	if err != nil {
		return "", err
	}

	model := c.model
	if model == "" {
		model = tool.DefaultModel()
	}

	resp := c.o.runner.Run(ctx, tools.Invocation{
		Tool:    tool,
		Prompt:  prompt,
		Model:   model,
		Timeout: c.timeout,
	})
	if resp.Status == models.ToolStatusTimeout {
		return "", timedOut(tool.Name)
	}
	if !resp.OK() {
		return "", fmt.Errorf("synthesis tool %s: %s", resp.ToolName, resp.Error)
	}
	return parse.Unwrap(resp.Output), nil
}
