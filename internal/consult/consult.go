// Package consult is the top-level consultation orchestrator: tool
// selection, single-tool fallback chains, parallel multi-tool fan-out,
// cache lookup and population, and the routing rules that decide when
// multi-agent consensus auto-triggers.
package consult

import (
	"context"
	"time"

	"github.com/mfalkner/arbiter/internal/cache"
	"github.com/mfalkner/arbiter/internal/config"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/tools"
)

// Request describes one logical consultation. Immutable once constructed.
type Request struct {
	// Prompt is the full text sent to the tool.
	Prompt string
	// Tool names an explicit tool, or "auto"/"" for auto-detection.
	Tool string
	// Model is an optional model hint overriding the tool's priority list.
	Model string
	// Timeout is the per-invocation wall-clock limit.
	Timeout time.Duration
	// CacheParams are named strings (subject, scope, target, ...) used to
	// derive a cache key for multi-tool consultations.
	CacheParams map[string]string
}

// Orchestrator wires the registry, runner, cache, and routing config.
type Orchestrator struct {
	registry *tools.Registry
	runner   tools.Runner
	cache    *cache.Manager
	cfg      *config.Config

	// Logf, when set, receives diagnostics for swallowed cache failures.
	Logf func(format string, a ...any)
}

// New creates an Orchestrator. The cache manager may be nil to disable
// caching entirely.
func New(reg *tools.Registry, runner tools.Runner, c *cache.Manager, cfg *config.Config) *Orchestrator {
	return &Orchestrator{registry: reg, runner: runner, cache: c, cfg: cfg}
}

func (o *Orchestrator) logf(format string, a ...any) {
	if o.Logf != nil {
		o.Logf(format, a...)
	}
}

// resolveTool picks the tool for a single consultation: auto-detection
// takes the first enabled tool on PATH, an explicit name must be available.
func (o *Orchestrator) resolveTool(name string) (tools.Tool, error) {
	if name == "" || name == "auto" {
		first, ok := o.registry.FirstAvailable()
		if !ok {
			return tools.Tool{}, noTools("no enabled tool found on PATH")
		}
		name = first
	} else if !o.registry.IsAvailable(name) {
		return tools.Tool{}, noTools("tool not available: " + name)
	}

	tool, ok := o.registry.Lookup(name)
	if !ok {
		return tools.Tool{}, noTools("tool not configured: " + name)
	}
	return tool, nil
}

// Consult runs a single-tool consultation. A Timeout status becomes
// ErrConsultationTimeout; Error and NotFound statuses are valid outcomes
// returned to the caller, not errors.
func (o *Orchestrator) Consult(ctx context.Context, req Request) (*models.ToolResponse, error) {
	tool, err := o.resolveTool(req.Tool)
	if err != nil {
		return nil, err
	}
	return o.runTool(ctx, tool, req)
}

// ConsultOutcome is Consult with the result folded into a tagged Outcome.
func (o *Orchestrator) ConsultOutcome(ctx context.Context, req Request) Outcome {
	return classifyOutcome(o.Consult(ctx, req))
}

// ConsultWithFallback tries the (primary, fallback) pair configured for the
// failure kind, sequentially. The fallback runs only when the primary's
// response is not usable; a primary timeout still falls through to the
// fallback tool before the chain gives up.
func (o *Orchestrator) ConsultWithFallback(ctx context.Context, kind string, req Request) (*models.ToolResponse, error) {
	chain := o.cfg.Routing.Fallbacks[kind]
	if len(chain) == 0 {
		// No configured chain: behave like a plain auto consult.
		return o.Consult(ctx, req)
	}

	var lastErr error
	var lastResp *models.ToolResponse
	for _, name := range chain {
		if !o.registry.IsAvailable(name) {
			lastErr = noTools("tool not available: " + name)
			continue
		}
		tool, ok := o.registry.Lookup(name)
		if !ok {
			continue
		}
		resp, err := o.runTool(ctx, tool, req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.OK() {
			return resp, nil
		}
		// Keep the non-success response in case every chain entry fails:
		// Error and NotFound are outcomes for the caller, not setup errors.
		lastResp = resp
	}

	if lastResp != nil {
		return lastResp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, noTools("no tool in fallback chain produced a response")
}

// runTool executes one invocation, honoring the request's model hint or the
// tool's model-priority list.
func (o *Orchestrator) runTool(ctx context.Context, tool tools.Tool, req Request) (*models.ToolResponse, error) {
	var resp *models.ToolResponse
	if req.Model != "" {
		resp = o.runner.Run(ctx, tools.Invocation{
			Tool:    tool,
			Prompt:  req.Prompt,
			Model:   req.Model,
			Timeout: req.Timeout,
		})
	} else {
		resp = tools.RunWithModelFallback(ctx, o.runner, tool, req.Prompt, req.Timeout)
	}

	if resp.Status == models.ToolStatusTimeout {
		return nil, timedOut(tool.Name)
	}
	return resp, nil
}

// AutoTriggers reports whether multi-agent consensus auto-triggers for the
// given failure kind.
func (o *Orchestrator) AutoTriggers(kind string) bool {
	return o.cfg.Routing.AutoTrigger[kind]
}

// Route dispatches by failure kind: kinds configured for auto-trigger run
// the full multi-agent consensus, everything else runs the single-tool
// fallback chain. The returned MultiResult has a single response in the
// fallback case.
func (o *Orchestrator) Route(ctx context.Context, kind string, req Request) (*MultiResult, error) {
	if o.AutoTriggers(kind) {
		return o.ConsultAll(ctx, req)
	}

	resp, err := o.ConsultWithFallback(ctx, kind, req)
	if err != nil {
		return nil, err
	}
	return singleResult(resp, o.cfg.Consensus.MinAgreement), nil
}
