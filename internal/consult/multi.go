package consult

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mfalkner/arbiter/internal/cache"
	"github.com/mfalkner/arbiter/internal/consensus"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/parse"
	"github.com/mfalkner/arbiter/internal/tools"
)

// MultiResult is the outcome of a multi-tool consultation: every tool's
// response (successes and failures both) plus the aggregated consensus.
type MultiResult struct {
	Responses []models.ToolResponse  `json:"responses"`
	Consensus models.ConsensusResult `json:"consensus"`
	CacheHit  bool                   `json:"cache_hit"`
}

// ConsultAll fans out the request to every enabled and available consensus
// agent concurrently, waits for all of them, and aggregates the parsed
// reviews. A failing tool does not abort the batch. On a cache hit the fan
// out is skipped entirely; fresh results are written back best-effort.
func (o *Orchestrator) ConsultAll(ctx context.Context, req Request) (*MultiResult, error) {
	selected := o.selectAgents()
	if len(selected) == 0 {
		return nil, noTools("no consensus agents enabled and available")
	}

	key := cache.ConsultKey(req.CacheParams)
	if o.cacheEnabled() && key != "" {
		if raw, ok := o.cache.Get(key); ok {
			var cached MultiResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.CacheHit = true
				return &cached, nil
			}
			o.logf("consult cache entry unreadable, re-consulting: %s", key)
		}
	}

	// Fan out: one goroutine per tool, each with its own independent
	// timeout. Synchronize on all of them before aggregating.
	responses := make([]models.ToolResponse, len(selected))
	var wg sync.WaitGroup
	for i, tool := range selected {
		wg.Add(1)
		go func(i int, tool tools.Tool) {
			defer wg.Done()
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
			responses[i] = *resp
		}(i, tool)
	}
	wg.Wait()

	result := &MultiResult{Responses: responses}
	result.Consensus = aggregate(responses, o.cfg.Consensus.MinAgreement)

	if o.cacheEnabled() && key != "" {
		meta := cacheMetadata(req.CacheParams)
		if err := o.cache.Set(key, result, o.cfg.Cache.TTL(), meta); err != nil {
			o.logf("consult cache write failed: %v", err)
		}
	}
	return result, nil
}

// selectAgents computes the enabled-and-available consensus agent set,
// restricted to the configured agent list when one is set.
func (o *Orchestrator) selectAgents() []tools.Tool {
	candidates := o.cfg.Consensus.Agents
	if len(candidates) == 0 {
		candidates = o.registry.AvailableEnabled()
	}

	var selected []tools.Tool
	for _, name := range candidates {
		if !o.registry.IsAvailable(name) {
			continue
		}
		if tool, ok := o.registry.Lookup(name); ok {
			selected = append(selected, tool)
		}
	}
	return selected
}

func (o *Orchestrator) cacheEnabled() bool {
	return o.cache != nil && o.cfg.Cache.Enabled
}

// aggregate parses every response and computes consensus. Tools that
// errored or timed out contribute an Unknown review, which the consensus
// engine counts as a failure rather than a voter.
func aggregate(responses []models.ToolResponse, minAgreement int) models.ConsensusResult {
	reviews := make([]models.ParsedReview, len(responses))
	for i, resp := range responses {
		if resp.Status == models.ToolStatusSuccess {
			reviews[i] = parse.Response(resp.Output)
		} else {
			reviews[i] = models.ParsedReview{
				Verdict:         models.VerdictUnknown,
				Issues:          []string{},
				Recommendations: []string{},
			}
		}
	}
	return consensus.Detect(reviews, minAgreement)
}

// singleResult adapts one tool response into the MultiResult shape so Route
// has a uniform return type.
func singleResult(resp *models.ToolResponse, minAgreement int) *MultiResult {
	responses := []models.ToolResponse{*resp}
	return &MultiResult{
		Responses: responses,
		Consensus: aggregate(responses, minAgreement),
	}
}

// cacheMetadata extracts the metadata fields used for filtered bulk
// deletion from the request's cache-key parameters.
func cacheMetadata(params map[string]string) map[string]string {
	meta := map[string]string{}
	if v := params["subject"]; v != "" {
		meta["subject"] = v
	}
	if v := params["kind"]; v != "" {
		meta["kind"] = v
	}
	if v := params["model"]; v != "" {
		meta["model"] = v
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
