package consult

import (
	"context"
	"os/exec"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfalkner/arbiter/internal/cache"
	"github.com/mfalkner/arbiter/internal/config"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/tools"
)

// fakeRunner returns scripted responses per tool name and records calls.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]*models.ToolResponse
	calls     []string
	models    []string
}

func (f *fakeRunner) Run(_ context.Context, inv tools.Invocation) *models.ToolResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv.Tool.Name)
	f.models = append(f.models, inv.Model)
	if resp, ok := f.responses[inv.Tool.Name]; ok {
		out := *resp
		out.ToolName = inv.Tool.Name
		return &out
	}
	return &models.ToolResponse{ToolName: inv.Tool.Name, Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}
}

func (f *fakeRunner) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeRunner) modelHints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.models...)
}

type fixture struct {
	orch   *Orchestrator
	runner *fakeRunner
	cache  *cache.Manager
	cfg    *config.Config
}

// newFixture builds an orchestrator whose three default tools are all "on
// PATH" except those named in unavailable.
func newFixture(t *testing.T, unavailable ...string) *fixture {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()
	cfg, err := config.Load()
	require.NoError(t, err)

	reg := cfg.Registry()
	down := map[string]bool{}
	for _, name := range unavailable {
		down[name] = true
	}
	reg.LookPath = func(cmd string) (string, error) {
		if down[cmd] {
			return "", exec.ErrNotFound
		}
		return "/usr/local/bin/" + cmd, nil
	}

	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	runner := &fakeRunner{responses: map[string]*models.ToolResponse{}}
	return &fixture{
		orch:   New(reg, runner, c, cfg),
		runner: runner,
		cache:  c,
		cfg:    cfg,
	}
}

func TestConsultAutoDetect(t *testing.T) {
	f := newFixture(t, "claude")

	resp, err := f.orch.Consult(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	// claude is unavailable, codex is the first enabled tool on PATH.
	assert.Equal(t, "codex", resp.ToolName)
}

func TestConsultExplicitUnavailable(t *testing.T) {
	f := newFixture(t, "gemini")

	_, err := f.orch.Consult(context.Background(), Request{Prompt: "p", Tool: "gemini"})
	assert.ErrorIs(t, err, ErrNoToolsAvailable)
}

func TestConsultNoneAvailable(t *testing.T) {
	f := newFixture(t, "claude", "codex", "gemini")

	_, err := f.orch.Consult(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoToolsAvailable)
}

func TestConsultTimeoutRaises(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusTimeout}

	_, err := f.orch.Consult(context.Background(), Request{Prompt: "p", Tool: "claude"})
	assert.ErrorIs(t, err, ErrConsultationTimeout)
}

func TestConsultErrorStatusIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "boom"}

	resp, err := f.orch.Consult(context.Background(), Request{Prompt: "p", Tool: "claude", Model: "opus"})
	require.NoError(t, err)
	assert.Equal(t, models.ToolStatusError, resp.Status)
	assert.Equal(t, "boom", resp.Error)
}

func TestConsultOutcomeTags(t *testing.T) {
	f := newFixture(t)

	out := f.orch.ConsultOutcome(context.Background(), Request{Prompt: "p", Tool: "claude"})
	assert.Equal(t, OutcomeSuccess, out.Kind)
	require.NotNil(t, out.Response)

	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusTimeout}
	out = f.orch.ConsultOutcome(context.Background(), Request{Prompt: "p", Tool: "claude"})
	assert.Equal(t, OutcomeTimedOut, out.Kind)

	out = f.orch.ConsultOutcome(context.Background(), Request{Prompt: "p", Tool: "nonexistent"})
	assert.Equal(t, OutcomeUnavailable, out.Kind)
}

func TestFallbackChainSequential(t *testing.T) {
	f := newFixture(t)
	// test_failure chain is (claude, gemini); claude fails, gemini passes.
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "down"}

	resp, err := f.orch.ConsultWithFallback(context.Background(), "test_failure", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.ToolName)
	assert.Equal(t, []string{"claude", "gemini"}, f.runner.callNames())
}

func TestFallbackPrimarySufficient(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orch.ConsultWithFallback(context.Background(), "test_failure", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "claude", resp.ToolName)
	assert.Equal(t, []string{"claude"}, f.runner.callNames())
}

func TestFallbackBothFailReturnsLastResponse(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "a"}
	f.runner.responses["gemini"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "b"}

	resp, err := f.orch.ConsultWithFallback(context.Background(), "test_failure", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.ToolName)
	assert.Equal(t, "b", resp.Error)
}

func TestFallbackKeepsResponseWhenFallbackUnavailable(t *testing.T) {
	// test_failure chain is (claude, gemini); claude answers with an error
	// status and gemini is off PATH. The caller gets claude's response, not
	// a no-tools error.
	f := newFixture(t, "gemini")
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "down"}

	resp, err := f.orch.ConsultWithFallback(context.Background(), "test_failure", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "claude", resp.ToolName)
	assert.Equal(t, models.ToolStatusError, resp.Status)
	assert.Equal(t, []string{"claude"}, f.runner.callNames())
}

func TestConsultAllFanOut(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: FAIL\n\nISSUES:\n- shared problem"}
	f.runner.responses["codex"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: FAIL\n\nISSUES:\n- shared problem"}
	f.runner.responses["gemini"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}

	result, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	require.Len(t, result.Responses, 3)
	assert.False(t, result.CacheHit)

	assert.True(t, result.Consensus.HasConsensus)
	assert.Equal(t, models.VerdictFail, result.Consensus.Verdict)
	assert.InDelta(t, 2.0/3.0, result.Consensus.AgreementRate, 1e-9)

	require.NotEmpty(t, result.Consensus.IssueFrequency)
	assert.Equal(t, "shared problem", result.Consensus.IssueFrequency[0].Text)
	assert.Equal(t, 2, result.Consensus.IssueFrequency[0].Count)
}

func TestConsultAllFailingToolDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}
	f.runner.responses["codex"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}
	f.runner.responses["gemini"] = &models.ToolResponse{Status: models.ToolStatusTimeout, Error: "slow"}

	result, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	require.Len(t, result.Responses, 3)

	// The timed-out tool is a failure in the consensus, not an abort.
	assert.Equal(t, 1, result.Consensus.Failures)
	assert.True(t, result.Consensus.HasConsensus)
	assert.InDelta(t, 1.0, result.Consensus.AgreementRate, 1e-9)
}

func TestConsultAllNoneAvailable(t *testing.T) {
	f := newFixture(t, "claude", "codex", "gemini")

	_, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoToolsAvailable)
}

func TestConsultAllCacheRoundTrip(t *testing.T) {
	f := newFixture(t)
	params := map[string]string{"subject": "spec-1", "kind": "spec_review"}

	first, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p", Model: "m", CacheParams: params})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	firstCalls := len(f.runner.callNames())

	second, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p", Model: "m", CacheParams: params})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	// No additional tool invocations on a cache hit.
	assert.Len(t, f.runner.callNames(), firstCalls)
	assert.Equal(t, first.Consensus.Verdict, second.Consensus.Verdict)
}

func TestConsultAllCacheDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Cache.Enabled = false
	params := map[string]string{"subject": "spec-1"}

	_, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p", Model: "m", CacheParams: params})
	require.NoError(t, err)
	second, err := f.orch.ConsultAll(context.Background(), Request{Prompt: "p", Model: "m", CacheParams: params})
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
}

func TestRouteAutoTrigger(t *testing.T) {
	f := newFixture(t)

	// spec_review auto-triggers consensus over all three agents.
	result, err := f.orch.Route(context.Background(), "spec_review", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Len(t, result.Responses, 3)

	// test_failure routes to the single-tool fallback chain.
	f.runner.calls = nil
	result, err = f.orch.Route(context.Background(), "test_failure", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Len(t, result.Responses, 1)
	assert.Equal(t, []string{"claude"}, f.runner.callNames())
}

func TestRouteOverride(t *testing.T) {
	f := newFixture(t)
	f.cfg.Routing.AutoTrigger["test_failure"] = true

	result, err := f.orch.Route(context.Background(), "test_failure", Request{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	assert.Len(t, result.Responses, 3)
}

func TestSynthesisCallerOneAttempt(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "## Overall Assessment\n- **Consensus Score**: 8.0/10\n"}

	caller := f.orch.SynthesisCaller()
	out, err := caller.Call(context.Background(), "synthesize this")
	require.NoError(t, err)
	assert.Contains(t, out, "Consensus Score")
	assert.Equal(t, []string{"claude"}, f.runner.callNames())
}

func TestSynthesisCallerSingleAttemptWithModelList(t *testing.T) {
	f := newFixture(t)
	def := f.cfg.ToolDefs["claude"]
	def.Models = []string{"sonnet", "haiku"}
	f.cfg.ToolDefs["claude"] = def
	reg := f.cfg.Registry()
	reg.LookPath = func(cmd string) (string, error) { return "/usr/local/bin/" + cmd, nil }
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "no quota"}

	o := New(reg, f.runner, f.cache, f.cfg)
	_, err := o.SynthesisCaller().Call(context.Background(), "synthesize")
	require.Error(t, err)
	// A failed synthesis must not walk the model-priority list.
	assert.Equal(t, []string{"claude"}, f.runner.callNames())
	assert.Equal(t, []string{"sonnet"}, f.runner.modelHints())
}

func TestSynthesisCallerFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusError, Error: "no quota"}

	_, err := f.orch.SynthesisCaller().Call(context.Background(), "synthesize")
	require.Error(t, err)
	assert.Equal(t, []string{"claude"}, f.runner.callNames())
}
