package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfalkner/arbiter/internal/cache"
	"github.com/mfalkner/arbiter/internal/config"
	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/store"
	"github.com/mfalkner/arbiter/internal/tools"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// fakeRunner returns scripted responses per tool name.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]*models.ToolResponse
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, inv tools.Invocation) *models.ToolResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv.Tool.Name)
	if resp, ok := f.responses[inv.Tool.Name]; ok {
		out := *resp
		out.ToolName = inv.Tool.Name
		return &out
	}
	return &models.ToolResponse{ToolName: inv.Tool.Name, Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}
}

// mockHistory implements store.Store in memory.
type mockHistory struct {
	rows    []*models.Consultation
	listErr error
}

func (m *mockHistory) RecordConsultation(_ context.Context, c *models.Consultation) error {
	m.rows = append(m.rows, c)
	return nil
}

func (m *mockHistory) GetConsultation(_ context.Context, id string) (*models.Consultation, error) {
	for _, c := range m.rows {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, assert.AnError
}

func (m *mockHistory) ListConsultations(_ context.Context, filter store.ConsultationFilter) ([]*models.Consultation, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Consultation
	for _, c := range m.rows {
		if filter.Subject != "" && c.Subject != filter.Subject {
			continue
		}
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		if filter.Verdict != "" && c.Verdict != filter.Verdict {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockHistory) PruneConsultations(_ context.Context, _ int) (int64, error) { return 0, nil }
func (m *mockHistory) Migrate(_ context.Context) error                            { return nil }
func (m *mockHistory) Close() error                                               { return nil }

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	srv     *Server
	runner  *fakeRunner
	cache   *cache.Manager
	history *mockHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()
	cfg, err := config.Load()
	require.NoError(t, err)

	reg := cfg.Registry()
	reg.LookPath = func(cmd string) (string, error) {
		return "/usr/local/bin/" + cmd, nil
	}

	cm, err := cache.New(t.TempDir())
	require.NoError(t, err)

	runner := &fakeRunner{responses: map[string]*models.ToolResponse{}}
	orch := consult.New(reg, runner, cm, cfg)
	hist := &mockHistory{}

	return &fixture{
		srv:     NewServer(orch, reg, cm, hist),
		runner:  runner,
		cache:   cm,
		history: hist,
	}
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	f := newFixture(t)
	require.NotNil(t, f.srv)
	require.NotNil(t, f.srv.MCPServer())
}

func TestHandleConsult(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{
		Status: models.ToolStatusSuccess,
		Output: "VERDICT: PASS\n\nISSUES:\n- minor naming nit\n",
	}

	req := callToolReq("arbiter_consult", map[string]any{"prompt": "review this", "tool": "claude"})
	result, err := f.srv.handleConsult(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "claude", out["tool"])
	assert.Equal(t, "pass", out["verdict"])
}

func TestHandleConsult_MissingPrompt(t *testing.T) {
	f := newFixture(t)

	result, err := f.srv.handleConsult(context.Background(), callToolReq("arbiter_consult", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	assert.True(t, result.IsError)
}

func TestHandleConsult_ToolErrorReported(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{
		Status: models.ToolStatusError,
		Error:  "exit status 2",
	}

	req := callToolReq("arbiter_consult", map[string]any{"prompt": "p", "tool": "claude"})
	result, err := f.srv.handleConsult(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError, "tool failure is data, not a handler error")

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "exit status 2", out["error"])
}

func TestHandleConsensus(t *testing.T) {
	f := newFixture(t)
	f.runner.responses["claude"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}
	f.runner.responses["codex"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: PASS"}
	f.runner.responses["gemini"] = &models.ToolResponse{Status: models.ToolStatusSuccess, Output: "VERDICT: FAIL"}

	req := callToolReq("arbiter_consensus", map[string]any{"prompt": "review this"})
	result, err := f.srv.handleConsensus(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out consult.MultiResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Len(t, out.Responses, 3)
	assert.True(t, out.Consensus.HasConsensus)
	assert.Equal(t, models.VerdictPass, out.Consensus.Verdict)
}

func TestHandleConsensus_MissingPrompt(t *testing.T) {
	f := newFixture(t)

	result, err := f.srv.handleConsensus(context.Background(), callToolReq("arbiter_consensus", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListTools(t *testing.T) {
	f := newFixture(t)

	result, err := f.srv.handleListTools(context.Background(), callToolReq("arbiter_list_tools", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 3)
	names := []string{}
	for _, row := range out {
		names = append(names, row["name"].(string))
		assert.Equal(t, true, row["available"])
	}
	assert.ElementsMatch(t, []string{"claude", "codex", "gemini"}, names)
}

func TestHandleCacheStats(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.Set("consult_abc", map[string]string{"v": "1"}, time.Hour, nil))

	result, err := f.srv.handleCacheStats(context.Background(), callToolReq("arbiter_cache_stats", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var stats cache.Stats
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestHandleCacheStats_NoCache(t *testing.T) {
	f := newFixture(t)
	f.srv.cache = nil

	result, err := f.srv.handleCacheStats(context.Background(), callToolReq("arbiter_cache_stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCacheClear(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.Set("consult_abc", map[string]string{"v": "1"}, time.Hour,
		map[string]string{"subject": "svc-a"}))
	require.NoError(t, f.cache.Set("consult_def", map[string]string{"v": "2"}, time.Hour,
		map[string]string{"subject": "svc-b"}))

	req := callToolReq("arbiter_cache_clear", map[string]any{"subject": "svc-a"})
	result, err := f.srv.handleCacheClear(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]int
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, 1, out["removed"])
}

func TestHandleHistory(t *testing.T) {
	f := newFixture(t)
	f.history.rows = []*models.Consultation{
		{ID: "1", Subject: "svc-a", Kind: models.ConsultationKindMulti, Verdict: models.VerdictPass, Tools: []string{"claude", "codex"}},
		{ID: "2", Subject: "svc-b", Kind: models.ConsultationKindSingle, Verdict: models.VerdictFail, Tools: []string{"claude"}},
	}

	req := callToolReq("arbiter_history", map[string]any{"subject": "svc-a"})
	result, err := f.srv.handleHistory(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "svc-a", out[0]["subject"])
	assert.Equal(t, "pass", out[0]["verdict"])
}

func TestHandleHistory_NoStore(t *testing.T) {
	f := newFixture(t)
	f.srv.history = nil

	result, err := f.srv.handleHistory(context.Background(), callToolReq("arbiter_history", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestParseTimeout(t *testing.T) {
	assert.Equal(t, int64(0), int64(parseTimeout("")))
	assert.Equal(t, int64(0), int64(parseTimeout("abc")))
	assert.Equal(t, int64(0), int64(parseTimeout("-5")))
	assert.Equal(t, int64(30_000_000_000), int64(parseTimeout("30")))
}
