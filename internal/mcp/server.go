package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfalkner/arbiter/internal/cache"
	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/parse"
	"github.com/mfalkner/arbiter/internal/store"
	"github.com/mfalkner/arbiter/internal/tools"
)

// Server wraps the consultation layer and exposes it as MCP tools, so a
// coding agent can ask for second opinions without shelling out itself.
type Server struct {
	orch     *consult.Orchestrator
	registry *tools.Registry
	cache    *cache.Manager
	history  store.Store
}

// NewServer creates the MCP server wrapper. The cache manager and history
// store may be nil; the corresponding tools then report unavailability.
func NewServer(o *consult.Orchestrator, reg *tools.Registry, cm *cache.Manager, hist store.Store) *Server {
	return &Server{
		orch:     o,
		registry: reg,
		cache:    cm,
		history:  hist,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("arbiter", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.consultTool())
	srv.AddTool(s.consensusTool())
	srv.AddTool(s.reviewFilesTool())
	srv.AddTool(s.listToolsTool())
	srv.AddTool(s.cacheStatsTool())
	srv.AddTool(s.cacheClearTool())
	srv.AddTool(s.historyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// arbiter_consult
func (s *Server) consultTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_consult",
		mcp.WithDescription("Ask a single external review tool for a verdict on the given prompt. Returns the raw response plus the parsed verdict, issues, and recommendations as JSON."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Full prompt text to send")),
		mcp.WithString("tool", mcp.Description("Tool name (claude, codex, gemini); auto-detects when omitted")),
		mcp.WithString("model", mcp.Description("Model override for the chosen tool")),
		mcp.WithString("timeout_seconds", mcp.Description("Per-invocation timeout in seconds")),
	)
	return tool, s.handleConsult
}

func (s *Server) handleConsult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: prompt"), nil
	}

	req := consult.Request{
		Prompt:  prompt,
		Tool:    request.GetString("tool", ""),
		Model:   request.GetString("model", ""),
		Timeout: parseTimeout(request.GetString("timeout_seconds", "")),
	}

	resp, err := s.orch.Consult(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("consultation failed: %v", err)), nil
	}

	result := map[string]any{
		"tool":        resp.ToolName,
		"status":      string(resp.Status),
		"model":       resp.Model,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if resp.OK() {
		review := parse.Response(resp.Output)
		result["verdict"] = string(review.Verdict)
		result["issues"] = review.Issues
		result["recommendations"] = review.Recommendations
		result["output"] = resp.Output
	} else {
		result["error"] = resp.Error
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// arbiter_consensus
func (s *Server) consensusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_consensus",
		mcp.WithDescription("Fan the prompt out to every enabled review tool in parallel and aggregate the verdicts into a consensus. Returns per-tool responses, the majority verdict, agreement rate, and issue frequency tables as JSON."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Full prompt text to send")),
		mcp.WithString("subject", mcp.Description("Subject label used for the cache key")),
		mcp.WithString("timeout_seconds", mcp.Description("Per-tool timeout in seconds")),
	)
	return tool, s.handleConsensus
}

func (s *Server) handleConsensus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: prompt"), nil
	}

	req := consult.Request{
		Prompt:  prompt,
		Timeout: parseTimeout(request.GetString("timeout_seconds", "")),
	}
	if subject := request.GetString("subject", ""); subject != "" {
		req.CacheParams = map[string]string{
			"subject": subject,
			"kind":    "consensus",
			"prompt":  prompt,
		}
	}

	multi, err := s.orch.ConsultAll(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("consensus failed: %v", err)), nil
	}

	data, err := json.Marshal(multi)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// arbiter_review_files
func (s *Server) reviewFilesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_review_files",
		mcp.WithDescription("Incrementally review a set of files: only files whose content changed since the last review of this subject are re-consulted, unchanged files are served from the previous run. Returns per-file reviews and the change summary as JSON."),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Stable label for this review series, e.g. a project or branch name")),
		mcp.WithString("paths", mcp.Required(), mcp.Description("Comma-separated list of file paths to review")),
		mcp.WithString("tool", mcp.Description("Tool name; auto-detects when omitted")),
		mcp.WithString("timeout_seconds", mcp.Description("Per-file timeout in seconds")),
	)
	return tool, s.handleReviewFiles
}

func (s *Server) handleReviewFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := request.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: subject"), nil
	}
	pathsArg, err := request.RequireString("paths")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: paths"), nil
	}

	var paths []string
	for _, p := range strings.Split(pathsArg, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return mcp.NewToolResultError("paths must name at least one file"), nil
	}

	req := consult.Request{
		Tool:    request.GetString("tool", ""),
		Timeout: parseTimeout(request.GetString("timeout_seconds", "")),
	}

	result, err := s.orch.ReviewFiles(ctx, subject, paths, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("file review failed: %v", err)), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// arbiter_list_tools
func (s *Server) listToolsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_list_tools",
		mcp.WithDescription("List the configured review tools with their enabled state, PATH availability, and model priority lists. Returns a JSON array."),
	)
	return tool, s.handleListTools
}

func (s *Server) handleListTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type toolOut struct {
		Name      string   `json:"name"`
		Command   string   `json:"command"`
		Enabled   bool     `json:"enabled"`
		Available bool     `json:"available"`
		Models    []string `json:"models,omitempty"`
	}

	var out []toolOut
	for _, t := range s.registry.All() {
		out = append(out, toolOut{
			Name:      t.Name,
			Command:   t.Command,
			Enabled:   s.registry.IsEnabled(t.Name),
			Available: s.registry.IsAvailable(t.Name),
			Models:    t.Models,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal tools: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// arbiter_cache_stats
func (s *Server) cacheStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_cache_stats",
		mcp.WithDescription("Report consultation cache statistics: total, active, and expired entries plus total bytes on disk."),
	)
	return tool, s.handleCacheStats
}

func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.cache == nil {
		return mcp.NewToolResultError("cache is disabled"), nil
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read cache: %v", err)), nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// arbiter_cache_clear
func (s *Server) cacheClearTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_cache_clear",
		mcp.WithDescription("Clear cached consultations. With no filters every entry is removed; with a subject or kind filter only matching entries are removed."),
		mcp.WithString("subject", mcp.Description("Only clear entries recorded for this subject")),
		mcp.WithString("kind", mcp.Description("Only clear entries of this kind, e.g. consensus or filehash")),
	)
	return tool, s.handleCacheClear
}

func (s *Server) handleCacheClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.cache == nil {
		return mcp.NewToolResultError("cache is disabled"), nil
	}
	filter := cache.Filter{
		Subject: request.GetString("subject", ""),
		Kind:    request.GetString("kind", ""),
	}
	removed, err := s.cache.Clear(filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	data, _ := json.Marshal(map[string]any{"removed": removed})
	return mcp.NewToolResultText(string(data)), nil
}

// arbiter_history
func (s *Server) historyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arbiter_history",
		mcp.WithDescription("List past consultations recorded in history, newest first. Returns a JSON array with subject, kind, tools, verdict, agreement rate, and timing."),
		mcp.WithString("subject", mcp.Description("Filter by subject")),
		mcp.WithString("kind", mcp.Description("Filter by kind: single, multi, synthesis")),
		mcp.WithString("verdict", mcp.Description("Filter by verdict: pass, fail, partial, unknown")),
		mcp.WithString("limit", mcp.Description("Maximum rows to return (default 20)")),
	)
	return tool, s.handleHistory
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("history store is not configured"), nil
	}

	limit := 20
	if raw := request.GetString("limit", ""); raw != "" {
		if n, err := parseInt(raw); err == nil && n > 0 {
			limit = n
		}
	}

	filter := store.ConsultationFilter{
		Subject: request.GetString("subject", ""),
		Kind:    models.ConsultationKind(request.GetString("kind", "")),
		Verdict: models.Verdict(request.GetString("verdict", "")),
		Limit:   limit,
	}

	rows, err := s.history.ListConsultations(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list history: %v", err)), nil
	}

	type rowOut struct {
		ID            string   `json:"id"`
		Subject       string   `json:"subject"`
		Kind          string   `json:"kind"`
		Tools         []string `json:"tools"`
		Verdict       string   `json:"verdict"`
		AgreementRate float64  `json:"agreement_rate"`
		CacheHit      bool     `json:"cache_hit"`
		DurationMS    int64    `json:"duration_ms"`
		CreatedAt     string   `json:"created_at"`
	}

	out := make([]rowOut, len(rows))
	for i, c := range rows {
		out[i] = rowOut{
			ID:            c.ID,
			Subject:       c.Subject,
			Kind:          string(c.Kind),
			Tools:         c.Tools,
			Verdict:       string(c.Verdict),
			AgreementRate: c.AgreementRate,
			CacheHit:      c.CacheHit,
			DurationMS:    c.Duration.Milliseconds(),
			CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal history: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseTimeout(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	n, err := parseInt(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func parseInt(raw string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &n)
	return n, err
}
