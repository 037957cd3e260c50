package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/output"
	"github.com/mfalkner/arbiter/internal/parse"
)

var (
	consultTool    string
	consultModel   string
	consultKind    string
	consultSubject string
	consultFile    string
	consultTimeout int
	consultRaw     bool
)

var consultCmd = &cobra.Command{
	Use:   "consult [content]",
	Short: "Ask a review tool for a verdict",
	Long: `Ask an external review tool for a verdict on the given content.

Content comes from the argument, --file, or stdin. The tool is
auto-detected unless --tool names one explicitly. With --kind, routing
rules decide the strategy: kinds configured for auto-trigger fan out to
every enabled tool and aggregate a consensus, others walk the configured
single-tool fallback chain.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return consultRun(args)
	},
}

func init() {
	consultCmd.Flags().StringVarP(&consultTool, "tool", "t", "", "Tool to consult (claude, codex, gemini); auto-detects when empty")
	consultCmd.Flags().StringVarP(&consultModel, "model", "m", "", "Model override for the chosen tool")
	consultCmd.Flags().StringVarP(&consultKind, "kind", "k", "", "Review kind for routing (spec_review, diff_review, test_failure)")
	consultCmd.Flags().StringVarP(&consultSubject, "subject", "s", "", "Subject label for caching and history")
	consultCmd.Flags().StringVarP(&consultFile, "file", "f", "", "Read content from file instead of argument/stdin")
	consultCmd.Flags().IntVar(&consultTimeout, "timeout", 0, "Per-tool timeout in seconds (0 = configured default)")
	consultCmd.Flags().BoolVar(&consultRaw, "raw", false, "Print the raw tool output instead of the parsed review")
	rootCmd.AddCommand(consultCmd)
}

// readContent resolves review content from the arg, --file, or stdin.
func readContent(args []string) (string, error) {
	if consultFile != "" {
		data, err := os.ReadFile(consultFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", consultFile, err)
		}
		return string(data), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}

	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("no content: pass an argument, --file, or pipe to stdin")
}

func consultTimeoutDuration() time.Duration {
	if consultTimeout > 0 {
		return time.Duration(consultTimeout) * time.Second
	}
	return cfg.Timeout()
}

func consultRun(args []string) error {
	content, err := readContent(args)
	if err != nil {
		return err
	}

	o, err := getOrchestrator()
	if err != nil {
		return err
	}

	req := consult.Request{
		Prompt:  consult.BuildReviewPrompt(consultKind, consultSubject, content),
		Tool:    consultTool,
		Model:   consultModel,
		Timeout: consultTimeoutDuration(),
		CacheParams: map[string]string{
			"subject": consultSubject,
			"kind":    consultKind,
			"content": content,
		},
	}

	if dryRun {
		ui.DryRunMsg("Would consult tool=%q kind=%q subject=%q (%d bytes of content)",
			consultTool, consultKind, consultSubject, len(content))
		return nil
	}

	ctx := context.Background()
	start := time.Now()

	// A kind engages the routing table; otherwise it is a plain
	// single-tool consultation.
	if consultKind != "" && consultTool == "" {
		multi, err := o.Route(ctx, consultKind, req)
		if err != nil {
			return err
		}
		printMultiResult(multi)
		recordHistory(ctx, multi, time.Since(start))
		return nil
	}

	resp, err := o.Consult(ctx, req)
	if err != nil {
		return err
	}
	printSingleResponse(resp)
	recordSingleHistory(ctx, resp, time.Since(start))
	return nil
}

func printSingleResponse(resp *models.ToolResponse) {
	if !resp.OK() {
		ui.Error("%s: %s (%s)", resp.ToolName, resp.Status, resp.Error)
		return
	}

	if consultRaw {
		fmt.Fprintln(ui.Out, resp.Output)
		return
	}

	review := parse.Response(resp.Output)
	ui.Info("Tool: %s%s  (%s)", output.Cyan(resp.ToolName), modelSuffix(resp), resp.Duration.Round(time.Millisecond))
	fmt.Fprintf(ui.Out, "Verdict: %s\n", output.VerdictColor(string(review.Verdict)))

	printReviewBody(review)
}

func printReviewBody(review models.ParsedReview) {
	if len(review.Issues) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "Issues:")
		for _, ci := range parse.CategorizeIssues(review.Issues) {
			fmt.Fprintf(ui.Out, "  [%s] %s\n", output.SeverityColor(string(ci.Severity)), ci.Issue)
		}
	}
	if len(review.Recommendations) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "Recommendations:")
		for _, r := range review.Recommendations {
			fmt.Fprintf(ui.Out, "  - %s\n", r)
		}
	}
}

func modelSuffix(resp *models.ToolResponse) string {
	if resp.Model == "" {
		return ""
	}
	return " [" + resp.Model + "]"
}

// recordSingleHistory writes a single-tool consultation to history,
// best-effort.
func recordSingleHistory(ctx context.Context, resp *models.ToolResponse, elapsed time.Duration) {
	s, err := getHistory()
	if err != nil {
		ui.VerboseLog("history unavailable: %v", err)
		return
	}

	verdict := models.VerdictUnknown
	if resp.OK() {
		verdict = parse.Response(resp.Output).Verdict
	}

	c := &models.Consultation{
		Subject:  consultSubject,
		Kind:     models.ConsultationKindSingle,
		Tools:    []string{resp.ToolName},
		Verdict:  verdict,
		Duration: elapsed,
	}
	if err := s.RecordConsultation(ctx, c); err != nil {
		ui.VerboseLog("record history: %v", err)
	}
}

// recordHistory writes a multi-tool consultation to history, best-effort.
func recordHistory(ctx context.Context, multi *consult.MultiResult, elapsed time.Duration) {
	s, err := getHistory()
	if err != nil {
		ui.VerboseLog("history unavailable: %v", err)
		return
	}

	names := make([]string, 0, len(multi.Responses))
	for _, r := range multi.Responses {
		names = append(names, r.ToolName)
	}

	kind := models.ConsultationKindMulti
	if len(multi.Responses) == 1 {
		kind = models.ConsultationKindSingle
	}

	c := &models.Consultation{
		Subject:       consultSubject,
		Kind:          kind,
		Tools:         names,
		Verdict:       multi.Consensus.Verdict,
		AgreementRate: multi.Consensus.AgreementRate,
		CacheHit:      multi.CacheHit,
		Duration:      elapsed,
	}
	if err := s.RecordConsultation(ctx, c); err != nil {
		ui.VerboseLog("record history: %v", err)
	}
}

func printMultiResult(multi *consult.MultiResult) {
	if multi.CacheHit {
		ui.Info("Served from cache")
	}

	table := ui.Table([]string{"Tool", "Status", "Verdict", "Duration"})
	for i, r := range multi.Responses {
		verdict := "-"
		if r.OK() && i < len(multi.Consensus.Responses) {
			verdict = output.VerdictColor(string(multi.Consensus.Responses[i].Verdict))
		}
		table.Append([]string{
			output.Cyan(r.ToolName),
			string(r.Status),
			verdict,
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
	fmt.Fprintln(ui.Out)

	c := multi.Consensus
	if c.HasConsensus {
		ui.Success("Consensus: %s (agreement %s, %d failure(s))",
			output.VerdictColor(string(c.Verdict)), output.AgreementColor(c.AgreementRate), c.Failures)
	} else {
		ui.Warning("No consensus (top agreement %s, %d failure(s))",
			output.AgreementColor(c.AgreementRate), c.Failures)
	}

	printFrequency("Common issues", c.IssueFrequency)
	printFrequency("Common recommendations", c.RecommendationFrequency)

	if len(c.CategorizedIssues) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "Issues by severity:")
		for _, ci := range c.CategorizedIssues {
			fmt.Fprintf(ui.Out, "  [%s] %s\n", output.SeverityColor(string(ci.Severity)), ci.Issue)
		}
	}
}

func printFrequency(title string, entries []models.FrequencyEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s:\n", title)
	for _, e := range entries {
		fmt.Fprintf(ui.Out, "  %dx (%.0f%%) %s\n", e.Count, e.Percent, strings.TrimSpace(e.Text))
	}
}
