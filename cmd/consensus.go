package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfalkner/arbiter/internal/consensus"
	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/llm"
	"github.com/mfalkner/arbiter/internal/output"
)

var (
	consensusSubject    string
	consensusFile       string
	consensusKind       string
	consensusTimeout    int
	consensusSynthesize bool
)

var consensusCmd = &cobra.Command{
	Use:   "consensus [content]",
	Short: "Fan out to all review tools and aggregate a consensus",
	Long: `Send the content to every enabled review tool in parallel, wait for
all of them, and aggregate the verdicts into a majority consensus with
issue and recommendation frequency tables.

With --synthesize, a single extra call to the configured synthesis
backend turns the raw opinions into a narrative assessment with a
consensus score and tiered issue list. Synthesis failure falls back to
the statistical consensus; it is never retried.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return consensusRun(args)
	},
}

func init() {
	consensusCmd.Flags().StringVarP(&consensusSubject, "subject", "s", "", "Subject label for caching and history")
	consensusCmd.Flags().StringVarP(&consensusFile, "file", "f", "", "Read content from file instead of argument/stdin")
	consensusCmd.Flags().StringVarP(&consensusKind, "kind", "k", "", "Review kind included in the prompt")
	consensusCmd.Flags().IntVar(&consensusTimeout, "timeout", 0, "Per-tool timeout in seconds (0 = configured default)")
	consensusCmd.Flags().BoolVar(&consensusSynthesize, "synthesize", false, "Add a narrative synthesis pass over the raw opinions")
	rootCmd.AddCommand(consensusCmd)
}

func consensusRun(args []string) error {
	consultFile = consensusFile
	content, err := readContent(args)
	if err != nil {
		return err
	}

	o, err := getOrchestrator()
	if err != nil {
		return err
	}

	timeout := cfg.Timeout()
	if consensusTimeout > 0 {
		timeout = time.Duration(consensusTimeout) * time.Second
	}

	req := consult.Request{
		Prompt:  consult.BuildReviewPrompt(consensusKind, consensusSubject, content),
		Timeout: timeout,
		CacheParams: map[string]string{
			"subject": consensusSubject,
			"kind":    consensusKind,
			"content": content,
		},
	}

	if dryRun {
		ui.DryRunMsg("Would fan out to %d agent(s) for subject %q", len(cfg.Consensus.Agents), consensusSubject)
		return nil
	}

	ctx := context.Background()
	start := time.Now()

	multi, err := o.ConsultAll(ctx, req)
	if err != nil {
		return err
	}

	printMultiResult(multi)

	if consensusSynthesize {
		runSynthesis(ctx, o, multi)
	}

	consultSubject = consensusSubject
	recordHistory(ctx, multi, time.Since(start))
	return nil
}

// runSynthesis performs the single narrative-synthesis pass. Failure is
// reported and the statistical consensus above stands.
func runSynthesis(ctx context.Context, o *consult.Orchestrator, multi *consult.MultiResult) {
	var caller consensus.Caller
	if cfg.Consensus.Synthesis.Tool == "api" {
		caller = llm.NewClient(viper.GetString("anthropic.api_key"), cfg.Consensus.Synthesis.Model)
	} else {
		caller = o.SynthesisCaller()
	}

	result := consensus.NewSynthesizer(caller).Synthesize(ctx, consensusSubject, multi.Responses)
	printSynthesis(result)
}

func printSynthesis(r consensus.SynthesisResult) {
	fmt.Fprintln(ui.Out)
	if !r.Success {
		ui.Warning("Synthesis failed: %s (statistical consensus above stands)", r.Error)
		return
	}

	ui.Info("Synthesis: score %s, recommendation %s, consensus %s",
		output.Cyan(fmt.Sprintf("%.1f/10", r.Score)),
		output.VerdictColor(recommendationVerdict(r.Recommendation)),
		r.Level)

	printSynthesisTier("Critical", r.CriticalIssues)
	printSynthesisTier("High", r.HighIssues)
	printSynthesisTier("Medium/Low", r.MediumLowIssues)

	printStrings("Agreements", r.Agreements)
	printStrings("Disagreements", r.Disagreements)
	printStrings("Recommendations", r.Recommendations)
}

// recommendationVerdict maps the synthesis recommendation onto the verdict
// color scale for display.
func recommendationVerdict(rec string) string {
	switch rec {
	case "APPROVE":
		return "pass"
	case "REJECT":
		return "fail"
	case "REVISE":
		return "partial"
	default:
		return rec
	}
}

func printSynthesisTier(title string, issues []consensus.SynthesisIssue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s issues:\n", title)
	for _, issue := range issues {
		fmt.Fprintf(ui.Out, "  - %s (flagged by %s)\n", issue.Title, joinOrAll(issue.FlaggedBy))
		if issue.Impact != "" {
			fmt.Fprintf(ui.Out, "      Impact: %s\n", issue.Impact)
		}
		if issue.Fix != "" {
			fmt.Fprintf(ui.Out, "      Fix: %s\n", issue.Fix)
		}
	}
}

func printStrings(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(ui.Out, "  - %s\n", item)
	}
}

func joinOrAll(names []string) string {
	if len(names) == 0 {
		return "all"
	}
	out := names[0]
	for _, m := range names[1:] {
		out += ", " + m
	}
	return out
}
