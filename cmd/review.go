package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/incremental"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/output"
)

var (
	reviewTool    string
	reviewTimeout int
)

var reviewCmd = &cobra.Command{
	Use:   "review <subject> <file>...",
	Short: "Incrementally review files, re-consulting only what changed",
	Long: `Review a set of files under a stable subject label. File contents are
hashed; on repeat runs only added or modified files are sent to the
review tool, unchanged files reuse the previous verdict, and removed
files are dropped. A failed consultation leaves a gap rather than
serving a stale verdict.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(args[0], args[1:])
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewTool, "tool", "t", "", "Tool to consult; auto-detects when empty")
	reviewCmd.Flags().IntVar(&reviewTimeout, "timeout", 0, "Per-file timeout in seconds (0 = configured default)")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(subject string, paths []string) error {
	o, err := getOrchestrator()
	if err != nil {
		return err
	}

	timeout := cfg.Timeout()
	if reviewTimeout > 0 {
		timeout = time.Duration(reviewTimeout) * time.Second
	}

	if dryRun {
		ui.DryRunMsg("Would review %d file(s) under subject %q", len(paths), subject)
		return nil
	}

	ctx := context.Background()
	start := time.Now()

	result, err := o.ReviewFiles(ctx, subject, paths, consult.Request{
		Tool:    reviewTool,
		Timeout: timeout,
	})
	if err != nil {
		return err
	}

	printChanges(result.Changes)
	ui.Info("Consulted %d file(s), reused %d cached verdict(s)", result.Consulted, result.Reused)
	fmt.Fprintln(ui.Out)

	files := make([]string, 0, len(result.Reviews))
	for path := range result.Reviews {
		files = append(files, path)
	}
	sort.Strings(files)

	table := ui.Table([]string{"File", "Verdict", "Issues"})
	for _, path := range files {
		review := result.Reviews[path]
		table.Append([]string{
			path,
			output.VerdictColor(string(review.Verdict)),
			fmt.Sprintf("%d", len(review.Issues)),
		})
	}
	table.Render()

	for _, path := range files {
		review := result.Reviews[path]
		if len(review.Issues) == 0 {
			continue
		}
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "%s:\n", output.Cyan(path))
		printReviewBody(review)
	}

	recordReviewHistory(ctx, subject, result, time.Since(start))
	return nil
}

func printChanges(c incremental.Changes) {
	ui.Info("Changes: %s added, %s modified, %s removed, %d unchanged",
		output.Green(fmt.Sprintf("%d", len(c.Added))),
		output.Yellow(fmt.Sprintf("%d", len(c.Modified))),
		output.Red(fmt.Sprintf("%d", len(c.Removed))),
		len(c.Unchanged))
	if verbose {
		for _, p := range c.Added {
			ui.VerboseLog("added: %s", p)
		}
		for _, p := range c.Modified {
			ui.VerboseLog("modified: %s", p)
		}
		for _, p := range c.Removed {
			ui.VerboseLog("removed: %s", p)
		}
	}
}

func recordReviewHistory(ctx context.Context, subject string, result *consult.FileReviewResult, elapsed time.Duration) {
	s, err := getHistory()
	if err != nil {
		ui.VerboseLog("history unavailable: %v", err)
		return
	}

	verdict := models.VerdictPass
	for _, review := range result.Reviews {
		switch review.Verdict {
		case models.VerdictFail:
			verdict = models.VerdictFail
		case models.VerdictPartial, models.VerdictUnknown:
			if verdict == models.VerdictPass {
				verdict = models.VerdictPartial
			}
		}
	}
	if len(result.Reviews) == 0 {
		verdict = models.VerdictUnknown
	}

	tool := reviewTool
	if tool == "" {
		tool = "auto"
	}
	c := &models.Consultation{
		Subject:  subject,
		Kind:     models.ConsultationKindSingle,
		Tools:    []string{tool},
		Verdict:  verdict,
		CacheHit: result.Consulted == 0,
		Duration: elapsed,
	}
	if err := s.RecordConsultation(ctx, c); err != nil {
		ui.VerboseLog("record history: %v", err)
	}
}
