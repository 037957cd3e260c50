package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/git"
)

var (
	diffStaged  bool
	diffRef     string
	diffTimeout int
)

var diffCmd = &cobra.Command{
	Use:   "diff [path]",
	Short: "Review the git diff of a working tree",
	Long: `Collect the git diff of the given checkout (default: current
directory) and consult on it as a diff_review. Routing rules apply:
with the default configuration diff_review auto-triggers multi-agent
consensus.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		return diffRun(path)
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffStaged, "staged", false, "Review the staged diff instead of the working tree")
	diffCmd.Flags().StringVar(&diffRef, "ref", "", "Review the diff against this ref (overrides --staged)")
	diffCmd.Flags().IntVar(&diffTimeout, "timeout", 0, "Per-tool timeout in seconds (0 = configured default)")
	rootCmd.AddCommand(diffCmd)
}

func diffRun(path string) error {
	gc := git.NewClient()

	var diff string
	var err error
	if diffRef != "" {
		diff, err = gc.DiffAgainst(path, diffRef)
	} else {
		diff, err = gc.Diff(path, diffStaged)
	}
	if err != nil {
		return err
	}
	if diff == "" {
		ui.Info("Nothing to review: diff is empty")
		return nil
	}

	subject := git.Subject(gc, path)
	if files, err := gc.ChangedFiles(path); err == nil {
		ui.VerboseLog("%d changed file(s) under %s", len(files), subject)
	}
	if diffStaged {
		if dirty, err := gc.IsDirty(path); err == nil && dirty {
			ui.Warning("Working tree has changes beyond the staged diff; they will not be reviewed")
		}
	}

	o, err := getOrchestrator()
	if err != nil {
		return err
	}

	timeout := cfg.Timeout()
	if diffTimeout > 0 {
		timeout = time.Duration(diffTimeout) * time.Second
	}

	req := consult.Request{
		Prompt:  consult.BuildReviewPrompt("diff_review", subject, diff),
		Timeout: timeout,
		CacheParams: map[string]string{
			"subject": subject,
			"kind":    "diff_review",
			"content": diff,
		},
	}

	if dryRun {
		ui.DryRunMsg("Would review %d-byte diff for %s", len(diff), subject)
		return nil
	}

	ctx := context.Background()
	start := time.Now()

	multi, err := o.Route(ctx, "diff_review", req)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Reviewing diff for %s\n\n", subject)
	printMultiResult(multi)

	consultSubject = subject
	recordHistory(ctx, multi, time.Since(start))
	return nil
}
