package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/output"
	"github.com/mfalkner/arbiter/internal/store"
)

var (
	historySubject string
	historyKind    string
	historyVerdict string
	historyLimit   int
	historyKeep    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past consultations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun()
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest consultations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyPruneRun()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySubject, "subject", "", "Filter by subject")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Filter by kind: single, multi, synthesis")
	historyCmd.Flags().StringVar(&historyVerdict, "verdict", "", "Filter by verdict: pass, fail, partial, unknown")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows to show")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 100, "Number of newest rows to keep")
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun() error {
	s, err := getHistory()
	if err != nil {
		return err
	}

	rows, err := s.ListConsultations(context.Background(), store.ConsultationFilter{
		Subject: historySubject,
		Kind:    models.ConsultationKind(historyKind),
		Verdict: models.Verdict(historyVerdict),
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		ui.Info("No consultations recorded")
		return nil
	}

	table := ui.Table([]string{"When", "Subject", "Kind", "Tools", "Verdict", "Agreement", "Cached", "Duration"})
	for _, c := range rows {
		agreement := "-"
		if c.Kind == models.ConsultationKindMulti {
			agreement = output.AgreementColor(c.AgreementRate)
		}
		cached := ""
		if c.CacheHit {
			cached = "hit"
		}
		table.Append([]string{
			timeAgo(c.CreatedAt),
			c.Subject,
			string(c.Kind),
			fmt.Sprintf("%d", len(c.Tools)),
			output.VerdictColor(string(c.Verdict)),
			agreement,
			cached,
			c.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
	return nil
}

func historyPruneRun() error {
	s, err := getHistory()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would prune history to the newest %d row(s)", historyKeep)
		return nil
	}

	deleted, err := s.PruneConsultations(context.Background(), historyKeep)
	if err != nil {
		return err
	}
	ui.Success("Deleted %d row(s), kept the newest %d", deleted, historyKeep)
	return nil
}

// timeAgo renders a timestamp as a compact relative duration.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
