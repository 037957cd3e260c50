package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/cache"
)

var (
	cacheClearSubject string
	cacheClearKind    string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the consultation cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheStatsRun()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and disk usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheStatsRun()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached consultations",
	Long: `Remove cached consultations. Without filters every entry goes; with
--subject or --kind only matching entries are removed. Entries written
without metadata are never matched by a filtered clear.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheClearRun()
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheCleanupRun()
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearSubject, "subject", "", "Only clear entries for this subject")
	cacheClearCmd.Flags().StringVar(&cacheClearKind, "kind", "", "Only clear entries of this kind")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}

func requireCache() (*cache.Manager, error) {
	m, err := getCache()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("cache is disabled (set cache.enabled: true)")
	}
	return m, nil
}

func cacheStatsRun() error {
	m, err := requireCache()
	if err != nil {
		return err
	}

	stats, err := m.Stats()
	if err != nil {
		return err
	}

	ui.Info("Cache directory: %s", m.Dir())
	table := ui.Table([]string{"Total", "Active", "Expired", "Size"})
	table.Append([]string{
		fmt.Sprintf("%d", stats.Total),
		fmt.Sprintf("%d", stats.Active),
		fmt.Sprintf("%d", stats.Expired),
		formatBytes(stats.Bytes),
	})
	table.Render()
	return nil
}

func cacheClearRun() error {
	m, err := requireCache()
	if err != nil {
		return err
	}

	filter := cache.Filter{Subject: cacheClearSubject, Kind: cacheClearKind}

	if dryRun {
		ui.DryRunMsg("Would clear cache entries (subject=%q kind=%q)", cacheClearSubject, cacheClearKind)
		return nil
	}

	removed, err := m.Clear(filter)
	if err != nil {
		return err
	}
	ui.Success("Removed %d cache entr%s", removed, pluralY(removed))
	return nil
}

func cacheCleanupRun() error {
	m, err := requireCache()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove expired cache entries")
		return nil
	}

	removed, err := m.Cleanup()
	if err != nil {
		return err
	}
	ui.Success("Removed %d expired entr%s", removed, pluralY(removed))
	return nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
