package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/output"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List configured review tools and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toolsRun()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func toolsRun() error {
	reg := cfg.Registry()

	table := ui.Table([]string{"Tool", "Command", "Enabled", "Available", "Models"})
	for _, t := range reg.All() {
		enabled := "no"
		if reg.IsEnabled(t.Name) {
			enabled = output.Green("yes")
		}
		available := output.Red("no")
		if reg.IsAvailable(t.Name) {
			available = output.Green("yes")
		}
		modelsCol := "-"
		if len(t.Models) > 0 {
			modelsCol = strings.Join(t.Models, ", ")
		}
		table.Append([]string{
			output.Cyan(t.Name),
			t.Command,
			enabled,
			available,
			modelsCol,
		})
	}
	table.Render()

	ui.Info("%d of %d enabled tool(s) available", len(reg.AvailableEnabled()), len(reg.Enabled()))
	if name, ok := reg.FirstAvailable(); ok {
		ui.Info("Auto-detection would pick: %s", output.Cyan(name))
	} else {
		ui.Warning("No enabled tool is on PATH")
	}
	return nil
}
