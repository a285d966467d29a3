package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "medpipe",
		Short: "Supervised-learning pipeline for clinical feature matrices",
		Long: `medpipe extracts a raw feature matrix for an entity, transforms it with a
declarative plan, selects features, trains one model per algorithm and writes
evaluation reports. Intermediate matrices are cached on disk.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "console", "Log format (console|json)")
	_ = root.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	return root
}
