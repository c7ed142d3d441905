// Package main is the entry point for the Jolteon bot process.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "jolteon",
		Short:         "Jolteon tag bot",
		Long:          "Jolteon serves community factoids: per-community prefixes, tag aggregation, and reaction-driven reply retraction.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, _ []string) error {
			return run(command.Context())
		},
	}

	if err := root.Execute(); err != nil {
		slog.Error("bot exited with error", "error", err)
		os.Exit(1)
	}
}
