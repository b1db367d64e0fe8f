package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/validation"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Run and inspect HR bulk imports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newTypesCmd())
	return cmd
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported import types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			for _, t := range validation.DefaultRegistry(cfg.SuggestionLimit).Types() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func main() {
	Execute()
}
