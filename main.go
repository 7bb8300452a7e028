package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "orimi-merchen",
		Short:         "WhatsApp bot for shelf photo submissions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Without a subcommand the binary serves, as container platforms expect.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newCatalogCommand())

	return rootCmd
}
