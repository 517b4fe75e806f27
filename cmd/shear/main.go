// Package main provides the entry point for the shear CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Boshen/cargo-shear-sub000/cmd/shear/commands"
	"github.com/Boshen/cargo-shear-sub000/internal/shear"
	"github.com/Boshen/cargo-shear-sub000/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	runCmd := commands.NewRunCommand()

	rootCmd := &cobra.Command{
		Use:   "shear [path]",
		Short: "Shear - unused cargo dependency detection",
		Long: `Shear finds dependencies declared in Cargo.toml files that no source
file of the workspace imports, and can remove them in place.

Commands:
  run       Analyze a workspace and report unused dependencies`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCmd.SetContext(cmd.Context())

			return runCmd.RunE(runCmd, args)
		},
	}

	// A bare `shear [path]` behaves like `shear run [path]`.
	rootCmd.Flags().AddFlagSet(runCmd.Flags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", shear.DescribeError(err))
		os.Exit(shear.ExitFailure)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
