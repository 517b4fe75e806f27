// Package commands implements CLI command handlers for shear.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Boshen/cargo-shear-sub000/internal/config"
	"github.com/Boshen/cargo-shear-sub000/internal/shear"
)

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath string
	fix        bool
	dryRun     bool
	expand     bool
	format     string
	colorMode  string
	packages   []string
	exclude    []string
	verbose    bool
	quiet      bool
	path       string
}

// NewRunCommand creates the analysis command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Detect unused dependencies in a cargo workspace",
		Long: "Analyze every workspace member's sources and report dependencies " +
			"that are declared in Cargo.toml but never imported.",
		Args: cobra.MaximumNArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: .shear.yaml in CWD or $HOME)")
	cmd.Flags().BoolVar(&rc.fix, "fix", false, "Remove unused dependencies from manifests")
	cmd.Flags().BoolVar(&rc.dryRun, "dry-run", false, "Show manifest edits without writing them")
	cmd.Flags().BoolVar(&rc.expand, "expand", false, "Use cargo macro expansion for import extraction")
	cmd.Flags().StringVar(&rc.format, "format", "", "Output format: auto, json, yaml")
	cmd.Flags().StringVar(&rc.colorMode, "color", "", "Color mode: auto, always, never")
	cmd.Flags().StringSliceVarP(&rc.packages, "package", "p", nil, "Only analyze the named packages")
	cmd.Flags().StringSliceVar(&rc.exclude, "exclude", nil, "Skip packages by name or path glob")
	cmd.Flags().BoolVarP(&rc.verbose, "verbose", "v", false, "Verbose output")
	cmd.Flags().BoolVarP(&rc.quiet, "quiet", "q", false, "Suppress output, exit code only")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	rc.path = "."
	if len(args) == 1 {
		rc.path = args[0]
	}

	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return err
	}

	rc.applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	code, runErr := shear.Run(cmd.Context(), shear.Options{
		Root:   rc.path,
		Config: cfg,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Logger: shear.NewLogger(cfg.Verbose, cfg.Quiet),
	})
	if runErr != nil {
		return runErr
	}

	if code != shear.ExitClean {
		// Exit directly: findings are already rendered, a cobra error
		// message would duplicate them.
		os.Exit(code)
	}

	return nil
}

// applyFlags overlays explicitly set flags onto the loaded configuration.
func (rc *RunCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("fix") {
		cfg.Fix = rc.fix
	}

	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = rc.dryRun
	}

	if cmd.Flags().Changed("expand") {
		cfg.Expand.Enabled = rc.expand
	}

	if rc.format != "" {
		cfg.Format = rc.format
	}

	if rc.colorMode != "" {
		cfg.Color = rc.colorMode
	}

	if len(rc.packages) > 0 {
		cfg.Packages = rc.packages
	}

	if len(rc.exclude) > 0 {
		cfg.Exclude = rc.exclude
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = rc.verbose
	}

	if cmd.Flags().Changed("quiet") {
		cfg.Quiet = rc.quiet
	}
}
