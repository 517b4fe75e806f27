// Package shear orchestrates one analysis run: cargo metadata, workspace
// construction, dependency analysis, the optional fix pass and rendering.
package shear

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Boshen/cargo-shear-sub000/internal/config"
	"github.com/Boshen/cargo-shear-sub000/pkg/analysis"
	"github.com/Boshen/cargo-shear-sub000/pkg/cargo"
	"github.com/Boshen/cargo-shear-sub000/pkg/diagnostics"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifestedit"
	"github.com/Boshen/cargo-shear-sub000/pkg/workspace"
)

// Process exit codes.
const (
	ExitClean    = 0
	ExitFindings = 1
	ExitFailure  = 2
)

// ErrNoPackagesSelected reports a package filter that matches no workspace
// member.
var ErrNoPackagesSelected = errors.New("shear: no packages match the selection")

// Options configure one run.
type Options struct {
	Root   string
	Config *config.Config
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.Default()
}

// Run executes the analysis and returns the process exit code. The error is
// non-nil only for exit code ExitFailure.
func Run(ctx context.Context, opts Options) (int, error) {
	start := time.Now()
	cfg := opts.Config
	log := opts.logger()

	meta, err := cargo.LoadMetadata(ctx, opts.Root)
	if err != nil {
		return ExitFailure, err
	}

	if err := filterMembers(meta, cfg.Packages, cfg.Exclude); err != nil {
		return ExitFailure, err
	}

	wsOpts := workspace.Options{Logger: log}
	if cfg.Expand.Enabled {
		wsOpts.Expand = true
		wsOpts.ExpandTimeout, _ = cfg.ExpandTimeout()
	}

	wctx, err := workspace.Build(ctx, meta, wsOpts)
	if err != nil {
		return ExitFailure, err
	}

	supplementRenames(meta, wctx, cfg.Registry.CargoHome, log)
	logExpandFailures(wctx, log)

	findings := analysis.Analyze(wctx)

	fixed, err := runFixPass(findings, wctx, cfg, opts.Stdout)
	if err != nil {
		return ExitFailure, err
	}

	if !cfg.Quiet {
		if err := render(findings, fixed, wctx, cfg, opts.Stdout, time.Since(start)); err != nil {
			return ExitFailure, err
		}
	}

	return exitCode(findings, cfg, fixed), nil
}

// filterMembers narrows the workspace member list in place. selected names
// members to keep; excluded drops members by name or by path glob relative
// to the workspace root.
func filterMembers(meta *cargo.Metadata, selected, excluded []string) error {
	if len(selected) == 0 && len(excluded) == 0 {
		return nil
	}

	keepName := make(map[string]bool, len(selected))
	for _, n := range selected {
		keepName[n] = true
	}

	byID := make(map[string]cargo.Package, len(meta.Packages))
	for _, p := range meta.Packages {
		byID[p.ID] = p
	}

	var kept []string

	for _, id := range meta.WorkspaceMembers {
		pkg, ok := byID[id]
		if !ok {
			continue
		}

		if len(selected) > 0 && !keepName[pkg.Name] {
			continue
		}

		if isExcluded(pkg, meta.WorkspaceRoot, excluded) {
			continue
		}

		kept = append(kept, id)
	}

	if len(kept) == 0 {
		return ErrNoPackagesSelected
	}

	meta.WorkspaceMembers = kept

	return nil
}

func isExcluded(pkg cargo.Package, root string, excluded []string) bool {
	rel, relErr := filepath.Rel(root, filepath.Dir(pkg.ManifestPath))
	for _, pattern := range excluded {
		if pattern == pkg.Name {
			return true
		}

		if relErr == nil {
			if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
				return true
			}
		}
	}

	return false
}

// supplementRenames fills PkgToImport entries the resolve graph missed by
// reading library names from the local registry checkout. Lookup failures
// degrade silently: the key-based fallback still applies.
func supplementRenames(meta *cargo.Metadata, wctx *workspace.Context, cargoHome string, log *slog.Logger) {
	reg, err := cargo.NewRegistry(cargoHome)
	if err != nil {
		log.Debug("registry unavailable, skipping lib name lookup", "err", err)
		return
	}

	members := make(map[string]bool, len(meta.WorkspaceMembers))
	for _, id := range meta.WorkspaceMembers {
		members[id] = true
	}

	for _, pkg := range meta.Packages {
		if members[pkg.ID] {
			continue
		}

		if _, done := wctx.PkgToImport[pkg.Name]; done {
			continue
		}

		lib, err := reg.LibName(pkg.Name, pkg.Version)
		if err != nil || lib == "" {
			continue
		}

		if manifest.NormalizeName(lib) != manifest.NormalizeName(pkg.Name) {
			wctx.PkgToImport[pkg.Name] = lib
		}
	}
}

func logExpandFailures(wctx *workspace.Context, log *slog.Logger) {
	for _, pctx := range wctx.Packages {
		for _, target := range pctx.ExpandFailures {
			log.Warn("macro expansion failed, falling back to structural extraction",
				"package", pctx.Pkg.Name, "target", target)
		}
	}
}

// runFixPass applies or previews manifest edits for fixable findings.
func runFixPass(findings []diagnostics.Finding, wctx *workspace.Context, cfg *config.Config, stdout io.Writer) (int, error) {
	if !cfg.Fix && !cfg.DryRun {
		return 0, nil
	}

	plan, err := manifestedit.BuildPlan(findings, manifestsByPath(wctx))
	if err != nil {
		return 0, err
	}

	res, err := plan.Apply(cfg.Fix && !cfg.DryRun)
	if err != nil {
		return 0, err
	}

	for path, diff := range res.Diffs {
		fmt.Fprintf(stdout, "--- %s\n%s\n", path, diff)
	}

	return res.Fixed, nil
}

func manifestsByPath(wctx *workspace.Context) map[string]*manifest.Manifest {
	out := make(map[string]*manifest.Manifest, len(wctx.Packages)+1)
	out[wctx.RootManifest.Path] = wctx.RootManifest

	for _, pctx := range wctx.Packages {
		out[pctx.Manifest.Path] = pctx.Manifest
	}

	return out
}

func render(findings []diagnostics.Finding, fixed int, wctx *workspace.Context, cfg *config.Config, stdout io.Writer, elapsed time.Duration) error {
	mode, err := diagnostics.ParseColorMode(cfg.Color)
	if err != nil {
		return err
	}

	mode.Apply()

	sources := make(map[string][]byte)
	stats := diagnostics.Stats{Packages: len(wctx.Packages), Elapsed: elapsed}

	sources[wctx.RootManifest.Path] = wctx.RootManifest.Raw
	stats.Dependencies += len(wctx.RootManifest.WorkspaceDependencies)

	for _, pctx := range wctx.Packages {
		sources[pctx.Manifest.Path] = pctx.Manifest.Raw
		stats.Dependencies += len(pctx.Manifest.Dependencies)
		stats.Files += len(pctx.Files)
	}

	renderer, err := diagnostics.NewRenderer(cfg.Format, sources, cfg.Verbose)
	if err != nil {
		return err
	}

	return renderer.Render(stdout, findings, diagnostics.Summarize(findings, fixed), stats)
}

// exitCode maps the run outcome onto the process exit code. A fix run that
// resolved every error-severity finding exits clean.
func exitCode(findings []diagnostics.Finding, cfg *config.Config, fixed int) int {
	if !diagnostics.HasErrors(findings) {
		return ExitClean
	}

	if cfg.Fix && !cfg.DryRun && allErrorsFixable(findings) && fixed > 0 {
		return ExitClean
	}

	return ExitFindings
}

func allErrorsFixable(findings []diagnostics.Finding) bool {
	for _, f := range findings {
		if f.Kind.Severity() == diagnostics.SeverityError && !f.Kind.Fixable() {
			return false
		}
	}

	return true
}

// NewLogger builds the run logger honoring verbosity flags.
func NewLogger(verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo

	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// DescribeError renders a run failure for stderr, unwrapping cargo
// invocation errors to their first line.
func DescribeError(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}

	return msg
}
