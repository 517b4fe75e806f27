// Package workspace builds the per-package analysis inputs: which source
// files belong to each package, which of them are reachable from build
// entry points, and which external identifiers each build profile imports.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Boshen/cargo-shear-sub000/pkg/cargo"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
	"github.com/Boshen/cargo-shear-sub000/pkg/rustsrc"
)

// Set is a string set. Merging is a plain union, so parallel extraction
// order never shows in results.
type Set map[string]struct{}

// Add inserts every element of other.
func (s Set) Add(other Set) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Contains reports membership.
func (s Set) Contains(k string) bool {
	_, ok := s[k]

	return ok
}

// TableForTarget maps a build-target kind onto the dependency table whose
// entries it may consume.
func TableForTarget(kind []string) manifest.DepTable {
	if len(kind) == 0 {
		return manifest.DepNormal
	}

	switch kind[0] {
	case "custom-build":
		return manifest.DepBuild
	case "test", "bench", "example":
		return manifest.DepDev
	default:
		return manifest.DepNormal
	}
}

// PackageContext is one member package's collected analysis input.
type PackageContext struct {
	Pkg      cargo.Package
	Dir      string
	Manifest *manifest.Manifest

	// Imports holds the union of extracted import roots per build profile.
	Imports map[manifest.DepTable]Set

	// Files lists every source file attributed to the package.
	Files []string

	// Unlinked lists package source files unreachable from any entry
	// point; Empty lists reachable files with no items.
	Unlinked []string
	Empty    []string

	// ExpandFailures names targets whose macro expansion failed and fell
	// back to structural extraction.
	ExpandFailures []string
}

// Context is the whole workspace's analysis input.
type Context struct {
	Root         string
	RootManifest *manifest.Manifest
	Packages     []*PackageContext

	// PkgToImport maps a package name onto the identifier its library is
	// imported under, from the resolution graph. Only differing names need
	// entries.
	PkgToImport map[string]string
}

// Options configure workspace construction.
type Options struct {
	Expand        bool
	ExpandTimeout time.Duration
	Logger        *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.Default()
}

// Build reads every member package's manifest and sources. Manifest errors
// are fatal; file-level problems degrade to empty extraction results.
func Build(ctx context.Context, meta *cargo.Metadata, opts Options) (*Context, error) {
	rootManifestPath := filepath.Join(meta.WorkspaceRoot, "Cargo.toml")

	rootRaw, err := os.ReadFile(rootManifestPath)
	if err != nil {
		return nil, fmt.Errorf("workspace: read root manifest: %w", err)
	}

	rootManifest, err := manifest.Parse(rootManifestPath, rootRaw)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	wctx := &Context{
		Root:         meta.WorkspaceRoot,
		RootManifest: rootManifest,
		PkgToImport:  invertResolve(meta),
	}

	members := meta.WorkspacePackages()
	wctx.Packages = make([]*PackageContext, len(members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, pkg := range members {
		g.Go(func() error {
			pctx, err := buildPackage(gctx, pkg, opts)
			if err != nil {
				return err
			}

			wctx.Packages[i] = pctx

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return wctx, nil
}

// invertResolve maps package names back to their import identifiers, for
// crates whose library name differs from the package name.
func invertResolve(meta *cargo.Metadata) map[string]string {
	out := make(map[string]string)

	for importName, pkgName := range meta.ImportToPackage() {
		if manifest.NormalizeName(pkgName) != importName {
			out[pkgName] = importName
		}
	}

	return out
}

func buildPackage(ctx context.Context, pkg cargo.Package, opts Options) (*PackageContext, error) {
	raw, err := os.ReadFile(pkg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("workspace: read manifest for %s: %w", pkg.Name, err)
	}

	m, err := manifest.Parse(pkg.ManifestPath, raw)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	pctx := &PackageContext{
		Pkg:      pkg,
		Dir:      filepath.Dir(pkg.ManifestPath),
		Manifest: m,
		Imports: map[manifest.DepTable]Set{
			manifest.DepNormal: {},
			manifest.DepDev:    {},
			manifest.DepBuild:  {},
		},
	}

	entryPoints := make(Set)
	for _, t := range pkg.Targets {
		entryPoints[filepath.Clean(t.SrcPath)] = struct{}{}
	}

	targetFiles := make([][]string, len(pkg.Targets))
	allFiles := make(Set)

	for i, t := range pkg.Targets {
		files, err := targetSourceFiles(t, pctx.Dir)
		if err != nil {
			return nil, fmt.Errorf("workspace: enumerate %s: %w", pkg.Name, err)
		}

		targetFiles[i] = files

		for _, f := range files {
			allFiles[f] = struct{}{}
		}
	}

	parsed, err := parseFiles(ctx, allFiles, entryPoints)
	if err != nil {
		return nil, err
	}

	for i, t := range pkg.Targets {
		table := TableForTarget(t.Kind)

		for _, f := range targetFiles[i] {
			if src := parsed[f]; src != nil {
				pctx.Imports[table].Add(src.Imports)
			}
		}
	}

	if opts.Expand {
		expandTargets(ctx, pkg, pctx, opts)
	}

	linkFiles(pctx, parsed, entryPoints, allFiles)

	return pctx, nil
}

// targetSourceFiles enumerates the files a target can own: the entry file
// alone for build scripts, the entry file's directory tree otherwise.
// Directories rooted by another manifest belong to a nested package and are
// never attributed to this one.
func targetSourceFiles(t cargo.Target, pkgDir string) ([]string, error) {
	entry := filepath.Clean(t.SrcPath)

	if len(t.Kind) > 0 && t.Kind[0] == "custom-build" {
		return []string{entry}, nil
	}

	start := filepath.Dir(entry)

	var files []string

	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries degrade to absence, same as unparseable
			// files.
			return nil //nolint:nilerr // per-file errors are recoverable
		}

		if d.IsDir() {
			if path != start && path != pkgDir && hasManifest(path) {
				return filepath.SkipDir
			}

			return nil
		}

		if strings.HasSuffix(d.Name(), ".rs") {
			files = append(files, filepath.Clean(path))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", start, err)
	}

	return files, nil
}

func hasManifest(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "Cargo.toml"))

	return err == nil
}

// parseFiles extracts every file in parallel. Results merge by set union,
// so scheduling order is invisible.
func parseFiles(ctx context.Context, files, entryPoints Set) (map[string]*rustsrc.Source, error) {
	paths := make([]string, 0, len(files))
	for f := range files {
		paths = append(paths, f)
	}

	results := make([]*rustsrc.Source, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range paths {
		g.Go(func() error {
			raw, err := os.ReadFile(path)
			if err != nil {
				results[i] = &rustsrc.Source{Path: path, Imports: map[string]struct{}{}}

				return nil //nolint:nilerr // unreadable file degrades to empty result
			}

			results[i] = rustsrc.Parse(path, raw, rustsrc.Options{
				EntryPoint: entryPoints.Contains(path),
			})

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	parsed := make(map[string]*rustsrc.Source, len(paths))
	for i, path := range paths {
		parsed[path] = results[i]
	}

	return parsed, nil
}

// expandTargets augments the structural import sets with roots found in
// macro-expanded output. Failures degrade to structural-only for that
// target and are surfaced as advisories, never errors.
func expandTargets(ctx context.Context, pkg cargo.Package, pctx *PackageContext, opts Options) {
	for _, t := range pkg.Targets {
		if len(t.Kind) > 0 && t.Kind[0] == "custom-build" {
			continue
		}

		expanded, err := cargo.ExpandTarget(ctx, pkg, t, opts.ExpandTimeout)
		if err != nil {
			opts.logger().Debug("macro expansion failed",
				"package", pkg.Name, "target", t.Name, "err", err)

			pctx.ExpandFailures = append(pctx.ExpandFailures, t.Name)

			continue
		}

		src := rustsrc.Parse(t.SrcPath, []byte(expanded), rustsrc.Options{
			EntryPoint: true,
			Expanded:   true,
		})

		pctx.Imports[TableForTarget(t.Kind)].Add(src.Imports)
	}
}

// linkFiles computes reachability: a file is linked iff it is an entry
// point or some parsed file declares it as a module or include target.
func linkFiles(pctx *PackageContext, parsed map[string]*rustsrc.Source, entryPoints, allFiles Set) {
	linked := make(Set)
	linked.Add(entryPoints)

	for _, src := range parsed {
		for _, p := range src.LinkedPaths {
			linked[canonicalPath(p)] = struct{}{}
		}
	}

	for f := range allFiles {
		pctx.Files = append(pctx.Files, f)

		if !linked.Contains(f) {
			pctx.Unlinked = append(pctx.Unlinked, f)

			continue
		}

		if entryPoints.Contains(f) {
			continue
		}

		if src := parsed[f]; src != nil && src.Empty {
			pctx.Empty = append(pctx.Empty, f)
		}
	}

	sort.Strings(pctx.Files)
	sort.Strings(pctx.Unlinked)
	sort.Strings(pctx.Empty)
}

// canonicalPath resolves relative module candidates and symlinked paths to
// the form file enumeration produced.
func canonicalPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return filepath.Clean(resolved)
	}

	return filepath.Clean(p)
}
