// Package analysis is the decision core: it cross-references extracted
// import sets against the manifest model, per package and per workspace,
// and produces the finding list.
package analysis

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Boshen/cargo-shear-sub000/pkg/diagnostics"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
	"github.com/Boshen/cargo-shear-sub000/pkg/workspace"
)

// PackageResult is one package's classification output plus the bookkeeping
// the workspace pass needs for ignore-redundancy checks.
type PackageResult struct {
	Findings []diagnostics.Finding

	// UsedImports is the package's normal-profile import set, consumed by
	// the workspace aggregator.
	UsedImports workspace.Set

	// ConsumedWorkspaceIgnores names workspace-level ignore entries that
	// suppressed a finding in this package.
	ConsumedWorkspaceIgnores map[string]bool

	// DeclaredNames holds every name a dependency of this package is known
	// by: key, package name and import identifier.
	DeclaredNames map[string]bool
}

// effectiveImportName resolves the identifier a dependency is imported
// under, preferring the resolution graph's answer for renamed libraries.
func effectiveImportName(d manifest.Dependency, pkgToImport map[string]string) string {
	if lib, ok := pkgToImport[d.PackageName()]; ok {
		return manifest.NormalizeName(lib)
	}

	return d.ImportName()
}

// AnalyzePackage classifies every declared dependency of one package and
// scans its ignore configuration. root carries the workspace-level ignores.
func AnalyzePackage(pctx *workspace.PackageContext, root *manifest.Manifest, pkgToImport map[string]string) PackageResult {
	m := pctx.Manifest

	res := PackageResult{
		UsedImports:              pctx.Imports[manifest.DepNormal],
		ConsumedWorkspaceIgnores: make(map[string]bool),
		DeclaredNames:            make(map[string]bool),
	}

	pkgIgnored := ignoreNameSet(m.Ignore.Deps)
	wsIgnored := ignoreNameSet(root.WorkspaceIgnore.Deps)
	consumedPkg := make(map[string]bool)

	for _, d := range m.Dependencies {
		n := effectiveImportName(d, pkgToImport)

		res.DeclaredNames[d.Key] = true
		res.DeclaredNames[d.PackageName()] = true
		res.DeclaredNames[n] = true

		finding, ok := classifyDependency(d, n, m, pctx)
		if !ok {
			continue
		}

		switch {
		case matchIgnore(pkgIgnored, d, n):
			consumedPkg[matchedName(pkgIgnored, d, n)] = true
		case matchIgnore(wsIgnored, d, n):
			res.ConsumedWorkspaceIgnores[matchedName(wsIgnored, d, n)] = true
		default:
			res.Findings = append(res.Findings, finding)
		}
	}

	res.Findings = append(res.Findings,
		scanIgnoreEntries(m.Ignore.Deps, consumedPkg, res.DeclaredNames, m.Path)...)

	res.Findings = append(res.Findings, fileFindings(pctx, root)...)

	return res
}

// classifyDependency applies the decision table to one dependency. The
// second return is false when the dependency is simply used.
func classifyDependency(d manifest.Dependency, n string, m *manifest.Manifest, pctx *workspace.PackageContext) (diagnostics.Finding, bool) {
	normal := pctx.Imports[manifest.DepNormal]
	dev := pctx.Imports[manifest.DepDev]
	build := pctx.Imports[manifest.DepBuild]

	if normal.Contains(n) || build.Contains(n) {
		return diagnostics.Finding{}, false
	}

	base := diagnostics.Finding{
		File:     m.Path,
		Span:     d.KeySpan,
		Dep:      d.Key,
		Location: d.Location,
	}

	if dev.Contains(n) {
		// Misplaced beats unused whenever the import shows up in a
		// non-matching profile.
		if d.Location.Table != manifest.DepNormal {
			return diagnostics.Finding{}, false
		}

		base.Kind = diagnostics.MisplacedDependency
		if d.Optional {
			base.Kind = diagnostics.MisplacedOptionalDependency
			base.Related = featureRelated(m.RefsFor(d.Key))
		}

		return base, true
	}

	refs := m.RefsFor(d.Key)

	if d.Optional {
		// Optional status takes precedence over feature-only
		// classification.
		base.Kind = diagnostics.UnusedOptionalDependency
		base.Related = optionalRelated(refs)

		return base, true
	}

	if len(refs) > 0 && onlySubFeatureRefs(refs) {
		base.Kind = diagnostics.UnusedFeatureDependency
		base.Related = featureRelated(refs)

		return base, true
	}

	base.Kind = diagnostics.UnusedDependency

	return base, true
}

func onlySubFeatureRefs(refs []manifest.FeatureRef) bool {
	for _, r := range refs {
		if r.Enables() {
			return false
		}
	}

	return true
}

func featureRelated(refs []manifest.FeatureRef) []diagnostics.Related {
	related := make([]diagnostics.Related, 0, len(refs))

	for _, r := range refs {
		related = append(related, diagnostics.Related{
			Message: "used in feature `" + r.Feature + "`",
			Span:    r.ValueSpan,
		})
	}

	return related
}

func optionalRelated(refs []manifest.FeatureRef) []diagnostics.Related {
	related := featureRelated(refs)

	return append(related, diagnostics.Related{
		Message: "removing an optional dependency may be a breaking change",
	})
}

func ignoreNameSet(entries []manifest.IgnoreEntry) map[string]manifest.Span {
	set := make(map[string]manifest.Span, len(entries))

	for _, e := range entries {
		set[e.Name] = e.Span
	}

	return set
}

func matchIgnore(ignored map[string]manifest.Span, d manifest.Dependency, n string) bool {
	return matchedName(ignored, d, n) != ""
}

// matchedName returns the configured spelling that suppresses d, trying the
// key, the package name and the import identifier.
func matchedName(ignored map[string]manifest.Span, d manifest.Dependency, n string) string {
	for _, name := range []string{d.Key, d.PackageName(), n} {
		if _, ok := ignored[name]; ok {
			return name
		}
	}

	return ""
}

// scanIgnoreEntries flags configured names that are unknown or had no
// finding to suppress.
func scanIgnoreEntries(entries []manifest.IgnoreEntry, consumed, declared map[string]bool, file string) []diagnostics.Finding {
	var findings []diagnostics.Finding

	for _, e := range entries {
		switch {
		case !declared[e.Name]:
			findings = append(findings, diagnostics.Finding{
				Kind: diagnostics.UnknownIgnore,
				File: file,
				Span: e.Span,
				Dep:  e.Name,
			})
		case !consumed[e.Name]:
			findings = append(findings, diagnostics.Finding{
				Kind: diagnostics.RedundantIgnore,
				File: file,
				Span: e.Span,
				Dep:  e.Name,
			})
		}
	}

	return findings
}

// fileFindings reports unlinked and empty files, after applying the path
// globs configured at package and workspace level. Only package-level globs
// are scanned for redundancy here; a workspace glob may match files of a
// different member, so those are checked once against the whole workspace.
func fileFindings(pctx *workspace.PackageContext, root *manifest.Manifest) []diagnostics.Finding {
	var findings []diagnostics.Finding

	globs := append([]manifest.IgnoreEntry{}, pctx.Manifest.Ignore.Paths...)
	globs = append(globs, root.WorkspaceIgnore.Paths...)

	wsRoot := filepath.Dir(root.Path)

	for _, g := range pctx.Manifest.Ignore.Paths {
		if !globMatchesAny(g.Name, pctx, wsRoot) {
			findings = append(findings, diagnostics.Finding{
				Kind: diagnostics.RedundantIgnorePath,
				File: pctx.Manifest.Path,
				Span: g.Span,
				Dep:  g.Name,
			})
		}
	}

	if unlinked := filterIgnored(pctx.Unlinked, globs, pctx.Dir, wsRoot); len(unlinked) > 0 {
		findings = append(findings, diagnostics.Finding{
			Kind:  diagnostics.UnlinkedFiles,
			File:  pctx.Manifest.Path,
			Paths: relativize(unlinked, wsRoot),
		})
	}

	if empty := filterIgnored(pctx.Empty, globs, pctx.Dir, wsRoot); len(empty) > 0 {
		findings = append(findings, diagnostics.Finding{
			Kind:  diagnostics.EmptyFiles,
			File:  pctx.Manifest.Path,
			Paths: relativize(empty, wsRoot),
		})
	}

	return findings
}

func globMatchesAny(pattern string, pctx *workspace.PackageContext, wsRoot string) bool {
	for _, f := range pctx.Files {
		if matchGlob(pattern, f, pctx.Dir, wsRoot) {
			return true
		}
	}

	return false
}

// matchGlob tests a configured pattern against a file, relative to both the
// package directory and the workspace root so either spelling works.
func matchGlob(pattern, path, pkgDir, wsRoot string) bool {
	for _, base := range []string{pkgDir, wsRoot} {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			continue
		}

		if ok, err := doublestar.Match(pattern, filepath.ToSlash(rel)); err == nil && ok {
			return true
		}
	}

	return false
}

func filterIgnored(paths []string, globs []manifest.IgnoreEntry, pkgDir, wsRoot string) []string {
	var kept []string

outer:
	for _, p := range paths {
		for _, g := range globs {
			if matchGlob(g.Name, p, pkgDir, wsRoot) {
				continue outer
			}
		}

		kept = append(kept, p)
	}

	return kept
}

func relativize(paths []string, root string) []string {
	out := make([]string, 0, len(paths))

	for _, p := range paths {
		if rel, err := filepath.Rel(root, p); err == nil {
			out = append(out, filepath.ToSlash(rel))
		} else {
			out = append(out, filepath.ToSlash(p))
		}
	}

	return out
}
