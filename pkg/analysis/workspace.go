package analysis

import (
	"path/filepath"

	"github.com/Boshen/cargo-shear-sub000/pkg/diagnostics"
	"github.com/Boshen/cargo-shear-sub000/pkg/workspace"
)

// Analyze runs the per-package classifier over every member package and the
// workspace aggregator over the shared dependency table, returning one
// deterministically ordered finding list.
func Analyze(wctx *workspace.Context) []diagnostics.Finding {
	var (
		findings []diagnostics.Finding
		results  []PackageResult
	)

	for _, pctx := range wctx.Packages {
		res := AnalyzePackage(pctx, wctx.RootManifest, wctx.PkgToImport)
		results = append(results, res)
		findings = append(findings, res.Findings...)
	}

	findings = append(findings, workspaceGlobFindings(wctx)...)
	findings = append(findings, analyzeWorkspaceDeps(wctx, results)...)

	diagnostics.Sort(findings)

	return findings
}

// workspaceGlobFindings flags workspace-level ignored-path globs matching no
// file of any member package. One check for the whole workspace: a glob that
// hits files in any single member is not redundant.
func workspaceGlobFindings(wctx *workspace.Context) []diagnostics.Finding {
	root := wctx.RootManifest
	wsRoot := filepath.Dir(root.Path)

	var findings []diagnostics.Finding

	for _, g := range root.WorkspaceIgnore.Paths {
		matched := false

		for _, pctx := range wctx.Packages {
			if globMatchesAny(g.Name, pctx, wsRoot) {
				matched = true

				break
			}
		}

		if !matched {
			findings = append(findings, diagnostics.Finding{
				Kind: diagnostics.RedundantIgnorePath,
				File: root.Path,
				Span: g.Span,
				Dep:  g.Name,
			})
		}
	}

	return findings
}

// analyzeWorkspaceDeps flags entries of [workspace.dependencies] no member
// package imports. A single-package project has no shared table semantics
// to check.
func analyzeWorkspaceDeps(wctx *workspace.Context, results []PackageResult) []diagnostics.Finding {
	const minPackagesForSharedTable = 2

	root := wctx.RootManifest

	if len(wctx.Packages) < minPackagesForSharedTable || !root.HasWorkspaceDeps() {
		return nil
	}

	union := make(workspace.Set)
	declaredAnywhere := make(map[string]bool)
	consumedWs := make(map[string]bool)

	for _, res := range results {
		union.Add(res.UsedImports)

		for name := range res.DeclaredNames {
			declaredAnywhere[name] = true
		}

		for name := range res.ConsumedWorkspaceIgnores {
			consumedWs[name] = true
		}
	}

	wsIgnored := ignoreNameSet(root.WorkspaceIgnore.Deps)

	var findings []diagnostics.Finding

	for _, d := range root.WorkspaceDependencies {
		n := effectiveImportName(d, wctx.PkgToImport)
		declaredAnywhere[d.Key] = true
		declaredAnywhere[d.PackageName()] = true
		declaredAnywhere[n] = true

		if union.Contains(n) {
			continue
		}

		if matchIgnore(wsIgnored, d, n) {
			consumedWs[matchedName(wsIgnored, d, n)] = true

			continue
		}

		findings = append(findings, diagnostics.Finding{
			Kind:     diagnostics.UnusedWorkspaceDependency,
			File:     root.Path,
			Span:     d.KeySpan,
			Dep:      d.Key,
			Location: d.Location,
		})
	}

	findings = append(findings,
		scanIgnoreEntries(root.WorkspaceIgnore.Deps, consumedWs, declaredAnywhere, root.Path)...)

	return findings
}
