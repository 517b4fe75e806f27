package workspace //nolint:testpackage // exercises unexported helpers.

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boshen/cargo-shear-sub000/pkg/cargo"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixtureWorkspace lays out one package with a reachable module, an orphan
// file, an empty linked file, a dev-only test target and a nested package
// that must stay isolated.
func fixtureWorkspace(t *testing.T) (string, *cargo.Metadata) {
	t.Helper()

	root := t.TempDir()

	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "Cargo.toml"), `[package]
name = "app"
version = "0.1.0"

[dependencies]
serde = "1"
regex = "1"

[dev-dependencies]
insta = "1"
`)

	writeFile(t, filepath.Join(root, "src", "main.rs"), `mod util;
mod blank;

use serde::Serialize;

fn main() {}
`)
	writeFile(t, filepath.Join(root, "src", "util.rs"), "pub fn u() {}\n")
	writeFile(t, filepath.Join(root, "src", "blank.rs"), "// placeholder\n")
	writeFile(t, filepath.Join(root, "src", "orphan.rs"), "pub fn o() {}\n")
	writeFile(t, filepath.Join(root, "tests", "it.rs"), "use insta::assert_snapshot;\n#[test]\nfn t() {}\n")

	// Nested package: its files must not count as app's.
	writeFile(t, filepath.Join(root, "src", "nested", "Cargo.toml"), "[package]\nname = \"nested\"\n")
	writeFile(t, filepath.Join(root, "src", "nested", "src", "lib.rs"), "pub fn n() {}\n")

	appID := "app 0.1.0 (path+file://" + root + ")"
	meta := &cargo.Metadata{
		Packages: []cargo.Package{{
			ID:           appID,
			Name:         "app",
			Version:      "0.1.0",
			ManifestPath: filepath.Join(root, "Cargo.toml"),
			Targets: []cargo.Target{
				{Kind: []string{"bin"}, Name: "app", SrcPath: filepath.Join(root, "src", "main.rs")},
				{Kind: []string{"test"}, Name: "it", SrcPath: filepath.Join(root, "tests", "it.rs")},
			},
		}},
		WorkspaceMembers: []string{appID},
		WorkspaceRoot:    root,
	}

	return root, meta
}

func TestBuildImports(t *testing.T) {
	t.Parallel()

	_, meta := fixtureWorkspace(t)

	wctx, err := Build(context.Background(), meta, Options{})
	require.NoError(t, err)
	require.Len(t, wctx.Packages, 1)

	pctx := wctx.Packages[0]

	assert.True(t, pctx.Imports[manifest.DepNormal].Contains("serde"))
	assert.False(t, pctx.Imports[manifest.DepNormal].Contains("insta"))
	assert.True(t, pctx.Imports[manifest.DepDev].Contains("insta"))
	assert.Empty(t, pctx.Imports[manifest.DepBuild])
}

func TestBuildUnlinkedAndEmpty(t *testing.T) {
	t.Parallel()

	root, meta := fixtureWorkspace(t)

	wctx, err := Build(context.Background(), meta, Options{})
	require.NoError(t, err)

	pctx := wctx.Packages[0]

	assert.Equal(t, []string{filepath.Join(root, "src", "orphan.rs")}, pctx.Unlinked)
	assert.Equal(t, []string{filepath.Join(root, "src", "blank.rs")}, pctx.Empty)
}

func TestNestedPackageIsolation(t *testing.T) {
	t.Parallel()

	root, meta := fixtureWorkspace(t)

	wctx, err := Build(context.Background(), meta, Options{})
	require.NoError(t, err)

	nested := filepath.Join(root, "src", "nested", "src", "lib.rs")
	for _, f := range wctx.Packages[0].Unlinked {
		assert.NotEqual(t, nested, f)
	}
}

func TestBuildScriptSingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"b\"\nversion = \"0.1.0\"\n\n[build-dependencies]\ncc = \"1\"\n")
	writeFile(t, filepath.Join(root, "build.rs"), "fn main() { cc::Build::new(); }\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}\n")

	id := "b 0.1.0 (path+file://" + root + ")"
	meta := &cargo.Metadata{
		Packages: []cargo.Package{{
			ID: id, Name: "b", Version: "0.1.0",
			ManifestPath: filepath.Join(root, "Cargo.toml"),
			Targets: []cargo.Target{
				{Kind: []string{"lib"}, Name: "b", SrcPath: filepath.Join(root, "src", "lib.rs")},
				{Kind: []string{"custom-build"}, Name: "build-script-build", SrcPath: filepath.Join(root, "build.rs")},
			},
		}},
		WorkspaceMembers: []string{id},
		WorkspaceRoot:    root,
	}

	wctx, err := Build(context.Background(), meta, Options{})
	require.NoError(t, err)

	pctx := wctx.Packages[0]
	assert.True(t, pctx.Imports[manifest.DepBuild].Contains("cc"))
	assert.Empty(t, pctx.Unlinked)
}

func TestTableForTarget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, manifest.DepBuild, TableForTarget([]string{"custom-build"}))
	assert.Equal(t, manifest.DepDev, TableForTarget([]string{"test"}))
	assert.Equal(t, manifest.DepDev, TableForTarget([]string{"bench"}))
	assert.Equal(t, manifest.DepDev, TableForTarget([]string{"example"}))
	assert.Equal(t, manifest.DepNormal, TableForTarget([]string{"lib"}))
	assert.Equal(t, manifest.DepNormal, TableForTarget([]string{"bin"}))
	assert.Equal(t, manifest.DepNormal, TableForTarget(nil))
}

func TestInvertResolve(t *testing.T) {
	t.Parallel()

	meta := &cargo.Metadata{
		Packages: []cargo.Package{
			{ID: "a", Name: "app"},
			{ID: "f", Name: "funky-name"},
		},
		WorkspaceMembers: []string{"a"},
		Resolve: &cargo.Resolve{Nodes: []cargo.Node{
			{ID: "a", Deps: []cargo.NodeDep{{Name: "actual_lib", Pkg: "f"}}},
		}},
	}

	assert.Equal(t, map[string]string{"funky-name": "actual_lib"}, invertResolve(meta))
}
