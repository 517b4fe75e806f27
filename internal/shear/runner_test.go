//nolint:testpackage // exercises unexported filtering and exit logic.
package shear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boshen/cargo-shear-sub000/internal/config"
	"github.com/Boshen/cargo-shear-sub000/pkg/cargo"
	"github.com/Boshen/cargo-shear-sub000/pkg/diagnostics"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
	"github.com/Boshen/cargo-shear-sub000/pkg/workspace"
)

func fixtureMeta() *cargo.Metadata {
	return &cargo.Metadata{
		WorkspaceRoot: "/ws",
		WorkspaceMembers: []string{
			"app 0.1.0 (path+file:///ws/crates/app)",
			"lib 0.1.0 (path+file:///ws/crates/lib)",
			"fixtures 0.1.0 (path+file:///ws/crates/fixtures)",
		},
		Packages: []cargo.Package{
			{ID: "app 0.1.0 (path+file:///ws/crates/app)", Name: "app", ManifestPath: "/ws/crates/app/Cargo.toml"},
			{ID: "lib 0.1.0 (path+file:///ws/crates/lib)", Name: "lib", ManifestPath: "/ws/crates/lib/Cargo.toml"},
			{ID: "fixtures 0.1.0 (path+file:///ws/crates/fixtures)", Name: "fixtures", ManifestPath: "/ws/crates/fixtures/Cargo.toml"},
		},
	}
}

func TestFilterMembersSelect(t *testing.T) {
	t.Parallel()

	meta := fixtureMeta()
	require.NoError(t, filterMembers(meta, []string{"app"}, nil))
	require.Len(t, meta.WorkspaceMembers, 1)
	assert.Contains(t, meta.WorkspaceMembers[0], "app")
}

func TestFilterMembersExcludeByName(t *testing.T) {
	t.Parallel()

	meta := fixtureMeta()
	require.NoError(t, filterMembers(meta, nil, []string{"fixtures"}))
	assert.Len(t, meta.WorkspaceMembers, 2)
}

func TestFilterMembersExcludeByGlob(t *testing.T) {
	t.Parallel()

	meta := fixtureMeta()
	require.NoError(t, filterMembers(meta, nil, []string{"crates/fix*"}))
	assert.Len(t, meta.WorkspaceMembers, 2)
}

func TestFilterMembersEmptySelection(t *testing.T) {
	t.Parallel()

	meta := fixtureMeta()
	require.ErrorIs(t, filterMembers(meta, []string{"nonexistent"}, nil), ErrNoPackagesSelected)
}

func TestFilterMembersNoFiltersKeepsAll(t *testing.T) {
	t.Parallel()

	meta := fixtureMeta()
	require.NoError(t, filterMembers(meta, nil, nil))
	assert.Len(t, meta.WorkspaceMembers, 3)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	unused := diagnostics.Finding{Kind: diagnostics.UnusedDependency, Dep: "serde"}
	warning := diagnostics.Finding{Kind: diagnostics.UnknownIgnore, Dep: "ghost"}

	plain := &config.Config{}
	fix := &config.Config{Fix: true}
	dry := &config.Config{Fix: true, DryRun: true}

	assert.Equal(t, ExitClean, exitCode(nil, plain, 0))
	assert.Equal(t, ExitClean, exitCode([]diagnostics.Finding{warning}, plain, 0))
	assert.Equal(t, ExitFindings, exitCode([]diagnostics.Finding{unused}, plain, 0))
	assert.Equal(t, ExitClean, exitCode([]diagnostics.Finding{unused}, fix, 1))
	assert.Equal(t, ExitFindings, exitCode([]diagnostics.Finding{unused}, dry, 1))
}

func TestManifestsByPath(t *testing.T) {
	t.Parallel()

	root := &manifest.Manifest{Path: "/ws/Cargo.toml"}
	member := &manifest.Manifest{Path: "/ws/crates/app/Cargo.toml"}

	wctx := &workspace.Context{
		RootManifest: root,
		Packages:     []*workspace.PackageContext{{Manifest: member}},
	}

	got := manifestsByPath(wctx)
	assert.Len(t, got, 2)
	assert.Same(t, root, got["/ws/Cargo.toml"])
	assert.Same(t, member, got["/ws/crates/app/Cargo.toml"])
}

func TestAllErrorsFixable(t *testing.T) {
	t.Parallel()

	fixable := diagnostics.Finding{Kind: diagnostics.UnusedDependency}
	assert.True(t, allErrorsFixable([]diagnostics.Finding{fixable}))

	// Warning-severity findings never block a clean fix exit.
	mixed := []diagnostics.Finding{fixable, {Kind: diagnostics.UnlinkedFiles}}
	assert.True(t, allErrorsFixable(mixed))
}

func TestDescribeError(t *testing.T) {
	t.Parallel()

	err := assert.AnError
	assert.Equal(t, err.Error(), DescribeError(err))
}

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, NewLogger(false, false))
	assert.NotNil(t, NewLogger(true, false))
	assert.NotNil(t, NewLogger(false, true))
}
